package main

import (
	"bufio"
	"context"
	"fmt"
	"fuzzforge/config"
	"fuzzforge/internal/backtrace"
	"fuzzforge/internal/campaign"
	"fuzzforge/internal/crash"
	"fuzzforge/internal/discovery"
	"fuzzforge/internal/proc"
	"fuzzforge/internal/session"
	"fuzzforge/internal/sink"
	"fuzzforge/internal/workflow"
	"fuzzforge/pkg/database"
	"fuzzforge/pkg/logger"
	"fuzzforge/pkg/mq"
	"fuzzforge/pkg/telemetry"
	"fuzzforge/pkg/watchdog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewAppContext(lc fx.Lifecycle) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
	return ctx
}

func newRunner(logger *zap.Logger) proc.Runner {
	return proc.NewDockerRunner(logger)
}

// newCampaignConfig binds the settings load to the workspace the CLI
// was pointed at, so the fx graph can provide a validated
// CampaignConfig like any other dependency.
func newCampaignConfig(workspace string) func(*config.SettingsStore) (config.CampaignConfig, error) {
	return func(store *config.SettingsStore) (config.CampaignConfig, error) {
		raw, err := store.Load(workspace)
		if err != nil {
			return config.CampaignConfig{}, err
		}
		return config.Normalize(raw)
	}
}

// engine is the slice of the object graph the CLI commands work with.
type engine struct {
	fx.In

	Ctx        context.Context
	AppConfig  *config.AppConfig
	Campaign   config.CampaignConfig
	Sessions   *session.Factory
	Cache      *discovery.Cache
	Backtraces *backtrace.Generator
	Correlator *crash.Correlator
	DB         *gorm.DB `optional:"true"`
}

// openEngine builds and starts the fx graph for one workspace.
// Telemetry only joins the graph when an OTLP endpoint is configured;
// without it the tracer factory hands out no-op tracers.
func openEngine(workspace string) (*engine, *fx.App, error) {
	eng := &engine{}
	opts := []fx.Option{
		fx.Provide(
			NewAppContext,                // inject app context
			config.LoadConfig,            // inject config
			config.NewSettingsStore,      // inject settings store
			newCampaignConfig(workspace), // inject campaign settings
			logger.NewLogger,             // inject logger
			database.NewDBConnection,     // inject db connection
			database.NewRedisClient,      // inject redis client
			mq.NewRabbitMQ,               // inject rabbitmq service
			mq.NewEventPublisher,         // inject event publisher
			telemetry.NewTracerFactory,   // inject telemetry tracer factory
			watchdog.NewWatchDogFactory,  // inject watchdog factory
			newRunner,                    // inject container runner
			crash.NewCorrelator,          // inject crash correlator
			discovery.NewCache,           // inject discovery cache
			campaign.NewBuildCoordinator, // inject build coordinator
			campaign.NewRunCoordinator,   // inject run coordinator
			workflow.NewOrchestrator,     // inject workflow orchestrator
			backtrace.NewGenerator,       // inject backtrace generator
			session.NewFactory,           // inject session factory
		),
		fx.Populate(eng),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	}
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		opts = append(opts, fx.Provide(telemetry.NewTelemetry)) // inject telemetry
	}

	app := fx.New(opts...)
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return nil, nil, err
	}
	return eng, app, nil
}

func closeEngine(app *fx.App) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.Stop(stopCtx)
}

func workspacePath(c *cli.Context) (string, error) {
	ws, err := filepath.Abs(c.String("workspace"))
	if err != nil {
		return "", fmt.Errorf("resolve workspace path: %w", err)
	}
	return ws, nil
}

func containerRef(c *cli.Context, eng *engine) string {
	if ref := c.String("container"); ref != "" {
		return ref
	}
	return eng.AppConfig.ContainerImage
}

func runCampaign(c *cli.Context) error {
	ws, err := workspacePath(c)
	if err != nil {
		return err
	}
	eng, app, err := openEngine(ws)
	if err != nil {
		return err
	}
	defer closeEngine(app)

	sess := eng.Sessions.New(ws, containerRef(c, eng), sink.NewTerminalSink())
	openErr := sess.Open(eng.Ctx)
	if sess.State() == session.AwaitingClose {
		awaitClose(sess)
	}
	if openErr != nil {
		return openErr
	}
	if code := sess.ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// awaitClose blocks until the user acknowledges the close prompt. Any
// line counts, and so does stdin going away.
func awaitClose(sess *session.Session) {
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	sess.HandleInput(strings.TrimSpace(line))
	<-sess.Done()
}

func listTargets(c *cli.Context) error {
	ws, err := workspacePath(c)
	if err != nil {
		return err
	}
	eng, app, err := openEngine(ws)
	if err != nil {
		return err
	}
	defer closeEngine(app)

	if c.Bool("refresh") {
		eng.Cache.Invalidate(ws)
	}

	spinner, _ := pterm.DefaultSpinner.Start("discovering fuzz targets")
	states, err := eng.Cache.Discover(eng.Ctx, ws, containerRef(c, eng))
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("%d fuzz targets", len(states)))

	if len(states) == 0 {
		return nil
	}
	rows := pterm.TableData{{"Fuzzer", "Preset", "Crashes", "Tests", "Updated"}}
	for _, state := range states {
		rows = append(rows, []string{
			state.Name,
			state.Preset,
			fmt.Sprintf("%d", len(state.Crashes)),
			fmt.Sprintf("%d", state.TestCount),
			state.LastUpdated.Format(time.RFC3339),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func showBacktrace(c *cli.Context) error {
	crashRef := c.Args().First()
	fuzzer, hash, ok := strings.Cut(crashRef, "/")
	if !ok || fuzzer == "" || hash == "" {
		return fmt.Errorf("crash reference must look like FUZZER/HASH, got %q", crashRef)
	}

	ws, err := workspacePath(c)
	if err != nil {
		return err
	}
	eng, app, err := openEngine(ws)
	if err != nil {
		return err
	}
	defer closeEngine(app)

	text, err := eng.Backtraces.Generate(eng.Ctx, ws, containerRef(c, eng), fuzzer, hash)
	if err != nil {
		return err
	}

	linkRoot := ws
	if c.Bool("plain") {
		linkRoot = ""
	}
	fmt.Print(backtrace.FormatForDisplay(text, fuzzer, hash, linkRoot, crashTimeFor(eng, ws, fuzzer, hash)))
	return nil
}

// crashTimeFor dates the crash from its artifact on disk. Cosmetic
// only: when the lookup comes up empty the display drops the time line.
func crashTimeFor(eng *engine, ws, fuzzer, hash string) time.Time {
	for _, rec := range eng.Correlator.ScanFuzzer(ws, eng.Campaign.OutputDir, fuzzer) {
		if filepath.Base(rec.Path) == "crash-"+hash {
			return rec.DiscoveredAt
		}
	}
	return time.Time{}
}

func showHistory(c *cli.Context) error {
	ws, err := workspacePath(c)
	if err != nil {
		return err
	}
	eng, app, err := openEngine(ws)
	if err != nil {
		return err
	}
	defer closeEngine(app)

	if eng.DB == nil {
		return fmt.Errorf("campaign history needs DATABASE_URL configured")
	}
	campaigns, err := database.RecentCampaigns(eng.Ctx, eng.DB, ws, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		pterm.Info.Println("no recorded campaigns for this workspace")
		return nil
	}

	rows := pterm.TableData{{"Campaign", "Started", "Took", "Discovered", "Built", "Executed", "Crashes"}}
	for _, row := range campaigns {
		rows = append(rows, []string{
			row.CampaignID,
			row.StartedAt.Format(time.RFC3339),
			row.FinishedAt.Sub(row.StartedAt).Round(time.Second).String(),
			fmt.Sprintf("%d", row.DiscoveredCount),
			fmt.Sprintf("%d", row.BuiltCount),
			fmt.Sprintf("%d", row.ExecutedCount),
			fmt.Sprintf("%d", row.CrashCount),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func main() {
	app := &cli.App{
		Name:      "fuzzforge",
		Version:   "0.1.0",
		Compiled:  time.Now(),
		Usage:     "container-based fuzzing campaign orchestrator",
		UsageText: "fuzzforge [global options] command [command options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "workspace",
				Aliases: []string{"w"},
				Value:   ".",
				Usage:   "project directory to fuzz",
			},
			&cli.StringFlag{
				Name:    "container",
				Aliases: []string{"c"},
				Usage:   "container image to run the fuzzing tool in (default from CONTAINER_IMAGE)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "campaign",
				Usage:  "run a full fuzzing campaign and stay open until dismissed",
				Action: runCampaign,
			},
			{
				Name:  "targets",
				Usage: "list the workspace's fuzz targets",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "bypass the discovery cache",
					},
				},
				Action: listTargets,
			},
			{
				Name:      "backtrace",
				Usage:     "symbolize a crash artifact",
				ArgsUsage: "FUZZER/HASH",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "plain",
						Usage: "skip file:// link rewriting",
					},
				},
				Action: showBacktrace,
			},
			{
				Name:  "history",
				Usage: "show recent campaigns for the workspace",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 10,
						Usage: "maximum campaigns to show",
					},
				},
				Action: showHistory,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
