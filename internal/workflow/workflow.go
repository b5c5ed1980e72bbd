// Package workflow sequences a full fuzzing campaign: discover
// targets, build them, run them, report. Build failures and crashes
// flow into the report; only a stage that produced nothing at all
// aborts the campaign.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fuzzforge/config"
	"fuzzforge/internal/campaign"
	"fuzzforge/internal/crash"
	"fuzzforge/internal/discovery"
	"fuzzforge/internal/parse"
	"fuzzforge/internal/sink"
	"fuzzforge/internal/types"
	"fuzzforge/pkg/database"
	"fuzzforge/pkg/mq"
	"fuzzforge/pkg/telemetry"
	"fuzzforge/pkg/watchdog"
)

// ErrNoTargets means discovery came back empty: there is nothing to
// build or run, and the campaign stops before spending anything.
var ErrNoTargets = errors.New("no fuzz targets discovered in workspace")

type Stage int

const (
	StageDiscovering Stage = iota
	StageBuilding
	StageRunning
	StageReporting
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageDiscovering:
		return "discovering"
	case StageBuilding:
		return "building"
	case StageRunning:
		return "running"
	case StageReporting:
		return "reporting"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProgressFunc receives the active stage and overall completion in
// [0,1]. Discovery owns 5-10%, build 30-70%, run 70-95%, reporting the
// rest; the jumps between stages are intentional.
type ProgressFunc func(stage Stage, fraction float64)

type OrchestratorParams struct {
	fx.In

	Cache     *discovery.Cache
	Builder   *campaign.BuildCoordinator
	Runner    *campaign.RunCoordinator
	Watchdogs *watchdog.WatchDogFactory
	Publisher *mq.EventPublisher
	Tracers   *telemetry.TracerFactory
	DB        *gorm.DB `optional:"true"`
	AppConfig *config.AppConfig
	Campaign  config.CampaignConfig
	Logger    *zap.Logger
}

// Orchestrator runs campaigns. It owns no state between executions;
// everything an execution produces lands in its CampaignReport.
type Orchestrator struct {
	cache     *discovery.Cache
	builder   *campaign.BuildCoordinator
	runner    *campaign.RunCoordinator
	watchdogs *watchdog.WatchDogFactory
	publisher *mq.EventPublisher
	tracers   *telemetry.TracerFactory
	db        *gorm.DB
	appConfig *config.AppConfig
	campaign  config.CampaignConfig
	logger    *zap.Logger
}

func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	return &Orchestrator{
		cache:     p.Cache,
		builder:   p.Builder,
		runner:    p.Runner,
		watchdogs: p.Watchdogs,
		publisher: p.Publisher,
		tracers:   p.Tracers,
		db:        p.DB,
		appConfig: p.AppConfig,
		campaign:  p.Campaign,
		logger:    p.Logger.Named("workflow"),
	}
}

// Execute drives one campaign: discover, build everything, run
// everything, report. Targets that failed to build are still handed to
// the run stage; the tool simply reports them as not executed.
func (o *Orchestrator) Execute(ctx context.Context, workspace, containerRef string, out sink.OutputSink, progress ProgressFunc) (*types.CampaignReport, error) {
	report, _, err := o.execute(ctx, workspace, containerRef, out, progress, 0, trace.SpanContext{})
	return report, err
}

func (o *Orchestrator) execute(ctx context.Context, workspace, containerRef string, out sink.OutputSink, progress ProgressFunc, attempt int, prev trace.SpanContext) (*types.CampaignReport, trace.SpanContext, error) {
	if out == nil {
		out = sink.Discard{}
	}
	if progress == nil {
		progress = func(Stage, float64) {}
	}

	report := &types.CampaignReport{
		ID:           uuid.NewString(),
		Workspace:    workspace,
		ContainerRef: containerRef,
		StartedAt:    time.Now(),
	}

	attrs := telemetry.NewSpanAttributes(telemetry.Fuzzing).
		WithWorkspace(workspace).
		WithContainerRef(containerRef).
		WithCampaignID(report.ID)
	if attempt > 0 {
		attrs.WithAttempt(attempt)
	}
	tracer := o.tracers.NewTracer(ctx, "fuzz-campaign")
	tracer.WithAttributes(attrs)
	if prev.IsValid() {
		tracer.AddLink(prev)
	}
	tracer.Start()
	defer tracer.End()
	spanCtx := tracer.SpanContext()

	o.logger.Info("Starting fuzzing campaign",
		zap.String("campaign_id", report.ID),
		zap.String("workspace", workspace),
		zap.String("container", containerRef))

	fail := func(err error) (*types.CampaignReport, trace.SpanContext, error) {
		tracer.SetStatus(codes.Error, err.Error())
		progress(StageFailed, 1)
		return nil, spanCtx, err
	}

	// Discovery
	progress(StageDiscovering, 0.05)
	discSpan := tracer.Spawn("discover-targets")
	discSpan.WithAttributes(telemetry.NewSpanAttributes(telemetry.Discovering))
	discSpan.Start()
	states, err := o.cache.Discover(ctx, workspace, containerRef)
	if err != nil {
		discSpan.SetStatus(codes.Error, err.Error())
		discSpan.End()
		return fail(fmt.Errorf("discovery stage: %w", err))
	}
	if len(states) == 0 {
		discSpan.SetStatus(codes.Error, ErrNoTargets.Error())
		discSpan.End()
		return fail(ErrNoTargets)
	}
	discSpan.WithAttributes(telemetry.EmptySpanAttributes().WithTargetCount(len(states)))
	discSpan.End()

	report.DiscoveredCount = len(states)
	targets := make([]types.Target, 0, len(states))
	for _, state := range states {
		targets = append(targets, state.Target())
	}
	sink.Linef(out, "[+] discovered %d fuzz targets", len(targets))
	progress(StageDiscovering, 0.10)

	// Build
	progress(StageBuilding, 0.30)
	buildSpan := tracer.Spawn("build-targets")
	buildSpan.WithAttributes(telemetry.NewSpanAttributes(telemetry.Building).WithTargetCount(len(targets)))
	buildSpan.Start()
	buildResult, err := o.builder.Run(ctx, workspace, containerRef, targets, out)
	if err != nil {
		buildSpan.SetStatus(codes.Error, err.Error())
		buildSpan.End()
		return fail(fmt.Errorf("build stage: %w", err))
	}
	buildSpan.End()

	report.BuiltCount = buildResult.BuiltCount
	report.BuildFailures = buildResult.Failures
	progress(StageBuilding, 0.70)

	// Run. All discovered targets go in, buildable or not; anything
	// unbuilt just fails to execute on the tool's side.
	progress(StageRunning, 0.70)
	runSpan := tracer.Spawn("run-targets")
	runSpan.WithAttributes(telemetry.NewSpanAttributes(telemetry.Fuzzing).WithTargetCount(len(targets)))
	runSpan.Start()
	stopWatching := o.watchCrashes(ctx, workspace, report.ID, out)
	runResult, err := o.runner.Run(ctx, workspace, containerRef, targets, out)
	stopWatching()
	if err != nil {
		runSpan.SetStatus(codes.Error, err.Error())
		runSpan.End()
		return fail(fmt.Errorf("run stage: %w", err))
	}
	runSpan.WithAttributes(telemetry.EmptySpanAttributes().WithCrashCount(len(runResult.Crashes)))
	runSpan.End()

	report.ExecutedCount = runResult.ExecutedCount
	report.Crashes = runResult.Crashes
	report.ExecutionErrors = runResult.ExecutionErrors
	progress(StageRunning, 0.95)

	// Report
	progress(StageReporting, 0.95)
	reportSpan := tracer.Spawn("report")
	reportSpan.WithAttributes(telemetry.NewSpanAttributes(telemetry.Reporting).WithCrashCount(len(report.Crashes)))
	reportSpan.Start()
	report.FinishedAt = time.Now()
	o.summarize(report, out)
	o.persist(ctx, report)
	o.publishReport(ctx, report, tracer.Export())
	reportSpan.End()

	o.logger.Info("Campaign finished",
		zap.String("campaign_id", report.ID),
		zap.Int("discovered", report.DiscoveredCount),
		zap.Int("built", report.BuiltCount),
		zap.Int("executed", report.ExecutedCount),
		zap.Int("crashes", len(report.Crashes)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))

	progress(StageDone, 1)
	return report, spanCtx, nil
}

// watchCrashes watches the fuzzing output tree while a run is active
// and announces each crash file the moment it lands. The report is
// unaffected: results come from parsed tool output only.
func (o *Orchestrator) watchCrashes(ctx context.Context, workspace, campaignID string, out sink.OutputSink) func() {
	if o.watchdogs == nil {
		return func() {}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	notify := make(chan string, 16)
	dog, err := o.watchdogs.New(watchCtx, notify, crash.IsCrashFile)
	if err != nil {
		o.logger.Debug("live crash watching unavailable", zap.Error(err))
		cancel()
		return func() {}
	}
	dog.AddDir(filepath.Join(workspace, filepath.FromSlash(o.campaign.OutputDir)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for path := range notify {
			sink.Linef(out, "[+] crash artifact detected: %s", path)
			o.logger.Info("crash artifact appeared",
				zap.String("campaign_id", campaignID),
				zap.String("path", path))
			if o.publisher == nil {
				continue
			}
			record := types.CrashRecord{
				Fuzzer:       parse.CrashOwner(filepath.ToSlash(path)),
				Path:         path,
				DiscoveredAt: time.Now(),
			}
			if err := o.publisher.PublishCrashFound(ctx, campaignID, record); err != nil {
				o.logger.Debug("crash event not published", zap.Error(err))
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (o *Orchestrator) summarize(report *types.CampaignReport, out sink.OutputSink) {
	out.Write("")
	sink.Linef(out, "campaign %s finished in %s", report.ID, report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	sink.Linef(out, "  discovered %d, built %d, executed %d", report.DiscoveredCount, report.BuiltCount, report.ExecutedCount)
	for _, f := range report.BuildFailures {
		sink.Linef(out, "[!] build failed: %s: %s", f.Target, f.RawError)
	}
	for _, e := range report.ExecutionErrors {
		if e.Fuzzer == "" {
			sink.Linef(out, "[!] execution error: %s", e.Message)
			continue
		}
		sink.Linef(out, "[!] execution error: %s: %s", e.Fuzzer, e.Message)
	}
	if len(report.Crashes) == 0 {
		sink.Linef(out, "  no crashes found")
		return
	}
	sink.Linef(out, "  %d crash(es):", len(report.Crashes))
	for _, c := range report.Crashes {
		p := c.RelPath
		if p == "" {
			p = c.Path
		}
		sink.Linef(out, "    %s  %s", c.Fuzzer, p)
	}
}

// persist writes the campaign and its crash artifacts to the history
// database. History is optional; failures cost a log line, never the
// campaign.
func (o *Orchestrator) persist(ctx context.Context, report *types.CampaignReport) {
	if o.db == nil {
		return
	}
	if err := database.SaveCampaign(ctx, o.db, database.NewCampaign(report)); err != nil {
		o.logger.Warn("campaign history not saved", zap.Error(err))
		return
	}
	artifacts := make([]*database.CrashArtifact, 0, len(report.Crashes))
	for _, c := range report.Crashes {
		artifacts = append(artifacts, database.NewCrashArtifact(report.ID, c))
	}
	if err := database.AddCrashArtifacts(ctx, o.db, artifacts); err != nil {
		o.logger.Warn("crash artifacts not saved", zap.Error(err))
	}
}

func (o *Orchestrator) publishReport(ctx context.Context, report *types.CampaignReport, traceCarrier string) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishCampaignReport(ctx, report, traceCarrier); err != nil {
		o.logger.Warn("campaign event not published", zap.Error(err))
	}
}
