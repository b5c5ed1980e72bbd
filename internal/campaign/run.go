package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fuzzforge/config"
	"fuzzforge/internal/parse"
	"fuzzforge/internal/proc"
	"fuzzforge/internal/sink"
	"fuzzforge/internal/types"
)

type RunCoordinator struct {
	runner    proc.Runner
	appConfig *config.AppConfig
	campaign  config.CampaignConfig
	logger    *zap.Logger
}

func NewRunCoordinator(runner proc.Runner, appConfig *config.AppConfig, campaign config.CampaignConfig, logger *zap.Logger) *RunCoordinator {
	return &RunCoordinator{runner: runner, appConfig: appConfig, campaign: campaign, logger: logger.Named("run")}
}

// Run executes every target in one tool invocation, with the campaign's
// engine options on the command line. Fuzzers that crashed or errored
// still yield a result; the coordinator errors only when the process
// never ran or exited without reporting on a single fuzzer.
func (r *RunCoordinator) Run(ctx context.Context, workspace, containerRef string, targets []types.Target, out sink.OutputSink) (types.RunResult, error) {
	if len(targets) == 0 {
		return types.RunResult{}, nil
	}
	if out == nil {
		out = sink.Discard{}
	}

	pieces := []string{r.appConfig.ToolCommand, "run-fuzz-tests"}
	pieces = append(pieces, r.campaign.EngineArgs()...)
	pieces = append(pieces, fmt.Sprintf("%q", types.JoinTargets(targets)))
	req := proc.Request{
		Workspace:    workspace,
		ContainerRef: containerRef,
		Command:      strings.Join(pieces, " "),
		Shell:        r.appConfig.ContainerShell,
		Options:      proc.Options{RemoveAfterRun: true, MountWorkspace: true},
	}

	r.logger.Info("Running fuzz targets",
		zap.String("workspace", workspace),
		zap.Int("target_count", len(targets)))

	started := time.Now()
	result, err := r.runner.Run(ctx, req, out.Write, out.Write)
	if err != nil {
		return types.RunResult{}, fmt.Errorf("run fuzz targets: %w", err)
	}

	runResult, unparsed := parse.Run(result.Stdout, result.Stderr, result.ExitCode)
	if len(unparsed) > 0 {
		r.logger.Debug("Unparsed run output", zap.Int("line_count", len(unparsed)))
	}

	if result.ExitCode != 0 && totalRunFailure(runResult) {
		msg := strings.TrimSpace(result.Stderr)
		if msg == "" {
			msg = "run process produced no usable output"
		}
		return types.RunResult{}, &types.CommandError{
			Op:      "run",
			Message: msg,
			Diagnostics: types.Diagnostics{
				Command:   proc.CommandString(req),
				ExitCode:  result.ExitCode,
				Stdout:    result.Stdout,
				Stderr:    result.Stderr,
				Timestamp: time.Now(),
			},
		}
	}

	r.logger.Info("Run phase finished",
		zap.Int("executed", runResult.ExecutedCount),
		zap.Int("crashes", len(runResult.Crashes)),
		zap.Int("errors", len(runResult.ExecutionErrors)),
		zap.Duration("elapsed", time.Since(started)))

	return runResult, nil
}

// totalRunFailure reports whether the parsed result carries nothing
// attributable to any fuzzer: no executions, no crashes, and at most
// the generic stderr fallback error.
func totalRunFailure(result types.RunResult) bool {
	if result.ExecutedCount > 0 || len(result.Crashes) > 0 {
		return false
	}
	for _, e := range result.ExecutionErrors {
		if e.Fuzzer != "" {
			return false
		}
	}
	return true
}
