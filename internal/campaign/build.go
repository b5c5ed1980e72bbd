// Package campaign drives the build and run phases of a fuzzing
// campaign. Each coordinator folds its targets into a single tool
// invocation, streams output to the caller's sink as it arrives, and
// parses the buffered transcript only once the process has exited.
package campaign

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fuzzforge/config"
	"fuzzforge/internal/parse"
	"fuzzforge/internal/proc"
	"fuzzforge/internal/sink"
	"fuzzforge/internal/types"
)

type BuildCoordinator struct {
	runner    proc.Runner
	appConfig *config.AppConfig
	logger    *zap.Logger
}

func NewBuildCoordinator(runner proc.Runner, appConfig *config.AppConfig, logger *zap.Logger) *BuildCoordinator {
	return &BuildCoordinator{runner: runner, appConfig: appConfig, logger: logger.Named("build")}
}

// Run builds every requested target in one tool invocation. Partial
// failure is a result, not an error: only a process that never ran, or
// died without one parseable line, comes back as an error.
func (b *BuildCoordinator) Run(ctx context.Context, workspace, containerRef string, targets []types.Target, out sink.OutputSink) (types.BuildResult, error) {
	if len(targets) == 0 {
		return types.BuildResult{}, nil
	}
	if out == nil {
		out = sink.Discard{}
	}

	req := proc.Request{
		Workspace:    workspace,
		ContainerRef: containerRef,
		Command:      fmt.Sprintf("%s build-fuzz-tests %q", b.appConfig.ToolCommand, types.JoinTargets(targets)),
		Shell:        b.appConfig.ContainerShell,
		Options:      proc.Options{RemoveAfterRun: true, MountWorkspace: true},
	}

	b.logger.Info("Building fuzz targets",
		zap.String("workspace", workspace),
		zap.Int("target_count", len(targets)))

	started := time.Now()
	result, err := b.runner.Run(ctx, req, out.Write, out.Write)
	if err != nil {
		return types.BuildResult{}, fmt.Errorf("build fuzz targets: %w", err)
	}

	buildResult, unparsed := parse.Build(result.Stdout, result.Stderr, result.ExitCode, targets)
	if len(unparsed) > 0 {
		b.logger.Debug("Unparsed build output", zap.Int("line_count", len(unparsed)))
	}

	if result.ExitCode != 0 && buildResult.BuiltCount == 0 && len(buildResult.Failures) == 0 {
		return types.BuildResult{}, &types.CommandError{
			Op:      "build",
			Message: "build process produced no usable output",
			Diagnostics: types.Diagnostics{
				Command:   proc.CommandString(req),
				ExitCode:  result.ExitCode,
				Stdout:    result.Stdout,
				Stderr:    result.Stderr,
				Timestamp: time.Now(),
			},
		}
	}

	b.logger.Info("Build phase finished",
		zap.Int("built", buildResult.BuiltCount),
		zap.Int("failed", len(buildResult.Failures)),
		zap.Duration("elapsed", time.Since(started)))

	return buildResult, nil
}
