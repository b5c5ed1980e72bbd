// Package backtrace turns a stored crash artifact into a symbolized
// stack trace. Traces are produced on demand and never cached: the
// binaries they symbolize against rebuild between campaigns.
package backtrace

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"fuzzforge/config"
	"fuzzforge/internal/proc"
	"fuzzforge/internal/types"
)

type Generator struct {
	runner    proc.Runner
	appConfig *config.AppConfig
	logger    *zap.Logger
}

func NewGenerator(runner proc.Runner, appConfig *config.AppConfig, logger *zap.Logger) *Generator {
	return &Generator{runner: runner, appConfig: appConfig, logger: logger.Named("backtrace")}
}

// Generate symbolizes one crash, addressed as "<fuzzer>/<hash>". The
// tool writes the trace to stdout; some builds put it on stderr
// instead, so a successful exit with empty stdout falls through to
// stderr before giving up.
func (g *Generator) Generate(ctx context.Context, workspace, containerRef, fuzzer, crashHash string) (string, error) {
	crashRef := fuzzer + "/" + crashHash
	req := proc.Request{
		Workspace:    workspace,
		ContainerRef: containerRef,
		Command:      fmt.Sprintf("%s generate-backtrace %q", g.appConfig.ToolCommand, crashRef),
		Shell:        g.appConfig.ContainerShell,
		Options:      proc.Options{RemoveAfterRun: true, MountWorkspace: true},
	}

	g.logger.Debug("Generating backtrace", zap.String("crash", crashRef))

	result, err := g.runner.Run(ctx, req, nil, nil)
	if err != nil {
		return "", fmt.Errorf("generate backtrace for %s: %w", crashRef, err)
	}

	if result.ExitCode != 0 {
		msg := strings.TrimSpace(result.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(result.Stdout)
		}
		if msg == "" {
			msg = "backtrace generation failed"
		}
		return "", &types.CommandError{
			Op:      "backtrace",
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

	text := strings.TrimSpace(result.Stdout)
	if text == "" {
		text = strings.TrimSpace(result.Stderr)
	}
	if text == "" {
		text = "(no backtrace output produced)"
	}
	return text, nil
}

// frameRef matches the "at <path>:<line>" references symbolizers emit
// in stack frames.
var frameRef = regexp.MustCompile(`\bat (\S+):(\d+)\b`)

// MakeClickable rewrites frame references into file:// URLs that
// terminals and editors treat as links. Relative paths resolve against
// the workspace root.
func MakeClickable(trace, workspace string) string {
	return frameRef.ReplaceAllStringFunc(trace, func(m string) string {
		parts := frameRef.FindStringSubmatch(m)
		p := parts[1]
		if !path.IsAbs(p) {
			p = path.Join(workspace, p)
		}
		return "at file://" + p + "#" + parts[2]
	})
}

const bannerRule = "----------------------------------------"

// FormatForDisplay frames a trace with a banner naming the crash it
// belongs to. A non-empty workspace turns frame references into
// file:// links; a zero crashTime drops the time line.
func FormatForDisplay(trace, fuzzer, crashID, workspace string, crashTime time.Time) string {
	if workspace != "" {
		trace = MakeClickable(trace, workspace)
	}
	var b strings.Builder
	b.WriteString(bannerRule)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Backtrace for %s / %s\n", fuzzer, crashID)
	if !crashTime.IsZero() {
		fmt.Fprintf(&b, "Crash observed at %s\n", crashTime.Format(time.RFC3339))
	}
	b.WriteString(bannerRule)
	b.WriteByte('\n')
	b.WriteString(trace)
	if !strings.HasSuffix(trace, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}
