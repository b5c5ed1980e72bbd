package workflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"fuzzforge/internal/sink"
	"fuzzforge/internal/types"
)

// ConfirmRetryFunc is consulted between attempts. Returning false
// stops the loop and surfaces the last error. A nil func retries
// without asking.
type ConfirmRetryFunc func(attempt int, lastErr error) bool

// ExecuteWithRetry re-runs Execute from discovery, at most
// RetryAttempts times in total. Attempts are full re-executions, each
// under its own trace; attempts after the first carry a link to the
// previous one so a backend can stitch the sequence together.
func (o *Orchestrator) ExecuteWithRetry(ctx context.Context, workspace, containerRef string, out sink.OutputSink, progress ProgressFunc, confirm ConfirmRetryFunc) (*types.CampaignReport, error) {
	attempts := o.appConfig.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	var prev trace.SpanContext
	for attempt := 1; attempt <= attempts; attempt++ {
		report, spanCtx, err := o.execute(ctx, workspace, containerRef, out, progress, attempt, prev)
		if err == nil {
			return report, nil
		}
		lastErr = err
		prev = spanCtx

		o.logger.Warn("Campaign attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if attempt == attempts || ctx.Err() != nil {
			break
		}
		if confirm != nil && !confirm(attempt, err) {
			o.logger.Info("Retry declined", zap.Int("attempt", attempt))
			break
		}
	}
	return nil, fmt.Errorf("campaign did not complete: %w", lastErr)
}
