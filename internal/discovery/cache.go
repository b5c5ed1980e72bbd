// Package discovery owns the fuzzer inventory. Discovering targets
// means running the tool in a container, which is slow, so results are
// held behind a short TTL; crash associations ride along on each entry.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fuzzforge/config"
	"fuzzforge/internal/crash"
	"fuzzforge/internal/parse"
	"fuzzforge/internal/proc"
	"fuzzforge/internal/types"

	"go.uber.org/zap"
)

// DefaultTTL bounds how stale a discovery snapshot may get before the
// next call re-runs the tool.
const DefaultTTL = 30 * time.Second

type workspaceEntry struct {
	states    map[string]*types.FuzzerState // keyed by fuzzer name
	order     []string                      // discovery order, for stable snapshots
	fetchedAt time.Time
}

// Cache is the TTL-backed fuzzer inventory. All methods are safe for
// concurrent use; discover and refresh calls serialize on one lock so
// entry sets and timestamps always move together.
type Cache struct {
	runner     proc.Runner
	correlator *crash.Correlator
	appConfig  *config.AppConfig
	campaign   config.CampaignConfig
	logger     *zap.Logger
	ttl        time.Duration

	mu      sync.Mutex
	entries map[string]*workspaceEntry // keyed by workspace path
}

func NewCache(runner proc.Runner, correlator *crash.Correlator, appConfig *config.AppConfig, campaign config.CampaignConfig, logger *zap.Logger) *Cache {
	ttl := appConfig.DiscoveryTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		runner:     runner,
		correlator: correlator,
		appConfig:  appConfig,
		campaign:   campaign,
		logger:     logger.Named("discovery"),
		ttl:        ttl,
		entries:    make(map[string]*workspaceEntry),
	}
}

// Discover returns the fuzzer inventory for a workspace. A fresh cached
// set (at least one entry, younger than the TTL) is returned without
// touching the tool; otherwise the tool runs and the set is rebuilt.
// An empty discovery is returned as-is and never cached, so the next
// call tries again.
func (c *Cache) Discover(ctx context.Context, workspace, containerRef string) ([]types.FuzzerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[workspace]; ok && len(entry.states) > 0 && time.Since(entry.fetchedAt) < c.ttl {
		c.logger.Debug("discovery cache hit",
			zap.String("workspace", workspace),
			zap.Int("fuzzers", len(entry.states)))
		return entry.snapshot(), nil
	}

	entry, err := c.discoverLocked(ctx, workspace, containerRef)
	if err != nil {
		return nil, err
	}
	if len(entry.states) > 0 {
		c.entries[workspace] = entry
	} else {
		delete(c.entries, workspace)
	}
	return entry.snapshot(), nil
}

// Refresh updates crash state for one fuzzer in place, or, with an
// empty name, drops the workspace set and re-discovers it.
func (c *Cache) Refresh(ctx context.Context, workspace, containerRef, name string) ([]types.FuzzerState, error) {
	if name == "" {
		c.Invalidate(workspace)
		return c.Discover(ctx, workspace, containerRef)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[workspace]
	if !ok {
		return nil, fmt.Errorf("refresh %q: workspace has no cached discovery", name)
	}
	state, ok := entry.states[name]
	if !ok {
		return nil, fmt.Errorf("refresh %q: unknown fuzzer", name)
	}

	records := c.correlator.ScanFuzzer(workspace, c.campaign.OutputDir, name)
	state.Crashes = crash.Merge(state.Crashes, records)
	state.TestCount = crash.TestFileCount(state.OutputDir)
	state.LastUpdated = time.Now()

	return entry.snapshot(), nil
}

// Invalidate drops the cached set for one workspace.
func (c *Cache) Invalidate(workspace string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, workspace)
}

// discoverLocked runs the tool and assembles a fresh entry. Crash
// correlation failures degrade to zero-crash records; only the tool
// invocation itself can fail discovery.
func (c *Cache) discoverLocked(ctx context.Context, workspace, containerRef string) (*workspaceEntry, error) {
	command := fmt.Sprintf("%s find-fuzz-tests -q", c.appConfig.ToolCommand)
	req := proc.Request{
		Workspace:    workspace,
		ContainerRef: containerRef,
		Command:      command,
		Shell:        c.appConfig.ContainerShell,
		Options:      proc.Options{RemoveAfterRun: true, MountWorkspace: true},
	}

	started := time.Now()
	result, err := c.runner.Run(ctx, req, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("discover fuzz targets: %w", err)
	}

	targets, unparsed := parse.Discovery(result.Stdout)
	if len(unparsed) > 0 {
		c.logger.Debug("discovery produced unrecognized lines",
			zap.Int("count", len(unparsed)),
			zap.String("first", unparsed[0]))
	}

	if len(targets) == 0 && result.ExitCode != 0 {
		return nil, &types.CommandError{
			Op:      "discover",
			Message: strings.TrimSpace(result.Stderr),
			Diagnostics: types.Diagnostics{
				Command:   proc.CommandString(req),
				ExitCode:  result.ExitCode,
				Stdout:    result.Stdout,
				Stderr:    result.Stderr,
				Timestamp: time.Now(),
			},
		}
	}

	buckets := c.correlator.Scan(workspace, c.campaign.OutputDir)

	now := time.Now()
	entry := &workspaceEntry{states: make(map[string]*types.FuzzerState, len(targets))}
	for _, target := range targets {
		if _, dup := entry.states[target.Fuzzer]; dup {
			c.logger.Warn("duplicate fuzzer name in discovery output",
				zap.String("fuzzer", target.Fuzzer),
				zap.String("preset", target.Preset))
			continue
		}
		outputDir := crash.OutputDirFor(workspace, c.campaign.OutputDir, target.Fuzzer)
		entry.states[target.Fuzzer] = &types.FuzzerState{
			Name:        target.Fuzzer,
			Preset:      target.Preset,
			Crashes:     buckets[target.Fuzzer],
			OutputDir:   outputDir,
			TestCount:   crash.TestFileCount(outputDir),
			LastUpdated: now,
		}
		entry.order = append(entry.order, target.Fuzzer)
	}
	entry.fetchedAt = now

	c.logger.Info("discovered fuzz targets",
		zap.String("workspace", workspace),
		zap.Int("count", len(entry.states)),
		zap.Duration("took", time.Since(started)))

	return entry, nil
}

// snapshot deep-copies the entry in discovery order so callers can hold
// the result without racing the cache.
func (e *workspaceEntry) snapshot() []types.FuzzerState {
	out := make([]types.FuzzerState, 0, len(e.order))
	for _, name := range e.order {
		if state, ok := e.states[name]; ok {
			out = append(out, state.Clone())
		}
	}
	return out
}
