package config

import (
	"fmt"
	"sort"
	"strings"
)

// Bounds for campaign settings. Values outside these ranges are
// configuration mistakes, not things to silently clamp.
const (
	MinRuns           = 1
	MaxRuns           = 1000
	MinJobs           = 1
	MaxJobs           = 64
	MinInputLength    = 1
	MaxInputLength    = 1048576
	MinMemoryLimitMB  = 128
	MaxMemoryLimitMB  = 16384
	MinPerRunTimeout  = 1
	MaxPerRunTimeout  = 300
	DefaultOutputRoot = ".codeforge/fuzzing"
)

// CampaignConfig is a fully validated settings set. Construct through
// Normalize; a hand-built one has not been checked.
type CampaignConfig struct {
	Runs             int
	Jobs             int
	MaxTotalTime     int // seconds, 0 means unlimited
	MaxInputLength   int
	MemoryLimitMB    int
	PerRunTimeout    int // seconds
	IgnoreCrashes    bool
	ExitOnFirstCrash bool
	MinimizeCrashes  bool
	PreserveCorpus   bool
	OutputDir        string
}

type Violation struct {
	Field   string
	Message string
}

// ValidationError carries every violation found in one pass, so a user
// fixing their settings sees the whole list at once.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "invalid campaign settings: " + strings.Join(msgs, "; ")
}

// Normalize fills defaults for unset fields and validates the result.
// All violations are collected before returning.
func Normalize(raw RawCampaignSettings) (CampaignConfig, error) {
	cfg := CampaignConfig{
		Runs:             intOr(raw.Runs, 1000),
		Jobs:             intOr(raw.Jobs, 4),
		MaxTotalTime:     intOr(raw.MaxTotalTime, 0),
		MaxInputLength:   intOr(raw.MaxInputLength, 4096),
		MemoryLimitMB:    intOr(raw.MemoryLimitMB, 2048),
		PerRunTimeout:    intOr(raw.PerRunTimeout, 25),
		IgnoreCrashes:    boolOr(raw.IgnoreCrashes, false),
		ExitOnFirstCrash: boolOr(raw.ExitOnFirstCrash, false),
		MinimizeCrashes:  boolOr(raw.MinimizeCrashes, true),
		PreserveCorpus:   boolOr(raw.PreserveCorpus, true),
		OutputDir:        stringOr(raw.OutputDir, DefaultOutputRoot),
	}

	var violations []Violation
	check := func(field string, ok bool, format string, args ...any) {
		if !ok {
			violations = append(violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
		}
	}

	check("runs", cfg.Runs >= MinRuns && cfg.Runs <= MaxRuns,
		"must be between %d and %d, got %d", MinRuns, MaxRuns, cfg.Runs)
	check("jobs", cfg.Jobs >= MinJobs && cfg.Jobs <= MaxJobs,
		"must be between %d and %d, got %d", MinJobs, MaxJobs, cfg.Jobs)
	check("maxTotalTime", cfg.MaxTotalTime >= 0,
		"must not be negative, got %d", cfg.MaxTotalTime)
	check("maxInputLength", cfg.MaxInputLength >= MinInputLength && cfg.MaxInputLength <= MaxInputLength,
		"must be between %d and %d, got %d", MinInputLength, MaxInputLength, cfg.MaxInputLength)
	check("memoryLimit", cfg.MemoryLimitMB >= MinMemoryLimitMB && cfg.MemoryLimitMB <= MaxMemoryLimitMB,
		"must be between %d and %d MB, got %d", MinMemoryLimitMB, MaxMemoryLimitMB, cfg.MemoryLimitMB)
	check("perRunTimeout", cfg.PerRunTimeout >= MinPerRunTimeout && cfg.PerRunTimeout <= MaxPerRunTimeout,
		"must be between %d and %d seconds, got %d", MinPerRunTimeout, MaxPerRunTimeout, cfg.PerRunTimeout)
	check("outputDirectory", strings.TrimSpace(cfg.OutputDir) != "",
		"must not be empty")
	check("ignoreCrashes", !(cfg.IgnoreCrashes && cfg.ExitOnFirstCrash),
		"ignoreCrashes and exitOnFirstCrash are mutually exclusive")

	if len(violations) > 0 {
		return CampaignConfig{}, &ValidationError{Violations: violations}
	}
	return cfg, nil
}

// EngineOptions derives the numeric option map handed to run-fuzz-tests.
// Booleans become 0/1; maxTotalTime of 0 is dropped entirely so the
// engine runs without a wall clock.
func (c CampaignConfig) EngineOptions() map[string]int {
	opts := map[string]int{
		"runs":                c.Runs,
		"jobs":                c.Jobs,
		"max_len":             c.MaxInputLength,
		"rss_limit_mb":        c.MemoryLimitMB,
		"timeout":             c.PerRunTimeout,
		"ignore_crashes":      boolToInt(c.IgnoreCrashes),
		"exit_on_first_crash": boolToInt(c.ExitOnFirstCrash),
		"minimize_crashes":    boolToInt(c.MinimizeCrashes),
		"preserve_corpus":     boolToInt(c.PreserveCorpus),
	}
	if c.MaxTotalTime > 0 {
		opts["max_total_time"] = c.MaxTotalTime
	}
	return opts
}

// EngineArgs renders the option map as sorted -key=value tokens so the
// produced command line is deterministic.
func (c CampaignConfig) EngineArgs() []string {
	opts := c.EngineOptions()
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, fmt.Sprintf("-%s=%d", k, opts[k]))
	}
	return args
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
