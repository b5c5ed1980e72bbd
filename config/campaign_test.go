package config

import (
	"strings"
	"testing"
)

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func TestNormalizeDefaults(t *testing.T) {
	cfg, err := Normalize(RawCampaignSettings{})
	if err != nil {
		t.Fatalf("defaults must validate, got %v", err)
	}
	if cfg.Runs != 1000 || cfg.Jobs != 4 {
		t.Errorf("unexpected defaults: runs=%d jobs=%d", cfg.Runs, cfg.Jobs)
	}
	if cfg.MaxTotalTime != 0 {
		t.Errorf("default maxTotalTime should be unlimited, got %d", cfg.MaxTotalTime)
	}
	if cfg.OutputDir != DefaultOutputRoot {
		t.Errorf("unexpected default output dir: %q", cfg.OutputDir)
	}
}

func TestNormalizeAggregatesViolations(t *testing.T) {
	raw := RawCampaignSettings{
		Runs:          intPtr(0),
		Jobs:          intPtr(500),
		MemoryLimitMB: intPtr(1),
		PerRunTimeout: intPtr(301),
		OutputDir:     strPtr("  "),
	}
	_, err := Normalize(raw)
	if err == nil {
		t.Fatal("expected a validation error")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Violations) != 5 {
		t.Errorf("expected all 5 violations collected, got %d: %v", len(verr.Violations), verr)
	}
	if !strings.Contains(verr.Error(), "runs") || !strings.Contains(verr.Error(), "perRunTimeout") {
		t.Errorf("error message should name fields: %v", verr)
	}
}

func TestNormalizeBoundEdges(t *testing.T) {
	cases := []struct {
		name string
		raw  RawCampaignSettings
		ok   bool
	}{
		{"runs at min", RawCampaignSettings{Runs: intPtr(1)}, true},
		{"runs at max", RawCampaignSettings{Runs: intPtr(1000)}, true},
		{"runs above max", RawCampaignSettings{Runs: intPtr(1001)}, false},
		{"jobs at max", RawCampaignSettings{Jobs: intPtr(64)}, true},
		{"jobs above max", RawCampaignSettings{Jobs: intPtr(65)}, false},
		{"negative total time", RawCampaignSettings{MaxTotalTime: intPtr(-1)}, false},
		{"zero total time", RawCampaignSettings{MaxTotalTime: intPtr(0)}, true},
		{"input length at max", RawCampaignSettings{MaxInputLength: intPtr(1048576)}, true},
		{"input length above max", RawCampaignSettings{MaxInputLength: intPtr(1048577)}, false},
		{"memory at min", RawCampaignSettings{MemoryLimitMB: intPtr(128)}, true},
		{"memory below min", RawCampaignSettings{MemoryLimitMB: intPtr(127)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.raw)
			if tc.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestNormalizeMutualExclusion(t *testing.T) {
	raw := RawCampaignSettings{
		IgnoreCrashes:    boolPtr(true),
		ExitOnFirstCrash: boolPtr(true),
	}
	_, err := Normalize(raw)
	if err == nil {
		t.Fatal("expected mutual exclusion violation")
	}

	raw.ExitOnFirstCrash = boolPtr(false)
	if _, err := Normalize(raw); err != nil {
		t.Errorf("single flag must be fine, got %v", err)
	}
}

func TestEngineOptions(t *testing.T) {
	t.Run("booleans become zero or one", func(t *testing.T) {
		cfg, err := Normalize(RawCampaignSettings{IgnoreCrashes: boolPtr(true), PreserveCorpus: boolPtr(false)})
		if err != nil {
			t.Fatal(err)
		}
		opts := cfg.EngineOptions()
		if opts["ignore_crashes"] != 1 {
			t.Errorf("ignore_crashes = %d, want 1", opts["ignore_crashes"])
		}
		if opts["exit_on_first_crash"] != 0 {
			t.Errorf("exit_on_first_crash = %d, want 0", opts["exit_on_first_crash"])
		}
		if opts["minimize_crashes"] != 1 {
			t.Errorf("minimize_crashes should default on, got %d", opts["minimize_crashes"])
		}
		if opts["preserve_corpus"] != 0 {
			t.Errorf("preserve_corpus = %d, want 0", opts["preserve_corpus"])
		}
	})

	t.Run("crash flags never both set", func(t *testing.T) {
		for _, raw := range []RawCampaignSettings{
			{},
			{IgnoreCrashes: boolPtr(true)},
			{ExitOnFirstCrash: boolPtr(true)},
			{IgnoreCrashes: boolPtr(false), ExitOnFirstCrash: boolPtr(true)},
		} {
			cfg, err := Normalize(raw)
			if err != nil {
				t.Fatalf("config should be valid: %v", err)
			}
			opts := cfg.EngineOptions()
			if opts["ignore_crashes"]+opts["exit_on_first_crash"] > 1 {
				t.Errorf("both crash flags derived as 1 from %+v", raw)
			}
		}
	})

	t.Run("zero total time is omitted", func(t *testing.T) {
		cfg, err := Normalize(RawCampaignSettings{MaxTotalTime: intPtr(0)})
		if err != nil {
			t.Fatal(err)
		}
		if _, present := cfg.EngineOptions()["max_total_time"]; present {
			t.Error("max_total_time must be absent when zero")
		}
	})

	t.Run("positive total time is kept", func(t *testing.T) {
		cfg, err := Normalize(RawCampaignSettings{MaxTotalTime: intPtr(300)})
		if err != nil {
			t.Fatal(err)
		}
		if got := cfg.EngineOptions()["max_total_time"]; got != 300 {
			t.Errorf("max_total_time = %d, want 300", got)
		}
	})
}

func TestEngineArgsDeterministic(t *testing.T) {
	cfg, err := Normalize(RawCampaignSettings{MaxTotalTime: intPtr(60)})
	if err != nil {
		t.Fatal(err)
	}
	first := strings.Join(cfg.EngineArgs(), " ")
	for range 10 {
		if got := strings.Join(cfg.EngineArgs(), " "); got != first {
			t.Fatalf("args not deterministic: %q vs %q", got, first)
		}
	}
	if !strings.Contains(first, "-max_total_time=60") || !strings.Contains(first, "-runs=1000") {
		t.Errorf("unexpected args: %q", first)
	}
}
