package parse

import (
	"strings"
	"testing"

	"fuzzforge/internal/types"
)

func TestDiscovery(t *testing.T) {
	t.Run("two targets", func(t *testing.T) {
		targets, unparsed := Discovery("libfuzzer:fuzzA\nlibfuzzer:fuzzB\n")
		if len(targets) != 2 {
			t.Fatalf("expected 2 targets, got %d", len(targets))
		}
		if targets[0].Preset != "libfuzzer" || targets[0].Fuzzer != "fuzzA" {
			t.Errorf("unexpected first target: %+v", targets[0])
		}
		if targets[1].Fuzzer != "fuzzB" {
			t.Errorf("unexpected second target: %+v", targets[1])
		}
		if len(unparsed) != 0 {
			t.Errorf("expected no unparsed lines, got %v", unparsed)
		}
	})

	t.Run("splits at first colon", func(t *testing.T) {
		targets, _ := Discovery("afl:fuzz:with:colons\n")
		if len(targets) != 1 {
			t.Fatalf("expected 1 target, got %d", len(targets))
		}
		if targets[0].Preset != "afl" || targets[0].Fuzzer != "fuzz:with:colons" {
			t.Errorf("unexpected target: %+v", targets[0])
		}
	})

	t.Run("malformed lines are unparsed", func(t *testing.T) {
		targets, unparsed := Discovery("no colon here\n:emptypreset\nemptyfuzzer:\n\nlibfuzzer:ok\n")
		if len(targets) != 1 || targets[0].Fuzzer != "ok" {
			t.Fatalf("expected only the valid target, got %+v", targets)
		}
		if len(unparsed) != 3 {
			t.Errorf("expected 3 unparsed lines, got %v", unparsed)
		}
	})

	t.Run("empty output", func(t *testing.T) {
		targets, unparsed := Discovery("")
		if len(targets) != 0 || len(unparsed) != 0 {
			t.Errorf("expected nothing, got %v / %v", targets, unparsed)
		}
	})
}

func TestBuild(t *testing.T) {
	requested := []types.Target{
		{Preset: "libfuzzer", Fuzzer: "fuzzA"},
		{Preset: "libfuzzer", Fuzzer: "fuzzB"},
	}

	t.Run("mixed success and failure", func(t *testing.T) {
		stdout := strings.Join([]string{
			"[+] built fuzzer: fuzzA",
			"[!] Failed to build target fuzzB",
			"undefined reference to foo",
		}, "\n")
		result, unparsed := Build(stdout, "", 0, requested)
		if result.BuiltCount != 1 {
			t.Fatalf("expected 1 built, got %d", result.BuiltCount)
		}
		if result.BuiltTargets[0].Name != "fuzzA" || result.BuiltTargets[0].Preset != "libfuzzer" {
			t.Errorf("unexpected built target: %+v", result.BuiltTargets[0])
		}
		if len(result.Failures) != 1 {
			t.Fatalf("expected 1 failure, got %d", len(result.Failures))
		}
		f := result.Failures[0]
		if f.Target != "fuzzB" || f.RawError != "undefined reference to foo" {
			t.Errorf("unexpected failure: %+v", f)
		}
		if len(unparsed) != 0 {
			t.Errorf("detail line should be consumed, got unparsed %v", unparsed)
		}
	})

	t.Run("failure followed by marker gets generic detail", func(t *testing.T) {
		stdout := "[!] Failed to build target fuzzA\n[+] built fuzzer: fuzzB\n"
		result, _ := Build(stdout, "", 0, requested)
		if len(result.Failures) != 1 {
			t.Fatalf("expected 1 failure, got %d", len(result.Failures))
		}
		if result.Failures[0].RawError != "build failed for target fuzzA" {
			t.Errorf("unexpected detail: %q", result.Failures[0].RawError)
		}
		if result.BuiltCount != 1 {
			t.Errorf("marker after failure must still parse, got %d built", result.BuiltCount)
		}
	})

	t.Run("synthetic failure when the process dies markerless", func(t *testing.T) {
		result, _ := Build("", "linker error", 1, requested)
		if result.BuiltCount != 0 {
			t.Errorf("expected nothing built, got %d", result.BuiltCount)
		}
		if len(result.Failures) != 1 {
			t.Fatalf("expected one synthetic failure, got %d", len(result.Failures))
		}
		f := result.Failures[0]
		if f.RawError != "linker error" {
			t.Errorf("synthetic failure missing stderr detail: %q", f.RawError)
		}
		if f.Target != "libfuzzer:fuzzA libfuzzer:fuzzB" {
			t.Errorf("synthetic failure should cover all requested targets, got %q", f.Target)
		}
	})

	t.Run("markerless death with empty stderr yields nothing", func(t *testing.T) {
		result, _ := Build("", "", 1, requested)
		if result.BuiltCount != 0 || len(result.Failures) != 0 {
			t.Errorf("expected empty result, got %+v", result)
		}
	})

	t.Run("markerless zero exit is empty, not synthetic", func(t *testing.T) {
		result, _ := Build("some chatter\n", "", 0, requested)
		if result.BuiltCount != 0 || len(result.Failures) != 0 {
			t.Errorf("expected empty result, got %+v", result)
		}
	})

	t.Run("noise lines come back unparsed", func(t *testing.T) {
		stdout := "Step 1/4 : FROM base\n[+] built fuzzer: fuzzA\nRemoving intermediate container\n"
		result, unparsed := Build(stdout, "", 0, requested)
		if result.BuiltCount != 1 {
			t.Fatalf("expected 1 built, got %d", result.BuiltCount)
		}
		if len(unparsed) != 2 {
			t.Errorf("expected 2 unparsed lines, got %v", unparsed)
		}
	})
}

func TestRun(t *testing.T) {
	t.Run("full output", func(t *testing.T) {
		stdout := strings.Join([]string{
			"[+] running fuzzer: /workspace/.codeforge/fuzzing/fuzzA",
			"[+] Found crash file: /workspace/.codeforge/fuzzing/fuzzA-output/crash-abc123",
			"[+] running fuzzer: /workspace/.codeforge/fuzzing/fuzzB",
			"[+] fuzzer /workspace/.codeforge/fuzzing/fuzzB encountered errors!",
		}, "\n")
		result, unparsed := Run(stdout, "", 0)
		if result.ExecutedCount != 2 {
			t.Fatalf("expected 2 executed, got %d", result.ExecutedCount)
		}
		if result.Executed[0] != "fuzzA" || result.Executed[1] != "fuzzB" {
			t.Errorf("unexpected executed list: %v", result.Executed)
		}
		if len(result.Crashes) != 1 {
			t.Fatalf("expected 1 crash, got %d", len(result.Crashes))
		}
		c := result.Crashes[0]
		if c.Fuzzer != "fuzzA" {
			t.Errorf("crash attributed to %q, want fuzzA", c.Fuzzer)
		}
		if c.RelPath != ".codeforge/fuzzing/fuzzA-output/crash-abc123" {
			t.Errorf("unexpected rel path: %q", c.RelPath)
		}
		if len(result.ExecutionErrors) != 1 || result.ExecutionErrors[0].Fuzzer != "fuzzB" {
			t.Errorf("unexpected execution errors: %+v", result.ExecutionErrors)
		}
		if len(unparsed) != 0 {
			t.Errorf("expected no unparsed lines, got %v", unparsed)
		}
	})

	t.Run("duplicate running markers collapse", func(t *testing.T) {
		stdout := "[+] running fuzzer: /out/fuzzA\n[+] running fuzzer: /out/fuzzA\n"
		result, _ := Run(stdout, "", 0)
		if result.ExecutedCount != 1 {
			t.Errorf("expected 1 executed, got %d", result.ExecutedCount)
		}
	})

	t.Run("crash outside an output dir keeps empty attribution", func(t *testing.T) {
		result, _ := Run("[+] Found crash file: /tmp/crash-zzz\n", "", 0)
		if len(result.Crashes) != 1 {
			t.Fatalf("expected the crash to be kept, got %d", len(result.Crashes))
		}
		if result.Crashes[0].Fuzzer != "" {
			t.Errorf("expected empty attribution, got %q", result.Crashes[0].Fuzzer)
		}
	})

	t.Run("generic error from stderr on silent non-zero exit", func(t *testing.T) {
		result, _ := Run("", "container exploded", 3)
		if len(result.ExecutionErrors) != 1 {
			t.Fatalf("expected 1 generic error, got %d", len(result.ExecutionErrors))
		}
		e := result.ExecutionErrors[0]
		if e.Fuzzer != "" || e.Message != "container exploded" {
			t.Errorf("unexpected generic error: %+v", e)
		}
	})

	t.Run("structured error suppresses the generic one", func(t *testing.T) {
		stdout := "[+] fuzzer /out/fuzzA encountered errors!\n"
		result, _ := Run(stdout, "noise", 1)
		if len(result.ExecutionErrors) != 1 {
			t.Errorf("expected only the structured error, got %+v", result.ExecutionErrors)
		}
	})
}
