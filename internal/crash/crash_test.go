package crash

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fuzzforge/internal/types"

	"go.uber.org/zap"
)

const testOutputRoot = ".codeforge/fuzzing"

func writeCrash(t *testing.T, workspace, fuzzer, name string, mtime time.Time) string {
	t.Helper()
	dir := filepath.Join(workspace, ".codeforge", "fuzzing", fuzzer+"-output")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	full := filepath.Join(dir, name)
	if err := os.WriteFile(full, []byte("poc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(full, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return full
}

func TestScanBucketsNewestFirst(t *testing.T) {
	ws := t.TempDir()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeCrash(t, ws, "fuzzA", "crash-old", base)
	writeCrash(t, ws, "fuzzA", "crash-new", base.Add(10*time.Minute))
	writeCrash(t, ws, "fuzzB", "crash-only", base)

	c := NewCorrelator(zap.NewNop())
	buckets := c.Scan(ws, testOutputRoot)

	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	a := buckets["fuzzA"]
	if len(a) != 2 {
		t.Fatalf("expected 2 crashes for fuzzA, got %d", len(a))
	}
	if filepath.Base(a[0].Path) != "crash-new" {
		t.Errorf("newest crash must come first, got %s", a[0].Path)
	}
	if a[0].Fuzzer != "fuzzA" {
		t.Errorf("wrong attribution: %q", a[0].Fuzzer)
	}
	if a[0].RelPath != ".codeforge/fuzzing/fuzzA-output/crash-new" {
		t.Errorf("unexpected rel path: %q", a[0].RelPath)
	}
}

func TestScanIgnoresNonCrashEntries(t *testing.T) {
	ws := t.TempDir()
	writeCrash(t, ws, "fuzzA", "crash-keep", time.Now())

	dir := filepath.Join(ws, ".codeforge", "fuzzing", "fuzzA-output")
	if err := os.WriteFile(filepath.Join(dir, "stats.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(ws, ".codeforge", "fuzzing", "not-a-bucket"), 0o755); err != nil {
		t.Fatal(err)
	}

	c := NewCorrelator(zap.NewNop())
	buckets := c.Scan(ws, testOutputRoot)

	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(buckets))
	}
	if len(buckets["fuzzA"]) != 1 {
		t.Errorf("expected only the crash file, got %v", buckets["fuzzA"])
	}
}

func TestScanMissingRootIsEmpty(t *testing.T) {
	c := NewCorrelator(zap.NewNop())
	buckets := c.Scan(t.TempDir(), testOutputRoot)
	if len(buckets) != 0 {
		t.Errorf("expected empty result, got %v", buckets)
	}
}

func TestIsCrashFile(t *testing.T) {
	cases := map[string]bool{
		"/ws/.codeforge/fuzzing/fuzzA-output/crash-abc123": true,
		"crash-abc123":  true,
		"/ws/out/seed-1": false,
		"/ws/out/README": false,
		"crashes.txt":    false,
	}
	for p, want := range cases {
		if got := IsCrashFile(p); got != want {
			t.Errorf("IsCrashFile(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestScanFuzzer(t *testing.T) {
	ws := t.TempDir()
	writeCrash(t, ws, "fuzzA", "crash-1", time.Now())
	writeCrash(t, ws, "fuzzB", "crash-2", time.Now())

	c := NewCorrelator(zap.NewNop())
	records := c.ScanFuzzer(ws, testOutputRoot, "fuzzA")
	if len(records) != 1 || records[0].Fuzzer != "fuzzA" {
		t.Errorf("expected only fuzzA's crash, got %v", records)
	}
}

func TestMerge(t *testing.T) {
	base := time.Now().Truncate(time.Second)
	existing := []types.CrashRecord{
		{Fuzzer: "fuzzA", Path: "/ws/out/crash-1", DiscoveredAt: base},
		{Fuzzer: "fuzzA", Path: "/ws/out/crash-2", DiscoveredAt: base.Add(time.Minute)},
	}
	incoming := []types.CrashRecord{
		{Fuzzer: "fuzzA", Path: "/ws/out/crash-2", DiscoveredAt: base.Add(2 * time.Minute)}, // refreshed
		{Fuzzer: "fuzzA", Path: "/ws/out/crash-3", DiscoveredAt: base.Add(3 * time.Minute)},
	}

	merged := Merge(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("expected 3 records after dedupe, got %d", len(merged))
	}
	if merged[0].Path != "/ws/out/crash-3" {
		t.Errorf("newest must come first, got %s", merged[0].Path)
	}
	if merged[1].Path != "/ws/out/crash-2" || !merged[1].DiscoveredAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("duplicate should keep the newer timestamp: %+v", merged[1])
	}
	if merged[2].Path != "/ws/out/crash-1" {
		t.Errorf("oldest must come last, got %s", merged[2].Path)
	}
}

func TestMergeEmptySides(t *testing.T) {
	records := []types.CrashRecord{{Path: "/x/crash-1", DiscoveredAt: time.Now()}}
	if got := Merge(nil, records); len(got) != 1 {
		t.Errorf("merge into empty lost records: %v", got)
	}
	if got := Merge(records, nil); len(got) != 1 {
		t.Errorf("merge from empty lost records: %v", got)
	}
	if got := Merge(nil, nil); len(got) != 0 {
		t.Errorf("expected empty merge, got %v", got)
	}
}
