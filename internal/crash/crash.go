// Package crash walks the workspace fuzzing tree and associates crash
// artifacts on disk with the fuzzers that produced them.
package crash

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fuzzforge/internal/parse"
	"fuzzforge/internal/types"

	"go.uber.org/zap"
)

const crashFilePrefix = "crash-"

// Correlator scans "<fuzzer>-output" directories for crash files.
// Scanning is tolerant: an unreadable directory costs its bucket, never
// the whole pass.
type Correlator struct {
	logger *zap.Logger
}

func NewCorrelator(logger *zap.Logger) *Correlator {
	return &Correlator{logger: logger.Named("crash")}
}

// Scan returns the crash bucket for every fuzzer with an output
// directory under outputRoot. Buckets are newest-first.
func (c *Correlator) Scan(workspace, outputRoot string) map[string][]types.CrashRecord {
	root := filepath.Join(workspace, filepath.FromSlash(outputRoot))
	entries, err := os.ReadDir(root)
	if err != nil {
		c.logger.Debug("fuzzing output root not readable", zap.String("root", root), zap.Error(err))
		return map[string][]types.CrashRecord{}
	}

	buckets := make(map[string][]types.CrashRecord)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, parse.CrashDirSuffix) || len(name) == len(parse.CrashDirSuffix) {
			continue
		}
		fuzzer := strings.TrimSuffix(name, parse.CrashDirSuffix)
		buckets[fuzzer] = c.scanDir(workspace, filepath.Join(root, name), fuzzer)
	}
	return buckets
}

// ScanFuzzer refreshes a single fuzzer's bucket.
func (c *Correlator) ScanFuzzer(workspace, outputRoot, fuzzer string) []types.CrashRecord {
	dir := filepath.Join(workspace, filepath.FromSlash(outputRoot), fuzzer+parse.CrashDirSuffix)
	return c.scanDir(workspace, dir, fuzzer)
}

// OutputDirFor is the host path of one fuzzer's output directory.
func OutputDirFor(workspace, outputRoot, fuzzer string) string {
	return filepath.Join(workspace, filepath.FromSlash(outputRoot), fuzzer+parse.CrashDirSuffix)
}

// IsCrashFile reports whether a path names a crash artifact.
func IsCrashFile(p string) bool {
	return strings.HasPrefix(filepath.Base(p), crashFilePrefix)
}

// TestFileCount counts the test case files a fuzzer has recorded in its
// output directory, crashes included. Zero when the directory does not
// exist yet.
func TestFileCount(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			count++
		}
	}
	return count
}

func (c *Correlator) scanDir(workspace, dir, fuzzer string) []types.CrashRecord {
	entries, err := os.ReadDir(dir)
	if err != nil {
		c.logger.Debug("crash directory not readable", zap.String("dir", dir), zap.Error(err))
		return nil
	}

	var records []types.CrashRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), crashFilePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			c.logger.Debug("crash file not statable", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		full := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(workspace, full)
		if err != nil {
			rel = entry.Name()
		}
		records = append(records, types.CrashRecord{
			Fuzzer:       fuzzer,
			Path:         full,
			RelPath:      filepath.ToSlash(rel),
			DiscoveredAt: info.ModTime(),
		})
	}
	sortNewestFirst(records)
	return records
}

// Merge combines two batches of records for the same fuzzer, deduping
// by path. For a path seen in both, the newer timestamp wins. The
// result is newest-first.
func Merge(existing, incoming []types.CrashRecord) []types.CrashRecord {
	byPath := make(map[string]types.CrashRecord, len(existing)+len(incoming))
	for _, r := range existing {
		byPath[r.Path] = r
	}
	for _, r := range incoming {
		if prev, ok := byPath[r.Path]; !ok || r.DiscoveredAt.After(prev.DiscoveredAt) {
			byPath[r.Path] = r
		}
	}

	merged := make([]types.CrashRecord, 0, len(byPath))
	for _, r := range byPath {
		merged = append(merged, r)
	}
	sortNewestFirst(merged)
	return merged
}

// newest first, path as tiebreak so equal timestamps stay stable
func sortNewestFirst(records []types.CrashRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].DiscoveredAt.Equal(records[j].DiscoveredAt) {
			return records[i].DiscoveredAt.After(records[j].DiscoveredAt)
		}
		return records[i].Path < records[j].Path
	})
}
