package types

import "time"

// one crash artifact on disk, attributed to the fuzzer that produced it
type CrashRecord struct {
	Fuzzer       string    `json:"fuzzer"`
	Path         string    `json:"path"`     // absolute path on the host
	RelPath      string    `json:"rel_path"` // workspace-relative, when known
	DiscoveredAt time.Time `json:"discovered_at"`
}

// FuzzerState is a point-in-time snapshot of one discovered fuzzer,
// as handed out by the discovery cache. Crashes are newest-first.
type FuzzerState struct {
	Name        string        `json:"name"`
	Preset      string        `json:"preset"`
	Crashes     []CrashRecord `json:"crashes"`
	OutputDir   string        `json:"output_dir"`
	TestCount   int           `json:"test_count"`
	LastUpdated time.Time     `json:"last_updated"`
}

func (s FuzzerState) Target() Target {
	return Target{Preset: s.Preset, Fuzzer: s.Name}
}

// Clone deep-copies the snapshot so cache internals never escape.
func (s FuzzerState) Clone() FuzzerState {
	out := s
	out.Crashes = make([]CrashRecord, len(s.Crashes))
	copy(out.Crashes, s.Crashes)
	return out
}
