package parse

import (
	"strings"

	"fuzzforge/internal/types"
)

// Discovery parses find-fuzz-tests output. Each line is expected to be
// "PRESET:FUZZER"; the split is at the first colon, so presets may not
// contain colons but the wire format never produces them anyway.
func Discovery(stdout string) ([]types.Target, []string) {
	var targets []types.Target
	var unparsed []string
	for _, line := range lines(stdout) {
		if line == "" {
			continue
		}
		preset, fuzzer, found := strings.Cut(line, ":")
		if !found || preset == "" || fuzzer == "" {
			unparsed = append(unparsed, line)
			continue
		}
		targets = append(targets, types.Target{Preset: preset, Fuzzer: fuzzer})
	}
	return targets, unparsed
}
