package types

import "strings"

// one discoverable fuzz target, addressed as "preset:fuzzer"
type Target struct {
	Preset string `json:"preset"`
	Fuzzer string `json:"fuzzer"`
}

func (t Target) String() string {
	return t.Preset + ":" + t.Fuzzer
}

// JoinTargets renders the space-separated target list the codeforge
// build and run subcommands take as their single argument.
func JoinTargets(targets []Target) string {
	parts := make([]string, 0, len(targets))
	for _, t := range targets {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, " ")
}
