package types

import (
	"fmt"
	"time"
)

// Diagnostics captures everything needed to reconstruct a failed tool
// invocation after the fact.
type Diagnostics struct {
	Command   string    `json:"command"`
	ExitCode  int       `json:"exit_code"`
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	Timestamp time.Time `json:"timestamp"`
}

// one fuzzer the tool reported as successfully built
type BuiltTarget struct {
	Name   string `json:"name"`
	Preset string `json:"preset"`
	Path   string `json:"path"`
}

// one fuzzer the tool reported as failed, with whatever detail followed
// the failure marker on the next line
type BuildFailure struct {
	Preset      string       `json:"preset"`
	Target      string       `json:"target"`
	RawError    string       `json:"raw_error"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// BuildResult is the parsed outcome of one build-fuzz-tests invocation.
// Partial failure is the normal case: some targets built, some not.
type BuildResult struct {
	BuiltCount   int            `json:"built_count"`
	BuiltTargets []BuiltTarget  `json:"built_targets"`
	Failures     []BuildFailure `json:"failures"`
}

// one fuzzer whose execution the tool flagged as errored
type ExecutionError struct {
	Fuzzer  string `json:"fuzzer"`
	Message string `json:"message"`
}

// RunResult is the parsed outcome of one run-fuzz-tests invocation.
type RunResult struct {
	ExecutedCount   int              `json:"executed_count"`
	Executed        []string         `json:"executed"`
	Crashes         []CrashRecord    `json:"crashes"`
	ExecutionErrors []ExecutionError `json:"execution_errors"`
}

// CommandError is the total-failure outcome of a coordinator: the tool
// produced no usable per-target results at all.
type CommandError struct {
	Op          string
	Message     string
	Diagnostics Diagnostics
}

func (e *CommandError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: command %q exited with code %d", e.Op, e.Diagnostics.Command, e.Diagnostics.ExitCode)
}
