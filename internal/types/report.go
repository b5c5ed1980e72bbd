package types

import "time"

// CampaignReport aggregates one full discover/build/run pass.
type CampaignReport struct {
	ID              string           `json:"id"`
	Workspace       string           `json:"workspace"`
	ContainerRef    string           `json:"container_ref"`
	DiscoveredCount int              `json:"discovered_count"`
	BuiltCount      int              `json:"built_count"`
	ExecutedCount   int              `json:"executed_count"`
	BuildFailures   []BuildFailure   `json:"build_failures"`
	Crashes         []CrashRecord    `json:"crashes"`
	ExecutionErrors []ExecutionError `json:"execution_errors"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
}

// Clean reports whether the campaign finished with nothing to complain
// about: every build succeeded, every fuzzer ran, nothing crashed.
func (r *CampaignReport) Clean() bool {
	return len(r.BuildFailures) == 0 && len(r.Crashes) == 0 && len(r.ExecutionErrors) == 0
}
