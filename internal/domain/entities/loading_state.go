package entities

// LoadingState tracks the three phases of a progressive patient load.
// Phases are monotonic within a cycle: Basic flips off before Details flips
// on, Details flips off before Enrichment is reported in progress. A refetch
// resets all three and restarts the cycle.
type LoadingState struct {
	Basic      bool   `json:"basic"`
	Details    bool   `json:"details"`
	Enrichment bool   `json:"enrichment"`
	Error      string `json:"error,omitempty"`
}

// Idle reports whether no phase is currently in progress
func (s LoadingState) Idle() bool {
	return !s.Basic && !s.Details && !s.Enrichment
}
