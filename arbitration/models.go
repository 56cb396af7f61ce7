package arbitration

import (
	"tutorflow/attribution"
	"tutorflow/commitment"
)

// DecisionState is the single authoritative answer to "which decision do I
// look at": exactly one of Open or Resolved is set. Callers never infer
// authority by probing optional fields.
type DecisionState struct {
	Open     *commitment.CancellationDecision
	Resolved *commitment.HistoryEntry
}

// IsZero reports that the commitment has never had a cancellation decision.
func (d DecisionState) IsZero() bool {
	return d.Open == nil && d.Resolved == nil
}

// ReviewView is everything the arbitrator reads before deciding: current
// status, the authoritative decision state, the archived history and audit
// trail, and — only while a dispute is open — the attribution statistics.
type ReviewView struct {
	CommitmentID string
	Status       commitment.Status
	Decision     DecisionState
	History      []commitment.HistoryEntry
	DisputeLogs  []commitment.DisputeLogEntry
	Statistics   *attribution.Statistics
}
