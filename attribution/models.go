package attribution

import "time"

// SessionStatus values known to the engine. Anything else falls back to
// the rejected bucket so no record is dropped silently.
const (
	SessionCompleted    = "COMPLETED"
	SessionCancelled    = "CANCELLED"
	SessionNotConducted = "NOT_CONDUCTED"
	SessionDisputed     = "DISPUTED"
	SessionRejected     = "REJECTED"
)

// Session is the scheduling collaborator's record, read-only to this
// package. Absence may be reported as explicit booleans, an actor id, or a
// free-text name; upstream populates them inconsistently.
type Session struct {
	ID              string
	CommitmentID    string
	StartTime       time.Time
	EndTime         time.Time
	IsTrial         bool
	Status          string
	StudentAbsent   *bool
	TutorAbsent     *bool
	CancelledBy     string
	CancelledByName string
}

// Responsibility tags who is attributed for a cancelled or not-conducted
// session. Unknown is a valid, displayed outcome, not an error.
type Responsibility string

const (
	ByStudent Responsibility = "student"
	ByTutor   Responsibility = "tutor"
	Unknown   Responsibility = "unknown"
)

// PartyIdentity is the dual-key identity set for one party: every id the
// party is known by plus every display name. Upstream session records
// reference actors by either, so both are matched.
type PartyIdentity struct {
	IDs   []string
	Names []string
}

// ClassifiedSession is a session with its bucket and attribution decided.
type ClassifiedSession struct {
	Session
	Bucket         string
	Responsibility Responsibility
}

// Bucket names used in Statistics and the merged timeline.
const (
	BucketCompleted    = "completed"
	BucketCancelled    = "cancelled"
	BucketNotConducted = "notConducted"
	BucketDispute      = "dispute"
	BucketRejected     = "rejected"
)

// AttributedBucket counts sessions with per-party responsibility splits.
type AttributedBucket struct {
	Total    int
	Student  int
	Tutor    int
	Unknown  int
	Sessions []ClassifiedSession
}

// PlainBucket counts sessions without attribution.
type PlainBucket struct {
	Total    int
	Sessions []ClassifiedSession
}

// Statistics is the engine's output: per-category counts plus a single
// merged, time-ordered timeline across all buckets. It supports a human
// arbitrator's judgment and never drives a transition by itself.
type Statistics struct {
	Completed    PlainBucket
	Cancelled    AttributedBucket
	NotConducted AttributedBucket
	Dispute      PlainBucket
	Rejected     PlainBucket
	Timeline     []ClassifiedSession
}

// TotalSessions is the sum across all buckets; it always equals the input
// record count.
func (s Statistics) TotalSessions() int {
	return s.Completed.Total + s.Cancelled.Total + s.NotConducted.Total + s.Dispute.Total + s.Rejected.Total
}
