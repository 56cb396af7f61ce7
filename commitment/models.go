package commitment

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a commitment.
type Status string

const (
	StatusPendingAgreement    Status = "pending_agreement"
	StatusActive              Status = "active"
	StatusCancellationPending Status = "cancellation_pending"
	StatusAdminReview         Status = "admin_review"
	StatusCancelled           Status = "cancelled"
	StatusCompleted           Status = "completed"
	StatusRejected            Status = "rejected"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// PartyRole identifies which side of the commitment an actor belongs to.
type PartyRole string

const (
	RoleStudent PartyRole = "student"
	RoleTutor   PartyRole = "tutor"
	RoleAdmin   PartyRole = "admin"
)

// Counterpart returns the opposite commitment party. Admin has no counterpart.
func (r PartyRole) Counterpart() PartyRole {
	switch r {
	case RoleStudent:
		return RoleTutor
	case RoleTutor:
		return RoleStudent
	}
	return ""
}

// Actor carries the authenticated caller's identity into every protocol
// operation. Nothing in this package reads identity from ambient state.
type Actor struct {
	UserID  string
	PartyID string
	Role    PartyRole
}

// ResponseStatus is a party's stance on an open cancellation decision.
type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "PENDING"
	ResponseAccepted ResponseStatus = "ACCEPTED"
	ResponseRejected ResponseStatus = "REJECTED"
)

// PartyResponse is one party's status/reason/link within a decision.
type PartyResponse struct {
	Status  ResponseStatus `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	LinkURL string         `json:"link_url,omitempty"`
}

// CancellationDecision is the in-flight record of an open cancellation
// request. The requesting party's own response is seeded ACCEPTED at
// creation; the counterpart starts PENDING.
type CancellationDecision struct {
	RequestedBy         PartyRole     `json:"requested_by"`
	Reason              string        `json:"reason"`
	LinkURL             string        `json:"link_url"`
	RequestedAt         time.Time     `json:"requested_at"`
	Student             PartyResponse `json:"student"`
	Tutor               PartyResponse `json:"tutor"`
	AdminReviewRequired bool          `json:"admin_review_required"`
	AdminNotes          string        `json:"admin_notes,omitempty"`
	AdminResolvedBy     string        `json:"admin_resolved_by,omitempty"`
	ResolvedDate        *time.Time    `json:"resolved_date,omitempty"`
}

// Response returns the stored response for the given party role.
func (d *CancellationDecision) Response(role PartyRole) PartyResponse {
	if role == RoleStudent {
		return d.Student
	}
	return d.Tutor
}

func (d *CancellationDecision) setResponse(role PartyRole, r PartyResponse) {
	if role == RoleStudent {
		d.Student = r
		return
	}
	d.Tutor = r
}

// Commitment is the agreement between one student and one tutor for a
// bounded number of sessions. It mirrors the commitments table and carries
// no presentation tags so different adapters can shape it as needed.
// Monetary amounts are integer cents; the payment-complete gate compares
// them exactly.
type Commitment struct {
	ID                   string
	RequestID            string
	StudentPartyID       string
	TutorPartyID         string
	TotalAmount          int64
	StudentPaidAmount    int64
	TotalSessions        int
	CompletedSessions    int
	Status               Status
	CancellationDecision *CancellationDecision
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HistoryEntry is one resolved decision in the append-only cancellation
// history. Decision holds the exact bytes written at resolution time so
// later schema changes cannot reshape archived records.
type HistoryEntry struct {
	ID           string
	CommitmentID string
	Seq          int
	ResolvedAt   time.Time
	Decision     json.RawMessage
}

// AdminAction labels what kind of admin intervention closed a decision.
type AdminAction string

const (
	ActionApproveCancellation AdminAction = "approve_cancellation"
	ActionRejectCancellation  AdminAction = "reject_cancellation"
	ActionResolveDisagreement AdminAction = "resolve_disagreement"
)

// DisputeLogEntry is the immutable audit record written whenever an admin
// action resolves a decision. Snapshot is a deep copy of the decision at
// resolution time.
type DisputeLogEntry struct {
	ID           string
	CommitmentID string
	Action       AdminAction
	HandledBy    string
	HandledAt    time.Time
	Notes        string
	Snapshot     json.RawMessage
}

// CreateParams carries the inputs for a new commitment. TotalAmount is in
// cents.
type CreateParams struct {
	RequestID      string
	StudentPartyID string
	TutorPartyID   string
	TotalAmount    int64
	TotalSessions  int
}

const (
	// Outbox topics emitted alongside transitions.
	TopicCreated               = "commitment.created"
	TopicActivated             = "commitment.activated"
	TopicRejected              = "commitment.rejected"
	TopicCancellationRequested = "commitment.cancellation_requested"
	TopicCancellationDisputed  = "commitment.cancellation_disputed"
	TopicCancelled             = "commitment.cancelled"
	TopicResumed               = "commitment.resumed"
	TopicCompleted             = "commitment.completed"
)
