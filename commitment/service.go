package commitment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the protocol service.
type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, p CreateParams) (Commitment, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Commitment, error)
	Get(ctx context.Context, tx pgx.Tx, id string) (Commitment, error)
	Update(ctx context.Context, tx pgx.Tx, c Commitment) error
	AppendHistory(ctx context.Context, tx pgx.Tx, commitmentID string, resolvedAt time.Time, decision json.RawMessage) (HistoryEntry, error)
	ListHistory(ctx context.Context, tx pgx.Tx, commitmentID string) ([]HistoryEntry, error)
	InsertDisputeLog(ctx context.Context, tx pgx.Tx, e DisputeLogEntry) (DisputeLogEntry, error)
	ListDisputeLogs(ctx context.Context, tx pgx.Tx, commitmentID string) ([]DisputeLogEntry, error)
	AppendTimeline(ctx context.Context, tx pgx.Tx, commitmentID, eventType, actorID string, payload map[string]any) error
	EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service owns every status transition of the commitment lifecycle. Each
// operation runs in a single transaction: the row lock taken by
// GetForUpdate serializes concurrent transitions per commitment, and the
// timeline/outbox/history writes commit atomically with the state change.
type Service struct {
	pool  TxBeginner
	store Store
	now   func() time.Time
}

func NewService(pool TxBeginner, store Store) *Service {
	if store == nil {
		store = NewRepository()
	}
	return &Service{
		pool:  pool,
		store: store,
		now:   time.Now,
	}
}

// Create opens a new commitment in pending_agreement.
func (s *Service) Create(ctx context.Context, actor Actor, p CreateParams) (Commitment, error) {
	if p.RequestID == "" || p.StudentPartyID == "" || p.TutorPartyID == "" {
		return Commitment{}, fmt.Errorf("%w: request and party ids are required", ErrValidation)
	}
	if p.TotalAmount < 0 {
		return Commitment{}, fmt.Errorf("%w: total amount must not be negative", ErrValidation)
	}
	if p.TotalSessions <= 0 {
		return Commitment{}, fmt.Errorf("%w: total sessions must be positive", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Commitment{}, fmt.Errorf("commitment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.store.Insert(ctx, tx, p)
	if err != nil {
		return Commitment{}, err
	}
	if err := s.store.AppendTimeline(ctx, tx, rec.ID, "COMMITMENT_CREATED", actor.UserID, map[string]any{
		"request_id":     rec.RequestID,
		"total_amount":   rec.TotalAmount,
		"total_sessions": rec.TotalSessions,
	}); err != nil {
		return Commitment{}, err
	}
	if err := s.store.EnqueueOutbox(ctx, tx, TopicCreated, map[string]any{
		"commitment_id": rec.ID,
		"request_id":    rec.RequestID,
	}); err != nil {
		return Commitment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Commitment{}, fmt.Errorf("commitment: commit: %w", err)
	}
	return rec, nil
}

// RecordPayment adds a payment installment reported by the payment
// collaborator. Amounts are integer cents so installment sums stay exact.
// The paid amount only grows and never exceeds the total; full payment of
// a pending_agreement commitment activates it.
func (s *Service) RecordPayment(ctx context.Context, id string, amount int64) (Commitment, error) {
	if amount <= 0 {
		return Commitment{}, fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}
	return s.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, c *Commitment) (string, string, map[string]any, error) {
		if c.Status != StatusPendingAgreement && c.Status != StatusActive {
			return "", "", nil, fmt.Errorf("%w: cannot record payment in %s", ErrInvalidState, c.Status)
		}
		if c.StudentPaidAmount+amount > c.TotalAmount {
			return "", "", nil, fmt.Errorf("%w: payment exceeds total amount", ErrValidation)
		}
		c.StudentPaidAmount += amount

		payload := map[string]any{"amount": amount, "paid_total": c.StudentPaidAmount}
		if c.Status == StatusPendingAgreement && c.StudentPaidAmount == c.TotalAmount {
			c.Status = StatusActive
			return "COMMITMENT_ACTIVATED", TopicActivated, payload, nil
		}
		return "PAYMENT_RECORDED", "", payload, nil
	}, Actor{})
}

// Reject lets the student walk away before paying in full.
func (s *Service) Reject(ctx context.Context, id string, actor Actor) (Commitment, error) {
	if actor.Role != RoleStudent {
		return Commitment{}, fmt.Errorf("%w: only the student may reject a pending commitment", ErrValidation)
	}
	return s.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, c *Commitment) (string, string, map[string]any, error) {
		if !memberOf(c, actor) {
			return "", "", nil, ErrNotFound
		}
		if c.Status != StatusPendingAgreement {
			return "", "", nil, fmt.Errorf("%w: cannot reject in %s", ErrInvalidState, c.Status)
		}
		if c.StudentPaidAmount == c.TotalAmount {
			return "", "", nil, fmt.Errorf("%w: payment already complete", ErrInvalidState)
		}
		c.Status = StatusRejected
		return "COMMITMENT_REJECTED", TopicRejected, nil, nil
	}, actor)
}

// RecordSessionCompleted advances progress reported by the scheduling
// collaborator; completing the final session completes the commitment.
func (s *Service) RecordSessionCompleted(ctx context.Context, id string) (Commitment, error) {
	return s.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, c *Commitment) (string, string, map[string]any, error) {
		if c.Status != StatusActive {
			return "", "", nil, fmt.Errorf("%w: cannot record session in %s", ErrInvalidState, c.Status)
		}
		if c.CompletedSessions >= c.TotalSessions {
			return "", "", nil, fmt.Errorf("%w: all sessions already completed", ErrValidation)
		}
		c.CompletedSessions++

		payload := map[string]any{"completed": c.CompletedSessions, "total": c.TotalSessions}
		if c.CompletedSessions == c.TotalSessions {
			c.Status = StatusCompleted
			return "COMMITMENT_COMPLETED", TopicCompleted, payload, nil
		}
		return "SESSION_COMPLETED", "", payload, nil
	}, Actor{})
}

// RequestCancellation opens a cancellation decision. The requester's own
// response is seeded ACCEPTED; the counterpart starts PENDING.
func (s *Service) RequestCancellation(ctx context.Context, id string, actor Actor, reason, linkURL string) (Commitment, error) {
	if actor.Role != RoleStudent && actor.Role != RoleTutor {
		return Commitment{}, fmt.Errorf("%w: requester must be the student or the tutor", ErrValidation)
	}
	if strings.TrimSpace(reason) == "" || strings.TrimSpace(linkURL) == "" {
		return Commitment{}, fmt.Errorf("%w: reason and link are required", ErrValidation)
	}
	return s.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, c *Commitment) (string, string, map[string]any, error) {
		if !memberOf(c, actor) {
			return "", "", nil, ErrNotFound
		}
		if c.CancellationDecision != nil {
			return "", "", nil, fmt.Errorf("%w: a cancellation decision is already open", ErrConflict)
		}
		if c.Status != StatusActive {
			return "", "", nil, fmt.Errorf("%w: cancellation may only be requested while active", ErrInvalidState)
		}

		d := &CancellationDecision{
			RequestedBy: actor.Role,
			Reason:      strings.TrimSpace(reason),
			LinkURL:     strings.TrimSpace(linkURL),
			RequestedAt: s.now().UTC(),
			Student:     PartyResponse{Status: ResponsePending},
			Tutor:       PartyResponse{Status: ResponsePending},
		}
		d.setResponse(actor.Role, PartyResponse{
			Status:  ResponseAccepted,
			Reason:  d.Reason,
			LinkURL: d.LinkURL,
		})
		c.CancellationDecision = d
		c.Status = StatusCancellationPending

		payload := map[string]any{"requested_by": string(actor.Role), "reason": d.Reason}
		return "CANCELLATION_REQUESTED", TopicCancellationRequested, payload, nil
	}, actor)
}

// RespondToCancellation records the counterpart's answer. Acceptance
// resolves to cancelled and archives the decision; rejection routes the
// disagreement to admin review.
func (s *Service) RespondToCancellation(ctx context.Context, id string, actor Actor, accept bool, reason, linkURL string) (Commitment, error) {
	if !accept && (strings.TrimSpace(reason) == "" || strings.TrimSpace(linkURL) == "") {
		return Commitment{}, fmt.Errorf("%w: rejecting a cancellation requires a reason and link", ErrValidation)
	}
	return s.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, c *Commitment) (string, string, map[string]any, error) {
		if !memberOf(c, actor) {
			return "", "", nil, ErrNotFound
		}
		if c.Status != StatusCancellationPending || c.CancellationDecision == nil {
			return "", "", nil, fmt.Errorf("%w: no cancellation awaiting a response", ErrInvalidState)
		}
		d := c.CancellationDecision
		if actor.Role != d.RequestedBy.Counterpart() {
			return "", "", nil, fmt.Errorf("%w: only the counterpart of %s may respond", ErrInvalidState, d.RequestedBy)
		}
		if d.Response(actor.Role).Status != ResponsePending {
			return "", "", nil, fmt.Errorf("%w: counterpart already responded", ErrConflict)
		}

		if accept {
			d.setResponse(actor.Role, PartyResponse{
				Status:  ResponseAccepted,
				Reason:  strings.TrimSpace(reason),
				LinkURL: strings.TrimSpace(linkURL),
			})
			resolvedAt := s.now().UTC()
			d.ResolvedDate = &resolvedAt
			if err := s.archiveDecision(ctx, tx, c, resolvedAt); err != nil {
				return "", "", nil, err
			}
			c.Status = StatusCancelled
			return "CANCELLATION_ACCEPTED", TopicCancelled, map[string]any{"responded_by": string(actor.Role)}, nil
		}

		d.setResponse(actor.Role, PartyResponse{
			Status:  ResponseRejected,
			Reason:  strings.TrimSpace(reason),
			LinkURL: strings.TrimSpace(linkURL),
		})
		d.AdminReviewRequired = disagreement(d)
		c.Status = StatusAdminReview
		return "CANCELLATION_DISPUTED", TopicCancellationDisputed, map[string]any{"responded_by": string(actor.Role)}, nil
	}, actor)
}

// ResolveDispute is the arbitrator's terminal call on an admin_review
// commitment. The audit log entry, the history append, and the status
// change commit in one transaction; approve cancels, reject resumes.
func (s *Service) ResolveDispute(ctx context.Context, id, adminID string, approve bool, notes string) (Commitment, error) {
	if adminID == "" {
		return Commitment{}, fmt.Errorf("%w: admin id is required", ErrValidation)
	}
	if strings.TrimSpace(notes) == "" {
		return Commitment{}, fmt.Errorf("%w: admin notes are required", ErrValidation)
	}
	return s.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, c *Commitment) (string, string, map[string]any, error) {
		if c.Status != StatusAdminReview || c.CancellationDecision == nil {
			return "", "", nil, fmt.Errorf("%w: no dispute awaiting review", ErrInvalidState)
		}
		topic, err := s.closeDecision(ctx, tx, c, adminID, approve, notes, ActionResolveDisagreement)
		if err != nil {
			return "", "", nil, err
		}
		return "DISPUTE_RESOLVED", topic, map[string]any{"approved": approve, "resolved_by": adminID}, nil
	}, Actor{UserID: adminID, Role: RoleAdmin})
}

// CloseCancellation lets an admin close a cancellation_pending decision
// directly, e.g. when the counterpart never responds. Approve cancels,
// reject resumes; the decision is archived either way.
func (s *Service) CloseCancellation(ctx context.Context, id, adminID string, approve bool, notes string) (Commitment, error) {
	if adminID == "" {
		return Commitment{}, fmt.Errorf("%w: admin id is required", ErrValidation)
	}
	if strings.TrimSpace(notes) == "" {
		return Commitment{}, fmt.Errorf("%w: admin notes are required", ErrValidation)
	}
	return s.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, c *Commitment) (string, string, map[string]any, error) {
		if c.Status != StatusCancellationPending || c.CancellationDecision == nil {
			return "", "", nil, fmt.Errorf("%w: no open cancellation to close", ErrInvalidState)
		}
		action := ActionRejectCancellation
		if approve {
			action = ActionApproveCancellation
		}
		topic, err := s.closeDecision(ctx, tx, c, adminID, approve, notes, action)
		if err != nil {
			return "", "", nil, err
		}
		return "CANCELLATION_CLOSED_BY_ADMIN", topic, map[string]any{"approved": approve, "resolved_by": adminID}, nil
	}, Actor{UserID: adminID, Role: RoleAdmin})
}

// Get returns the commitment without locking. Display reads are not
// linearizable with in-flight transitions; a stale read is tolerated.
func (s *Service) Get(ctx context.Context, id string) (Commitment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Commitment{}, fmt.Errorf("commitment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	return s.store.Get(ctx, tx, id)
}

// History returns the archived decisions ordered by resolution seq.
func (s *Service) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("commitment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	return s.store.ListHistory(ctx, tx, id)
}

// DisputeLogs returns the admin audit trail for a commitment.
func (s *Service) DisputeLogs(ctx context.Context, id string) ([]DisputeLogEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("commitment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	return s.store.ListDisputeLogs(ctx, tx, id)
}

// transitionFn mutates the locked commitment and names the timeline event
// and optional outbox topic describing the change.
type transitionFn func(ctx context.Context, tx pgx.Tx, c *Commitment) (event string, topic string, payload map[string]any, err error)

func (s *Service) transition(ctx context.Context, id string, fn transitionFn, actor Actor) (Commitment, error) {
	if id == "" {
		return Commitment{}, fmt.Errorf("%w: commitment id is required", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Commitment{}, fmt.Errorf("commitment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.store.GetForUpdate(ctx, tx, id)
	if err != nil {
		return Commitment{}, err
	}

	event, topic, payload, err := fn(ctx, tx, &c)
	if err != nil {
		return Commitment{}, err
	}

	if err := s.store.Update(ctx, tx, c); err != nil {
		return Commitment{}, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = string(c.Status)
	if err := s.store.AppendTimeline(ctx, tx, c.ID, event, actor.UserID, payload); err != nil {
		return Commitment{}, err
	}
	if topic != "" {
		if err := s.store.EnqueueOutbox(ctx, tx, topic, map[string]any{
			"commitment_id": c.ID,
			"status":        string(c.Status),
		}); err != nil {
			return Commitment{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Commitment{}, fmt.Errorf("commitment: commit: %w", err)
	}
	return c, nil
}

// archiveDecision appends the current decision to history and clears the
// live field. The marshaled bytes written to history are the snapshot.
func (s *Service) archiveDecision(ctx context.Context, tx pgx.Tx, c *Commitment, resolvedAt time.Time) error {
	snap, err := json.Marshal(c.CancellationDecision)
	if err != nil {
		return fmt.Errorf("commitment: snapshot decision: %w", err)
	}
	if _, err := s.store.AppendHistory(ctx, tx, c.ID, resolvedAt, snap); err != nil {
		return err
	}
	c.CancellationDecision = nil
	return nil
}

// closeDecision applies an admin resolution: populate the admin fields,
// write the dispute log entry and history append with the same snapshot
// bytes, clear the live decision, and pick the resulting status.
func (s *Service) closeDecision(ctx context.Context, tx pgx.Tx, c *Commitment, adminID string, approve bool, notes string, action AdminAction) (string, error) {
	d := c.CancellationDecision
	resolvedAt := s.now().UTC()
	d.AdminNotes = strings.TrimSpace(notes)
	d.AdminResolvedBy = adminID
	d.ResolvedDate = &resolvedAt

	snap, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("commitment: snapshot decision: %w", err)
	}
	if _, err := s.store.AppendHistory(ctx, tx, c.ID, resolvedAt, snap); err != nil {
		return "", err
	}
	if _, err := s.store.InsertDisputeLog(ctx, tx, DisputeLogEntry{
		CommitmentID: c.ID,
		Action:       action,
		HandledBy:    adminID,
		HandledAt:    resolvedAt,
		Notes:        d.AdminNotes,
		Snapshot:     snap,
	}); err != nil {
		return "", err
	}
	c.CancellationDecision = nil

	if approve {
		c.Status = StatusCancelled
		return TopicCancelled, nil
	}
	c.Status = StatusActive
	return TopicResumed, nil
}

// memberOf reports whether the actor's party id is the commitment party
// for its role. Non-members get ErrNotFound so they cannot observe
// commitments they are not part of.
func memberOf(c *Commitment, actor Actor) bool {
	switch actor.Role {
	case RoleStudent:
		return actor.PartyID != "" && actor.PartyID == c.StudentPartyID
	case RoleTutor:
		return actor.PartyID != "" && actor.PartyID == c.TutorPartyID
	}
	return false
}

// disagreement reports whether both parties responded with differing
// terminal statuses.
func disagreement(d *CancellationDecision) bool {
	s, t := d.Student.Status, d.Tutor.Status
	if s == ResponsePending || t == ResponsePending {
		return false
	}
	return s != t
}
