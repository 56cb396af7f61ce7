package commitment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository executes commitment SQL inside a caller-supplied transaction.
// All mutating queries assume the commitment row is already locked via
// GetForUpdate so concurrent transitions serialize per commitment.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const commitmentColumns = `
id, request_id, student_party_id, tutor_party_id,
total_amount, student_paid_amount, total_sessions, completed_sessions,
status, cancellation_decision, created_at, updated_at
`

func scanCommitment(row pgx.Row) (Commitment, error) {
	var (
		c        Commitment
		decision []byte
	)
	err := row.Scan(
		&c.ID, &c.RequestID, &c.StudentPartyID, &c.TutorPartyID,
		&c.TotalAmount, &c.StudentPaidAmount, &c.TotalSessions, &c.CompletedSessions,
		&c.Status, &decision, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Commitment{}, ErrNotFound
		}
		return Commitment{}, fmt.Errorf("commitment: scan: %w", err)
	}
	if len(decision) > 0 {
		var d CancellationDecision
		if err := json.Unmarshal(decision, &d); err != nil {
			return Commitment{}, fmt.Errorf("commitment: decode decision: %w", err)
		}
		c.CancellationDecision = &d
	}
	return c, nil
}

// Insert persists a new commitment in pending_agreement.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, p CreateParams) (Commitment, error) {
	const q = `
INSERT INTO commitments (request_id, student_party_id, tutor_party_id, total_amount, total_sessions)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + commitmentColumns
	rec, err := scanCommitment(tx.QueryRow(ctx, q,
		p.RequestID, p.StudentPartyID, p.TutorPartyID, p.TotalAmount, p.TotalSessions))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Commitment{}, fmt.Errorf("%w: unknown request or party", ErrValidation)
		}
		return Commitment{}, fmt.Errorf("commitment: insert: %w", err)
	}
	return rec, nil
}

// GetForUpdate loads the commitment row under a row lock. Every transition
// goes through this so two near-simultaneous calls cannot both observe the
// pre-transition state.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Commitment, error) {
	const q = `SELECT ` + commitmentColumns + ` FROM commitments WHERE id = $1 FOR UPDATE`
	return scanCommitment(tx.QueryRow(ctx, q, id))
}

// Get loads the commitment without locking; display reads only.
func (r *Repository) Get(ctx context.Context, tx pgx.Tx, id string) (Commitment, error) {
	const q = `SELECT ` + commitmentColumns + ` FROM commitments WHERE id = $1`
	return scanCommitment(tx.QueryRow(ctx, q, id))
}

// Update writes back the mutable fields of a locked commitment.
func (r *Repository) Update(ctx context.Context, tx pgx.Tx, c Commitment) error {
	var decision []byte
	if c.CancellationDecision != nil {
		b, err := json.Marshal(c.CancellationDecision)
		if err != nil {
			return fmt.Errorf("commitment: encode decision: %w", err)
		}
		decision = b
	}
	const q = `
UPDATE commitments
SET student_paid_amount = $1,
    completed_sessions  = $2,
    status              = $3::commitment_status,
    cancellation_decision = $4::jsonb,
    updated_at          = now()
WHERE id = $5
`
	tag, err := tx.Exec(ctx, q, c.StudentPaidAmount, c.CompletedSessions, c.Status, decision, c.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return fmt.Errorf("%w: %s", ErrValidation, pgErr.ConstraintName)
		}
		return fmt.Errorf("commitment: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendHistory appends a resolved decision snapshot with the next seq for
// the commitment. The seq subquery is safe because the caller holds the
// commitment row lock.
func (r *Repository) AppendHistory(ctx context.Context, tx pgx.Tx, commitmentID string, resolvedAt time.Time, decision json.RawMessage) (HistoryEntry, error) {
	const q = `
INSERT INTO cancellation_history (commitment_id, seq, resolved_at, decision)
SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3::jsonb
FROM cancellation_history WHERE commitment_id = $1
RETURNING id, commitment_id, seq, resolved_at, decision
`
	var e HistoryEntry
	if err := tx.QueryRow(ctx, q, commitmentID, resolvedAt, []byte(decision)).
		Scan(&e.ID, &e.CommitmentID, &e.Seq, &e.ResolvedAt, &e.Decision); err != nil {
		return HistoryEntry{}, fmt.Errorf("commitment: append history: %w", err)
	}
	return e, nil
}

// ListHistory returns resolved decisions ordered by seq ascending.
func (r *Repository) ListHistory(ctx context.Context, tx pgx.Tx, commitmentID string) ([]HistoryEntry, error) {
	const q = `
SELECT id, commitment_id, seq, resolved_at, decision
FROM cancellation_history
WHERE commitment_id = $1
ORDER BY seq
`
	rows, err := tx.Query(ctx, q, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("commitment: list history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.CommitmentID, &e.Seq, &e.ResolvedAt, &e.Decision); err != nil {
			return nil, fmt.Errorf("commitment: scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertDisputeLog writes the immutable audit record for an admin action.
func (r *Repository) InsertDisputeLog(ctx context.Context, tx pgx.Tx, e DisputeLogEntry) (DisputeLogEntry, error) {
	const q = `
INSERT INTO admin_dispute_logs (commitment_id, action, handled_by, handled_at, notes, decision_snapshot)
VALUES ($1, $2, $3, $4, $5, $6::jsonb)
RETURNING id
`
	if err := tx.QueryRow(ctx, q, e.CommitmentID, e.Action, e.HandledBy, e.HandledAt, e.Notes, []byte(e.Snapshot)).Scan(&e.ID); err != nil {
		return DisputeLogEntry{}, fmt.Errorf("commitment: insert dispute log: %w", err)
	}
	return e, nil
}

// ListDisputeLogs returns audit records ordered by handled_at ascending.
func (r *Repository) ListDisputeLogs(ctx context.Context, tx pgx.Tx, commitmentID string) ([]DisputeLogEntry, error) {
	const q = `
SELECT id, commitment_id, action, handled_by, handled_at, notes, decision_snapshot
FROM admin_dispute_logs
WHERE commitment_id = $1
ORDER BY handled_at, id
`
	rows, err := tx.Query(ctx, q, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("commitment: list dispute logs: %w", err)
	}
	defer rows.Close()

	logs := []DisputeLogEntry{}
	for rows.Next() {
		var e DisputeLogEntry
		if err := rows.Scan(&e.ID, &e.CommitmentID, &e.Action, &e.HandledBy, &e.HandledAt, &e.Notes, &e.Snapshot); err != nil {
			return nil, fmt.Errorf("commitment: scan dispute log: %w", err)
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// AppendTimeline records a business event with the next per-commitment seq.
func (r *Repository) AppendTimeline(ctx context.Context, tx pgx.Tx, commitmentID, eventType, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("commitment: marshal timeline payload: %w", err)
	}
	var actor any
	if actorID != "" {
		actor = actorID
	}
	const q = `
INSERT INTO timeline_events (commitment_id, seq, type, payload, actor_id)
SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3::jsonb, $4::uuid
FROM timeline_events WHERE commitment_id = $1
`
	if _, err := tx.Exec(ctx, q, commitmentID, eventType, body, actor); err != nil {
		return fmt.Errorf("commitment: insert timeline event: %w", err)
	}
	return nil
}

// EnqueueOutbox stages a message for the notification relay in the same
// transaction as the state change it describes.
func (r *Repository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("commitment: marshal outbox payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("commitment: enqueue outbox: %w", err)
	}
	return nil
}
