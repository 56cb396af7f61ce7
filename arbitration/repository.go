package arbitration

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tutorflow/attribution"
)

// SessionRepository reads the scheduling collaborator's session records.
// This package never writes sessions.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// ListByCommitment returns every session recorded against the commitment.
func (r *SessionRepository) ListByCommitment(ctx context.Context, commitmentID string) ([]attribution.Session, error) {
	const q = `
		SELECT id, commitment_id, start_time, end_time, is_trial, status,
		       student_absent, tutor_absent,
		       COALESCE(cancelled_by, ''), COALESCE(cancelled_by_name, '')
		FROM sessions
		WHERE commitment_id = $1
		ORDER BY start_time DESC
	`
	rows, err := r.pool.Query(ctx, q, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("arbitration: list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []attribution.Session{}
	for rows.Next() {
		var s attribution.Session
		if err := rows.Scan(
			&s.ID, &s.CommitmentID, &s.StartTime, &s.EndTime, &s.IsTrial, &s.Status,
			&s.StudentAbsent, &s.TutorAbsent, &s.CancelledBy, &s.CancelledByName,
		); err != nil {
			return nil, fmt.Errorf("arbitration: scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("arbitration: iterate sessions: %w", err)
	}
	return sessions, nil
}
