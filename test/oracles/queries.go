package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_amount_bounds",
			SQL: `SELECT id, student_paid_amount, total_amount, completed_sessions, total_sessions
                  FROM commitments
                  WHERE student_paid_amount > total_amount
                     OR student_paid_amount < 0
                     OR completed_sessions > total_sessions`,
		},
		{
			Name: "O2_decision_matches_status",
			SQL: `SELECT id, status FROM commitments
                  WHERE (status IN ('cancellation_pending','admin_review') AND cancellation_decision IS NULL)
                     OR (status NOT IN ('cancellation_pending','admin_review') AND cancellation_decision IS NOT NULL)`,
		},
		{
			Name: "O3_history_seq_dense",
			SQL: `WITH seqs AS (
                      SELECT commitment_id, seq,
                             LAG(seq) OVER (PARTITION BY commitment_id ORDER BY seq) AS prev
                      FROM cancellation_history)
                  SELECT * FROM seqs
                  WHERE (prev IS NULL AND seq <> 1) OR (prev IS NOT NULL AND seq <> prev + 1)`,
		},
		{
			Name: "O4_timeline_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT commitment_id, seq,
                             LAG(seq) OVER (PARTITION BY commitment_id ORDER BY seq) AS prev
                      FROM timeline_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O5_admin_review_flagged",
			SQL: `SELECT id FROM commitments
                  WHERE status = 'admin_review'
                    AND COALESCE(cancellation_decision->>'admin_review_required', 'false') <> 'true'`,
		},
		{
			Name: "O6_audit_snapshot_archived",
			SQL: `SELECT l.id FROM admin_dispute_logs l
                  WHERE NOT EXISTS (
                      SELECT 1 FROM cancellation_history h
                      WHERE h.commitment_id = l.commitment_id
                        AND h.decision = l.decision_snapshot)`,
		},
		{
			Name: "O7_terminal_immutable",
			SQL: `SELECT c.id FROM commitments c
                  JOIN timeline_events e ON e.commitment_id = c.id
                  WHERE c.status IN ('cancelled','completed','rejected')
                    AND e.ts > c.updated_at + interval '1 second'`,
		},
		{
			Name: "O8_outbox_not_stuck",
			SQL: `SELECT id, topic, created_at FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
