package commitment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestCancellationLifecycle_Integration connects to a real PostgreSQL via
// DATABASE_URL and drives a full disputed cancellation end to end.
func TestCancellationLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "commitments") || !tableExists(ctx, t, pool, "cancellation_history") || !tableExists(ctx, t, pool, "admin_dispute_logs") {
		t.Skip("database schema missing; apply migrations/0001_init.sql first")
	}

	suffix := time.Now().UnixNano()
	var (
		studentUserID string
		tutorUserID   string
		adminUserID   string
		studentParty  string
		tutorParty    string
		requestID     string
	)

	seedUser := func(email, name, role string) string {
		var id string
		if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, $2, $3) RETURNING id`,
			fmt.Sprintf("%s+%d@example.com", email, suffix), name, role).Scan(&id); err != nil {
			t.Fatalf("seed user %s: %v", email, err)
		}
		return id
	}
	studentUserID = seedUser("alex", "Alex Rivera", "student")
	tutorUserID = seedUser("jane", "Jane Doe", "tutor")
	adminUserID = seedUser("admin", "Admin", "admin")

	if err := pool.QueryRow(ctx, `INSERT INTO parties (user_id, display_name, role) VALUES ($1, 'Alex Rivera', 'student') RETURNING id`, studentUserID).Scan(&studentParty); err != nil {
		t.Fatalf("seed student party: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO parties (user_id, display_name, role) VALUES ($1, 'Jane Doe', 'tutor') RETURNING id`, tutorUserID).Scan(&tutorParty); err != nil {
		t.Fatalf("seed tutor party: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO teaching_requests (created_by_user_id, subject) VALUES ($1, 'Algebra II') RETURNING id`, studentUserID).Scan(&requestID); err != nil {
		t.Fatalf("seed teaching request: %v", err)
	}

	svc := NewService(pool, nil)

	studentActor := Actor{UserID: studentUserID, PartyID: studentParty, Role: RoleStudent}
	tutorActor := Actor{UserID: tutorUserID, PartyID: tutorParty, Role: RoleTutor}

	rec, err := svc.Create(ctx, studentActor, CreateParams{
		RequestID:      requestID,
		StudentPartyID: studentParty,
		TutorPartyID:   tutorParty,
		TotalAmount:    400,
		TotalSessions:  8,
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM timeline_events WHERE commitment_id = $1`, rec.ID)
		pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'commitment_id' = $1`, rec.ID)
		pool.Exec(ctx2, `DELETE FROM admin_dispute_logs WHERE commitment_id = $1`, rec.ID)
		pool.Exec(ctx2, `DELETE FROM cancellation_history WHERE commitment_id = $1`, rec.ID)
		pool.Exec(ctx2, `DELETE FROM commitments WHERE id = $1`, rec.ID)
		pool.Exec(ctx2, `DELETE FROM teaching_requests WHERE id = $1`, requestID)
		pool.Exec(ctx2, `DELETE FROM parties WHERE id IN ($1, $2)`, studentParty, tutorParty)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2, $3)`, studentUserID, tutorUserID, adminUserID)
	})

	// Full payment activates.
	rec, err = svc.RecordPayment(ctx, rec.ID, 400)
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if rec.Status != StatusActive {
		t.Fatalf("expected active after full payment, got %s", rec.Status)
	}

	// Student requests cancellation; their response is seeded ACCEPTED.
	rec, err = svc.RequestCancellation(ctx, rec.ID, studentActor, "tutor keeps rescheduling", "https://evidence.example/chat")
	if err != nil {
		t.Fatalf("request cancellation: %v", err)
	}
	if rec.Status != StatusCancellationPending {
		t.Fatalf("expected cancellation_pending, got %s", rec.Status)
	}
	if rec.CancellationDecision.Student.Status != ResponseAccepted {
		t.Fatalf("expected student response seeded ACCEPTED")
	}

	// A second request must fail with a conflict, not an invalid state.
	if _, err := svc.RequestCancellation(ctx, rec.ID, tutorActor, "reason", "https://evidence.example/x"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on a second request, got %v", err)
	}

	// An actor holding the tutor role but the wrong party cannot respond.
	wrongParty := Actor{UserID: tutorUserID, PartyID: studentParty, Role: RoleTutor}
	if _, err := svc.RespondToCancellation(ctx, rec.ID, wrongParty, true, "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a non-party actor, got %v", err)
	}

	// Tutor rejects; disagreement escalates to admin review.
	rec, err = svc.RespondToCancellation(ctx, rec.ID, tutorActor, false, "sessions were delivered as agreed", "https://evidence.example/log")
	if err != nil {
		t.Fatalf("respond to cancellation: %v", err)
	}
	if rec.Status != StatusAdminReview {
		t.Fatalf("expected admin_review, got %s", rec.Status)
	}
	if !rec.CancellationDecision.AdminReviewRequired {
		t.Fatalf("expected admin_review_required set")
	}

	// Admin approves the cancellation.
	rec, err = svc.ResolveDispute(ctx, rec.ID, adminUserID, true, "student evidence conclusive")
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if rec.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", rec.Status)
	}
	if rec.CancellationDecision != nil {
		t.Fatalf("expected live decision cleared after resolution")
	}

	// Exactly one history entry at seq 1 carrying the resolved decision.
	history, err := svc.History(ctx, rec.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 || history[0].Seq != 1 {
		t.Fatalf("expected one history entry at seq 1, got %+v", history)
	}

	// The audit snapshot equals the archived decision.
	var snapshotMatches bool
	if err := pool.QueryRow(ctx, `
		SELECT l.decision_snapshot = h.decision
		FROM admin_dispute_logs l
		JOIN cancellation_history h ON h.commitment_id = l.commitment_id AND h.seq = 1
		WHERE l.commitment_id = $1 AND l.action = 'resolve_disagreement'
	`, rec.ID).Scan(&snapshotMatches); err != nil {
		t.Fatalf("compare snapshot: %v", err)
	}
	if !snapshotMatches {
		t.Fatalf("expected the dispute log snapshot to equal the history decision")
	}

	// Replaying the resolution fails without a second audit record.
	if _, err := svc.ResolveDispute(ctx, rec.ID, adminUserID, true, "again"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on replay, got %v", err)
	}
	var logCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_dispute_logs WHERE commitment_id = $1`, rec.ID).Scan(&logCount); err != nil {
		t.Fatalf("count dispute logs: %v", err)
	}
	if logCount != 1 {
		t.Fatalf("expected a single dispute log after replay, got %d", logCount)
	}

	// Timeline seq is dense and monotonic.
	var evCount, maxSeq int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*), MAX(seq) FROM timeline_events WHERE commitment_id = $1`, rec.ID).Scan(&evCount, &maxSeq); err != nil {
		t.Fatalf("verify timeline: %v", err)
	}
	if evCount != maxSeq {
		t.Fatalf("expected dense timeline seq, count=%d max=%d", evCount, maxSeq)
	}

	// Outbox carries the cancelled topic.
	var outCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE topic = $1 AND payload->>'commitment_id' = $2`, TopicCancelled, rec.ID).Scan(&outCount); err != nil {
		t.Fatalf("verify outbox: %v", err)
	}
	if outCount != 1 {
		t.Fatalf("expected 1 cancelled outbox message, got %d", outCount)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
