package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"tutorflow/commitment"
	"tutorflow/test/actors"
	"tutorflow/test/chaos"
	"tutorflow/test/infra"
	"tutorflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos       = flag.Bool("chaos", false, "randomly terminate database backends during the run")
)

func TestCommitmentConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Skipf("no docker and no local postgres: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)

	svc := commitment.NewService(pool, nil)
	idPool := actors.NewPool(seedData.commitmentIDs...)
	ids := actors.Identities{
		Student: commitment.Actor{UserID: seedData.studentUserID, PartyID: seedData.studentParty, Role: commitment.RoleStudent},
		Tutor:   commitment.Actor{UserID: seedData.tutorUserID, PartyID: seedData.tutorParty, Role: commitment.RoleTutor},
		AdminID: seedData.adminUserID,
	}

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	g.Go(func() error {
		return actors.Creator(ctx2, svc, idPool, ids, seedData.requestID, stop)
	})
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Payer(ctx2, svc, idPool, stop) })
		g.Go(func() error { return actors.SessionReporter(ctx2, svc, idPool, stop) })
		g.Go(func() error { return actors.Canceller(ctx2, svc, idPool, ids, stop) })
		g.Go(func() error { return actors.Responder(ctx2, svc, idPool, ids, stop) })
	}
	g.Go(func() error { return actors.Admin(ctx2, svc, idPool, ids, stop) })
	if *flChaos {
		go chaos.TerminateRandomBackend(ctx2, pool, stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	studentUserID string
	tutorUserID   string
	adminUserID   string
	studentParty  string
	tutorParty    string
	requestID     string
	commitmentIDs []string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	seedUser := func(role string) string {
		var id string
		if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, $2, $3) RETURNING id`,
			fmt.Sprintf("%s%d@example.com", role, rand.Int63()), "Stress "+role, role).Scan(&id); err != nil {
			t.Fatalf("seed %s user: %v", role, err)
		}
		return id
	}
	s.studentUserID = seedUser("student")
	s.tutorUserID = seedUser("tutor")
	s.adminUserID = seedUser("admin")

	if err := pool.QueryRow(ctx, `INSERT INTO parties (user_id, display_name, role) VALUES ($1, 'Stress Student', 'student') RETURNING id`, s.studentUserID).Scan(&s.studentParty); err != nil {
		t.Fatalf("seed student party: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO parties (user_id, display_name, role) VALUES ($1, 'Stress Tutor', 'tutor') RETURNING id`, s.tutorUserID).Scan(&s.tutorParty); err != nil {
		t.Fatalf("seed tutor party: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO teaching_requests (created_by_user_id, subject) VALUES ($1, 'Stress Tutoring') RETURNING id`, s.studentUserID).Scan(&s.requestID); err != nil {
		t.Fatalf("seed teaching request: %v", err)
	}

	for i := 0; i < 4; i++ {
		var id string
		if err := pool.QueryRow(ctx, `
			INSERT INTO commitments (request_id, student_party_id, tutor_party_id, total_amount, total_sessions, status)
			VALUES ($1, $2, $3, 100, 4, 'active')
			RETURNING id`, s.requestID, s.studentParty, s.tutorParty).Scan(&id); err != nil {
			t.Fatalf("seed commitment: %v", err)
		}
		s.commitmentIDs = append(s.commitmentIDs, id)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"commitments", `SELECT id, status, student_paid_amount, completed_sessions, updated_at FROM commitments ORDER BY updated_at DESC LIMIT 50`},
		{"cancellation_history", `SELECT id, commitment_id, seq, resolved_at FROM cancellation_history ORDER BY resolved_at DESC LIMIT 50`},
		{"admin_dispute_logs", `SELECT id, commitment_id, action, handled_at FROM admin_dispute_logs ORDER BY handled_at DESC LIMIT 50`},
		{"timeline_events", `SELECT id, commitment_id, seq, type, ts FROM timeline_events ORDER BY id DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
