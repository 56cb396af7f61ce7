package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"tutorflow/commitment"
)

// Pool is the shared set of commitment ids the actors contend over.
// Creators append, everyone else picks randomly.
type Pool struct {
	mu  sync.Mutex
	ids []string
}

func NewPool(ids ...string) *Pool {
	return &Pool{ids: ids}
}

func (p *Pool) Add(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
}

func (p *Pool) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ids) == 0 {
		return ""
	}
	return p.ids[rand.Intn(len(p.ids))]
}

// Identities carries the seeded actors every goroutine impersonates.
type Identities struct {
	Student commitment.Actor
	Tutor   commitment.Actor
	AdminID string
}

// expected reports whether the error is a legitimate protocol refusal
// under contention rather than a harness failure.
func expected(err error) bool {
	return errors.Is(err, commitment.ErrInvalidState) ||
		errors.Is(err, commitment.ErrConflict) ||
		errors.Is(err, commitment.ErrValidation) ||
		errors.Is(err, commitment.ErrNotFound)
}

func pause(base, jitter int) {
	time.Sleep(time.Duration(base+rand.Intn(jitter)) * time.Millisecond)
}

// Creator opens fresh commitments so terminal ones do not starve the run.
func Creator(ctx context.Context, svc *commitment.Service, pool *Pool, ids Identities, requestID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		rec, err := svc.Create(ctx, ids.Tutor, commitment.CreateParams{
			RequestID:      requestID,
			StudentPartyID: ids.Student.PartyID,
			TutorPartyID:   ids.Tutor.PartyID,
			TotalAmount:    100,
			TotalSessions:  2 + rand.Intn(6),
		})
		if err != nil {
			if !expected(err) && ctx.Err() == nil {
				return fmt.Errorf("creator: %w", err)
			}
		} else {
			pool.Add(rec.ID)
		}
		pause(200, 300)
	}
}

// Payer records partial and full payments against random commitments.
func Payer(ctx context.Context, svc *commitment.Service, pool *Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if id := pool.Pick(); id != "" {
			amount := int64(25 * (1 + rand.Intn(4)))
			if _, err := svc.RecordPayment(ctx, id, amount); err != nil && !expected(err) && ctx.Err() == nil {
				return fmt.Errorf("payer: %w", err)
			}
		}
		pause(10, 30)
	}
}

// SessionReporter advances session progress on active commitments.
func SessionReporter(ctx context.Context, svc *commitment.Service, pool *Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if id := pool.Pick(); id != "" {
			if _, err := svc.RecordSessionCompleted(ctx, id); err != nil && !expected(err) && ctx.Err() == nil {
				return fmt.Errorf("session reporter: %w", err)
			}
		}
		pause(15, 35)
	}
}

// Canceller opens cancellation decisions from either side.
func Canceller(ctx context.Context, svc *commitment.Service, pool *Pool, ids Identities, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if id := pool.Pick(); id != "" {
			actor := ids.Student
			if rand.Intn(2) == 0 {
				actor = ids.Tutor
			}
			_, err := svc.RequestCancellation(ctx, id, actor, "stress cancellation", "https://evidence.example/stress")
			if err != nil && !expected(err) && ctx.Err() == nil {
				return fmt.Errorf("canceller: %w", err)
			}
		}
		pause(30, 60)
	}
}

// Responder answers open cancellations as the counterpart, randomly
// accepting or rejecting.
func Responder(ctx context.Context, svc *commitment.Service, pool *Pool, ids Identities, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		id := pool.Pick()
		if id == "" {
			pause(20, 40)
			continue
		}
		rec, err := svc.Get(ctx, id)
		if err != nil {
			if !expected(err) && ctx.Err() == nil {
				return fmt.Errorf("responder get: %w", err)
			}
			pause(20, 40)
			continue
		}
		if rec.Status == commitment.StatusCancellationPending && rec.CancellationDecision != nil {
			actor := ids.Student
			if rec.CancellationDecision.RequestedBy == commitment.RoleStudent {
				actor = ids.Tutor
			}
			accept := rand.Intn(2) == 0
			_, err := svc.RespondToCancellation(ctx, id, actor, accept, "stress response", "https://evidence.example/response")
			if err != nil && !expected(err) && ctx.Err() == nil {
				return fmt.Errorf("responder: %w", err)
			}
		}
		pause(20, 40)
	}
}

// Admin resolves disputes and closes stuck cancellations.
func Admin(ctx context.Context, svc *commitment.Service, pool *Pool, ids Identities, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if id := pool.Pick(); id != "" {
			approve := rand.Intn(2) == 0
			var err error
			if rand.Intn(2) == 0 {
				_, err = svc.ResolveDispute(ctx, id, ids.AdminID, approve, "stress resolution")
			} else {
				_, err = svc.CloseCancellation(ctx, id, ids.AdminID, approve, "stress close")
			}
			if err != nil && !expected(err) && ctx.Err() == nil {
				return fmt.Errorf("admin: %w", err)
			}
		}
		pause(40, 80)
	}
}
