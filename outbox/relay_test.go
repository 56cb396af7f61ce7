package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

type failingBeginner struct {
	err error
}

func (f *failingBeginner) Begin(context.Context) (pgx.Tx, error) {
	return nil, f.err
}

func TestDrainOnce_BeginFailure(t *testing.T) {
	cause := errors.New("connection refused")
	r := NewRelay(&failingBeginner{err: cause}, nil, time.Second, 10, 1)

	_, err := r.DrainOnce(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("expected the begin error to be wrapped, got %v", err)
	}
}

func TestRun_ReportsDrainErrors(t *testing.T) {
	cause := errors.New("connection refused")
	r := NewRelay(&failingBeginner{err: cause}, nil, 5*time.Millisecond, 10, 1)

	var (
		mu       sync.Mutex
		reported []error
	)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := r.Run(ctx, func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected Run to return the context error, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reported) == 0 {
		t.Fatalf("expected drain errors to reach the report callback")
	}
	if !errors.Is(reported[0], cause) {
		t.Errorf("expected the reported error to wrap the cause, got %v", reported[0])
	}
}
