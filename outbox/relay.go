package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

// Notifier delivers a staged message to the outside world.
type Notifier interface {
	Notify(ctx context.Context, topic string, payload []byte) error
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Message is one staged outbox row.
type Message struct {
	ID      string
	Topic   string
	Payload json.RawMessage
}

// Relay polls the outbox table and hands pending rows to the notifier.
// A batch is claimed with FOR UPDATE SKIP LOCKED inside a transaction, so
// concurrent relay instances never deliver the same row twice. Delivery is
// at-least-once: a crash between notify and commit replays the batch.
type Relay struct {
	pool      TxBeginner
	notifier  Notifier
	pollEvery time.Duration
	batchSize int
	workers   int
}

func NewRelay(pool TxBeginner, notifier Notifier, pollEvery time.Duration, batchSize, workers int) *Relay {
	if pollEvery <= 0 {
		pollEvery = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if workers <= 0 {
		workers = 1
	}
	return &Relay{
		pool:      pool,
		notifier:  notifier,
		pollEvery: pollEvery,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Run polls until the context is cancelled. Drain errors go to report so
// the caller can log them; rows stay pending and the next tick retries.
func (r *Relay) Run(ctx context.Context, report func(error)) error {
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.DrainOnce(ctx); err != nil && report != nil {
				report(err)
			}
		}
	}
}

// DrainOnce claims one batch, delivers it, and marks the delivered rows
// sent. It returns the number of rows delivered.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	msgs, err := claim(ctx, tx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	sentCh := make(chan string, len(msgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, m := range msgs {
		g.Go(func() error {
			if err := r.notifier.Notify(gctx, m.Topic, m.Payload); err != nil {
				return fmt.Errorf("outbox: notify %s: %w", m.Topic, err)
			}
			sentCh <- m.ID
			return nil
		})
	}
	notifyErr := g.Wait()
	close(sentCh)

	sent := make([]string, 0, len(msgs))
	for id := range sentCh {
		sent = append(sent, id)
	}

	if err := markSent(ctx, tx, sent); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("outbox: commit: %w", err)
	}
	return len(sent), notifyErr
}

func claim(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error) {
	const q = `
		SELECT id, topic, payload FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim batch: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.Topic, &m.Payload)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: scan batch: %w", err)
	}
	return msgs, nil
}

func markSent(ctx context.Context, tx pgx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `
		UPDATE outbox
		SET status = 'sent', sent_at = now(), attempts = attempts + 1
		WHERE id = ANY($1)`
	if _, err := tx.Exec(ctx, q, ids); err != nil {
		return fmt.Errorf("outbox: mark sent: %w", err)
	}
	return nil
}
