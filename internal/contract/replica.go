package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/haggle/internal/ledger"
	"github.com/roach88/haggle/internal/view"
)

// Defaults for Replica.
const (
	DefaultBatchSize    = 256
	DefaultPollInterval = 500 * time.Millisecond
)

// Replica is the single writer of one View. It reads the log from the
// committed cursor and applies every entry in its own transaction.
//
// Thread-safety: Sync and Run may be called from any goroutine; they are
// serialized internally so entries are never applied concurrently.
type Replica struct {
	log      ledger.Log
	store    view.Store
	batch    int
	poll     time.Duration
	observer func(Receipt)

	mu sync.Mutex
}

// ReplicaOption configures a Replica.
type ReplicaOption func(*Replica)

// WithBatchSize sets how many log entries are read per round trip.
func WithBatchSize(n int) ReplicaOption {
	return func(r *Replica) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithPollInterval sets the fallback poll period used by Run for log
// writers that do not signal this handle.
func WithPollInterval(d time.Duration) ReplicaOption {
	return func(r *Replica) {
		if d > 0 {
			r.poll = d
		}
	}
}

// WithObserver registers fn to be called after each committed apply.
func WithObserver(fn func(Receipt)) ReplicaOption {
	return func(r *Replica) {
		r.observer = fn
	}
}

// NewReplica binds a log to the View it maintains.
func NewReplica(log ledger.Log, store view.Store, opts ...ReplicaOption) *Replica {
	r := &Replica{
		log:   log,
		store: store,
		batch: DefaultBatchSize,
		poll:  DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Applied returns the seq of the last entry applied to the View.
func (r *Replica) Applied(ctx context.Context) (int64, error) {
	return ReadCursor(ctx, r.store)
}

// Sync applies every committed entry past the cursor and returns how many
// were consumed. On a View error it stops without advancing past the
// failing entry, so the next call retries it.
func (r *Replica) Sync(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cursor, err := ReadCursor(ctx, r.store)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}

	total := 0
	for {
		entries, err := r.log.Read(ctx, cursor, r.batch)
		if err != nil {
			return total, fmt.Errorf("read log after %d: %w", cursor, err)
		}
		if len(entries) == 0 {
			return total, nil
		}
		for _, c := range entries {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if err := r.applyOne(ctx, c); err != nil {
				return total, err
			}
			cursor = c.Seq
			total++
		}
	}
}

func (r *Replica) applyOne(ctx context.Context, c ledger.Committed) error {
	var rc Receipt
	err := r.store.Update(ctx, func(tx view.Txn) error {
		var err error
		rc, err = Apply(ctx, tx, c)
		return err
	})
	if errors.Is(err, ErrPanic) {
		slog.Error("entry handler panicked, skipping", "seq", c.Seq, "id", c.ID, "error", err)
		reason := err.Error()
		err = r.store.Update(ctx, func(tx view.Txn) error {
			var err error
			rc, err = Skip(ctx, tx, c, reason)
			return err
		})
	}
	if err != nil {
		return fmt.Errorf("apply seq %d: %w", c.Seq, err)
	}

	slog.Debug("entry applied",
		"seq", rc.Seq,
		"op", rc.Op,
		"submitter", rc.Submitter,
		"applied", rc.Applied,
		"key", rc.Key,
		"reason", rc.Reason,
	)
	if r.observer != nil {
		r.observer(rc)
	}
	return nil
}

// Run keeps the View caught up with the log until ctx is cancelled.
// It wakes on the log's append signal and on a poll ticker.
//
// ERROR HANDLING: a failed Sync is logged and retried on the next wake.
// The cursor never moves past an entry that was not committed.
func (r *Replica) Run(ctx context.Context) error {
	slog.Info("replica starting")

	signal, cancel := r.log.Subscribe()
	defer cancel()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		if n, err := r.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				slog.Info("replica stopping: context cancelled")
				return ctx.Err()
			}
			slog.Error("replica sync failed", "applied", n, "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("replica stopping: context cancelled")
			return ctx.Err()
		case _, ok := <-signal:
			if !ok {
				slog.Info("replica stopping: log closed")
				return nil
			}
		case <-ticker.C:
		}
	}
}
