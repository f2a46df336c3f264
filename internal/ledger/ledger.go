package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/haggle/internal/ir"
)

// ErrClosed is returned by operations on a closed log.
var ErrClosed = errors.New("ledger: log closed")

// Record is an entry submitted for commit.
type Record struct {
	ID      string
	Payload ir.Object
}

// NewRecord computes the content-addressed id of payload.
func NewRecord(payload ir.Object) (Record, error) {
	id, err := ir.EntryID(payload)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, Payload: payload}, nil
}

// Committed is an entry with its position in the total order.
type Committed struct {
	Seq     int64
	ID      string
	Payload ir.Object
}

// Receipt confirms durable submission.
type Receipt struct {
	Seq       int64
	ID        string
	Duplicate bool // the id was already committed
}

// Log is the append-only log shared by every replica.
type Log interface {
	// Append durably commits rec. It does not wait for any replica to apply it.
	Append(ctx context.Context, rec Record) (Receipt, error)

	// Read returns up to limit entries with seq > after, ascending.
	Read(ctx context.Context, after int64, limit int) ([]Committed, error)

	// Subscribe returns a channel signalled after appends made through this
	// handle, and a cancel func. Signals coalesce; readers must Read to learn
	// what changed.
	Subscribe() (<-chan struct{}, func())

	Close() error
}

func validate(rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("append: record id required")
	}
	if rec.Payload == nil {
		return fmt.Errorf("append: record payload required")
	}
	return nil
}

// signaller fans a coalesced wake-up out to subscribers.
type signaller struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

func (s *signaller) subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]chan struct{})
	}
	id := s.next
	s.next++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *signaller) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		// Non-blocking - buffer of 1 coalesces multiple signals
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
