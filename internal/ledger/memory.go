package ledger

import (
	"context"
	"sync"
)

// Memory is an in-process log.
type Memory struct {
	mu      sync.RWMutex
	entries []Committed
	byID    map[string]int64
	closed  bool
	signal  signaller
}

// NewMemory returns an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int64)}
}

// Append implements Log.
func (m *Memory) Append(_ context.Context, rec Record) (Receipt, error) {
	if err := validate(rec); err != nil {
		return Receipt{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Receipt{}, ErrClosed
	}
	if seq, ok := m.byID[rec.ID]; ok {
		m.mu.Unlock()
		return Receipt{Seq: seq, ID: rec.ID, Duplicate: true}, nil
	}
	seq := int64(len(m.entries)) + 1
	m.entries = append(m.entries, Committed{Seq: seq, ID: rec.ID, Payload: rec.Payload})
	m.byID[rec.ID] = seq
	m.mu.Unlock()

	m.signal.notify()
	return Receipt{Seq: seq, ID: rec.ID}, nil
}

// Read implements Log.
func (m *Memory) Read(_ context.Context, after int64, limit int) ([]Committed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if after < 0 {
		after = 0
	}
	if after >= int64(len(m.entries)) {
		return []Committed{}, nil
	}
	end := int64(len(m.entries))
	if limit > 0 && after+int64(limit) < end {
		end = after + int64(limit)
	}
	out := make([]Committed, end-after)
	copy(out, m.entries[after:end])
	return out, nil
}

// Subscribe implements Log.
func (m *Memory) Subscribe() (<-chan struct{}, func()) {
	return m.signal.subscribe()
}

// Len returns the number of committed entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Log.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
