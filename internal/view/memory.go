package view

import (
	"context"
	"iter"
	"slices"
	"sync"
)

// Memory is an in-process View. Safe for one writer and many readers.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	keys   []string // sorted
	closed bool
}

// NewMemory returns an empty in-memory View.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements Reader.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Range implements Reader. The sequence is a snapshot taken on first pull.
func (m *Memory) Range(_ context.Context, lo, hi string) iter.Seq2[KV, error] {
	return func(yield func(KV, error) bool) {
		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			yield(KV{}, ErrClosed)
			return
		}
		snapshot := m.rangeLocked(lo, hi)
		m.mu.RUnlock()

		for _, kv := range snapshot {
			if !yield(kv, nil) {
				return
			}
		}
	}
}

func (m *Memory) rangeLocked(lo, hi string) []KV {
	start, _ := slices.BinarySearch(m.keys, lo)
	var out []KV
	for _, k := range m.keys[start:] {
		if hi != "" && k >= hi {
			break
		}
		out = append(out, KV{Key: k, Value: slices.Clone(m.data[k])})
	}
	return out
}

// Update implements Store. Puts are staged and applied under the write
// lock only when fn succeeds.
func (m *Memory) Update(ctx context.Context, fn func(Txn) error) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	tx := &memoryTxn{base: m, staged: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for k, v := range tx.staged {
		m.putLocked(k, v)
	}
	return nil
}

func (m *Memory) putLocked(key string, value []byte) {
	if _, ok := m.data[key]; !ok {
		i, _ := slices.BinarySearch(m.keys, key)
		m.keys = slices.Insert(m.keys, i, key)
	}
	m.data[key] = value
}

// Len returns the number of keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memoryTxn struct {
	base   *Memory
	staged map[string][]byte
}

func (t *memoryTxn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := t.staged[key]; ok {
		return slices.Clone(v), true, nil
	}
	return t.base.Get(ctx, key)
}

func (t *memoryTxn) Put(_ context.Context, key string, value []byte) error {
	t.staged[key] = slices.Clone(value)
	return nil
}

// Range merges the committed snapshot with staged puts.
func (t *memoryTxn) Range(ctx context.Context, lo, hi string) iter.Seq2[KV, error] {
	return func(yield func(KV, error) bool) {
		merged := make(map[string][]byte)
		for kv, err := range t.base.Range(ctx, lo, hi) {
			if err != nil {
				yield(KV{}, err)
				return
			}
			merged[kv.Key] = kv.Value
		}
		for k, v := range t.staged {
			if inRange(k, lo, hi) {
				merged[k] = v
			}
		}
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if !yield(KV{Key: k, Value: slices.Clone(merged[k])}, nil) {
				return
			}
		}
	}
}
