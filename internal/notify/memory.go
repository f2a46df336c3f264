package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Memory is an in-process Bus. A subscriber that falls behind by more than
// its buffer loses notifications.
type Memory struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan Notification
	next   int
	buffer int
	closed bool
	done   chan struct{}
}

// NewMemory returns an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]chan Notification), buffer: DefaultBuffer, done: make(chan struct{})}
}

// Publish implements Bus.
func (m *Memory) Publish(_ context.Context, channel string, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, ch := range m.subs[channel] {
		select {
		case ch <- n:
		default:
			slog.Warn("dropping notification for slow subscriber",
				"channel", channel, "kind", n.Kind(), "entry", n.Head().EntryID)
		}
	}
	return nil
}

// Subscribe implements Bus.
func (m *Memory) Subscribe(ctx context.Context, channel string) (<-chan Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	id := m.next
	m.next++
	ch := make(chan Notification, m.buffer)
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[int]chan Notification)
	}
	m.subs[channel][id] = ch

	go func() {
		select {
		case <-ctx.Done():
		case <-m.done:
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[channel][id]; ok {
			delete(m.subs[channel], id)
			close(ch)
		}
	}()
	return ch, nil
}

// Subscribers returns the number of live subscriptions on channel.
func (m *Memory) Subscribers(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channel])
}

// Close implements Bus. Every subscription channel is closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	for _, subs := range m.subs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
	}
	return nil
}
