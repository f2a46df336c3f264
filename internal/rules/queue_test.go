package rules

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haggle/internal/notify"
)

func posted(entryID string) notify.Notification {
	return notify.ListingPosted{Header: notify.Header{EntryID: entryID, From: "alice"}}
}

func TestInbox_FIFO(t *testing.T) {
	q := newInbox()

	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(posted(id)))
	}

	for _, want := range []string{"A", "B", "C"} {
		n, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, n.Head().EntryID)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty inbox should return false")
}

func TestInbox_WaitSignals(t *testing.T) {
	q := newInbox()

	q.Enqueue(posted("A"))
	q.Enqueue(posted("B"))

	select {
	case <-q.Wait():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no signal after enqueue")
	}

	// Signals coalesce: one wake for two items.
	select {
	case <-q.Wait():
		t.Fatal("second signal should have coalesced")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestInbox_Close(t *testing.T) {
	q := newInbox()
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(posted("late")), "enqueue after close should return false")

	select {
	case _, ok := <-q.Wait():
		assert.False(t, ok, "wait channel should be closed")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("close did not wake waiter")
	}
}

func TestInbox_Len(t *testing.T) {
	q := newInbox()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(posted("1"))
	q.Enqueue(posted("2"))
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
	q.TryDequeue()
	assert.Equal(t, 0, q.Len())
}

func TestInbox_ThreadSafe(t *testing.T) {
	q := newInbox()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				q.Enqueue(posted(fmt.Sprintf("%d-%d", p, i)))
			}
		}()
	}

	seen := make(map[string]bool)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(seen) < producers*perProducer {
			n, ok := q.TryDequeue()
			if !ok {
				time.Sleep(time.Millisecond)
				continue
			}
			seen[n.Head().EntryID] = true
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer timeout")
	}
	assert.Len(t, seen, producers*perProducer)
}
