package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buses() map[string]func(t *testing.T) Bus {
	return map[string]func(t *testing.T) Bus{
		"memory": func(t *testing.T) Bus {
			b := NewMemory()
			t.Cleanup(func() { b.Close() })
			return b
		},
		"redis": func(t *testing.T) Bus {
			s := miniredis.RunT(t)
			b := NewRedis(goredis.NewClient(&goredis.Options{Addr: s.Addr()}), "haggle:")
			t.Cleanup(func() { b.Close() })
			return b
		},
	}
}

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
		return nil
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	for name, newBus := range buses() {
		t.Run(name, func(t *testing.T) {
			b := newBus(t)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			public, err := b.Subscribe(ctx, PublicChannel)
			require.NoError(t, err)
			listing, err := b.Subscribe(ctx, ListingChannel("LST-001"))
			require.NoError(t, err)

			posted := ListingPosted{
				Header:   Header{EntryID: "e1", From: "alice", At: 1000},
				Title:    "Keyboard",
				Price:    decimal.RequireFromString("120"),
				Currency: "USD",
				Category: "electronics",
			}
			require.NoError(t, b.Publish(ctx, PublicChannel, posted))

			sent := OfferSent{
				Header:    Header{EntryID: "e2", From: "bob", At: 2000},
				ListingID: "LST-001",
				Amount:    decimal.RequireFromString("90"),
			}
			require.NoError(t, b.Publish(ctx, ListingChannel("LST-001"), sent))

			got := receive(t, public)
			require.Equal(t, KindListingPost, got.Kind())
			gp := got.(ListingPosted)
			assert.Equal(t, "e1", gp.Head().EntryID)
			assert.Equal(t, "Keyboard", gp.Title)
			assert.True(t, gp.Price.Equal(posted.Price))

			got = receive(t, listing)
			require.Equal(t, KindOfferSent, got.Kind())
			assert.Equal(t, "bob", got.Head().From)
			assert.True(t, got.(OfferSent).Amount.Equal(sent.Amount))

			// Channels are isolated.
			select {
			case n := <-public:
				t.Fatalf("unexpected notification on public channel: %v", n.Kind())
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestBus_SubscriptionEndsWithContext(t *testing.T) {
	for name, newBus := range buses() {
		t.Run(name, func(t *testing.T) {
			b := newBus(t)
			ctx, cancel := context.WithCancel(context.Background())
			ch, err := b.Subscribe(ctx, PublicChannel)
			require.NoError(t, err)

			cancel()
			select {
			case _, ok := <-ch:
				assert.False(t, ok)
			case <-time.After(5 * time.Second):
				t.Fatal("subscription not closed after cancel")
			}
		})
	}
}

func TestMemory_DropsForSlowSubscriber(t *testing.T) {
	b := NewMemory()
	b.buffer = 1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, PublicChannel)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, PublicChannel, ListingRemoved{ListingID: "LST-001"}))
	}
	assert.Len(t, ch, 1)
	assert.Equal(t, 1, b.Subscribers(PublicChannel))
}

func TestMemory_Closed(t *testing.T) {
	b := NewMemory()
	ch, err := b.Subscribe(context.Background(), PublicChannel)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.ErrorIs(t, b.Publish(context.Background(), PublicChannel, DealClosed{}), ErrClosed)
	_, err = b.Subscribe(context.Background(), PublicChannel)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUnmarshal_Variants(t *testing.T) {
	desc := "refurbished"
	for _, n := range []Notification{
		ListingUpdated{Header: Header{EntryID: "e"}, ListingID: "LST-001", Description: &desc},
		OfferCountered{ListingID: "LST-001", OfferID: "OFR-001", Amount: decimal.RequireFromString("105")},
		OfferAccepted{ListingID: "LST-001", OfferID: "OFR-001"},
		OfferDeclined{ListingID: "LST-001", OfferID: "OFR-002"},
		DealClosed{ListingID: "LST-001", OfferID: "OFR-001"},
	} {
		data, err := Marshal(n)
		require.NoError(t, err)
		back, err := Unmarshal(data)
		require.NoError(t, err)
		assert.Equal(t, n.Kind(), back.Kind())
	}

	_, err := Unmarshal([]byte(`{"kind":"TELEPORT","body":{}}`))
	assert.ErrorContains(t, err, "unknown kind")
	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}
