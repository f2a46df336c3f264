package contract

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haggle/internal/ir"
	"github.com/roach88/haggle/internal/ledger"
	"github.com/roach88/haggle/internal/market"
	"github.com/roach88/haggle/internal/view"
)

const baseTime = int64(1_700_000_000_000)

// world is one log and one replica over a View.
type world struct {
	t       *testing.T
	log     ledger.Log
	store   view.Store
	replica *Replica
	nonce   int
	at      int64
}

func newWorld(t *testing.T) *world {
	return newWorldWith(t, ledger.NewMemory(), view.NewMemory())
}

func newWorldWith(t *testing.T, log ledger.Log, store view.Store) *world {
	return &world{t: t, log: log, store: store, replica: NewReplica(log, store), at: baseTime}
}

// appendEntry commits an entry without applying it.
func (w *world) appendEntry(who string, e Entry) string {
	w.t.Helper()
	w.nonce++
	w.at += 1000
	payload, err := Encode(Envelope{Submitter: who, At: w.at, Nonce: fmt.Sprintf("n-%d", w.nonce), Entry: e})
	require.NoError(w.t, err)
	return w.appendPayload(payload)
}

func (w *world) appendPayload(payload ir.Object) string {
	w.t.Helper()
	rec, err := ledger.NewRecord(payload)
	require.NoError(w.t, err)
	_, err = w.log.Append(context.Background(), rec)
	require.NoError(w.t, err)
	return rec.ID
}

// submit commits an entry and applies everything pending.
func (w *world) submit(who string, e Entry) Receipt {
	w.t.Helper()
	id := w.appendEntry(who, e)
	w.sync()
	return w.receipt(id)
}

func (w *world) sync() {
	w.t.Helper()
	_, err := w.replica.Sync(context.Background())
	require.NoError(w.t, err)
}

func (w *world) receipt(id string) Receipt {
	w.t.Helper()
	rc, ok, err := ReadReceipt(context.Background(), w.store, id)
	require.NoError(w.t, err)
	require.True(w.t, ok, "no receipt for %s", id)
	return rc
}

func (w *world) listing(id string) market.Listing {
	w.t.Helper()
	var l market.Listing
	ok, err := view.GetJSON(context.Background(), w.store, market.ListingKey(id), &l)
	require.NoError(w.t, err)
	require.True(w.t, ok, "listing %s missing", id)
	return l
}

func (w *world) offer(listingID, offerID string) market.Offer {
	w.t.Helper()
	var o market.Offer
	ok, err := view.GetJSON(context.Background(), w.store, market.OfferKey(listingID, offerID), &o)
	require.NoError(w.t, err)
	require.True(w.t, ok, "offer %s:%s missing", listingID, offerID)
	return o
}

func (w *world) deal(id string) market.Deal {
	w.t.Helper()
	var d market.Deal
	ok, err := view.GetJSON(context.Background(), w.store, market.DealKey(id), &d)
	require.NoError(w.t, err)
	require.True(w.t, ok, "deal %s missing", id)
	return d
}

func (w *world) counter(key string) int64 {
	w.t.Helper()
	n, err := readCounter(context.Background(), w.store, key)
	require.NoError(w.t, err)
	return n
}

func getJSON(w *world, key string, v any) (bool, error) {
	return view.GetJSON(context.Background(), w.store, key, v)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func post(title, price string) ListingPost {
	return ListingPost{Title: title, Price: dec(price), Currency: "USD", Category: "electronics"}
}
