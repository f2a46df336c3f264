package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haggle/internal/ir"
	"github.com/roach88/haggle/internal/market"
)

func TestEncodeDecode_PreservesEntry(t *testing.T) {
	price := dec("12.50")
	desc := "new"
	entries := []Entry{
		ListingPost{Title: "Lamp", Price: dec("100"), Currency: "USD", Category: "home", Tags: []string{"a", "b"}},
		ListingUpdate{ListingID: "LST-001", Price: &price, Description: &desc},
		ListingUpdate{ListingID: "LST-001"},
		OfferAccept{ListingID: "LST-001", OfferID: "OFR-002", Seller: "alice"},
		RuleSet{Type: market.RuleAutoCounter, ListingID: "LST-001", Threshold: dec("0.9")},
		RatingSubmit{DealID: "DEAL-001", Score: 4, Comment: "ok"},
	}
	for _, e := range entries {
		t.Run(string(e.Op()), func(t *testing.T) {
			obj, err := Encode(Envelope{Submitter: "alice", At: 42, Nonce: "n", Entry: e})
			require.NoError(t, err)

			// Round trip through canonical JSON, as the log stores it.
			data, err := ir.MarshalCanonical(obj)
			require.NoError(t, err)
			var back ir.Object
			require.NoError(t, back.UnmarshalJSON(data))

			env, err := Decode(back)
			require.NoError(t, err)
			assert.Equal(t, "alice", env.Submitter)
			assert.Equal(t, int64(42), env.At)
			assert.Equal(t, e.Op(), env.Entry.Op())
			assert.Equal(t, obj["body"], mustEncode(Encode(env))["body"])
		})
	}
}

func mustEncode(obj ir.Object, err error) ir.Object {
	if err != nil {
		panic(err)
	}
	return obj
}

func TestDecode_Malformed(t *testing.T) {
	envelope := func(op string, body ir.Object) ir.Object {
		return ir.Object{
			"v":         ir.String(ir.EntryVersion),
			"op":        ir.String(op),
			"submitter": ir.String("bob"),
			"at":        ir.Int(1),
			"nonce":     ir.String("n"),
			"body":      body,
		}
	}

	tests := []struct {
		name string
		obj  ir.Object
		want string
	}{
		{"unknown op", envelope("teleport", ir.Object{}), "unknown op"},
		{"missing body", ir.Object{"v": ir.String("1"), "op": ir.String("offer_send"), "submitter": ir.String("bob"), "at": ir.Int(1)}, "missing body"},
		{"missing submitter", ir.Object{"v": ir.String("1"), "op": ir.String("offer_send"), "at": ir.Int(1), "body": ir.Object{}}, "missing submitter"},
		{"missing timestamp", ir.Object{"v": ir.String("1"), "op": ir.String("offer_send"), "submitter": ir.String("bob"), "body": ir.Object{}}, "missing timestamp"},
		{"wrong version", ir.Object{"v": ir.String("9"), "submitter": ir.String("bob")}, "unsupported version"},
		{"non-numeric amount", envelope("offer_send", ir.Object{"listing_id": ir.String("LST-001"), "amount": ir.String("lots")}), "amount"},
		{"negative amount", envelope("offer_send", ir.Object{"listing_id": ir.String("LST-001"), "amount": ir.String("-1")}), "negative"},
		{"empty title", envelope("listing_post", ir.Object{"title": ir.String(" "), "price": ir.String("1")}), "empty title"},
		{"rule type", envelope("rule_set", ir.Object{"type": ir.String("auto_steal"), "threshold": ir.String("1")}), "unknown type"},
		{"rule listing", envelope("rule_set", ir.Object{"type": ir.String("auto_accept"), "threshold": ir.String("1")}), "requires listing_id"},
		{"score range", envelope("rating_submit", ir.Object{"deal_id": ir.String("DEAL-001"), "score": ir.Int(9)}), "score"},
		{"accept ids", envelope("offer_accept", ir.Object{"listing_id": ir.String("LST-001")}), "missing listing_id or offer_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.obj)
			require.ErrorIs(t, err, ErrMalformed)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEncode_RequiresSubmitter(t *testing.T) {
	_, err := Encode(Envelope{Entry: ListingRemove{ListingID: "LST-001"}})
	assert.Error(t, err)
	_, err = Encode(Envelope{Submitter: "bob"})
	assert.Error(t, err)
}
