package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatAndParseID(t *testing.T) {
	assert.Equal(t, "LST-001", FormatID(ListingPrefix, 1))
	assert.Equal(t, "DEAL-042", FormatID(DealPrefix, 42))
	assert.Equal(t, "RULE-1234", FormatID(RulePrefix, 1234))

	n, ok := ParseSeq("LST-007", ListingPrefix)
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	_, ok = ParseSeq("DEAL-007", ListingPrefix)
	assert.False(t, ok)
	_, ok = ParseSeq("LST-", ListingPrefix)
	assert.False(t, ok)
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "LST-001:OFR-002", OfferKey("LST-001", "OFR-002"))
	assert.Equal(t, "rule:alice:RULE-001", RuleKey("alice", "RULE-001"))
	assert.Equal(t, "rating:DEAL-001:bob", RatingKey("DEAL-001", "bob"))
	assert.Equal(t, "reputation:bob", ReputationKey("bob"))
	assert.True(t, IsListingKey("LST-001"))
	assert.False(t, IsListingKey("LST-001:OFR-001"))
	assert.False(t, IsListingKey("DEAL-001"))
}

func TestPrefixRange(t *testing.T) {
	lo, hi := OfferRange("LST-001")
	assert.Equal(t, "LST-001:OFR-", lo)
	assert.Equal(t, "LST-001:OFR.", hi)
	assert.True(t, "LST-001:OFR-999" < hi)

	lo, hi = RuleRange("alice")
	assert.Equal(t, "rule:alice:", lo)
	assert.Equal(t, "rule:alice;", hi)

	_, hi = PrefixRange("\xff\xff")
	assert.Equal(t, "", hi)
}

func TestOfferHistoryHelpers(t *testing.T) {
	o := Offer{
		Buyer: "bob",
		History: []HistoryEntry{
			{Amount: decimal.NewFromInt(90), By: "bob", At: 1},
			{Amount: decimal.NewFromInt(105), By: "sam", At: 2},
		},
	}
	last, ok := o.LastMove()
	assert.True(t, ok)
	assert.Equal(t, "sam", last.By)

	amt, ok := o.LastAmountBy("bob")
	assert.True(t, ok)
	assert.True(t, amt.Equal(decimal.NewFromInt(90)))

	_, ok = o.LastAmountBy("carol")
	assert.False(t, ok)
}

func TestReputationAdd(t *testing.T) {
	var r Reputation
	r.Add(5)
	r.Add(4)
	r.Add(4)
	assert.Equal(t, int64(13), r.Sum)
	assert.Equal(t, int64(3), r.Count)
	assert.Equal(t, "4.33", r.Average.String())
}

func TestOfferStatusTerminal(t *testing.T) {
	assert.False(t, OfferPending.Terminal())
	assert.True(t, OfferAccepted.Terminal())
	assert.True(t, OfferDeclined.Terminal())
}
