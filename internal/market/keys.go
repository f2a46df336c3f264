package market

import (
	"fmt"
	"strconv"
	"strings"
)

// Id prefixes.
const (
	ListingPrefix = "LST-"
	OfferPrefix   = "OFR-"
	DealPrefix    = "DEAL-"
	RulePrefix    = "RULE-"
)

// Key namespaces that are not entity ids.
const (
	RuleNamespace       = "rule:"
	RatingNamespace     = "rating:"
	ReputationNamespace = "reputation:"
	SeqNamespace        = "seq:"
	EntryNamespace      = "entry:"
	AppliedKey          = "meta:applied"
)

// Counter keys for each id kind.
const (
	ListingCounter = SeqNamespace + "listing"
	DealCounter    = SeqNamespace + "deal"
)

// FormatID renders a sequence number as PREFIX-###.
func FormatID(prefix string, n int64) string {
	return fmt.Sprintf("%s%03d", prefix, n)
}

// ParseSeq extracts the numeric part of an id like LST-007.
func ParseSeq(id, prefix string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ListingKey is the View key of a listing.
func ListingKey(id string) string { return id }

// OfferKey is the View key of an offer scoped to its listing.
func OfferKey(listingID, offerID string) string {
	return listingID + ":" + offerID
}

// OfferRange returns the [lo, hi) key range of all offers on a listing.
func OfferRange(listingID string) (string, string) {
	return PrefixRange(listingID + ":" + OfferPrefix)
}

// OfferCounter is the counter key for offers on a listing.
func OfferCounter(listingID string) string {
	return SeqNamespace + "offer:" + listingID
}

// DealKey is the View key of a deal.
func DealKey(id string) string { return id }

// RuleKey is the View key of a rule scoped to its owner.
func RuleKey(owner, id string) string {
	return RuleNamespace + owner + ":" + id
}

// RuleRange returns the key range of all rules owned by owner.
func RuleRange(owner string) (string, string) {
	return PrefixRange(RuleNamespace + owner + ":")
}

// RuleCounter is the counter key for rules of an owner.
func RuleCounter(owner string) string {
	return SeqNamespace + "rule:" + owner
}

// RatingKey is the View key of a rating.
func RatingKey(dealID, rater string) string {
	return RatingNamespace + dealID + ":" + rater
}

// ReputationKey is the View key of an address's reputation.
func ReputationKey(address string) string {
	return ReputationNamespace + address
}

// EntryKey is the View key of an applied entry receipt.
func EntryKey(entryID string) string {
	return EntryNamespace + entryID
}

// IsListingKey reports whether key names a listing rather than a nested offer.
func IsListingKey(key string) bool {
	return strings.HasPrefix(key, ListingPrefix) && !strings.Contains(key, ":")
}

// PrefixRange returns the [lo, hi) range covering every key with the prefix.
func PrefixRange(prefix string) (string, string) {
	return prefix, prefixEnd(prefix)
}

// prefixEnd returns the smallest key greater than every key with prefix,
// or "" (unbounded) when the prefix is all 0xff bytes.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
