package market

import (
	"github.com/shopspring/decimal"
)

// ListingStatus is the lifecycle state of a Listing.
type ListingStatus string

const (
	ListingActive  ListingStatus = "active"
	ListingSold    ListingStatus = "sold"
	ListingRemoved ListingStatus = "removed"
)

// OfferStatus is the lifecycle state of an Offer.
// pending is the only non-terminal state.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferDeclined OfferStatus = "declined"
)

// Terminal reports whether no further transition is allowed.
func (s OfferStatus) Terminal() bool {
	return s == OfferAccepted || s == OfferDeclined
}

// RuleType selects an autonomous negotiation policy.
type RuleType string

const (
	RuleAutoBuy     RuleType = "auto_buy"
	RuleAutoAccept  RuleType = "auto_accept"
	RuleAutoCounter RuleType = "auto_counter"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleAutoBuy, RuleAutoAccept, RuleAutoCounter:
		return true
	}
	return false
}

// Listing is a seller's posted item. Never physically deleted.
type Listing struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Seller      string          `json:"seller"`
	Status      ListingStatus   `json:"status"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at,omitempty"`
	RemovedAt   int64           `json:"removed_at,omitempty"`
	SoldAt      int64           `json:"sold_at,omitempty"`
	DealID      string          `json:"deal_id,omitempty"`
}

// Active reports whether the listing still accepts offers.
func (l *Listing) Active() bool {
	return l.Status == ListingActive
}

// HistoryEntry records one amount proposed on an Offer.
type HistoryEntry struct {
	Amount decimal.Decimal `json:"amount"`
	By     string          `json:"by"`
	At     int64           `json:"at"`
}

// Offer is a buyer's proposed price against a Listing.
// A counter keeps the Offer pending with a new amount and history entry.
type Offer struct {
	ID         string          `json:"id"`
	ListingID  string          `json:"listing_id"`
	Buyer      string          `json:"buyer"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	Status     OfferStatus     `json:"status"`
	History    []HistoryEntry  `json:"history"`
	CreatedAt  int64           `json:"created_at"`
	AcceptedBy string          `json:"accepted_by,omitempty"`
	AcceptedAt int64           `json:"accepted_at,omitempty"`
	DeclinedBy string          `json:"declined_by,omitempty"`
	DeclinedAt int64           `json:"declined_at,omitempty"`
	DealID     string          `json:"deal_id,omitempty"`
}

// Key returns the View key of the offer.
func (o *Offer) Key() string {
	return OfferKey(o.ListingID, o.ID)
}

// LastMove returns the most recent history entry.
func (o *Offer) LastMove() (HistoryEntry, bool) {
	if len(o.History) == 0 {
		return HistoryEntry{}, false
	}
	return o.History[len(o.History)-1], true
}

// LastAmountBy returns the most recent amount proposed by who.
func (o *Offer) LastAmountBy(who string) (decimal.Decimal, bool) {
	for i := len(o.History) - 1; i >= 0; i-- {
		if o.History[i].By == who {
			return o.History[i].Amount, true
		}
	}
	return decimal.Zero, false
}

// Deal is the immutable record of an accepted Offer.
type Deal struct {
	ID         string          `json:"id"`
	ListingID  string          `json:"listing_id"`
	OfferID    string          `json:"offer_id"`
	Title      string          `json:"title,omitempty"`
	Buyer      string          `json:"buyer"`
	Seller     string          `json:"seller"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Currency   string          `json:"currency"`
	ClosedAt   int64           `json:"closed_at"`
}

// Party reports whether who is the buyer or seller of the deal.
func (d *Deal) Party(who string) bool {
	return who != "" && (who == d.Buyer || who == d.Seller)
}

// Counterparty returns the other side of the deal from who.
func (d *Deal) Counterparty(who string) string {
	if who == d.Buyer {
		return d.Seller
	}
	return d.Buyer
}

// Rule is a stored negotiation policy belonging to one identity.
// Only the fields for its Type are set. Deleted rules are retained.
type Rule struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	Type      RuleType         `json:"type"`
	Category  string           `json:"category,omitempty"`
	ListingID string           `json:"listing_id,omitempty"`
	Ceiling   *decimal.Decimal `json:"auto_buy_below,omitempty"`
	Floor     *decimal.Decimal `json:"auto_accept_above,omitempty"`
	Ratio     *decimal.Decimal `json:"auto_counter_ratio,omitempty"`
	CreatedAt int64            `json:"created_at"`
	Deleted   bool             `json:"deleted"`
	DeletedAt int64            `json:"deleted_at,omitempty"`
}

// Key returns the View key of the rule.
func (r *Rule) Key() string {
	return RuleKey(r.Owner, r.ID)
}

// Rating is one party's score for a closed deal.
type Rating struct {
	DealID  string `json:"deal_id"`
	Rater   string `json:"rater"`
	Ratee   string `json:"ratee"`
	Score   int64  `json:"score"`
	Comment string `json:"comment,omitempty"`
	At      int64  `json:"at"`
}

// Reputation is the running aggregate of ratings received by an address.
type Reputation struct {
	Address string          `json:"address"`
	Sum     int64           `json:"sum"`
	Count   int64           `json:"count"`
	Average decimal.Decimal `json:"average"`
}

// Add folds one score into the aggregate. The average is rounded to two
// places so every replica stores the same string.
func (r *Reputation) Add(score int64) {
	r.Sum += score
	r.Count++
	r.Average = decimal.NewFromInt(r.Sum).DivRound(decimal.NewFromInt(r.Count), 2)
}
