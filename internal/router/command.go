package router

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Op names a command.
type Op string

const (
	OpListingPost   Op = "listing_post"
	OpListingUpdate Op = "listing_update"
	OpListingRemove Op = "listing_remove"
	OpListingList   Op = "listing_list"
	OpListingGet    Op = "listing_get"
	OpOfferSend     Op = "offer_send"
	OpOfferCounter  Op = "offer_counter"
	OpOfferAccept   Op = "offer_accept"
	OpOfferDecline  Op = "offer_decline"
	OpOfferList     Op = "offer_list"
	OpDealList      Op = "deal_list"
	OpDealGet       Op = "deal_get"
	OpRuleSet       Op = "rule_set"
	OpRuleList      Op = "rule_list"
	OpRuleDelete    Op = "rule_delete"
	OpRatingSubmit  Op = "rating_submit"
	OpReputationGet Op = "reputation_get"
	OpEntryGet      Op = "entry_get"
)

// Command is the closed set of requests the router accepts.
type Command interface {
	Op() Op
}

// Number is a JSON number or numeric string, kept verbatim until validated.
type Number struct {
	raw string
	set bool
}

// Num builds a Number from its decimal text.
func Num(s string) Number { return Number{raw: s, set: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	n.set = true
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		n.raw = strings.TrimSpace(s)
		return nil
	}
	n.raw = string(b)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.set {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(n.raw)), nil
}

// Present reports whether the field was supplied.
func (n Number) Present() bool { return n.set }

// decimal parses n as a non-negative amount.
func (n Number) decimal(field string) (decimal.Decimal, error) {
	if !n.set || n.raw == "" || n.raw == "null" {
		return decimal.Zero, invalid(ErrMissingField, field, "required")
	}
	d, err := decimal.NewFromString(n.raw)
	if err != nil {
		return decimal.Zero, invalid(ErrNotNumeric, field, "%q is not a number", n.raw)
	}
	if d.IsNegative() {
		return decimal.Zero, invalid(ErrNegative, field, "must be >= 0")
	}
	return d, nil
}

type ListingPost struct {
	Title    string   `json:"title"`
	Desc     string   `json:"desc,omitempty"`
	Price    Number   `json:"price"`
	Currency string   `json:"currency,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type ListingUpdate struct {
	ID    string  `json:"id"`
	Price Number  `json:"price,omitzero"`
	Desc  *string `json:"desc,omitempty"`
}

type ListingRemove struct {
	ID string `json:"id"`
}

type ListingList struct {
	Limit    int    `json:"limit,omitempty"`
	Category string `json:"category,omitempty"`
	MaxPrice Number `json:"max_price,omitzero"`
	Mine     bool   `json:"mine,omitempty"`
}

type ListingGet struct {
	ID string `json:"id"`
}

type OfferSend struct {
	ListingID string `json:"listing_id"`
	Amount    Number `json:"amount"`
	Note      string `json:"note,omitempty"`
}

type OfferCounter struct {
	ListingID string `json:"listing_id"`
	OfferID   string `json:"offer_id"`
	Amount    Number `json:"amount"`
}

type OfferAccept struct {
	ListingID string `json:"listing_id"`
	OfferID   string `json:"offer_id"`
}

type OfferDecline struct {
	ListingID string `json:"listing_id"`
	OfferID   string `json:"offer_id"`
}

type OfferList struct {
	ListingID string `json:"listing_id"`
}

type DealList struct {
	Limit int  `json:"limit,omitempty"`
	Mine  bool `json:"mine,omitempty"`
}

type DealGet struct {
	ID string `json:"id"`
}

// RuleSet carries exactly one of three parameter shapes:
// category? + auto_buy_below, listing_id + auto_accept_above, or
// listing_id + auto_counter_ratio.
type RuleSet struct {
	Category         string `json:"category,omitempty"`
	ListingID        string `json:"listing_id,omitempty"`
	AutoBuyBelow     Number `json:"auto_buy_below,omitzero"`
	AutoAcceptAbove  Number `json:"auto_accept_above,omitzero"`
	AutoCounterRatio Number `json:"auto_counter_ratio,omitzero"`
}

type RuleList struct{}

type RuleDelete struct {
	RuleID string `json:"rule_id"`
}

type RatingSubmit struct {
	DealID  string `json:"deal_id"`
	Score   int64  `json:"score"`
	Comment string `json:"comment,omitempty"`
}

type ReputationGet struct {
	Address string `json:"address,omitempty"`
}

type EntryGet struct {
	EntryID string `json:"entry_id"`
}

func (ListingPost) Op() Op   { return OpListingPost }
func (ListingUpdate) Op() Op { return OpListingUpdate }
func (ListingRemove) Op() Op { return OpListingRemove }
func (ListingList) Op() Op   { return OpListingList }
func (ListingGet) Op() Op    { return OpListingGet }
func (OfferSend) Op() Op     { return OpOfferSend }
func (OfferCounter) Op() Op  { return OpOfferCounter }
func (OfferAccept) Op() Op   { return OpOfferAccept }
func (OfferDecline) Op() Op  { return OpOfferDecline }
func (OfferList) Op() Op     { return OpOfferList }
func (DealList) Op() Op      { return OpDealList }
func (DealGet) Op() Op       { return OpDealGet }
func (RuleSet) Op() Op       { return OpRuleSet }
func (RuleList) Op() Op      { return OpRuleList }
func (RuleDelete) Op() Op    { return OpRuleDelete }
func (RatingSubmit) Op() Op  { return OpRatingSubmit }
func (ReputationGet) Op() Op { return OpReputationGet }
func (EntryGet) Op() Op      { return OpEntryGet }

// Decode parses a JSON command of the form {"op": "...", ...fields}.
// Unknown fields are rejected.
func Decode(raw []byte) (Command, error) {
	var head struct {
		Op Op `json:"op"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, invalid(ErrBadCommand, "", "invalid JSON: %v", err)
	}
	if head.Op == "" {
		return nil, invalid(ErrMissingField, "op", "required")
	}

	switch head.Op {
	case OpListingPost:
		return decodeAs[ListingPost](raw)
	case OpListingUpdate:
		return decodeAs[ListingUpdate](raw)
	case OpListingRemove:
		return decodeAs[ListingRemove](raw)
	case OpListingList:
		return decodeAs[ListingList](raw)
	case OpListingGet:
		return decodeAs[ListingGet](raw)
	case OpOfferSend:
		return decodeAs[OfferSend](raw)
	case OpOfferCounter:
		return decodeAs[OfferCounter](raw)
	case OpOfferAccept:
		return decodeAs[OfferAccept](raw)
	case OpOfferDecline:
		return decodeAs[OfferDecline](raw)
	case OpOfferList:
		return decodeAs[OfferList](raw)
	case OpDealList:
		return decodeAs[DealList](raw)
	case OpDealGet:
		return decodeAs[DealGet](raw)
	case OpRuleSet:
		return decodeAs[RuleSet](raw)
	case OpRuleList:
		return decodeAs[RuleList](raw)
	case OpRuleDelete:
		return decodeAs[RuleDelete](raw)
	case OpRatingSubmit:
		return decodeAs[RatingSubmit](raw)
	case OpReputationGet:
		return decodeAs[ReputationGet](raw)
	case OpEntryGet:
		return decodeAs[EntryGet](raw)
	default:
		return nil, invalid(ErrBadCommand, "op", "unknown op %q", head.Op)
	}
}

func decodeAs[T Command](raw []byte) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, invalid(ErrBadCommand, "", "invalid JSON: %v", err)
	}
	delete(fields, "op")
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, invalid(ErrBadCommand, "", "invalid JSON: %v", err)
	}

	var v T
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, invalid(ErrBadCommand, "", "%s: %v", v.Op(), err)
	}
	return v, nil
}

// Encode renders a command as JSON including its op.
func Encode(c Command) ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	op, _ := json.Marshal(c.Op())
	fields["op"] = op
	return json.Marshal(fields)
}
