package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/haggle/internal/ir"
	"github.com/roach88/haggle/internal/market"
)

// Op tags each log entry variant.
type Op string

const (
	OpListingPost   Op = "listing_post"
	OpListingUpdate Op = "listing_update"
	OpListingRemove Op = "listing_remove"
	OpOfferSend     Op = "offer_send"
	OpOfferCounter  Op = "offer_counter"
	OpOfferAccept   Op = "offer_accept"
	OpOfferDecline  Op = "offer_decline"
	OpRuleSet       Op = "rule_set"
	OpRuleDelete    Op = "rule_delete"
	OpRatingSubmit  Op = "rating_submit"
)

// ErrMalformed marks an entry that cannot be decoded into a known variant.
var ErrMalformed = errors.New("malformed entry")

// Entry is the closed set of log entry bodies.
type Entry interface {
	Op() Op
	encode() ir.Object
}

// Envelope wraps an Entry with the metadata apply depends on.
type Envelope struct {
	Submitter string
	At        int64 // unix milliseconds, supplied by the submitter
	Nonce     string
	Entry     Entry
}

// ListingPost creates a listing. Always succeeds.
type ListingPost struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Currency    string
	Category    string
	Tags        []string
}

// ListingUpdate merges price and/or description. Seller only.
type ListingUpdate struct {
	ListingID   string
	Price       *decimal.Decimal
	Description *string
}

// ListingRemove marks a listing removed. Seller only.
type ListingRemove struct {
	ListingID string
}

// OfferSend opens an offer from the submitter. No listing check.
type OfferSend struct {
	ListingID string
	Amount    decimal.Decimal
	Note      string
}

// OfferCounter proposes a new amount on a pending offer.
type OfferCounter struct {
	ListingID string
	OfferID   string
	Amount    decimal.Decimal
}

// OfferAccept accepts a pending offer and closes a deal. Seller is the
// submitter's view of the listing seller, used when the listing is absent
// at apply time.
type OfferAccept struct {
	ListingID string
	OfferID   string
	Seller    string
}

// OfferDecline declines a pending offer.
type OfferDecline struct {
	ListingID string
	OfferID   string
}

// RuleSet stores a negotiation rule owned by the submitter.
// Threshold is the ceiling, floor or ratio depending on Type.
type RuleSet struct {
	Type      market.RuleType
	Category  string
	ListingID string
	Threshold decimal.Decimal
}

// RuleDelete soft-deletes one of the submitter's rules.
type RuleDelete struct {
	RuleID string
}

// RatingSubmit scores the counterparty of a closed deal.
type RatingSubmit struct {
	DealID  string
	Score   int64
	Comment string
}

func (ListingPost) Op() Op   { return OpListingPost }
func (ListingUpdate) Op() Op { return OpListingUpdate }
func (ListingRemove) Op() Op { return OpListingRemove }
func (OfferSend) Op() Op     { return OpOfferSend }
func (OfferCounter) Op() Op  { return OpOfferCounter }
func (OfferAccept) Op() Op   { return OpOfferAccept }
func (OfferDecline) Op() Op  { return OpOfferDecline }
func (RuleSet) Op() Op       { return OpRuleSet }
func (RuleDelete) Op() Op    { return OpRuleDelete }
func (RatingSubmit) Op() Op  { return OpRatingSubmit }

func (e ListingPost) encode() ir.Object {
	return ir.Object{
		"title":       ir.String(e.Title),
		"description": ir.String(e.Description),
		"price":       ir.String(e.Price.String()),
		"currency":    ir.String(e.Currency),
		"category":    ir.String(e.Category),
		"tags":        ir.StringArray(e.Tags),
	}
}

func (e ListingUpdate) encode() ir.Object {
	obj := ir.Object{"listing_id": ir.String(e.ListingID)}
	if e.Price != nil {
		obj["price"] = ir.String(e.Price.String())
	}
	if e.Description != nil {
		obj["description"] = ir.String(*e.Description)
	}
	return obj
}

func (e ListingRemove) encode() ir.Object {
	return ir.Object{"listing_id": ir.String(e.ListingID)}
}

func (e OfferSend) encode() ir.Object {
	return ir.Object{
		"listing_id": ir.String(e.ListingID),
		"amount":     ir.String(e.Amount.String()),
		"note":       ir.String(e.Note),
	}
}

func (e OfferCounter) encode() ir.Object {
	return ir.Object{
		"listing_id": ir.String(e.ListingID),
		"offer_id":   ir.String(e.OfferID),
		"amount":     ir.String(e.Amount.String()),
	}
}

func (e OfferAccept) encode() ir.Object {
	return ir.Object{
		"listing_id": ir.String(e.ListingID),
		"offer_id":   ir.String(e.OfferID),
		"seller":     ir.String(e.Seller),
	}
}

func (e OfferDecline) encode() ir.Object {
	return ir.Object{
		"listing_id": ir.String(e.ListingID),
		"offer_id":   ir.String(e.OfferID),
	}
}

func (e RuleSet) encode() ir.Object {
	return ir.Object{
		"type":       ir.String(string(e.Type)),
		"category":   ir.String(e.Category),
		"listing_id": ir.String(e.ListingID),
		"threshold":  ir.String(e.Threshold.String()),
	}
}

func (e RuleDelete) encode() ir.Object {
	return ir.Object{"rule_id": ir.String(e.RuleID)}
}

func (e RatingSubmit) encode() ir.Object {
	return ir.Object{
		"deal_id": ir.String(e.DealID),
		"score":   ir.Int(e.Score),
		"comment": ir.String(e.Comment),
	}
}

// Encode renders an envelope as the canonical log payload.
func Encode(env Envelope) (ir.Object, error) {
	if env.Entry == nil {
		return nil, fmt.Errorf("encode: entry required")
	}
	if env.Submitter == "" {
		return nil, fmt.Errorf("encode: submitter required")
	}
	return ir.Object{
		"v":         ir.String(ir.EntryVersion),
		"op":        ir.String(string(env.Entry.Op())),
		"submitter": ir.String(env.Submitter),
		"at":        ir.Int(env.At),
		"nonce":     ir.String(env.Nonce),
		"body":      env.Entry.encode(),
	}, nil
}

// Decode parses a log payload. Any shape error wraps ErrMalformed.
func Decode(obj ir.Object) (Envelope, error) {
	env := Envelope{
		Submitter: obj.Str("submitter"),
		Nonce:     obj.Str("nonce"),
	}
	if v := obj.Str("v"); v != ir.EntryVersion {
		return env, malformed("unsupported version %q", v)
	}
	if env.Submitter == "" {
		return env, malformed("missing submitter")
	}
	at, ok := obj.Int64("at")
	if !ok {
		return env, malformed("missing timestamp")
	}
	env.At = at

	body, ok := obj["body"].(ir.Object)
	if !ok {
		return env, malformed("missing body")
	}

	entry, err := decodeBody(Op(obj.Str("op")), body)
	if err != nil {
		return env, err
	}
	env.Entry = entry
	return env, nil
}

func decodeBody(op Op, b ir.Object) (Entry, error) {
	switch op {
	case OpListingPost:
		price, err := amount(b, "price")
		if err != nil {
			return nil, err
		}
		title := b.Str("title")
		if strings.TrimSpace(title) == "" {
			return nil, malformed("listing_post: empty title")
		}
		return ListingPost{
			Title:       title,
			Description: b.Str("description"),
			Price:       price,
			Currency:    b.Str("currency"),
			Category:    b.Str("category"),
			Tags:        b.Strings("tags"),
		}, nil

	case OpListingUpdate:
		e := ListingUpdate{ListingID: b.Str("listing_id")}
		if e.ListingID == "" {
			return nil, malformed("listing_update: missing listing_id")
		}
		if _, ok := b["price"]; ok {
			p, err := amount(b, "price")
			if err != nil {
				return nil, err
			}
			e.Price = &p
		}
		if d, ok := b["description"].(ir.String); ok {
			s := string(d)
			e.Description = &s
		}
		return e, nil

	case OpListingRemove:
		e := ListingRemove{ListingID: b.Str("listing_id")}
		if e.ListingID == "" {
			return nil, malformed("listing_remove: missing listing_id")
		}
		return e, nil

	case OpOfferSend:
		a, err := amount(b, "amount")
		if err != nil {
			return nil, err
		}
		e := OfferSend{ListingID: b.Str("listing_id"), Amount: a, Note: b.Str("note")}
		if e.ListingID == "" {
			return nil, malformed("offer_send: missing listing_id")
		}
		return e, nil

	case OpOfferCounter:
		a, err := amount(b, "amount")
		if err != nil {
			return nil, err
		}
		e := OfferCounter{ListingID: b.Str("listing_id"), OfferID: b.Str("offer_id"), Amount: a}
		if e.ListingID == "" || e.OfferID == "" {
			return nil, malformed("offer_counter: missing listing_id or offer_id")
		}
		return e, nil

	case OpOfferAccept:
		e := OfferAccept{ListingID: b.Str("listing_id"), OfferID: b.Str("offer_id"), Seller: b.Str("seller")}
		if e.ListingID == "" || e.OfferID == "" {
			return nil, malformed("offer_accept: missing listing_id or offer_id")
		}
		return e, nil

	case OpOfferDecline:
		e := OfferDecline{ListingID: b.Str("listing_id"), OfferID: b.Str("offer_id")}
		if e.ListingID == "" || e.OfferID == "" {
			return nil, malformed("offer_decline: missing listing_id or offer_id")
		}
		return e, nil

	case OpRuleSet:
		t, err := amount(b, "threshold")
		if err != nil {
			return nil, err
		}
		e := RuleSet{
			Type:      market.RuleType(b.Str("type")),
			Category:  b.Str("category"),
			ListingID: b.Str("listing_id"),
			Threshold: t,
		}
		if !e.Type.Valid() {
			return nil, malformed("rule_set: unknown type %q", e.Type)
		}
		if e.Type != market.RuleAutoBuy && e.ListingID == "" {
			return nil, malformed("rule_set: %s requires listing_id", e.Type)
		}
		return e, nil

	case OpRuleDelete:
		e := RuleDelete{RuleID: b.Str("rule_id")}
		if e.RuleID == "" {
			return nil, malformed("rule_delete: missing rule_id")
		}
		return e, nil

	case OpRatingSubmit:
		score, ok := b.Int64("score")
		if !ok || score < 1 || score > 5 {
			return nil, malformed("rating_submit: score must be 1..5")
		}
		e := RatingSubmit{DealID: b.Str("deal_id"), Score: score, Comment: b.Str("comment")}
		if e.DealID == "" {
			return nil, malformed("rating_submit: missing deal_id")
		}
		return e, nil

	default:
		return nil, malformed("unknown op %q", op)
	}
}

// amount parses a non-negative decimal string field.
func amount(b ir.Object, key string) (decimal.Decimal, error) {
	s, ok := b[key].(ir.String)
	if !ok {
		return decimal.Zero, malformed("missing %s", key)
	}
	d, err := decimal.NewFromString(string(s))
	if err != nil {
		return decimal.Zero, malformed("%s: %v", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, malformed("%s: negative", key)
	}
	return d, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
