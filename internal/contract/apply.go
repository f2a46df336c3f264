package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/roach88/haggle/internal/ledger"
	"github.com/roach88/haggle/internal/market"
	"github.com/roach88/haggle/internal/view"
)

// Receipt is stored at entry:<id> once an entry has been consumed.
// Applied is false for no-ops and skipped entries; Reason says why.
type Receipt struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	Op        Op     `json:"op,omitempty"`
	Submitter string `json:"submitter,omitempty"`
	Applied   bool   `json:"applied"`
	Key       string `json:"key,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// No-op reasons recorded on receipts.
const (
	ReasonListingNotFound = "listing not found"
	ReasonNotSeller       = "submitter is not the seller"
	ReasonOfferNotFound   = "offer not found"
	ReasonOfferNotPending = "offer is not pending"
	ReasonNotParty        = "submitter is not a party to the offer" // counter/accept/decline by neither buyer nor seller
	ReasonRuleNotFound    = "rule not found"
	ReasonRuleDeleted     = "rule already deleted"
	ReasonDealNotFound    = "deal not found"
	ReasonNotDealParty    = "submitter is not a party to the deal"
	ReasonAlreadyRated    = "deal already rated by submitter"
)

// ErrPanic wraps a recovered panic from an entry handler.
var ErrPanic = errors.New("apply panicked")

// Apply consumes one committed entry inside tx. It writes the entry receipt
// and advances the applied cursor in the same transaction.
//
// A returned error means the View could not be read or written; the caller
// must roll back and retry the same entry. Malformed entries are not errors.
func Apply(ctx context.Context, tx view.Txn, c ledger.Committed) (rc Receipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	rc = Receipt{ID: c.ID, Seq: c.Seq, Op: Op(c.Payload.Str("op")), Submitter: c.Payload.Str("submitter")}

	env, derr := Decode(c.Payload)
	if derr != nil {
		rc.Reason = derr.Error()
		slog.Warn("skipping malformed entry", "seq", c.Seq, "id", c.ID, "error", derr)
		return rc, commit(ctx, tx, rc)
	}

	a := &applier{ctx: ctx, tx: tx, env: env}
	key, reason, err := a.apply()
	if err != nil {
		return Receipt{}, fmt.Errorf("apply %s seq %d: %w", rc.Op, c.Seq, err)
	}
	rc.Applied = reason == ""
	rc.Key = key
	rc.Reason = reason
	return rc, commit(ctx, tx, rc)
}

// Skip records an entry as consumed without applying it. Used after a
// handler panic, in a fresh transaction.
func Skip(ctx context.Context, tx view.Txn, c ledger.Committed, reason string) (Receipt, error) {
	rc := Receipt{
		ID:        c.ID,
		Seq:       c.Seq,
		Op:        Op(c.Payload.Str("op")),
		Submitter: c.Payload.Str("submitter"),
		Reason:    reason,
	}
	return rc, commit(ctx, tx, rc)
}

func commit(ctx context.Context, tx view.Txn, rc Receipt) error {
	if err := view.PutJSON(ctx, tx, market.EntryKey(rc.ID), rc); err != nil {
		return err
	}
	return tx.Put(ctx, market.AppliedKey, []byte(strconv.FormatInt(rc.Seq, 10)))
}

// ReadCursor returns the seq of the last applied entry, 0 for an empty View.
func ReadCursor(ctx context.Context, r view.Reader) (int64, error) {
	return readCounter(ctx, r, market.AppliedKey)
}

// ReadReceipt returns the receipt for an entry id if it has been applied.
func ReadReceipt(ctx context.Context, r view.Reader, entryID string) (Receipt, bool, error) {
	var rc Receipt
	ok, err := view.GetJSON(ctx, r, market.EntryKey(entryID), &rc)
	return rc, ok, err
}

func readCounter(ctx context.Context, r view.Reader, key string) (int64, error) {
	raw, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s: %w", key, err)
	}
	return n, nil
}

type applier struct {
	ctx context.Context
	tx  view.Txn
	env Envelope
}

// apply dispatches on the entry variant. It returns the key of the entity
// created or changed, or a non-empty reason when the entry is a no-op.
func (a *applier) apply() (key, reason string, err error) {
	switch e := a.env.Entry.(type) {
	case ListingPost:
		return a.listingPost(e)
	case ListingUpdate:
		return a.listingUpdate(e)
	case ListingRemove:
		return a.listingRemove(e)
	case OfferSend:
		return a.offerSend(e)
	case OfferCounter:
		return a.offerCounter(e)
	case OfferAccept:
		return a.offerAccept(e)
	case OfferDecline:
		return a.offerDecline(e)
	case RuleSet:
		return a.ruleSet(e)
	case RuleDelete:
		return a.ruleDelete(e)
	case RatingSubmit:
		return a.ratingSubmit(e)
	default:
		return "", "", fmt.Errorf("unhandled entry %T", e)
	}
}

// next increments a committed counter and returns the new value.
func (a *applier) next(key string) (int64, error) {
	n, err := readCounter(a.ctx, a.tx, key)
	if err != nil {
		return 0, err
	}
	n++
	if err := a.tx.Put(a.ctx, key, []byte(strconv.FormatInt(n, 10))); err != nil {
		return 0, err
	}
	return n, nil
}

func (a *applier) get(key string, v any) (bool, error) {
	return view.GetJSON(a.ctx, a.tx, key, v)
}

func (a *applier) put(key string, v any) error {
	return view.PutJSON(a.ctx, a.tx, key, v)
}

func (a *applier) listingPost(e ListingPost) (string, string, error) {
	n, err := a.next(market.ListingCounter)
	if err != nil {
		return "", "", err
	}
	l := market.Listing{
		ID:          market.FormatID(market.ListingPrefix, n),
		Seq:         n,
		Title:       e.Title,
		Description: e.Description,
		Price:       e.Price,
		Currency:    e.Currency,
		Category:    e.Category,
		Tags:        e.Tags,
		Seller:      a.env.Submitter,
		Status:      market.ListingActive,
		CreatedAt:   a.env.At,
	}
	key := market.ListingKey(l.ID)
	return key, "", a.put(key, l)
}

// ownedListing loads a listing the submitter sells.
func (a *applier) ownedListing(id string) (market.Listing, string, error) {
	var l market.Listing
	ok, err := a.get(market.ListingKey(id), &l)
	switch {
	case err != nil:
		return l, "", err
	case !ok:
		return l, ReasonListingNotFound, nil
	case l.Seller != a.env.Submitter:
		return l, ReasonNotSeller, nil
	}
	return l, "", nil
}

func (a *applier) listingUpdate(e ListingUpdate) (string, string, error) {
	l, reason, err := a.ownedListing(e.ListingID)
	if err != nil || reason != "" {
		return "", reason, err
	}
	if e.Price != nil {
		l.Price = *e.Price
	}
	if e.Description != nil {
		l.Description = *e.Description
	}
	l.UpdatedAt = a.env.At
	key := market.ListingKey(l.ID)
	return key, "", a.put(key, l)
}

func (a *applier) listingRemove(e ListingRemove) (string, string, error) {
	l, reason, err := a.ownedListing(e.ListingID)
	if err != nil || reason != "" {
		return "", reason, err
	}
	l.Status = market.ListingRemoved
	l.RemovedAt = a.env.At
	key := market.ListingKey(l.ID)
	return key, "", a.put(key, l)
}

func (a *applier) offerSend(e OfferSend) (string, string, error) {
	n, err := a.next(market.OfferCounter(e.ListingID))
	if err != nil {
		return "", "", err
	}
	o := market.Offer{
		ID:        market.FormatID(market.OfferPrefix, n),
		ListingID: e.ListingID,
		Buyer:     a.env.Submitter,
		Amount:    e.Amount,
		Note:      e.Note,
		Status:    market.OfferPending,
		History:   []market.HistoryEntry{{Amount: e.Amount, By: a.env.Submitter, At: a.env.At}},
		CreatedAt: a.env.At,
	}
	key := o.Key()
	return key, "", a.put(key, o)
}

// pendingOffer loads a pending offer and the listing it targets, and checks
// that the submitter is the buyer or the listing's seller. fallbackSeller
// stands in for the seller when the listing is absent.
func (a *applier) pendingOffer(listingID, offerID, fallbackSeller string) (o market.Offer, l *market.Listing, reason string, err error) {
	ok, err := a.get(market.OfferKey(listingID, offerID), &o)
	if err != nil {
		return o, nil, "", err
	}
	if !ok {
		return o, nil, ReasonOfferNotFound, nil
	}
	if o.Status != market.OfferPending {
		return o, nil, ReasonOfferNotPending, nil
	}

	var listing market.Listing
	found, err := a.get(market.ListingKey(listingID), &listing)
	if err != nil {
		return o, nil, "", err
	}
	seller := fallbackSeller
	if found {
		l = &listing
		seller = listing.Seller
	}

	who := a.env.Submitter
	if who != o.Buyer && (seller == "" || who != seller) {
		return o, l, ReasonNotParty, nil
	}
	return o, l, "", nil
}

func (a *applier) offerCounter(e OfferCounter) (string, string, error) {
	o, _, reason, err := a.pendingOffer(e.ListingID, e.OfferID, "")
	if err != nil || reason != "" {
		return "", reason, err
	}
	o.Amount = e.Amount
	o.History = append(o.History, market.HistoryEntry{Amount: e.Amount, By: a.env.Submitter, At: a.env.At})
	key := o.Key()
	return key, "", a.put(key, o)
}

func (a *applier) offerAccept(e OfferAccept) (string, string, error) {
	o, l, reason, err := a.pendingOffer(e.ListingID, e.OfferID, e.Seller)
	if err != nil || reason != "" {
		return "", reason, err
	}

	n, err := a.next(market.DealCounter)
	if err != nil {
		return "", "", err
	}
	d := market.Deal{
		ID:         market.FormatID(market.DealPrefix, n),
		ListingID:  o.ListingID,
		OfferID:    o.ID,
		Buyer:      o.Buyer,
		Seller:     e.Seller,
		FinalPrice: o.Amount,
		ClosedAt:   a.env.At,
	}
	if l != nil {
		d.Title = l.Title
		d.Seller = l.Seller
		d.Currency = l.Currency
	}

	o.Status = market.OfferAccepted
	o.AcceptedBy = a.env.Submitter
	o.AcceptedAt = a.env.At
	o.DealID = d.ID
	if err := a.put(o.Key(), o); err != nil {
		return "", "", err
	}

	if l != nil {
		if l.Status == market.ListingSold {
			slog.Warn("offer accepted on a sold listing",
				"listing", l.ID, "offer", o.ID, "previous_deal", l.DealID, "deal", d.ID)
		}
		l.Status = market.ListingSold
		l.SoldAt = a.env.At
		l.DealID = d.ID
		if err := a.put(market.ListingKey(l.ID), *l); err != nil {
			return "", "", err
		}
	}

	key := market.DealKey(d.ID)
	return key, "", a.put(key, d)
}

func (a *applier) offerDecline(e OfferDecline) (string, string, error) {
	o, _, reason, err := a.pendingOffer(e.ListingID, e.OfferID, "")
	if err != nil || reason != "" {
		return "", reason, err
	}
	o.Status = market.OfferDeclined
	o.DeclinedBy = a.env.Submitter
	o.DeclinedAt = a.env.At
	key := o.Key()
	return key, "", a.put(key, o)
}

func (a *applier) ruleSet(e RuleSet) (string, string, error) {
	owner := a.env.Submitter
	n, err := a.next(market.RuleCounter(owner))
	if err != nil {
		return "", "", err
	}
	r := market.Rule{
		ID:        market.FormatID(market.RulePrefix, n),
		Owner:     owner,
		Type:      e.Type,
		Category:  e.Category,
		ListingID: e.ListingID,
		CreatedAt: a.env.At,
	}
	threshold := e.Threshold
	switch e.Type {
	case market.RuleAutoBuy:
		r.Ceiling = &threshold
		r.ListingID = ""
	case market.RuleAutoAccept:
		r.Floor = &threshold
		r.Category = ""
	case market.RuleAutoCounter:
		r.Ratio = &threshold
		r.Category = ""
	}
	key := r.Key()
	return key, "", a.put(key, r)
}

func (a *applier) ruleDelete(e RuleDelete) (string, string, error) {
	var r market.Rule
	key := market.RuleKey(a.env.Submitter, e.RuleID)
	ok, err := a.get(key, &r)
	switch {
	case err != nil:
		return "", "", err
	case !ok:
		return "", ReasonRuleNotFound, nil
	case r.Deleted:
		return "", ReasonRuleDeleted, nil
	}
	r.Deleted = true
	r.DeletedAt = a.env.At
	return key, "", a.put(key, r)
}

func (a *applier) ratingSubmit(e RatingSubmit) (string, string, error) {
	var d market.Deal
	ok, err := a.get(market.DealKey(e.DealID), &d)
	switch {
	case err != nil:
		return "", "", err
	case !ok:
		return "", ReasonDealNotFound, nil
	case !d.Party(a.env.Submitter):
		return "", ReasonNotDealParty, nil
	}

	key := market.RatingKey(d.ID, a.env.Submitter)
	if _, exists, err := a.tx.Get(a.ctx, key); err != nil {
		return "", "", err
	} else if exists {
		return "", ReasonAlreadyRated, nil
	}

	rt := market.Rating{
		DealID:  d.ID,
		Rater:   a.env.Submitter,
		Ratee:   d.Counterparty(a.env.Submitter),
		Score:   e.Score,
		Comment: e.Comment,
		At:      a.env.At,
	}
	if err := a.put(key, rt); err != nil {
		return "", "", err
	}

	rep := market.Reputation{Address: rt.Ratee}
	if _, err := a.get(market.ReputationKey(rt.Ratee), &rep); err != nil {
		return "", "", err
	}
	rep.Add(rt.Score)
	return key, "", a.put(market.ReputationKey(rt.Ratee), rep)
}
