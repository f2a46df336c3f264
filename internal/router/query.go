package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/haggle/internal/contract"
	"github.com/roach88/haggle/internal/market"
	"github.com/roach88/haggle/internal/view"
)

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 50

// ListingFilter selects listings by a linear scan of the View.
type ListingFilter struct {
	Category string
	MaxPrice *decimal.Decimal
	Seller   string // only listings of this seller, in any status
	Limit    int
}

// Listing returns one listing.
func (r *Router) Listing(ctx context.Context, id string) (market.Listing, error) {
	var l market.Listing
	ok, err := view.GetJSON(ctx, r.view, market.ListingKey(id), &l)
	if err != nil {
		return l, err
	}
	if !ok || !market.IsListingKey(id) {
		return l, &NotFoundError{Kind: "listing", ID: id}
	}
	return l, nil
}

// Listings scans listings in id order. Without a Seller filter only active
// listings are returned.
func (r *Router) Listings(ctx context.Context, f ListingFilter) ([]market.Listing, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	lo, hi := market.PrefixRange(market.ListingPrefix)
	out := []market.Listing{}
	for kv, err := range r.view.Range(ctx, lo, hi) {
		if err != nil {
			return nil, err
		}
		if !market.IsListingKey(kv.Key) {
			continue
		}
		l, err := decode[market.Listing](kv)
		if err != nil {
			return nil, err
		}
		if f.Seller != "" {
			if l.Seller != f.Seller {
				continue
			}
		} else if !l.Active() {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.MaxPrice != nil && l.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		out = append(out, l)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *Router) listListings(ctx context.Context, c ListingList) ([]market.Listing, error) {
	f := ListingFilter{Category: c.Category, Limit: c.Limit}
	if c.Limit < 0 {
		return nil, invalid(ErrOutOfRange, "limit", "must be >= 0")
	}
	if c.MaxPrice.Present() {
		p, err := c.MaxPrice.decimal("max_price")
		if err != nil {
			return nil, err
		}
		f.MaxPrice = &p
	}
	if c.Mine {
		f.Seller = r.identity
	}
	return r.Listings(ctx, f)
}

// Offers returns every offer on a listing, in id order.
func (r *Router) Offers(ctx context.Context, listingID string) ([]market.Offer, error) {
	lo, hi := market.OfferRange(listingID)
	return scan[market.Offer](ctx, r.view, lo, hi, 0, nil)
}

// Offer returns one offer.
func (r *Router) Offer(ctx context.Context, listingID, offerID string) (market.Offer, error) {
	var o market.Offer
	ok, err := view.GetJSON(ctx, r.view, market.OfferKey(listingID, offerID), &o)
	if err != nil {
		return o, err
	}
	if !ok {
		return o, &NotFoundError{Kind: "offer", ID: market.OfferKey(listingID, offerID)}
	}
	return o, nil
}

// Deal returns one deal.
func (r *Router) Deal(ctx context.Context, id string) (market.Deal, error) {
	var d market.Deal
	ok, err := view.GetJSON(ctx, r.view, market.DealKey(id), &d)
	if err != nil {
		return d, err
	}
	if !ok {
		return d, &NotFoundError{Kind: "deal", ID: id}
	}
	return d, nil
}

func (r *Router) listDeals(ctx context.Context, c DealList) ([]market.Deal, error) {
	if c.Limit < 0 {
		return nil, invalid(ErrOutOfRange, "limit", "must be >= 0")
	}
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var keep func(market.Deal) bool
	if c.Mine {
		keep = func(d market.Deal) bool { return d.Party(r.identity) }
	}
	lo, hi := market.PrefixRange(market.DealPrefix)
	return scan(ctx, r.view, lo, hi, limit, keep)
}

// Rules returns the live rules of owner in id order.
func (r *Router) Rules(ctx context.Context, owner string) ([]market.Rule, error) {
	lo, hi := market.RuleRange(owner)
	return scan(ctx, r.view, lo, hi, 0, func(rule market.Rule) bool { return !rule.Deleted })
}

// Reputation returns the rating aggregate of address; zero if unrated.
func (r *Router) Reputation(ctx context.Context, address string) (market.Reputation, error) {
	rep := market.Reputation{Address: address}
	if _, err := view.GetJSON(ctx, r.view, market.ReputationKey(address), &rep); err != nil {
		return rep, err
	}
	return rep, nil
}

// Entry returns the apply receipt of a submitted entry.
func (r *Router) Entry(ctx context.Context, entryID string) (contract.Receipt, error) {
	rc, ok, err := contract.ReadReceipt(ctx, r.view, entryID)
	if err != nil {
		return rc, err
	}
	if !ok {
		return rc, &NotFoundError{Kind: "entry", ID: entryID}
	}
	return rc, nil
}

func decode[T any](kv view.KV) (T, error) {
	var v T
	if err := json.Unmarshal(kv.Value, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", kv.Key, err)
	}
	return v, nil
}

// scan decodes every value in [lo, hi) that keep accepts, up to limit
// (0 means unlimited).
func scan[T any](ctx context.Context, rd view.Reader, lo, hi string, limit int, keep func(T) bool) ([]T, error) {
	out := []T{}
	for kv, err := range rd.Range(ctx, lo, hi) {
		if err != nil {
			return nil, err
		}
		v, err := decode[T](kv)
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(v) {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
