package rules

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/haggle/internal/market"
	"github.com/roach88/haggle/internal/router"
)

// Thresholds of the scheduled policies, as fractions of the asking price.
var (
	sellerAcceptAt  = decimal.RequireFromString("0.90")
	sellerCounterAt = decimal.RequireFromString("0.80")
	sellerCounterTo = decimal.RequireFromString("0.95")
	buyerOpenAt     = decimal.RequireFromString("0.82")
	buyerTolerance  = decimal.RequireFromString("1.05")
)

// DefaultInterval is the tick period of the scheduled policies.
const DefaultInterval = 5 * time.Second

// every runs tick on a fixed interval until ctx is done.
func every(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	slog.Info("policy starting", "policy", name, "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := tick(ctx); err != nil {
			slog.Warn("policy tick failed", "policy", name, "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("policy stopping", "policy", name)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SellerResponder answers offers on a fixed set of the identity's listings:
// accept at or above 90% of ask, counter at 95% of ask from 80% up to 90%,
// decline below 80%.
type SellerResponder struct {
	router   *router.Router
	listings []string
	interval time.Duration
}

// NewSellerResponder watches the given listing ids.
func NewSellerResponder(r *router.Router, listings []string, interval time.Duration) *SellerResponder {
	return &SellerResponder{router: r, listings: slices.Clone(listings), interval: interval}
}

// Run ticks until ctx is cancelled.
func (s *SellerResponder) Run(ctx context.Context) error {
	return every(ctx, "seller", s.interval, s.Tick)
}

// Tick makes one pass over the watched listings. A failure on one listing
// does not stop the others.
func (s *SellerResponder) Tick(ctx context.Context) error {
	for _, id := range s.listings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.respond(ctx, id); err != nil {
			slog.Warn("seller responder skipped listing", "listing", id, "error", err)
		}
	}
	return nil
}

func (s *SellerResponder) respond(ctx context.Context, listingID string) error {
	self := s.router.Identity()
	l, err := s.router.Listing(ctx, listingID)
	if err != nil {
		return err
	}
	if l.Seller != self || !l.Active() {
		return nil
	}
	offers, err := s.router.Offers(ctx, listingID)
	if err != nil {
		return err
	}

	for _, o := range offers {
		if o.Status != market.OfferPending {
			continue
		}
		if last, ok := o.LastMove(); ok && last.By == self {
			continue
		}

		var reply router.Reply
		ratio := decimal.NewFromInt(1)
		if !l.Price.IsZero() {
			ratio = o.Amount.Div(l.Price)
		}
		switch {
		case ratio.GreaterThanOrEqual(sellerAcceptAt):
			reply = s.router.Handle(ctx, router.OfferAccept{ListingID: l.ID, OfferID: o.ID})
			if reply.OK {
				slog.Info("seller accepted", "offer", o.Key(), "amount", o.Amount)
				// The listing is sold once this applies.
				return nil
			}
		case ratio.GreaterThanOrEqual(sellerCounterAt):
			amount := l.Price.Mul(sellerCounterTo).Round(2)
			reply = s.router.Handle(ctx, router.OfferCounter{ListingID: l.ID, OfferID: o.ID, Amount: router.Num(amount.String())})
			if reply.OK {
				slog.Info("seller countered", "offer", o.Key(), "amount", amount)
			}
		default:
			reply = s.router.Handle(ctx, router.OfferDecline{ListingID: l.ID, OfferID: o.ID})
			if reply.OK {
				slog.Info("seller declined", "offer", o.Key(), "amount", o.Amount)
			}
		}
		if !reply.OK {
			slog.Warn("seller response failed", "offer", o.Key(), "error", reply.Error)
		}
	}
	return nil
}

// BuyerNegotiator opens offers at 82% of ask on unbid, in-budget listings
// of other identities in its categories, and accepts a seller counter that
// is at most 5% above its own last amount.
type BuyerNegotiator struct {
	router     *router.Router
	categories []string
	budget     decimal.Decimal
	interval   time.Duration
	opened     map[string]bool // listings bid on but maybe not yet applied
}

// NewBuyerNegotiator creates a negotiator. An empty category set matches
// every category.
func NewBuyerNegotiator(r *router.Router, categories []string, budget decimal.Decimal, interval time.Duration) *BuyerNegotiator {
	return &BuyerNegotiator{router: r, categories: slices.Clone(categories), budget: budget, interval: interval, opened: make(map[string]bool)}
}

// Run ticks until ctx is cancelled.
func (b *BuyerNegotiator) Run(ctx context.Context) error {
	return every(ctx, "buyer", b.interval, b.Tick)
}

// Tick scans active listings once.
func (b *BuyerNegotiator) Tick(ctx context.Context) error {
	listings, err := b.router.Listings(ctx, router.ListingFilter{Limit: scanLimit})
	if err != nil {
		return err
	}
	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !b.wants(l) {
			continue
		}
		if err := b.negotiate(ctx, l); err != nil {
			slog.Warn("buyer negotiator skipped listing", "listing", l.ID, "error", err)
		}
	}
	return nil
}

func (b *BuyerNegotiator) wants(l market.Listing) bool {
	if !l.Active() || l.Seller == b.router.Identity() {
		return false
	}
	if l.Price.GreaterThan(b.budget) {
		return false
	}
	return len(b.categories) == 0 || slices.Contains(b.categories, l.Category)
}

func (b *BuyerNegotiator) negotiate(ctx context.Context, l market.Listing) error {
	self := b.router.Identity()
	offers, err := b.router.Offers(ctx, l.ID)
	if err != nil {
		return err
	}

	bid := false
	for _, o := range offers {
		if o.Buyer != self {
			continue
		}
		bid = true
		if o.Status != market.OfferPending {
			continue
		}
		last, ok := o.LastMove()
		if !ok || last.By == self {
			continue
		}
		mine, ok := o.LastAmountBy(self)
		if !ok || o.Amount.GreaterThan(mine.Mul(buyerTolerance)) {
			continue
		}
		reply := b.router.Handle(ctx, router.OfferAccept{ListingID: l.ID, OfferID: o.ID})
		if !reply.OK {
			slog.Warn("buyer accept failed", "offer", o.Key(), "error", reply.Error)
			continue
		}
		slog.Info("buyer accepted counter", "offer", o.Key(), "amount", o.Amount, "own", mine)
	}
	if bid || b.opened[l.ID] {
		return nil
	}

	amount := l.Price.Mul(buyerOpenAt).Round(2)
	reply := b.router.Handle(ctx, router.OfferSend{ListingID: l.ID, Amount: router.Num(amount.String()), Note: "opening offer"})
	if !reply.OK {
		slog.Warn("buyer opening offer failed", "listing", l.ID, "error", reply.Error)
		return nil
	}
	b.opened[l.ID] = true
	slog.Info("buyer opened", "listing", l.ID, "ask", l.Price, "amount", amount)
	return nil
}
