package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"

	"github.com/roach88/haggle/internal/market"
	"github.com/roach88/haggle/internal/notify"
	"github.com/roach88/haggle/internal/router"
)

// Engine defaults.
const (
	DefaultAwaitTimeout = 10 * time.Second
	DefaultSeenSize     = 1024
	DefaultRescan       = 30 * time.Second
	scanLimit           = 1 << 20
)

// Engine evaluates one identity's stored rules against incoming
// notifications.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - Handle(): called by Run; tests may call it directly instead of Run
type Engine struct {
	router       *router.Router
	bus          notify.Bus
	limiter      *Limiter
	inbox        *inbox
	seen         *lru.Cache
	awaitTimeout time.Duration
	rescan       time.Duration

	mu      sync.Mutex
	watched map[string]bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLimiter replaces the default 10-per-hour auto_buy limiter.
func WithLimiter(l *Limiter) EngineOption {
	return func(e *Engine) { e.limiter = l }
}

// WithAwaitTimeout bounds how long the engine waits for a notified entry
// to be applied locally.
func WithAwaitTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.awaitTimeout = d
		}
	}
}

// WithRescan sets how often Run re-derives the watched listing set.
func WithRescan(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.rescan = d
		}
	}
}

// NewEngine creates a rule engine acting through r.
func NewEngine(r *router.Router, bus notify.Bus, opts ...EngineOption) (*Engine, error) {
	seen, err := lru.New(DefaultSeenSize)
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}
	e := &Engine{
		router:       r,
		bus:          bus,
		limiter:      NewLimiter(DefaultLimit, DefaultWindow, nil),
		inbox:        newInbox(),
		seen:         seen,
		awaitTimeout: DefaultAwaitTimeout,
		rescan:       DefaultRescan,
		watched:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run subscribes to the public channel and the listings this identity
// cares about, then processes notifications in arrival order until ctx is
// cancelled.
//
// ERROR HANDLING: a failed notification is logged and dropped. The
// scheduled policies and later notifications give the peer another chance.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("rule engine starting", "identity", e.router.Identity())

	if err := e.subscribe(ctx, notify.PublicChannel); err != nil {
		return err
	}
	if err := e.WatchOwn(ctx); err != nil {
		slog.Warn("initial watch failed", "error", err)
	}

	ticker := time.NewTicker(e.rescan)
	defer ticker.Stop()

	for {
		if n, ok := e.inbox.TryDequeue(); ok {
			if err := e.Handle(ctx, n); err != nil {
				slog.Error("rule evaluation failed",
					"kind", n.Kind(),
					"entry", n.Head().EntryID,
					"from", n.Head().From,
					"error", err,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("rule engine stopping: context cancelled")
			e.inbox.Close()
			return ctx.Err()
		case <-e.inbox.Wait():
		case <-ticker.C:
			if err := e.WatchOwn(ctx); err != nil {
				slog.Warn("rescan failed", "error", err)
			}
		}
	}
}

// subscribe forwards a bus channel into the inbox.
func (e *Engine) subscribe(ctx context.Context, channel string) error {
	ch, err := e.bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	go func() {
		for n := range ch {
			if !e.inbox.Enqueue(n) {
				return
			}
		}
	}()
	return nil
}

// Watch subscribes to a listing's negotiation channel once.
func (e *Engine) Watch(ctx context.Context, listingID string) error {
	e.mu.Lock()
	if e.watched[listingID] {
		e.mu.Unlock()
		return nil
	}
	e.watched[listingID] = true
	e.mu.Unlock()

	if e.bus == nil {
		return nil
	}
	if err := e.subscribe(ctx, notify.ListingChannel(listingID)); err != nil {
		e.mu.Lock()
		delete(e.watched, listingID)
		e.mu.Unlock()
		return err
	}
	slog.Debug("watching listing", "listing", listingID)
	return nil
}

// Watching returns the watched listing ids in order.
func (e *Engine) Watching() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.watched))
	for id := range e.watched {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// WatchOwn watches listings named by this identity's auto_accept and
// auto_counter rules and the active listings it sells.
func (e *Engine) WatchOwn(ctx context.Context) error {
	self := e.router.Identity()
	rules, err := e.router.Rules(ctx, self)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r.ListingID != "" {
			if err := e.Watch(ctx, r.ListingID); err != nil {
				return err
			}
		}
	}
	listings, err := e.router.Listings(ctx, router.ListingFilter{Seller: self, Limit: scanLimit})
	if err != nil {
		return err
	}
	for _, l := range listings {
		if l.Active() {
			if err := e.Watch(ctx, l.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Handle evaluates one notification. Duplicates of a notification already
// handled are ignored.
func (e *Engine) Handle(ctx context.Context, n notify.Notification) error {
	key := string(n.Kind()) + "/" + n.Head().EntryID
	if e.seen.Contains(key) {
		slog.Debug("duplicate notification", "kind", n.Kind(), "entry", n.Head().EntryID)
		return nil
	}

	var err error
	switch v := n.(type) {
	case notify.ListingPosted:
		err = e.onListingPosted(ctx, v)
	case notify.OfferSent:
		err = e.onOfferSent(ctx, v)
	default:
		// Other kinds carry nothing a rule reacts to.
	}
	if err != nil {
		return err
	}
	e.seen.Add(key, struct{}{})
	return nil
}

// resolve waits for the notified entry to be applied and returns the key it
// created, or "" if the contract ignored it.
func (e *Engine) resolve(ctx context.Context, entryID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.awaitTimeout)
	defer cancel()
	rc, err := e.router.Await(ctx, entryID)
	if err != nil {
		return "", err
	}
	if !rc.Applied {
		return "", nil
	}
	return rc.Key, nil
}

func (e *Engine) onListingPosted(ctx context.Context, n notify.ListingPosted) error {
	self := e.router.Identity()
	key, err := e.resolve(ctx, n.EntryID)
	if err != nil || key == "" {
		return err
	}
	if n.From == self {
		return e.Watch(ctx, key)
	}

	l, err := e.router.Listing(ctx, key)
	if err != nil {
		return err
	}
	if !l.Active() || l.Seller == self {
		return nil
	}

	rules, err := e.router.Rules(ctx, self)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if !autoBuyMatches(r, l) {
			continue
		}
		if err := e.Watch(ctx, l.ID); err != nil {
			return err
		}
		if !e.limiter.Allow() {
			slog.Warn("auto_buy rate limited", "rule", r.ID, "listing", l.ID)
			return nil
		}
		reply := e.router.Handle(ctx, router.OfferSend{
			ListingID: l.ID,
			Amount:    router.Num(l.Price.String()),
			Note:      "auto_buy " + r.ID,
		})
		if !reply.OK {
			return fmt.Errorf("auto_buy offer on %s: %s", l.ID, reply.Error)
		}
		slog.Info("auto_buy offer sent", "rule", r.ID, "listing", l.ID, "amount", l.Price)
		// One offer per listing even when several rules match.
		return nil
	}
	return nil
}

func autoBuyMatches(r market.Rule, l market.Listing) bool {
	if r.Type != market.RuleAutoBuy || r.Deleted || r.Ceiling == nil {
		return false
	}
	if r.Category != "" && r.Category != l.Category {
		return false
	}
	return r.Ceiling.GreaterThanOrEqual(l.Price)
}

// decision is what a seller rule does with an offer.
type decision int

const (
	pass decision = iota
	accept
	counter
)

// evaluate returns the action of the first rule that matches the offer.
func evaluate(rules []market.Rule, l market.Listing, amount decimal.Decimal) (market.Rule, decision, decimal.Decimal) {
	for _, r := range rules {
		if r.Deleted || r.ListingID != l.ID {
			continue
		}
		switch r.Type {
		case market.RuleAutoAccept:
			if r.Floor != nil && amount.GreaterThanOrEqual(*r.Floor) {
				return r, accept, amount
			}
		case market.RuleAutoCounter:
			if r.Ratio == nil {
				continue
			}
			floor := l.Price.Mul(*r.Ratio).Round(2)
			if amount.GreaterThanOrEqual(floor) {
				return r, accept, amount
			}
			return r, counter, floor
		}
	}
	return market.Rule{}, pass, decimal.Zero
}

func (e *Engine) onOfferSent(ctx context.Context, n notify.OfferSent) error {
	self := e.router.Identity()
	if n.From == self {
		return nil
	}
	key, err := e.resolve(ctx, n.EntryID)
	if err != nil || key == "" {
		return err
	}

	l, err := e.router.Listing(ctx, n.ListingID)
	if router.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if l.Seller != self || !l.Active() {
		return nil
	}

	offerID, ok := strings.CutPrefix(key, market.OfferKey(n.ListingID, ""))
	if !ok {
		return nil
	}
	o, err := e.router.Offer(ctx, n.ListingID, offerID)
	if err != nil {
		return err
	}
	if o.Status != market.OfferPending {
		return nil
	}
	if last, ok := o.LastMove(); ok && last.By == self {
		return nil
	}

	rules, err := e.router.Rules(ctx, self)
	if err != nil {
		return err
	}
	r, d, amount := evaluate(rules, l, o.Amount)

	var reply router.Reply
	switch d {
	case pass:
		return nil
	case accept:
		reply = e.router.Handle(ctx, router.OfferAccept{ListingID: l.ID, OfferID: o.ID})
	case counter:
		reply = e.router.Handle(ctx, router.OfferCounter{ListingID: l.ID, OfferID: o.ID, Amount: router.Num(amount.String())})
	}
	if !reply.OK {
		return fmt.Errorf("rule %s on %s: %s", r.ID, o.Key(), reply.Error)
	}
	slog.Info("rule acted", "rule", r.ID, "type", r.Type, "offer", o.Key(), "offered", o.Amount, "amount", amount)
	return nil
}
