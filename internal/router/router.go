package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/haggle/internal/contract"
	"github.com/roach88/haggle/internal/ledger"
	"github.com/roach88/haggle/internal/notify"
	"github.com/roach88/haggle/internal/view"
)

// DefaultCurrency is used when listing_post omits one.
const DefaultCurrency = "USD"

// DefaultAwaitInterval is how often Await re-reads the View.
const DefaultAwaitInterval = 50 * time.Millisecond

// NonceGenerator supplies the nonce that makes each submitted entry unique.
// Implemented by UUIDv7Generator (production) and FixedNonces (tests).
type NonceGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 nonces.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Router turns commands from one identity into log entries, notifications
// and View reads.
//
// Thread-safety: Handle may be called from any goroutine.
type Router struct {
	identity string
	log      ledger.Log
	view     view.Reader
	bus      notify.Bus
	nonces   NonceGenerator
	now      func() time.Time
	poll     time.Duration
	rules    *ruleSchema
}

// Option configures a Router.
type Option func(*Router)

// WithNonces replaces the UUIDv7 nonce generator.
func WithNonces(g NonceGenerator) Option {
	return func(r *Router) { r.nonces = g }
}

// WithClock replaces time.Now as the source of entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithAwaitInterval sets the Await poll period.
func WithAwaitInterval(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.poll = d
		}
	}
}

// New creates a router acting as identity.
func New(identity string, log ledger.Log, v view.Reader, bus notify.Bus, opts ...Option) (*Router, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, fmt.Errorf("router: identity required")
	}
	schema, err := newRuleSchema()
	if err != nil {
		return nil, err
	}
	r := &Router{
		identity: identity,
		log:      log,
		view:     v,
		bus:      bus,
		nonces:   UUIDv7Generator{},
		now:      time.Now,
		poll:     DefaultAwaitInterval,
		rules:    schema,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Identity returns the identity commands are submitted as.
func (r *Router) Identity() string { return r.identity }

// Submitted is the reply data of a mutating command.
type Submitted struct {
	EntryID string `json:"entry_id"`
	Seq     int64  `json:"seq"`
}

// outbound is a notification addressed to a channel.
type outbound struct {
	channel string
	n       notify.Notification
}

// submit appends one entry and publishes its notifications. A publish
// failure is logged: the entry is already durable.
func (r *Router) submit(ctx context.Context, e contract.Entry, notes func(notify.Header) []outbound) (Submitted, error) {
	env := contract.Envelope{
		Submitter: r.identity,
		At:        r.now().UnixMilli(),
		Nonce:     r.nonces.Generate(),
		Entry:     e,
	}
	payload, err := contract.Encode(env)
	if err != nil {
		return Submitted{}, err
	}
	rec, err := ledger.NewRecord(payload)
	if err != nil {
		return Submitted{}, err
	}
	receipt, err := r.log.Append(ctx, rec)
	if err != nil {
		return Submitted{}, fmt.Errorf("submit %s: %w", e.Op(), err)
	}

	slog.Info("entry submitted",
		"op", e.Op(),
		"id", rec.ID,
		"seq", receipt.Seq,
		"submitter", r.identity,
	)

	if notes != nil && r.bus != nil {
		h := notify.Header{EntryID: rec.ID, From: r.identity, At: env.At}
		for _, o := range notes(h) {
			if err := r.bus.Publish(ctx, o.channel, o.n); err != nil {
				slog.Warn("publish failed", "channel", o.channel, "kind", o.n.Kind(), "entry", rec.ID, "error", err)
			}
		}
	}
	return Submitted{EntryID: rec.ID, Seq: receipt.Seq}, nil
}

// Await blocks until the entry has been applied to the local View and
// returns its receipt.
func (r *Router) Await(ctx context.Context, entryID string) (contract.Receipt, error) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		rc, ok, err := contract.ReadReceipt(ctx, r.view, entryID)
		if err != nil {
			return rc, err
		}
		if ok {
			return rc, nil
		}
		select {
		case <-ctx.Done():
			return rc, fmt.Errorf("await entry %s: %w", entryID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Handle executes one command and reports the outcome as a Reply.
func (r *Router) Handle(ctx context.Context, cmd Command) (reply Reply) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("command panicked", "op", cmd.Op(), "panic", p)
			reply = Fail(fmt.Errorf("internal error handling %s", cmd.Op()))
		}
	}()

	data, msg, err := r.dispatch(ctx, cmd)
	if err != nil {
		if !IsValidation(err) && !IsNotFound(err) {
			slog.Error("command failed", "op", cmd.Op(), "error", err)
		}
		return Fail(err)
	}
	return OK(msg, data)
}

// HandleJSON decodes and executes a raw JSON command.
func (r *Router) HandleJSON(ctx context.Context, raw []byte) Reply {
	cmd, err := Decode(raw)
	if err != nil {
		return Fail(err)
	}
	return r.Handle(ctx, cmd)
}

func (r *Router) dispatch(ctx context.Context, cmd Command) (any, string, error) {
	switch c := cmd.(type) {
	case ListingPost:
		return r.listingPost(ctx, c)
	case ListingUpdate:
		return r.listingUpdate(ctx, c)
	case ListingRemove:
		return r.listingRemove(ctx, c)
	case OfferSend:
		return r.offerSend(ctx, c)
	case OfferCounter:
		return r.offerCounter(ctx, c)
	case OfferAccept:
		return r.offerAccept(ctx, c)
	case OfferDecline:
		return r.offerDecline(ctx, c)
	case RuleSet:
		return r.ruleSet(ctx, c)
	case RuleDelete:
		return r.ruleDelete(ctx, c)
	case RatingSubmit:
		return r.ratingSubmit(ctx, c)

	case ListingList:
		return query(r.listListings(ctx, c))
	case ListingGet:
		if c.ID == "" {
			return nil, "", invalid(ErrMissingField, "id", "required")
		}
		return query(r.Listing(ctx, c.ID))
	case OfferList:
		if c.ListingID == "" {
			return nil, "", invalid(ErrMissingField, "listing_id", "required")
		}
		return query(r.Offers(ctx, c.ListingID))
	case DealList:
		return query(r.listDeals(ctx, c))
	case DealGet:
		if c.ID == "" {
			return nil, "", invalid(ErrMissingField, "id", "required")
		}
		return query(r.Deal(ctx, c.ID))
	case RuleList:
		return query(r.Rules(ctx, r.identity))
	case ReputationGet:
		addr := c.Address
		if addr == "" {
			addr = r.identity
		}
		return query(r.Reputation(ctx, addr))
	case EntryGet:
		if c.EntryID == "" {
			return nil, "", invalid(ErrMissingField, "entry_id", "required")
		}
		return query(r.Entry(ctx, c.EntryID))
	default:
		return nil, "", invalid(ErrBadCommand, "op", "unsupported command %T", cmd)
	}
}

func query(v any, err error) (any, string, error) {
	if err != nil {
		return nil, "", err
	}
	return v, "", nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(ErrMissingField, field, "required")
	}
	return nil
}

func (r *Router) listingPost(ctx context.Context, c ListingPost) (any, string, error) {
	if err := required("title", c.Title); err != nil {
		return nil, "", err
	}
	price, err := c.Price.decimal("price")
	if err != nil {
		return nil, "", err
	}
	currency := c.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	e := contract.ListingPost{
		Title:       strings.TrimSpace(c.Title),
		Description: c.Desc,
		Price:       price,
		Currency:    currency,
		Category:    c.Category,
		Tags:        c.Tags,
	}
	sub, err := r.submit(ctx, e, func(h notify.Header) []outbound {
		return []outbound{{notify.PublicChannel, notify.ListingPosted{
			Header: h, Title: e.Title, Price: price, Currency: currency, Category: c.Category,
		}}}
	})
	return sub, "listing submitted", err
}

func (r *Router) listingUpdate(ctx context.Context, c ListingUpdate) (any, string, error) {
	if err := required("id", c.ID); err != nil {
		return nil, "", err
	}
	e := contract.ListingUpdate{ListingID: c.ID, Description: c.Desc}
	if c.Price.Present() {
		p, err := c.Price.decimal("price")
		if err != nil {
			return nil, "", err
		}
		e.Price = &p
	}
	if e.Price == nil && e.Description == nil {
		return nil, "", invalid(ErrMissingField, "price", "price or desc required")
	}
	sub, err := r.submit(ctx, e, func(h notify.Header) []outbound {
		return []outbound{{notify.PublicChannel, notify.ListingUpdated{
			Header: h, ListingID: c.ID, Price: e.Price, Description: e.Description,
		}}}
	})
	return sub, "listing update submitted", err
}

func (r *Router) listingRemove(ctx context.Context, c ListingRemove) (any, string, error) {
	if err := required("id", c.ID); err != nil {
		return nil, "", err
	}
	sub, err := r.submit(ctx, contract.ListingRemove{ListingID: c.ID}, func(h notify.Header) []outbound {
		return []outbound{{notify.PublicChannel, notify.ListingRemoved{Header: h, ListingID: c.ID}}}
	})
	return sub, "listing removal submitted", err
}

func (r *Router) offerSend(ctx context.Context, c OfferSend) (any, string, error) {
	if err := required("listing_id", c.ListingID); err != nil {
		return nil, "", err
	}
	amount, err := c.Amount.decimal("amount")
	if err != nil {
		return nil, "", err
	}

	l, err := r.Listing(ctx, c.ListingID)
	switch {
	case IsNotFound(err):
		return nil, "", invalid(ErrListingInactive, "listing_id", "listing %s not found", c.ListingID)
	case err != nil:
		return nil, "", err
	case !l.Active():
		return nil, "", invalid(ErrListingInactive, "listing_id", "listing %s is %s", c.ListingID, l.Status)
	}

	sub, err := r.submit(ctx, contract.OfferSend{ListingID: c.ListingID, Amount: amount, Note: c.Note},
		func(h notify.Header) []outbound {
			return []outbound{{notify.ListingChannel(c.ListingID), notify.OfferSent{
				Header: h, ListingID: c.ListingID, Amount: amount, Note: c.Note,
			}}}
		})
	return sub, "offer submitted", err
}

func offerIDs(listingID, offerID string) error {
	if err := required("listing_id", listingID); err != nil {
		return err
	}
	return required("offer_id", offerID)
}

func (r *Router) offerCounter(ctx context.Context, c OfferCounter) (any, string, error) {
	if err := offerIDs(c.ListingID, c.OfferID); err != nil {
		return nil, "", err
	}
	amount, err := c.Amount.decimal("amount")
	if err != nil {
		return nil, "", err
	}
	sub, err := r.submit(ctx, contract.OfferCounter{ListingID: c.ListingID, OfferID: c.OfferID, Amount: amount},
		func(h notify.Header) []outbound {
			return []outbound{{notify.ListingChannel(c.ListingID), notify.OfferCountered{
				Header: h, ListingID: c.ListingID, OfferID: c.OfferID, Amount: amount,
			}}}
		})
	return sub, "counter submitted", err
}

func (r *Router) offerAccept(ctx context.Context, c OfferAccept) (any, string, error) {
	if err := offerIDs(c.ListingID, c.OfferID); err != nil {
		return nil, "", err
	}

	// The seller recorded on the deal falls back to this identity when the
	// listing is not in the local View.
	seller := r.identity
	l, err := r.Listing(ctx, c.ListingID)
	switch {
	case err == nil:
		seller = l.Seller
	case !IsNotFound(err):
		return nil, "", err
	}

	sub, err := r.submit(ctx, contract.OfferAccept{ListingID: c.ListingID, OfferID: c.OfferID, Seller: seller},
		func(h notify.Header) []outbound {
			return []outbound{
				{notify.ListingChannel(c.ListingID), notify.OfferAccepted{Header: h, ListingID: c.ListingID, OfferID: c.OfferID}},
				{notify.PublicChannel, notify.DealClosed{Header: h, ListingID: c.ListingID, OfferID: c.OfferID}},
			}
		})
	return sub, "acceptance submitted", err
}

func (r *Router) offerDecline(ctx context.Context, c OfferDecline) (any, string, error) {
	if err := offerIDs(c.ListingID, c.OfferID); err != nil {
		return nil, "", err
	}
	sub, err := r.submit(ctx, contract.OfferDecline{ListingID: c.ListingID, OfferID: c.OfferID},
		func(h notify.Header) []outbound {
			return []outbound{{notify.ListingChannel(c.ListingID), notify.OfferDeclined{
				Header: h, ListingID: c.ListingID, OfferID: c.OfferID,
			}}}
		})
	return sub, "decline submitted", err
}

func (r *Router) ruleSet(ctx context.Context, c RuleSet) (any, string, error) {
	p, err := r.rules.check(c)
	if err != nil {
		return nil, "", err
	}
	sub, err := r.submit(ctx, contract.RuleSet{
		Type:      p.Type,
		Category:  p.Category,
		ListingID: p.ListingID,
		Threshold: p.Threshold,
	}, nil)
	return sub, fmt.Sprintf("%s rule submitted", p.Type), err
}

func (r *Router) ruleDelete(ctx context.Context, c RuleDelete) (any, string, error) {
	if err := required("rule_id", c.RuleID); err != nil {
		return nil, "", err
	}
	sub, err := r.submit(ctx, contract.RuleDelete{RuleID: c.RuleID}, nil)
	return sub, "rule deletion submitted", err
}

func (r *Router) ratingSubmit(ctx context.Context, c RatingSubmit) (any, string, error) {
	if err := required("deal_id", c.DealID); err != nil {
		return nil, "", err
	}
	if c.Score < 1 || c.Score > 5 {
		return nil, "", invalid(ErrOutOfRange, "score", "must be between 1 and 5")
	}
	sub, err := r.submit(ctx, contract.RatingSubmit{DealID: c.DealID, Score: c.Score, Comment: c.Comment}, nil)
	return sub, "rating submitted", err
}

// errNotApplied reports an awaited entry that the contract turned into a no-op.
var errNotApplied = errors.New("entry not applied")

// SubmitAndWait handles a mutating command and waits for it to be applied
// locally, returning the receipt. Used by callers that need the created id.
func (r *Router) SubmitAndWait(ctx context.Context, cmd Command) (contract.Receipt, error) {
	data, _, err := r.dispatch(ctx, cmd)
	if err != nil {
		return contract.Receipt{}, err
	}
	sub, ok := data.(Submitted)
	if !ok {
		return contract.Receipt{}, fmt.Errorf("%s is not a mutating command", cmd.Op())
	}
	rc, err := r.Await(ctx, sub.EntryID)
	if err != nil {
		return rc, err
	}
	if !rc.Applied {
		return rc, fmt.Errorf("%w: %s", errNotApplied, rc.Reason)
	}
	return rc, nil
}

// IsNotApplied reports whether err came from an entry the contract ignored.
func IsNotApplied(err error) bool {
	return errors.Is(err, errNotApplied)
}
