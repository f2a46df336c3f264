package notify

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PublicChannel carries listing announcements and closed deals.
const PublicChannel = "market"

// ListingChannel is the negotiation channel of one listing.
func ListingChannel(listingID string) string {
	return "listing:" + listingID
}

// Kind tags each notification variant.
type Kind string

const (
	KindListingPost   Kind = "LISTING_POST"
	KindListingUpdate Kind = "LISTING_UPDATE"
	KindListingRemove Kind = "LISTING_REMOVE"
	KindDealClosed    Kind = "DEAL_CLOSED"
	KindOfferSent     Kind = "OFFER_SENT"
	KindOfferCounter  Kind = "OFFER_COUNTER"
	KindOfferAccepted Kind = "OFFER_ACCEPTED"
	KindOfferDeclined Kind = "OFFER_DECLINED"
)

// Header is common to every notification. EntryID names the log entry that
// caused it; entities created by that entry are resolved through its receipt.
type Header struct {
	EntryID string `json:"entry_id"`
	From    string `json:"from"`
	At      int64  `json:"at"`
}

// Notification is the closed set of notification variants.
type Notification interface {
	Kind() Kind
	Head() Header
}

type ListingPosted struct {
	Header
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Category string          `json:"category,omitempty"`
}

type ListingUpdated struct {
	Header
	ListingID   string           `json:"listing_id"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Description *string          `json:"description,omitempty"`
}

type ListingRemoved struct {
	Header
	ListingID string `json:"listing_id"`
}

// DealClosed is published when an accept is submitted, before it is applied.
// Apply may still turn the accept into a no-op; listeners that need the deal
// resolve Header.EntryID through entry_get and check the receipt.
type DealClosed struct {
	Header
	ListingID string `json:"listing_id"`
	OfferID   string `json:"offer_id"`
}

type OfferSent struct {
	Header
	ListingID string          `json:"listing_id"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
}

type OfferCountered struct {
	Header
	ListingID string          `json:"listing_id"`
	OfferID   string          `json:"offer_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type OfferAccepted struct {
	Header
	ListingID string `json:"listing_id"`
	OfferID   string `json:"offer_id"`
}

type OfferDeclined struct {
	Header
	ListingID string `json:"listing_id"`
	OfferID   string `json:"offer_id"`
}

func (ListingPosted) Kind() Kind  { return KindListingPost }
func (ListingUpdated) Kind() Kind { return KindListingUpdate }
func (ListingRemoved) Kind() Kind { return KindListingRemove }
func (DealClosed) Kind() Kind     { return KindDealClosed }
func (OfferSent) Kind() Kind      { return KindOfferSent }
func (OfferCountered) Kind() Kind { return KindOfferCounter }
func (OfferAccepted) Kind() Kind  { return KindOfferAccepted }
func (OfferDeclined) Kind() Kind  { return KindOfferDeclined }

func (h Header) Head() Header { return h }

// wire is the transport envelope.
type wire struct {
	Kind Kind            `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// Marshal encodes a notification for transport.
func Marshal(n Notification) ([]byte, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", n.Kind(), err)
	}
	return json.Marshal(wire{Kind: n.Kind(), Body: body})
}

// Unmarshal decodes a transported notification.
func Unmarshal(data []byte) (Notification, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}

	var n Notification
	var err error
	switch w.Kind {
	case KindListingPost:
		n, err = decode[ListingPosted](w.Body)
	case KindListingUpdate:
		n, err = decode[ListingUpdated](w.Body)
	case KindListingRemove:
		n, err = decode[ListingRemoved](w.Body)
	case KindDealClosed:
		n, err = decode[DealClosed](w.Body)
	case KindOfferSent:
		n, err = decode[OfferSent](w.Body)
	case KindOfferCounter:
		n, err = decode[OfferCountered](w.Body)
	case KindOfferAccepted:
		n, err = decode[OfferAccepted](w.Body)
	case KindOfferDeclined:
		n, err = decode[OfferDeclined](w.Body)
	default:
		return nil, fmt.Errorf("unmarshal notification: unknown kind %q", w.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", w.Kind, err)
	}
	return n, nil
}

func decode[T Notification](body json.RawMessage) (Notification, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}
