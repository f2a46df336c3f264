// Package notify carries fire-and-forget marketplace notifications.
//
// Listing mutations and closed deals go to the public channel; negotiation
// traffic goes to a channel scoped to one listing. Delivery is at least
// once and may be late or duplicated, so consumers re-read the View rather
// than trusting notification payloads for state.
package notify
