// Package rules lets an unattended peer negotiate.
//
// Engine reacts to notifications in a single goroutine: public listing
// announcements trigger auto_buy rules, and offers arriving on a watched
// listing channel trigger auto_accept and auto_counter rules. Notifications
// are only hints; the engine resolves every entity from the View before
// acting and submits its decisions through the Router like any client.
//
// SellerResponder and BuyerNegotiator are scheduled policies that poll the
// View on a fixed interval instead of reacting to pushes. Both re-check
// entity status every tick and log and ignore failed submissions.
package rules
