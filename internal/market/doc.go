// Package market defines the durable marketplace entities and their key layout.
//
// Entities are stored in the View as JSON under deterministic keys:
//
//	LST-001                  listing
//	LST-001:OFR-001          offer scoped to its listing
//	DEAL-001                 deal
//	rule:<owner>:RULE-001    rule scoped to its owner
//	rating:<deal>:<rater>    one rating per (deal, rater)
//	reputation:<address>     derived aggregate
//
// Ids are assigned only by the state machine from committed counter keys
// (seq:*). Nothing in this package allocates an id.
//
// Only the offer's buyer or the listing's seller may counter, accept or
// decline an offer. Any other submitter gets a no-op receipt, the same as an
// offer that is no longer pending.
//
// Money is shopspring/decimal throughout. Floats never reach the View.
package market
