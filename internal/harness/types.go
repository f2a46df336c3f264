package harness

import "github.com/roach88/haggle/internal/contract"

// TraceEvent is one applied log entry, in log order.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Op        string `json:"op"`
	Submitter string `json:"submitter"`
	Applied   bool   `json:"applied"`
	Key       string `json:"key,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func traceEvent(rc contract.Receipt) TraceEvent {
	return TraceEvent{
		Seq:       rc.Seq,
		Op:        string(rc.Op),
		Submitter: rc.Submitter,
		Applied:   rc.Applied,
		Key:       rc.Key,
		Reason:    rc.Reason,
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds the receipts of every entry, in log order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`

	// Digest is the View digest after the last step.
	Digest string `json:"digest"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
