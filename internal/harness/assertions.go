package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/haggle/internal/market"
	"github.com/roach88/haggle/internal/view"
)

// AssertionError is returned when an assertion fails. It carries the trace
// so the failure can be read without rerunning.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			status := "applied"
			if !ev.Applied {
				status = "skipped: " + ev.Reason
			}
			fmt.Fprintf(&buf, "  [%d] %s by %s (%s)\n", ev.Seq, ev.Op, ev.Submitter, status)
		}
	}
	return buf.String()
}

// matches reports whether ev satisfies the entry filter of a.
func (a Assertion) matches(ev TraceEvent) bool {
	if ev.Op != a.Op {
		return false
	}
	if a.Submitter != "" && ev.Submitter != a.Submitter {
		return false
	}
	if a.Applied != nil && ev.Applied != *a.Applied {
		return false
	}
	if a.Reason != "" && ev.Reason != a.Reason {
		return false
	}
	return true
}

func (a Assertion) describe() string {
	parts := []string{"op " + a.Op}
	if a.Submitter != "" {
		parts = append(parts, "submitter "+a.Submitter)
	}
	if a.Applied != nil {
		parts = append(parts, fmt.Sprintf("applied=%v", *a.Applied))
	}
	if a.Reason != "" {
		parts = append(parts, fmt.Sprintf("reason %q", a.Reason))
	}
	return strings.Join(parts, ", ")
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if a.matches(ev) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: a.describe(),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrence of each op follows the
// previous one. Intervening entries are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, seen := positions[ev.Op]; !seen {
			positions[ev.Op] = i + 1
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if a.matches(ev) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d entries with %s", a.Count, a.describe()),
			Actual:   fmt.Sprintf("%d entries", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertFinalState(ctx context.Context, r view.Reader, a Assertion) error {
	raw, ok, err := r.Get(ctx, a.Key)
	if err != nil {
		return fmt.Errorf("final_state %s: %w", a.Key, err)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("key %s with %v", a.Key, a.Expect),
			Actual:   "key not found",
		}
	}
	var actual any
	if err := json.Unmarshal(raw, &actual); err != nil {
		return fmt.Errorf("final_state %s: %w", a.Key, err)
	}
	expected, err := normalize(a.Expect)
	if err != nil {
		return err
	}
	if !subset(actual, expected) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("key %s containing %v", a.Key, expected),
			Actual:   string(raw),
		}
	}
	return nil
}

func assertFinalCount(ctx context.Context, r view.Reader, a Assertion) error {
	lo, hi := market.PrefixRange(a.Prefix)
	count := 0
	for _, err := range r.Range(ctx, lo, hi) {
		if err != nil {
			return fmt.Errorf("final_count %s: %w", a.Prefix, err)
		}
		count++
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertFinalCount,
			Expected: fmt.Sprintf("%d keys with prefix %q", a.Count, a.Prefix),
			Actual:   fmt.Sprintf("%d keys", count),
		}
	}
	return nil
}

// evaluate returns one message per failed assertion.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	return EvaluateAssertions(ctx, h.result.Trace, h.view, assertions)
}

// EvaluateAssertions checks assertions against a trace and View.
func EvaluateAssertions(ctx context.Context, trace []TraceEvent, r view.Reader, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(trace, a)
		case AssertTraceCount:
			err = assertTraceCount(trace, a)
		case AssertFinalState:
			err = assertFinalState(ctx, r, a)
		case AssertFinalCount:
			err = assertFinalCount(ctx, r, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// normalize round-trips v through JSON so YAML ints, Go structs and decoded
// View values compare alike.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// subset reports whether actual contains expected. Objects match when every
// expected key is present with a matching value; extra keys are ignored.
func subset(actual, expected any) bool {
	em, ok := expected.(map[string]any)
	if !ok {
		return reflect.DeepEqual(actual, expected)
	}
	am, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for k, ev := range em {
		av, exists := am[k]
		if !exists || !subset(av, ev) {
			return false
		}
	}
	return true
}
