package harness

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/haggle/internal/contract"
	"github.com/roach88/haggle/internal/ledger"
	"github.com/roach88/haggle/internal/notify"
	"github.com/roach88/haggle/internal/router"
	"github.com/roach88/haggle/internal/testutil"
	"github.com/roach88/haggle/internal/view"
)

// Harness executes scenarios with a deterministic clock and nonces, so the
// same scenario always produces the same log and View.
type Harness struct {
	log     *ledger.Memory
	view    *view.Memory
	bus     *notify.Memory
	replica *contract.Replica
	clock   *testutil.DeterministicClock
	nonces  *testutil.SequentialNonces
	routers map[string]*router.Router
	result  *Result
}

// Run executes a scenario in a fresh in-memory world and returns the result.
// An error means the harness itself failed; failed expectations are
// reported in Result.Errors.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	h := &Harness{
		log:     ledger.NewMemory(),
		view:    view.NewMemory(),
		bus:     notify.NewMemory(),
		clock:   testutil.NewDeterministicClock(),
		nonces:  testutil.NewSequentialNonces(s.Name),
		routers: make(map[string]*router.Router),
		result:  NewResult(),
	}
	defer h.close()

	h.replica = contract.NewReplica(h.log, h.view, contract.WithObserver(func(rc contract.Receipt) {
		h.result.Trace = append(h.result.Trace, traceEvent(rc))
	}))

	for i, step := range s.Flow {
		if err := h.execute(ctx, i, step); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for _, msg := range h.evaluate(ctx, s.Assertions) {
		h.result.AddError(msg)
	}

	digest, err := contract.Digest(ctx, h.view)
	if err != nil {
		return nil, err
	}
	h.result.Digest = digest
	return h.result, nil
}

func (h *Harness) close() {
	_ = h.bus.Close()
	_ = h.log.Close()
	_ = h.view.Close()
}

func (h *Harness) router(identity string) (*router.Router, error) {
	if r, ok := h.routers[identity]; ok {
		return r, nil
	}
	r, err := router.New(identity, h.log, h.view, h.bus,
		router.WithClock(h.clock.Now),
		router.WithNonces(h.nonces),
	)
	if err != nil {
		return nil, err
	}
	h.routers[identity] = r
	return r, nil
}

// execute routes one step, applies what it submitted and checks Expect.
func (h *Harness) execute(ctx context.Context, index int, step Step) error {
	r, err := h.router(step.As)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(step.Command)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	reply := r.HandleJSON(ctx, raw)

	var rc *contract.Receipt
	if sub, ok := reply.Data.(router.Submitted); ok {
		if _, err := h.replica.Sync(ctx); err != nil {
			return fmt.Errorf("apply: %w", err)
		}
		got, found, err := contract.ReadReceipt(ctx, h.view, sub.EntryID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("entry %s was not applied", sub.EntryID)
		}
		rc = &got
	}

	if step.Expect != nil {
		for _, msg := range checkExpect(step.Expect, reply, rc) {
			h.result.AddError(fmt.Sprintf("flow[%d] (%s as %s): %s", index, step.Command["op"], step.As, msg))
		}
	}
	return nil
}

func checkExpect(want *Expect, reply router.Reply, rc *contract.Receipt) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if want.OK != nil && reply.OK != *want.OK {
		fail("expected ok=%v, got ok=%v (error %q)", *want.OK, reply.OK, reply.Error)
	}
	if want.Code != "" && reply.Code != want.Code {
		fail("expected code %s, got %q (error %q)", want.Code, reply.Code, reply.Error)
	}

	if want.Applied != nil || want.Reason != "" || want.Key != "" {
		if rc == nil {
			fail("expected a receipt, command submitted nothing")
		} else {
			if want.Applied != nil && rc.Applied != *want.Applied {
				fail("expected applied=%v, got applied=%v (reason %q)", *want.Applied, rc.Applied, rc.Reason)
			}
			if want.Reason != "" && rc.Reason != want.Reason {
				fail("expected reason %q, got %q", want.Reason, rc.Reason)
			}
			if want.Key != "" && rc.Key != want.Key {
				fail("expected key %q, got %q", want.Key, rc.Key)
			}
		}
	}

	if want.Data != nil || want.Count != nil {
		actual, err := normalize(reply.Data)
		if err != nil {
			fail("reply data: %v", err)
			return errs
		}
		if want.Data != nil {
			expected, err := normalize(want.Data)
			if err != nil {
				fail("expected data: %v", err)
			} else if !subset(actual, expected) {
				fail("reply data %v does not contain %v", actual, expected)
			}
		}
		if want.Count != nil {
			list, ok := actual.([]any)
			switch {
			case actual == nil && *want.Count == 0:
			case !ok:
				fail("expected a list of %d, got %T", *want.Count, actual)
			case len(list) != *want.Count:
				fail("expected %d items, got %d", *want.Count, len(list))
			}
		}
	}
	return errs
}
