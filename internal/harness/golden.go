package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/haggle/internal/ir"
)

// Snapshot renders a scenario trace as canonical JSON. Entry ids and the
// View digest are left out: they are hashes, and the trace already pins
// the order and outcome of every entry.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(ir.Array, len(result.Trace))
	for i, ev := range result.Trace {
		obj := ir.Object{
			"seq":       ir.Int(ev.Seq),
			"op":        ir.String(ev.Op),
			"submitter": ir.String(ev.Submitter),
			"applied":   ir.Bool(ev.Applied),
		}
		if ev.Key != "" {
			obj["key"] = ir.String(ev.Key)
		}
		if ev.Reason != "" {
			obj["reason"] = ir.String(ev.Reason)
		}
		trace[i] = obj
	}
	return ir.MarshalCanonical(ir.Object{
		"scenario": ir.String(name),
		"trace":    trace,
	})
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), s)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, s.Name, result)
}

// AssertGolden compares an existing result's trace against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)
	return nil
}
