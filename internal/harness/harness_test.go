package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Scenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		s, err := LoadScenario(file)
		require.NoError(t, err)

		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.NotEmpty(t, result.Digest)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/negotiation.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Digest, second.Digest)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: failing
description: "every expectation here is wrong"
flow:
  - as: alice
    command: { op: listing_post, title: Lamp, price: "100" }
    expect: { ok: false, applied: false, key: LST-999 }
  - as: alice
    command: { op: listing_post, title: "", price: "100" }
    expect: { ok: true }
  - as: alice
    command: { op: listing_get, id: LST-001 }
    expect: { data: { status: sold }, applied: true }
assertions:
  - type: trace_count
    op: listing_post
    count: 2
  - type: final_state
    key: LST-404
    expect: { status: active }
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Len(t, result.Trace, 1)

	joined := ""
	for _, e := range result.Errors {
		joined += e + "\n"
	}
	assert.Contains(t, joined, "expected ok=false, got ok=true")
	assert.Contains(t, joined, "expected applied=false, got applied=true")
	assert.Contains(t, joined, `expected key "LST-999", got "LST-001"`)
	assert.Contains(t, joined, "flow[1]")
	assert.Contains(t, joined, "does not contain")
	assert.Contains(t, joined, "expected a receipt")
	assert.Contains(t, joined, "2 entries with op listing_post")
	assert.Contains(t, joined, "key not found")
}

func TestCheckExpect_Count(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: counting
description: "list replies are counted"
flow:
  - as: alice
    command: { op: listing_post, title: A, price: "1" }
  - as: alice
    command: { op: listing_post, title: B, price: "2" }
  - as: bob
    command: { op: listing_list }
    expect: { count: 2 }
  - as: bob
    command: { op: listing_list, max_price: "1" }
    expect: { count: 1 }
  - as: bob
    command: { op: listing_list, category: none }
    expect: { count: 0 }
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
