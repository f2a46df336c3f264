package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"negotiation", "ownership", "rules"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{Seq: 1, Op: "listing_post", Submitter: "alice", Applied: true, Key: "LST-001"},
		{Seq: 2, Op: "listing_remove", Submitter: "bob", Reason: "submitter is not the seller"},
	}

	got, err := Snapshot("tiny", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario":"tiny","trace":[`+
			`{"applied":true,"key":"LST-001","op":"listing_post","seq":1,"submitter":"alice"},`+
			`{"applied":false,"op":"listing_remove","reason":"submitter is not the seller","seq":2,"submitter":"bob"}]}`,
		string(got))
}
