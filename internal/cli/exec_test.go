package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExec_WaitReportsReceipt(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, nil, "--identity", "alice", "--data-dir", dir, "--format", "json",
		"exec", "--wait", `{"op":"listing_post","title":"Lamp","price":"40"}`)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Seq     int64  `json:"seq"`
			Op      string `json:"op"`
			Applied bool   `json:"applied"`
			Key     string `json:"key"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.Data.Seq)
	assert.Equal(t, "listing_post", resp.Data.Op)
	assert.True(t, resp.Data.Applied)
	assert.Equal(t, "LST-001", resp.Data.Key)
}

func TestExec_QueriesSeeCommittedEntries(t *testing.T) {
	dir := seeded(t)

	out, _, err := execute(t, nil, "--identity", "carol", "--data-dir", dir, "exec", `{"op":"listing_list"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "LST-001"`)
	assert.Contains(t, out, `"seller": "alice"`)

	out, _, err = execute(t, nil, "--identity", "alice", "--data-dir", dir, "exec",
		`{"op":"offer_list","listing_id":"LST-001"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"buyer": "bob"`)
}

func TestExec_Rejected(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, nil, "--identity", "alice", "--data-dir", dir, "exec", `{"op":"listing_post","price":"40"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E201]")

	_, _, err = execute(t, nil, "--identity", "alice", "--data-dir", dir, "exec", `not json`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestExec_WaitOnNoOp(t *testing.T) {
	dir := seeded(t)

	_, _, err := execute(t, nil, "--identity", "mallory", "--data-dir", dir, "exec", "--wait",
		`{"op":"listing_remove","id":"LST-001"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "submitter is not the seller")
}

func TestExec_RequiresIdentity(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := execute(t, nil, "--data-dir", t.TempDir(), "exec", `{"op":"listing_list"}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "identity is required")
}
