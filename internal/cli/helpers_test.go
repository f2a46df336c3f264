package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// peer runs exec as identity against the data dir and requires success.
func peer(t *testing.T, dir, identity, command string) string {
	t.Helper()
	out, stderr, err := execute(t, nil, "--identity", identity, "--data-dir", dir, "exec", "--wait", command)
	require.NoError(t, err, "stdout: %s\nstderr: %s", out, stderr)
	return out
}

// seeded returns a data dir holding a listing by alice and an offer by bob.
func seeded(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	peer(t, dir, "alice", `{"op":"listing_post","title":"Lamp","price":"40","category":"home"}`)
	peer(t, dir, "bob", `{"op":"offer_send","listing_id":"LST-001","amount":"30"}`)
	return dir
}

func logPath(dir string) string  { return filepath.Join(dir, "log.db") }
func viewPath(dir string) string { return filepath.Join(dir, "view.db") }
