package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haggle/internal/router"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success("listing submitted", map[string]string{"entry_id": "abc"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "listing submitted", resp.Message)
	assert.Equal(t, map[string]any{"entry_id": "abc"}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("E201", "title: required", []string{"title"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E201", resp.Error.Code)
	assert.Equal(t, "title: required", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("found 1 listing", []map[string]string{{"id": "LST-001"}}))
	assert.Contains(t, buf.String(), "found 1 listing\n")
	assert.Contains(t, buf.String(), `"id": "LST-001"`)

	buf.Reset()
	require.NoError(t, formatter.Success("", "plain"))
	assert.Equal(t, "plain\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("E207", "listing LST-001 is sold", map[string]string{"id": "LST-001"}))
	assert.Equal(t, "Error [E207]: listing LST-001 is sold\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Error("", "no code", nil))
	assert.Equal(t, "Error: no code\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E207", "sold", "more"))
	assert.Contains(t, buf.String(), "Details: more")
}

func TestOutputFormatter_Reply(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Reply(router.OK("done", nil)))
	assert.Equal(t, "done\n", buf.String())

	buf.Reset()
	err := formatter.Reply(router.Reply{Error: "price: must be >= 0", Code: "E203"})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E203]")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, diag := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: tt.verbose}

			formatter.VerboseLog("opening %s", "log.db")

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Equal(t, "opening log.db\n", diag.String())
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestExitErrors(t *testing.T) {
	base := errors.New("no such file")

	wrapped := WrapExitError(ExitCommandError, "failed to open log", base)
	assert.Equal(t, "failed to open log: no such file", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("run: %w", wrapped)))

	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
	assert.Equal(t, ExitFailure, GetExitCode(base))
}
