package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/haggle/internal/contract"
	"github.com/roach88/haggle/internal/ledger"
	"github.com/roach88/haggle/internal/view"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	View     string // optional persisted view to compare against
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	Head          int64  `json:"head"`
	Entries       int    `json:"entries"`
	Digest        string `json:"digest"`
	SecondDigest  string `json:"second_digest"`
	Deterministic bool   `json:"deterministic"`

	ViewDigest  string `json:"view_digest,omitempty"`
	ViewApplied int64  `json:"view_applied,omitempty"`
	ViewMatches *bool  `json:"view_matches,omitempty"` // nil when the view lags the log
}

// OK reports whether the replay found no divergence.
func (r ReplayResult) OK() bool {
	return r.Deterministic && (r.ViewMatches == nil || *r.ViewMatches)
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the log and verify determinism",
		Long: `Replay the whole log twice into fresh in-memory views and compare their
digests. With --view, the persisted view is compared too when it has
applied the whole log.

Exit codes:
  0 - Replay is deterministic
  1 - Determinism verification failed (digests differ)
  2 - Command error (database not found, etc.)

Examples:
  haggle replay --db ./.haggle/log.db
  haggle replay --db ./.haggle/log.db --view ./.haggle/view.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the log database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.View, "view", "", "path to a view database to compare")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log, err := openExistingLog(opts.Database)
	if err != nil {
		return err
	}
	defer log.Close()

	head, err := log.Head(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log head", err)
	}

	result := ReplayResult{Head: head}
	if result.Entries, result.Digest, err = replayDigest(ctx, log); err != nil {
		return WrapExitError(ExitCommandError, "first replay failed", err)
	}
	if _, result.SecondDigest, err = replayDigest(ctx, log); err != nil {
		return WrapExitError(ExitCommandError, "second replay failed", err)
	}
	result.Deterministic = result.Digest == result.SecondDigest

	if opts.View != "" {
		if err := compareView(ctx, opts.View, &result); err != nil {
			return err
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if result.OK() {
			if err := formatter.Success("", result); err != nil {
				return err
			}
		} else if err := formatter.Error("E_DETERMINISM", "determinism verification failed", result); err != nil {
			return err
		}
	} else {
		outputReplayText(formatter, result)
	}

	if !result.OK() {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func openExistingLog(path string) (*ledger.SQLite, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "log database not found", err)
	}
	log, err := ledger.OpenSQLite(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open log database", err)
	}
	return log, nil
}

// replayDigest applies the whole log to a fresh in-memory view.
func replayDigest(ctx context.Context, log ledger.Log) (int, string, error) {
	v := view.NewMemory()
	defer v.Close()

	n, err := contract.Replay(ctx, log, v)
	if err != nil {
		return n, "", err
	}
	digest, err := contract.Digest(ctx, v)
	return n, digest, err
}

func compareView(ctx context.Context, path string, result *ReplayResult) error {
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "view database not found", err)
	}
	v, err := view.OpenSQLite(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open view database", err)
	}
	defer v.Close()

	if result.ViewApplied, err = contract.ReadCursor(ctx, v); err != nil {
		return WrapExitError(ExitCommandError, "failed to read view cursor", err)
	}
	if result.ViewDigest, err = contract.Digest(ctx, v); err != nil {
		return WrapExitError(ExitCommandError, "failed to digest view", err)
	}
	if result.ViewApplied == result.Head {
		matches := result.ViewDigest == result.Digest
		result.ViewMatches = &matches
	}
	return nil
}

func outputReplayText(f *OutputFormatter, result ReplayResult) {
	w := f.Writer

	fmt.Fprintf(w, "Replay Summary: %d entr(ies), head seq %d\n", result.Entries, result.Head)
	if f.Verbose {
		fmt.Fprintf(w, "  First digest:  %s\n", result.Digest)
		fmt.Fprintf(w, "  Second digest: %s\n", result.SecondDigest)
	}

	if result.ViewDigest != "" {
		switch {
		case result.ViewMatches == nil:
			fmt.Fprintf(w, "- View applied through seq %d of %d, not compared\n", result.ViewApplied, result.Head)
		case *result.ViewMatches:
			fmt.Fprintln(w, "✓ Persisted view matches replay")
		default:
			fmt.Fprintln(w, "✗ Persisted view differs from replay")
		}
	}

	if result.OK() {
		fmt.Fprintln(w, "✓ Replay verified deterministic")
		return
	}
	fmt.Fprintln(w, "✗ Determinism verification failed")
}
