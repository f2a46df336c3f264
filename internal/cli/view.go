package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/haggle/internal/market"
	"github.com/roach88/haggle/internal/view"
)

// ViewOptions holds flags for the view command.
type ViewOptions struct {
	*RootOptions
	Database string
	Prefix   string
	Limit    int
}

// ViewEntry is one key/value pair of a dump.
type ViewEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// NewViewCommand creates the view command.
func NewViewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ViewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Dump a range of the local view",
		Long: `Print the view entries whose keys start with --prefix, in key order.

Examples:
  haggle view --db ./.haggle/view.db --prefix LST-
  haggle view --db ./.haggle/view.db --prefix rule:alice: --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the view database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "key prefix (empty dumps everything)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries (0 for no limit)")

	return cmd
}

func runView(opts *ViewOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "view database not found", err)
	}
	v, err := view.OpenSQLite(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open view database", err)
	}
	defer v.Close()

	entries, err := dumpView(ctx, v, opts.Prefix, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read view", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success("", entries)
	}

	w := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Key, e.Value)
	}
	return nil
}

func dumpView(ctx context.Context, r view.Reader, prefix string, limit int) ([]ViewEntry, error) {
	lo, hi := market.PrefixRange(prefix)
	entries := []ViewEntry{}
	for kv, err := range r.Range(ctx, lo, hi) {
		if err != nil {
			return nil, err
		}
		value := json.RawMessage(kv.Value)
		if !json.Valid(value) {
			// quote so the dump stays valid JSON
			quoted, _ := json.Marshal(string(kv.Value))
			value = quoted
		}
		entries = append(entries, ViewEntry{Key: kv.Key, Value: value})
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}
