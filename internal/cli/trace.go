package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/haggle/internal/contract"
	"github.com/roach88/haggle/internal/view"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	Op        string // optional - filter to one op
	Submitter string // optional - filter to one identity
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Total   int `json:"total"`
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// TraceResult holds the trace output.
type TraceResult struct {
	Timeline []contract.Receipt `json:"timeline"`
	Stats    TraceStats         `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show what each log entry did",
		Long: `Replay the log into a scratch view and print one line per entry: its
seq, op and submitter, the key it created or changed, or the reason it
had no effect.

Examples:
  haggle trace --db ./.haggle/log.db
  haggle trace --db ./.haggle/log.db --op offer_accept
  haggle trace --db ./.haggle/log.db --submitter bob --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the log database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Op, "op", "", "only entries with this op")
	cmd.Flags().StringVar(&opts.Submitter, "submitter", "", "only entries from this identity")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log, err := openExistingLog(opts.Database)
	if err != nil {
		return err
	}
	defer log.Close()

	result := TraceResult{Timeline: []contract.Receipt{}}
	scratch := view.NewMemory()
	defer scratch.Close()

	replica := contract.NewReplica(log, scratch, contract.WithObserver(func(rc contract.Receipt) {
		if opts.Op != "" && string(rc.Op) != opts.Op {
			return
		}
		if opts.Submitter != "" && rc.Submitter != opts.Submitter {
			return
		}
		result.Timeline = append(result.Timeline, rc)
		result.Stats.Total++
		if rc.Applied {
			result.Stats.Applied++
		} else {
			result.Stats.Skipped++
		}
	}))
	if _, err := replica.Sync(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to replay log", err)
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: result})
	}

	w := cmd.OutOrStdout()
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No entries found.")
		return nil
	}
	for _, rc := range result.Timeline {
		outcome := "→ " + rc.Key
		if !rc.Applied {
			outcome = "✗ " + rc.Reason
		}
		line := fmt.Sprintf("[%d] %-14s %-12s %s", rc.Seq, rc.Op, rc.Submitter, outcome)
		if opts.Verbose {
			line += "  (" + rc.ID + ")"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%d entries: %d applied, %d without effect\n",
		result.Stats.Total, result.Stats.Applied, result.Stats.Skipped)
	return nil
}
