package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/haggle/internal/router"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Wait    bool
	Timeout time.Duration
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <json-command>",
		Short: "Run one command against the local node",
		Long: `Run one JSON command as the configured identity.

The local view is brought up to date with the log first, so queries see
every committed entry. With --wait a mutating command reports the receipt
of its applied entry instead of the submission.

Exit codes:
  0 - Command accepted
  1 - Command rejected (validation, not found)
  2 - Command error (bad configuration, database error)

Examples:
  haggle exec --identity alice '{"op":"listing_post","title":"Lamp","price":"40"}' --wait
  haggle exec --identity bob '{"op":"listing_list","max_price":"50"}' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "wait for the entry to be applied and print its receipt")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "how long --wait waits")

	return cmd
}

func runExec(opts *ExecOptions, raw string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	setupLogging(cmd.ErrOrStderr(), cfg.Log.Level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStack(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open node", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing node", "error", closeErr)
		}
	}()

	if _, err := st.replica.Sync(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to catch up with log", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	reply := st.router.HandleJSON(ctx, []byte(raw))
	sub, submitted := reply.Data.(router.Submitted)
	if !reply.OK || !opts.Wait || !submitted {
		return formatter.Reply(reply)
	}

	formatter.VerboseLog("waiting for entry %s (seq %d)", sub.EntryID, sub.Seq)
	if _, err := st.replica.Sync(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to apply entry", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	rc, err := st.router.Await(waitCtx, sub.EntryID)
	if err != nil {
		return WrapExitError(ExitCommandError, "entry not applied", err)
	}
	if !rc.Applied {
		return formatter.Reply(router.Reply{Error: "entry had no effect: " + rc.Reason, Data: rc})
	}
	return formatter.Success(reply.Message, rc)
}
