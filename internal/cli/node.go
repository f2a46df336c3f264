package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NodeOptions holds flags for the node command.
type NodeOptions struct {
	*RootOptions
	Stdin bool // serve commands from stdin
}

// NewNodeCommand creates the node command.
func NewNodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a marketplace peer",
		Long: `Run a marketplace peer: the replica that applies the shared log to the
local view, the rule engine, and any enabled seller or buyer policies.

Commands are read from stdin, one JSON object per line, and a JSON reply
is written to stdout for each. End of input stops the node unless
--stdin=false is given, in which case it runs until interrupted.

Examples:
  echo '{"op":"listing_list"}' | haggle node --identity alice
  haggle node --config ./haggle.yaml --stdin=false`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Stdin, "stdin", true, "read commands from stdin")

	return cmd
}

func runNode(opts *NodeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	setupLogging(cmd.ErrOrStderr(), cfg.Log.Level)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStack(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start node", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing node", "error", closeErr)
		}
	}()

	var in io.Reader
	if opts.Stdin {
		in = cmd.InOrStdin()
	}
	if err := st.run(ctx, in, cmd.OutOrStdout()); err != nil {
		return WrapExitError(ExitFailure, "node error", err)
	}
	return nil
}
