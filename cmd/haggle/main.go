// Command haggle runs and inspects a peer-to-peer marketplace node.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/haggle/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
