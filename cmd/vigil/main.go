package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and attaches all subcommands.
func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "vigil",
		Short: "Cooperative crash detection across co-installed application instances",
		Long: "vigil runs one crash-monitor instance: it heartbeats into a shared\n" +
			"directory and, when elected primary, reports siblings whose heartbeats\n" +
			"went stale without a graceful stop.",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCleanCmd())
	return root
}
