// Advisor recommends an agent framework for a natural language use case.
//
// It runs the advisory pipeline in-process (advise, seed, feedback) or as an
// HTTP service (serve).
//
// Usage:
//
//	# Start the API server
//	advisor serve
//
//	# Ask for a recommendation
//	advisor advise "support bot that answers HR questions from our wiki"
//
//	# Index the reference corpus
//	advisor seed --force
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath overrides ~/.config/stackadvisor/config.yaml.
	configPath string
	// serverURL is the base URL used by commands that talk to a running server.
	serverURL string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "advisor",
		Short: "Recommend agent frameworks for a use case",
		Long: `advisor turns a natural language use case into a ranked agent framework
recommendation with an architecture sketch, assumptions and risks.

Configuration is read from ~/.config/stackadvisor/config.yaml and
STACKADVISOR_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetVersionTemplate(versionString() + "\n")

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/stackadvisor/config.yaml)")
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "advisor server URL")

	root.AddCommand(
		newServeCmd(),
		newAdviseCmd(),
		newSeedCmd(),
		newFeedbackCmd(),
		newHealthCmd(),
		newVersionCmd(),
	)
	return root
}

func versionString() string {
	return fmt.Sprintf("stackadvisor by Fyrsmith Labs\nVersion:    %s\nCommit:     %s\nBuild Date: %s",
		version, gitCommit, buildDate)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}
