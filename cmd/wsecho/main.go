// Wsecho is the command line client for wsecho servers.
//
// It sends one-off messages, runs an interactive chat session, and finds
// servers advertised on the local network.
//
// Usage:
//
//	wsecho [command] [flags]
//
// See 'wsecho --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/wsecho/internal/logging"
	"github.com/muurk/wsecho/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &clientOptions{}

	rootCmd := &cobra.Command{
		Use:   "wsecho",
		Short: "wsecho client",
		Long: `Command line client for wsecho servers.

Send messages and print the replies, chat interactively, or discover
servers advertised over mDNS. Logging is silent unless WSECHO_LOG_LEVEL is
set.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.InitializeFromEnv()
		},
	}

	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&opts.url, "url", "", "Server URL (default "+defaultURLHint+")")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "Handshake and reply timeout")

	rootCmd.AddCommand(newSendCmd(opts))
	rootCmd.AddCommand(newChatCmd(opts))
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wsecho %s\n", version.Full())
		},
	}
}
