// Wsecho-server is a WebSocket echo server.
//
// Every connection is upgraded to WebSocket and handled independently: text
// messages are answered with the text reversed, binary messages are echoed
// unchanged, and a close from the client is acknowledged.
//
// Usage:
//
//	wsecho-server [addr] [flags]
//
// See 'wsecho-server --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/wsecho/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &serverFlags{}

	rootCmd := &cobra.Command{
		Use:   "wsecho-server [addr]",
		Short: "WebSocket echo server",
		Long: `A concurrent WebSocket echo server.

Each connection runs its own session: text messages are answered with the
text reversed (by character), binary messages are echoed unchanged, and a
close from the client is acknowledged before the connection ends.

Settings are read from the config file, then overridden by flags, then by
the positional address. SIGINT or SIGTERM shuts the server down gracefully.`,
		Example: `  # Listen on the default address (127.0.0.1:8080)
  wsecho-server

  # Listen on all interfaces, port 9000
  wsecho-server 0.0.0.0:9000

  # Limit message size and concurrent sessions
  wsecho-server --max-message-size 4096 --max-sessions 100

  # Expose health and stats, and advertise over mDNS
  wsecho-server --status-addr 127.0.0.1:8081 --mdns`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, args, flags)
		},
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	flags.register(rootCmd)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "wsecho-server %s (commit: %s, %s, %s)\n",
				info.Version, info.Commit, info.GoVersion, info.Platform)
		},
	}
}
