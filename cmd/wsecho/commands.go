package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/muurk/wsecho/internal/client"
	"github.com/muurk/wsecho/internal/discovery"
	"github.com/muurk/wsecho/internal/protocol"
	"github.com/muurk/wsecho/internal/transport"
	"github.com/muurk/wsecho/internal/ui"
)

const (
	defaultTimeout = 10 * time.Second
	defaultURLHint = "$WSECHO_URL or " + client.DefaultURL

	// URLEnvVar overrides the default server URL
	URLEnvVar = "WSECHO_URL"
)

// clientOptions are the flags shared by commands that connect to a server
type clientOptions struct {
	url     string
	timeout time.Duration
}

// serverURL returns the --url flag, then $WSECHO_URL, then the default.
func (o *clientOptions) serverURL() string {
	if o.url != "" {
		return o.url
	}
	if env := os.Getenv(URLEnvVar); env != "" {
		return env
	}
	return client.DefaultURL
}

// transportOptions returns channel options with the configured timeouts.
// Replies are awaited for at most the timeout; idle chat sessions are not
// timed out.
func (o *clientOptions) transportOptions(idle bool) transport.Options {
	opts := transport.DefaultOptions()
	opts.HandshakeTimeout = o.timeout
	opts.WriteTimeout = o.timeout
	opts.ReadTimeout = o.timeout
	opts.MaxMessageSize = 0
	if idle {
		opts.ReadTimeout = 0
	}
	return opts
}

func (o *clientOptions) dial(ctx context.Context, idle bool) (*client.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return client.Dial(dialCtx, o.serverURL(), o.transportOptions(idle))
}

var connectTroubleshooting = []string{
	"Check that wsecho-server is running",
	"Verify the --url host and port",
	"Run 'wsecho discover' to find servers on the local network",
}

// sendCmd sends messages and prints the replies
func newSendCmd(opts *clientOptions) *cobra.Command {
	var (
		binary bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Send messages and print the replies",
		Long: `Send each argument as one message and print the server's reply.

Text replies are printed one per line. With --binary, arguments are hex
encoded bytes and replies are printed as hex.`,
		Example: `  # Send a text message
  wsecho send hello

  # Several messages over one connection
  wsecho send hello racecar

  # Binary message to a specific server
  wsecho send --url ws://192.168.1.10:8080/ --binary deadbeef

  # JSON output for scripting
  wsecho send --format json hello`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, args, opts, binary, format)
		},
	}

	cmd.Flags().BoolVar(&binary, "binary", false, "Send hex-encoded arguments as binary messages")
	cmd.Flags().StringVar(&format, "format", "plain", "Output format (plain, detailed, json)")
	return cmd
}

// exchange is one sent message and its reply
type exchange struct {
	Sent  string `json:"sent"`
	Reply string `json:"reply"`
	Kind  string `json:"kind"`
}

func runSend(cmd *cobra.Command, args []string, opts *clientOptions, binary bool, format string) error {
	switch format {
	case "plain", "detailed", "json":
	default:
		return fmt.Errorf("unknown format %q (expected plain, detailed or json)", format)
	}

	messages := make([]protocol.Message, 0, len(args))
	for _, arg := range args {
		if !binary {
			messages = append(messages, protocol.NewText(arg))
			continue
		}
		data, err := hex.DecodeString(arg)
		if err != nil {
			return fmt.Errorf("invalid hex %q: %w", arg, err)
		}
		messages = append(messages, protocol.NewBinary(data))
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())

	c, err := opts.dial(cmd.Context(), false)
	if err != nil {
		if format == "detailed" {
			printer.PrintResult(ui.NewFailureResult("Connect failed", err, connectTroubleshooting))
		}
		return err
	}

	exchanges := make([]exchange, 0, len(messages))
	for i, msg := range messages {
		reply, err := c.Echo(msg)
		if err != nil {
			_ = c.Abort()
			return fmt.Errorf("message %d: %w", i+1, err)
		}
		exchanges = append(exchanges, exchange{
			Sent:  args[i],
			Reply: formatPayload(reply),
			Kind:  reply.Kind.String(),
		})
	}

	if _, err := c.Close(); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(exchanges, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		printer.Println(string(data))
	case "detailed":
		result := ui.NewSuccessResult(fmt.Sprintf("%d repl%s from %s", len(exchanges), plural(len(exchanges), "y", "ies"), c.URL()))
		for _, ex := range exchanges {
			result.AddDetail(ex.Sent, ex.Reply)
		}
		printer.PrintResult(result)
	default:
		for _, ex := range exchanges {
			printer.Println(ex.Reply)
		}
	}
	return nil
}

func formatPayload(msg protocol.Message) string {
	if msg.Kind == protocol.KindBinary {
		return hex.EncodeToString(msg.Payload)
	}
	return msg.Text()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// chatCmd runs an interactive session
func newChatCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with a server interactively",
		Long: `Open a session and send each line you type, showing the replies.

On a terminal this runs a full screen chat. When stdin or stdout is not a
terminal, lines are read from stdin and replies written to stdout, one per
line, until end of input.`,
		Example: `  # Interactive chat with the default server
  wsecho chat

  # Pipe lines through a remote server
  printf 'hello\nracecar\n' | wsecho chat --url ws://192.168.1.10:8080/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}
}

func runChat(cmd *cobra.Command, opts *clientOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := opts.dial(ctx, true)
	if err != nil {
		return err
	}

	in, inFile := cmd.InOrStdin().(*os.File)
	out, outFile := cmd.OutOrStdout().(*os.File)
	if !inFile || !outFile || !ui.IsTerminal(in) || !ui.IsTerminal(out) {
		return client.RunLines(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	rd, wr := c.Channel().Split()
	done := make(chan struct{})
	defer close(done)
	incoming := ui.Pump(rd, done)

	final, err := tea.NewProgram(ui.NewChatModel(c.URL(), wr, incoming), tea.WithAltScreen()).Run()
	if err != nil {
		_ = c.Abort()
		return fmt.Errorf("chat UI failed: %w", err)
	}

	model, _ := final.(ui.ChatModel)
	if model.Closed() {
		if code := model.CloseCode(); code != 0 {
			_ = wr.SendClose(code, "")
		}
		_ = c.Abort()
		if model.CloseCode() == 0 {
			return model.Err()
		}
		return nil
	}

	// Closing handshake: the pump delivers the acknowledgement.
	_ = wr.SendClose(protocol.CloseNormal, "")
	timer := time.NewTimer(transport.CloseGracePeriod)
	defer timer.Stop()
	for {
		select {
		case in, ok := <-incoming:
			if ok && in.Err == nil && in.Msg.Kind != protocol.KindClose {
				continue
			}
		case <-timer.C:
		}
		return c.Abort()
	}
}

// discoverCmd finds servers over mDNS
func newDiscoverCmd() *cobra.Command {
	var (
		timeout time.Duration
		format  string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find wsecho servers on the local network",
		Long: `Browse mDNS for wsecho servers (service type ` + discovery.ServiceType + `).

Servers started with --mdns answer with their address, WebSocket path and
version.`,
		Example: `  # Browse for 5 seconds (default)
  wsecho discover

  # Longer browse, JSON output
  wsecho discover --timeout 15s --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd, timeout, format)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultScanTimeout, "How long to wait for answers")
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, json)")
	return cmd
}

// discovered is the JSON form of a found server
type discovered struct {
	Instance string `json:"instance"`
	URL      string `json:"url"`
	Hostname string `json:"hostname"`
	Version  string `json:"version,omitempty"`
}

func runDiscover(cmd *cobra.Command, timeout time.Duration, format string) error {
	printer := ui.NewPrinter(cmd.OutOrStdout())

	scanner := discovery.NewScanner()
	scanner.Timeout = timeout

	services, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	sort.Slice(services, func(i, j int) bool {
		return services[i].Instance < services[j].Instance
	})

	if format == "json" {
		out := make([]discovered, 0, len(services))
		for _, svc := range services {
			out = append(out, discovered{
				Instance: svc.Instance,
				URL:      svc.URL(),
				Hostname: svc.Hostname,
				Version:  svc.Version(),
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		printer.Println(string(data))
		return nil
	}

	if len(services) == 0 {
		printer.PrintResult(ui.NewWarningResult("No servers found",
			ui.Detail{Key: "Service", Value: discovery.ServiceType},
			ui.Detail{Key: "Timeout", Value: timeout.String()},
		))
		printer.Println("Start a server with 'wsecho-server --mdns' or try a longer --timeout.")
		return nil
	}

	rows := make([][]string, 0, len(services))
	for _, svc := range services {
		rows = append(rows, []string{svc.Instance, svc.URL(), svc.Version(), svc.Hostname})
	}
	printer.PrintTable([]string{"Instance", "URL", "Version", "Host"}, rows)
	printer.Println("Found " + strconv.Itoa(len(services)) + " server(s). Connect with 'wsecho chat --url <URL>'.")
	return nil
}
