package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wsecho/internal/logging"
	"github.com/muurk/wsecho/internal/protocol"
	"github.com/muurk/wsecho/internal/transport"
)

// DefaultURL is the server address used when none is given
const DefaultURL = "ws://127.0.0.1:8080/"

// ClosedError reports that the server closed the connection instead of
// replying.
type ClosedError struct {
	Code int
	Text string
}

func (e *ClosedError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("server closed the connection (%d %s)", e.Code, protocol.CloseCodeString(e.Code))
	}
	return fmt.Sprintf("server closed the connection (%d %s: %s)", e.Code, protocol.CloseCodeString(e.Code), e.Text)
}

// Client is a connection to a wsecho server
type Client struct {
	url string
	ch  *transport.Channel
}

// Dial connects to the server at url.
func Dial(ctx context.Context, url string, opts transport.Options) (*Client, error) {
	ch, err := transport.Dial(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	logging.Debug("Connected", zap.String("url", url), zap.String("remote_addr", ch.RemoteAddr()))
	return &Client{url: url, ch: ch}, nil
}

// URL returns the address the client dialed
func (c *Client) URL() string {
	return c.url
}

// Channel returns the underlying message channel
func (c *Client) Channel() *transport.Channel {
	return c.ch
}

// Echo sends msg and waits for the server's reply. If the server closes the
// connection instead, the close is acknowledged and a *ClosedError returned.
func (c *Client) Echo(msg protocol.Message) (protocol.Message, error) {
	if err := c.ch.Send(msg); err != nil {
		return protocol.Message{}, err
	}

	reply, err := c.ch.Receive()
	if err != nil {
		return protocol.Message{}, err
	}
	if reply.Kind == protocol.KindClose {
		_ = c.ch.SendClose(reply.CloseCode, "")
		return protocol.Message{}, &ClosedError{Code: reply.CloseCode, Text: reply.CloseText}
	}
	return reply, nil
}

// EchoText sends a text message and returns the reply text.
func (c *Client) EchoText(s string) (string, error) {
	reply, err := c.Echo(protocol.NewText(s))
	if err != nil {
		return "", err
	}
	return reply.Text(), nil
}

// Close performs the closing handshake: it sends a normal close frame, waits
// up to transport.CloseGracePeriod for the server's acknowledgement and then
// closes the connection. It returns the code the server acknowledged with.
func (c *Client) Close() (int, error) {
	defer func() { _ = c.ch.Close() }()

	if err := c.ch.SendClose(protocol.CloseNormal, ""); err != nil {
		if errors.Is(err, protocol.ErrCloseSent) {
			return 0, nil
		}
		return 0, err
	}

	for {
		msg, err := c.ch.Receive()
		if err != nil {
			return 0, fmt.Errorf("waiting for close acknowledgement: %w", err)
		}
		if msg.Kind == protocol.KindClose {
			return msg.CloseCode, nil
		}
		// Replies still in flight are dropped
	}
}

// Abort closes the connection without a closing handshake.
func (c *Client) Abort() error {
	return c.ch.Close()
}

// RunLines echoes every line read from in and writes each reply to out, one
// per line. It stops at end of input, when ctx is cancelled, or on the first
// error, and always performs the closing handshake. Cancellation is not
// reported as an error.
func RunLines(ctx context.Context, c *Client, in io.Reader, out io.Writer) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// Unblocks a pending Receive
			_ = c.ch.SendClose(protocol.CloseGoingAway, "")
			time.AfterFunc(transport.CloseGracePeriod, func() { _ = c.Abort() })
		case <-stop:
		}
	}()

	scanner := bufio.NewScanner(in)
	var runErr error
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		reply, err := c.EchoText(scanner.Text())
		if err != nil {
			runErr = err
			break
		}
		if _, err := fmt.Fprintln(out, reply); err != nil {
			runErr = err
			break
		}
	}
	if runErr == nil {
		runErr = scanner.Err()
	}

	if _, err := c.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if ctx.Err() != nil {
		return nil
	}
	return runErr
}
