// Package server implements the WebSocket echo server: the accept loop and
// the per-connection session state machine.
//
// # Sessions
//
// Every accepted connection gets its own goroutine running a Session:
//
//	Handshaking -> Open -> Closing -> Closed
//	      \          \
//	       `----------`--> Failed
//
// In Open the session receives one message, computes the reply with the
// transform and sends it before receiving the next one. Text and binary
// replies keep the kind of the message they answer. A close frame from the
// peer is acknowledged with the same code. Handshake and transport errors
// end only the session they occur in.
//
// # Usage Example
//
//	srv := server.New(&server.Config{
//	    Addr:      "127.0.0.1:8080",
//	    Transport: transport.DefaultOptions(),
//	})
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	// Blocks until ctx is cancelled, then drains sessions
//	if err := srv.ListenAndServe(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Admission Limit
//
// Config.MaxSessions bounds the number of concurrent sessions. Connections
// over the limit are answered with HTTP 503 and closed. Zero means no limit.
//
// # Graceful Shutdown
//
// Shutdown (or cancelling the context passed to Serve):
//  1. Stops accepting new connections
//  2. Sends close 1001 (going away) to every open session
//  3. Waits for sessions to finish, closing stragglers after the close
//     grace period
package server
