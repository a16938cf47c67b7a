// Package client talks to a wsecho server.
//
// A Client wraps a transport channel with request/reply helpers:
//
//	c, err := client.Dial(ctx, "ws://127.0.0.1:8080/", transport.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	reply, err := c.EchoText("hello") // "olleh"
//	code, err := c.Close()            // 1000
//
// RunLines drives a client from a line-oriented reader, which is how the
// chat command behaves when stdin is not a terminal.
package client
