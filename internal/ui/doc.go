// Package ui provides terminal UI components for the wsecho CLI.
//
// Two kinds of output are supported. One-shot components (Header, Result,
// tables) are rendered with Lipgloss through a Printer and written once.
// The chat command runs ChatModel, an interactive Bubble Tea program with a
// text input and a scrolling log of sent lines and server replies.
//
// # Chat
//
// ChatModel never reads from the connection itself. Pump runs the read
// loop in its own goroutine and hands results to the model as Incoming
// messages, so the caller can keep draining the same stream for the close
// acknowledgement after the program exits:
//
//	rd, wr := ch.Split()
//	done := make(chan struct{})
//	defer close(done)
//	incoming := ui.Pump(rd, done)
//	final, err := tea.NewProgram(ui.NewChatModel(url, wr, incoming)).Run()
//
// # Logging Integration
//
// This package expects logging to be controlled via the WSECHO_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent so log
// lines do not interleave with the rendered output.
package ui
