package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/wsecho/internal/protocol"
)

// maxChatLines bounds the chat history kept in memory
const maxChatLines = 500

// Sender writes messages to the server
type Sender interface {
	Send(msg protocol.Message) error
}

// Receiver reads messages from the server
type Receiver interface {
	Receive() (protocol.Message, error)
}

// Incoming is one result of reading from the server. It is delivered to the
// chat model as a tea.Msg.
type Incoming struct {
	Msg protocol.Message
	Err error
}

// disconnectedMsg reports that the incoming stream has ended
type disconnectedMsg struct{}

// sendFailedMsg reports a failed send
type sendFailedMsg struct{ err error }

// Pump reads from r until it returns an error or a close message and
// delivers every result on the returned channel, which is closed afterwards.
// Closing done stops delivery; the read loop then exits after its pending
// Receive returns.
func Pump(r Receiver, done <-chan struct{}) <-chan Incoming {
	out := make(chan Incoming, 16)
	go func() {
		defer close(out)
		for {
			msg, err := r.Receive()
			select {
			case out <- Incoming{Msg: msg, Err: err}:
			case <-done:
				return
			}
			if err != nil || msg.Kind == protocol.KindClose {
				return
			}
		}
	}()
	return out
}

type chatLine struct {
	style  int
	text   string
	marker string
}

const (
	lineSent = iota
	lineReceived
	lineNotice
)

// ChatModel is an interactive echo session: typed lines are sent as text
// messages and replies are appended to the log as they arrive.
type ChatModel struct {
	url      string
	input    textinput.Model
	lines    []chatLine
	sender   Sender
	incoming <-chan Incoming

	width  int
	height int

	closed    bool
	closeCode int
	err       error
}

// NewChatModel creates a chat model sending through s and reading replies
// from incoming (see Pump).
func NewChatModel(url string, s Sender, incoming <-chan Incoming) ChatModel {
	input := textinput.New()
	input.Placeholder = "type a message"
	input.Prompt = SentMarker + " "
	input.Focus()

	width, height := GetTerminalSize()
	input.Width = width - 4

	return ChatModel{
		url:      url,
		input:    input,
		sender:   s,
		incoming: incoming,
		width:    width,
		height:   height,
	}
}

// Closed reports whether the server ended the session
func (m ChatModel) Closed() bool {
	return m.closed
}

// CloseCode returns the close code the server sent, or 0
func (m ChatModel) CloseCode() int {
	return m.closeCode
}

// Err returns the error that ended the session, if any
func (m ChatModel) Err() error {
	return m.err
}

// Init implements tea.Model
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForIncoming())
}

func (m ChatModel) waitForIncoming() tea.Cmd {
	incoming := m.incoming
	return func() tea.Msg {
		in, ok := <-incoming
		if !ok {
			return disconnectedMsg{}
		}
		return in
	}
}

func (m ChatModel) send(text string) tea.Cmd {
	sender := m.sender
	return func() tea.Msg {
		if err := sender.Send(protocol.NewText(text)); err != nil {
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

// Update implements tea.Model
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := m.input.Value()
			if text == "" || m.closed {
				return m, nil
			}
			m.input.Reset()
			m.appendLine(lineSent, SentMarker, text)
			return m, m.send(text)
		}

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.height = msg.Height
		m.input.Width = m.width - 4
		return m, nil

	case Incoming:
		if msg.Err != nil {
			m.err = msg.Err
			m.closed = true
			m.appendLine(lineNotice, FailureMarker, "connection lost: "+msg.Err.Error())
			return m, tea.Quit
		}
		if msg.Msg.Kind == protocol.KindClose {
			m.closed = true
			m.closeCode = msg.Msg.CloseCode
			m.appendLine(lineNotice, WarningMarker, closeNotice(msg.Msg))
			return m, tea.Quit
		}
		m.appendLine(lineReceived, ReceivedMarker, FormatReply(msg.Msg))
		return m, m.waitForIncoming()

	case disconnectedMsg:
		m.closed = true
		return m, tea.Quit

	case sendFailedMsg:
		m.err = msg.err
		m.appendLine(lineNotice, FailureMarker, "send failed: "+msg.err.Error())
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// FormatReply renders a reply for display: text as-is, binary as hex.
func FormatReply(msg protocol.Message) string {
	if msg.Kind == protocol.KindBinary {
		return fmt.Sprintf("[%d bytes] % x", len(msg.Payload), msg.Payload)
	}
	return msg.Text()
}

func closeNotice(msg protocol.Message) string {
	notice := fmt.Sprintf("server closed the connection (%d %s)", msg.CloseCode, protocol.CloseCodeString(msg.CloseCode))
	if msg.CloseText != "" {
		notice += ": " + msg.CloseText
	}
	return notice
}

func (m *ChatModel) appendLine(style int, marker, text string) {
	m.lines = append(m.lines, chatLine{style: style, marker: marker, text: text})
	if len(m.lines) > maxChatLines {
		m.lines = m.lines[len(m.lines)-maxChatLines:]
	}
}

// View implements tea.Model
func (m ChatModel) View() string {
	var b strings.Builder

	b.WriteString(NewHeader("Echo chat", "wsecho chat", map[string]string{"Server": m.url}).SetWidth(m.width).Render())
	b.WriteString("\n")

	// Header takes 5 rows, input and help 3
	visible := m.height - 8
	if visible < 1 {
		visible = 1
	}
	lines := m.lines
	if len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	for _, line := range lines {
		text := line.marker + " " + line.text
		switch line.style {
		case lineSent:
			text = SentStyle.Render(text)
		case lineReceived:
			text = ReceivedStyle.Render(text)
		default:
			text = NoticeStyle.Render(text)
		}
		b.WriteString("  " + text + "\n")
	}

	b.WriteString("\n")
	if !m.closed {
		b.WriteString("  " + m.input.View() + "\n")
	}
	b.WriteString(HelpStyle.Render("  enter send · esc quit"))
	b.WriteString("\n")
	return b.String()
}
