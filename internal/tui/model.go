// Package tui is a terminal chat client for the relay.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/chat-relay/backend/internal/bridge"
)

const maxLines = 500

// Model is the root Bubble Tea model.
type Model struct {
	client    *Client
	validator bridge.Validator
	ctx       context.Context
	cancel    context.CancelFunc

	keys     KeyMap
	width    int
	height   int
	input    textinput.Model
	viewport viewport.Model

	lines     []string
	online    int64
	connected bool
}

// New creates the root model. client may be nil in tests.
func New(client *Client, maxLength int) Model {
	ctx, cancel := context.WithCancel(context.Background())

	in := textinput.New()
	in.Placeholder = fmt.Sprintf("Say something (%d characters max)", maxLength)
	in.Prompt = "> "
	in.Focus()

	return Model{
		client:    client,
		validator: bridge.Validator{MaxLength: maxLength},
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		input:     in,
		viewport:  viewport.New(80, 20),
	}
}

func (m Model) Init() tea.Cmd {
	if m.client == nil {
		return textinput.Blink
	}
	return tea.Batch(textinput.Blink, m.client.Listen(m.ctx))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		// title, status bar with border, input line
		m.viewport.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-4, 1)
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConnectedMsg:
		m.connected = true
		m.addLine(SystemStyle.Render("connected"))
		return m, m.client.ReadLoop()

	case DisconnectedMsg:
		if m.connected {
			m.addLine(SystemStyle.Render("connection lost, reconnecting"))
		}
		m.connected = false
		return m, m.client.Listen(m.ctx)

	case NoticeMsg:
		m.applyNotice(msg.Notice)
		return m, m.readNext()

	case ErrorMsg:
		m.addLine(WarningStyle.Render("server: " + Printable(msg.Reason)))
		return m, m.readNext()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) readNext() tea.Cmd {
	if m.client == nil {
		return nil
	}
	return m.client.ReadLoop()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		if m.client != nil {
			m.client.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		return m.send()

	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.HalfPageUp()
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.HalfPageDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) send() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if text == "" {
		return m, nil
	}
	// The relay drops invalid messages without a reply, so say so here.
	if !m.validator.IsValid(text) {
		m.addLine(WarningStyle.Render(fmt.Sprintf("not sent: messages are limited to %d characters", m.validator.MaxLength)))
		return m, nil
	}
	if !m.connected || m.client == nil {
		m.addLine(WarningStyle.Render("not sent: offline"))
		return m, nil
	}
	if err := m.client.Publish(text); err != nil {
		m.addLine(WarningStyle.Render("not sent: " + err.Error()))
		return m, nil
	}
	m.input.Reset()
	return m, nil
}

func (m *Model) applyNotice(n Notice) {
	switch bridge.NoticeType(n.Type) {
	case bridge.NoticePublish:
		meta := fmt.Sprintf("%s %s:%d", n.Timestamp().Local().Format("15:04:05"), Printable(n.Host), n.Port)
		m.addLine(MetaStyle.Render(meta) + " " + Printable(n.Message))
	case bridge.NoticeRegister:
		m.online = n.Online
		m.addLine(SystemStyle.Render("someone joined"))
	case bridge.NoticeClose:
		m.online = n.Online
		m.addLine(SystemStyle.Render("someone left"))
	}
}

func (m *Model) addLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	title := TitleStyle.Render("chat")

	conn := DisconnectedStyle.Render("offline")
	if m.connected {
		conn = ConnectedStyle.Render("connected")
	}
	status := StatusBarStyle.Width(max(m.width, 1)).Render(
		fmt.Sprintf("%s  online: %d  %s", conn, m.online, m.helpLine()),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.viewport.View(),
		status,
		m.input.View(),
	)
}

func (m Model) helpLine() string {
	bindings := []key.Binding{m.keys.Send, m.keys.ScrollUp, m.keys.ScrollDown, m.keys.Quit}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " · ")
}
