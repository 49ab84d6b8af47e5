package room

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	kindSender = "sender"
	kindBot    = "bot"
	kindError  = "error"
)

const wheelStep = 3

type roomMessage struct {
	kind    string
	content string
}

type replyMsg struct {
	text string
	err  error
}

type model struct {
	ctx   context.Context
	reply ReplyFunc
	info  Info

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []roomMessage
	width     int
	height    int
	isLoading bool
	lastErr   string
	followLog bool
}

func newModel(ctx context.Context, reply ReplyFunc, info Info) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("222"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something to @" + info.BotName + "..."
	in.Focus()
	in.CharLimit = 0

	m := &model{
		ctx:       ctx,
		reply:     reply,
		info:      info,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
	}
	m.resizeComponents()
	return m
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			return m, m.submit()
		}
		if m.handleViewportKey(typed) {
			return m, nil
		}
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case replyMsg:
		m.isLoading = false
		switch {
		case typed.err != nil:
			m.lastErr = typed.err.Error()
			m.messages = append(m.messages, roomMessage{kind: kindError, content: typed.err.Error()})
		case strings.TrimSpace(typed.text) != "":
			m.lastErr = ""
			m.messages = append(m.messages, roomMessage{kind: kindBot, content: typed.text})
		}
		m.refreshViewport(false)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit posts the typed line into the room and asks the responder for a reply.
func (m *model) submit() tea.Cmd {
	if m.isLoading {
		return nil
	}

	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	if isExitCommand(text) {
		return tea.Quit
	}

	m.lastErr = ""
	m.messages = append(m.messages, roomMessage{kind: kindSender, content: text})
	m.input.SetValue("")
	m.isLoading = true
	m.followLog = true
	m.refreshViewport(true)

	return tea.Batch(m.spinner.Tick, replyCmd(m.ctx, m.reply, text))
}

func (m *model) View() string {
	header := m.theme.header.Width(m.width - 2).Render("# local room")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"bot:@%s · you:%s · responder:%s · messages:%d",
		displayOrNA(m.info.BotName),
		displayOrNA(m.info.Sender),
		displayOrNA(m.info.Responder),
		len(m.messages),
	))
	line := m.theme.divider.Render(strings.Repeat("─", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send · PgUp/PgDn scroll · End latest · Esc leave")
	if m.isLoading {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s @%s is typing...", m.spinner.View(), m.info.BotName))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("last reply failed, try again")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(40, m.width-6)
	h := max(6, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.messages))
	for _, item := range m.messages {
		sections = append(sections, m.renderMessage(item))
	}

	m.viewport.SetContent(strings.Join(sections, "\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderMessage(item roomMessage) string {
	body := strings.TrimSpace(item.content)
	width := m.viewport.Width - 2

	switch item.kind {
	case kindSender:
		return lipgloss.JoinVertical(lipgloss.Left,
			m.theme.senderName.Render(displayOrNA(m.info.Sender)),
			m.theme.senderBox.Width(width).Render("@"+m.info.BotName+" "+body),
		)
	case kindBot:
		return lipgloss.JoinVertical(lipgloss.Left,
			m.theme.botName.Render(displayOrNA(m.info.BotName)),
			m.theme.botBox.Width(width).Render(body),
		)
	default:
		return lipgloss.JoinVertical(lipgloss.Left,
			m.theme.errorTitle.Render("error"),
			m.theme.errorBox.Width(width).Render(body),
		)
	}
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f":
		m.viewport.PageDown()
		m.followLog = m.viewport.AtBottom()
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.SetYOffset(max(0, m.viewport.YOffset-wheelStep))
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.SetYOffset(m.viewport.YOffset + wheelStep)
		m.followLog = m.viewport.AtBottom()
		return true
	default:
		return false
	}
}

func replyCmd(ctx context.Context, reply ReplyFunc, text string) tea.Cmd {
	return func() tea.Msg {
		if reply == nil {
			return replyMsg{err: fmt.Errorf("no responder configured")}
		}
		answer, err := reply(ctx, text)
		return replyMsg{text: answer, err: err}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
