package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/BioHazard786/Warpmeet/internal/call"
	"github.com/BioHazard786/Warpmeet/internal/rtc"
)

const chatLines = 8

// Controller is what the call view drives. *call.Call implements it.
type Controller interface {
	Snapshot() call.Snapshot
	Updates() <-chan struct{}
	ToggleAudio() error
	ToggleVideo() error
	ToggleScreenShare() error
	SendChat(text string) error
}

type TickMsg time.Time

type updateMsg struct{}

type actionErrMsg struct{ err error }

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// CallModel is the Bubble Tea model for an ongoing call.
type CallModel struct {
	ctrl    Controller
	snap    call.Snapshot
	input   textinput.Model
	spinner spinner.Model
	now     time.Time
	status  string
	width   int

	quitting bool
}

// NewCallModel creates the view for ctrl.
func NewCallModel(ctrl Controller) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "say something"
	in.CharLimit = 2000
	in.Prompt = IconChat + " "

	return &CallModel{
		ctrl:    ctrl,
		snap:    ctrl.Snapshot(),
		input:   in,
		spinner: s,
		now:     time.Now(),
		width:   80,
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdates(), tickCmd())
}

func (m *CallModel) waitForUpdates() tea.Cmd {
	updates := m.ctrl.Updates()
	return func() tea.Msg {
		<-updates
		return updateMsg{}
	}
}

func (m *CallModel) act(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return actionErrMsg{err}
		}
		return nil
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		if m.input.Focused() {
			return m, m.updateInput(msg)
		}
		switch msg.String() {
		case "q":
			m.quitting = true
			return m, tea.Quit
		case "m":
			cmds = append(cmds, m.act(m.ctrl.ToggleAudio))
		case "v":
			cmds = append(cmds, m.act(m.ctrl.ToggleVideo))
		case "s":
			cmds = append(cmds, m.act(m.ctrl.ToggleScreenShare))
		case "c", "enter":
			m.status = ""
			cmds = append(cmds, m.input.Focus())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case TickMsg:
		m.now = time.Time(msg)
		m.snap = m.ctrl.Snapshot()
		cmds = append(cmds, tickCmd())

	case updateMsg:
		m.snap = m.ctrl.Snapshot()
		cmds = append(cmds, m.waitForUpdates())

	case actionErrMsg:
		m.status = msg.err.Error()

	default:
		if m.input.Focused() {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *CallModel) updateInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		m.input.Blur()
		if text == "" {
			return nil
		}
		return m.act(func() error { return m.ctrl.SendChat(text) })
	case tea.KeyEsc:
		m.input.Reset()
		m.input.Blur()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}
	s := m.snap
	var b strings.Builder

	elapsed := ""
	if !s.JoinedAt.IsZero() {
		elapsed = formatDuration(m.now.Sub(s.JoinedAt))
	}
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Room %s", IconRoom, s.RoomID)))
	b.WriteString(" " + MutedStyle.Render(fmt.Sprintf("%s %s", IconTime, elapsed)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s  %s\n\n", IconPeer, BoldStyle.Render(s.Name), selfStatus(s)))

	if len(s.Peers) == 0 {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), MutedStyle.Render("Waiting for others to join...")))
	} else {
		b.WriteString(RosterView(s.Peers))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(chatView(s, m.width))

	if m.input.Focused() {
		b.WriteString("\n" + m.input.View())
	}
	if m.status != "" {
		b.WriteString("\n" + ErrorStyle.Render(m.status))
	} else if s.LastError != "" {
		b.WriteString("\n" + WarningStyle.Render(s.LastError))
	}

	help := "m mute • v camera • s share screen • c chat • q leave"
	if m.input.Focused() {
		help = "enter send • esc cancel"
	}
	b.WriteString("\n" + FooterStyle.Render(help))
	return b.String()
}

func selfStatus(s call.Snapshot) string {
	parts := []string{mic(s.Muted), camera(s.VideoOff)}
	if s.Sharing {
		parts = append(parts, StatusStyle.Render(IconScreen+" sharing"))
	}
	return strings.Join(parts, " ")
}

func mic(muted bool) string {
	if muted {
		return IconMuted
	}
	return IconMic
}

func camera(off bool) string {
	if off {
		return IconNoCam
	}
	return IconCamera
}

func linkText(p call.Peer) string {
	switch {
	case p.Unreachable:
		return ErrorStyle.Render("unreachable")
	case p.Link == rtc.StateConnected:
		return SuccessStyle.Render("connected")
	case p.Link == rtc.StateDisconnected:
		return WarningStyle.Render("reconnecting")
	default:
		return MutedStyle.Render(p.Link.String())
	}
}

// RosterView renders the other participants as a table.
func RosterView(peers []call.Peer) string {
	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		screen := ""
		if p.IsScreenSharing {
			screen = IconScreen
		}
		rows = append(rows, []string{
			truncate(p.DisplayName, 24),
			mic(p.IsAudioMuted),
			camera(p.IsVideoOff),
			screen,
			linkText(p),
			formatBytes(p.BytesIn),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Name", "Mic", "Cam", "Screen", "Link", "Received").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func chatView(s call.Snapshot, width int) string {
	if len(s.Chat) == 0 {
		return MutedStyle.Render("No messages yet")
	}
	msgs := s.Chat
	if len(msgs) > chatLines {
		msgs = msgs[len(msgs)-chatLines:]
	}
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		name := msg.SenderName
		if msg.SenderID == s.SelfID {
			name = "you"
		}
		line := fmt.Sprintf("%s %s %s",
			MutedStyle.Render(msg.SentAt.Local().Format("15:04")),
			ChatNameStyle.Render(name+":"),
			msg.Text,
		)
		lines = append(lines, line)
	}
	return BoxStyle.Width(max(width-4, 20)).Render(strings.Join(lines, "\n"))
}

// RunCall shows the call view until the user leaves or ctx ends.
func RunCall(ctx context.Context, ctrl Controller) error {
	// Inline mode keeps earlier output visible.
	program := tea.NewProgram(NewCallModel(ctrl))
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			program.Quit()
		case <-done:
		}
	}()
	_, err := program.Run()
	return err
}
