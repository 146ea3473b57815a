package ui

import (
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpmeet/internal/call"
	"github.com/BioHazard786/Warpmeet/internal/protocol"
	"github.com/BioHazard786/Warpmeet/internal/rtc"
)

type fakeController struct {
	mu      sync.Mutex
	snap    call.Snapshot
	updates chan struct{}
	calls   []string
	chat    []string
	err     error
}

func newFake() *fakeController {
	return &fakeController{
		snap: call.Snapshot{
			SelfID:   "me",
			RoomID:   "ABC234",
			Name:     "Sleepy Otter",
			JoinedAt: time.Now().Add(-65 * time.Second),
			Peers: []call.Peer{{
				Participant: protocol.Participant{ID: "p1", DisplayName: "alice", IsAudioMuted: true},
				Link:        rtc.StateConnected,
				BytesIn:     2048,
			}},
			Chat: []protocol.ChatMessage{{SenderID: "p1", SenderName: "alice", Text: "hi there"}},
		},
		updates: make(chan struct{}, 1),
	}
}

func (f *fakeController) Snapshot() call.Snapshot  { f.mu.Lock(); defer f.mu.Unlock(); return f.snap }
func (f *fakeController) Updates() <-chan struct{} { return f.updates }

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) ToggleAudio() error       { return f.record("audio") }
func (f *fakeController) ToggleVideo() error       { return f.record("video") }
func (f *fakeController) ToggleScreenShare() error { return f.record("screen") }

func (f *fakeController) SendChat(text string) error {
	f.mu.Lock()
	f.chat = append(f.chat, text)
	f.mu.Unlock()
	return f.record("chat")
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds msg to the model and runs whatever command comes back,
// returning the last message produced.
func press(t *testing.T, m *CallModel, msg tea.Msg) tea.Msg {
	t.Helper()
	_, cmd := m.Update(msg)
	return run(cmd)
}

func run(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var last tea.Msg
		for _, c := range batch {
			if m := run(c); m != nil {
				last = m
			}
		}
		return last
	}
	return msg
}

func TestCallModel_Toggles(t *testing.T) {
	f := newFake()
	m := NewCallModel(f)

	press(t, m, key("m"))
	press(t, m, key("v"))
	press(t, m, key("s"))

	assert.Equal(t, []string{"audio", "video", "screen"}, f.calls)
}

func TestCallModel_Chat(t *testing.T) {
	f := newFake()
	m := NewCallModel(f)

	m.Update(key("c"))
	require.True(t, m.input.Focused())

	// Keys go to the input while it has focus.
	for _, r := range "hello m" {
		m.Update(key(string(r)))
	}
	assert.Empty(t, f.calls)

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"hello m"}, f.chat)
	assert.False(t, m.input.Focused())

	m.Update(key("c"))
	m.Update(key("x"))
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, []string{"hello m"}, f.chat)
	assert.Empty(t, m.input.Value())
}

func TestCallModel_ActionError(t *testing.T) {
	f := newFake()
	f.err = errors.New("not in a call")
	m := NewCallModel(f)

	msg := press(t, m, key("m"))
	require.IsType(t, actionErrMsg{}, msg)
	m.Update(msg)
	assert.Contains(t, m.View(), "not in a call")
}

func TestCallModel_Quit(t *testing.T) {
	m := NewCallModel(newFake())
	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
}

func TestCallModel_RefreshesOnUpdate(t *testing.T) {
	f := newFake()
	m := NewCallModel(f)

	f.mu.Lock()
	f.snap.Peers = append(f.snap.Peers, call.Peer{
		Participant: protocol.Participant{ID: "p2", DisplayName: "bob"},
		Unreachable: true,
	})
	f.mu.Unlock()
	f.updates <- struct{}{}

	msg := m.waitForUpdates()()
	m.Update(msg)

	view := m.View()
	assert.Contains(t, view, "ABC234")
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "bob")
	assert.Contains(t, view, "unreachable")
	assert.Contains(t, view, "hi there")
	assert.Contains(t, view, "2.00 KB")
}

func TestCallModel_EmptyRoom(t *testing.T) {
	f := newFake()
	f.snap.Peers = nil
	m := NewCallModel(f)
	assert.Contains(t, m.View(), "Waiting for others")
}

func TestSummaryViews(t *testing.T) {
	out := CallSummaryView(CallSummary{RoomID: "ABC234", Duration: 187 * time.Second, PeersSeen: 3, Messages: 5, Received: 3 << 20})
	assert.Contains(t, out, "ABC234")
	assert.Contains(t, out, "3m07s")
	assert.Contains(t, out, "3.00 MB")

	out = RoomStatusView("ABC234", true, 2)
	assert.Contains(t, out, "open")
	assert.Contains(t, out, "2")

	out = RoomStatusView("NOPE22", false, 0)
	assert.Contains(t, out, "not found")
	assert.NotContains(t, out, "Participants")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", formatDuration(0))
	assert.Equal(t, "59s", formatDuration(59*time.Second))
	assert.Equal(t, "1m00s", formatDuration(time.Minute))
	assert.Equal(t, "1h02m", formatDuration(62*time.Minute))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
