package call

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpmeet/internal/media"
	"github.com/BioHazard786/Warpmeet/internal/room"
	"github.com/BioHazard786/Warpmeet/internal/rtc"
	"github.com/BioHazard786/Warpmeet/internal/server"
	"github.com/BioHazard786/Warpmeet/internal/signalclient"
	"github.com/BioHazard786/Warpmeet/internal/signaling"
)

var discard = slog.New(slog.DiscardHandler)

func startServer(t *testing.T) string {
	t.Helper()
	hub := signaling.NewHub(room.NewDirectory(discard), discard)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewHandler(hub, server.Options{Logger: discard}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// offlineFactory gathers no candidates, so links only ever reach the
// state signaling gives them.
func offlineFactory(t *testing.T) rtc.PeerConnectionFactory {
	t.Helper()
	se := webrtc.SettingEngine{}
	se.SetInterfaceFilter(func(string) bool { return false })
	m := &webrtc.MediaEngine{}
	require.NoError(t, m.RegisterDefaultCodecs())
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))
	return func() (*webrtc.PeerConnection, error) {
		return api.NewPeerConnection(webrtc.Configuration{})
	}
}

func newCall(t *testing.T, url, roomID, name string) *Call {
	t.Helper()
	client := signalclient.NewClient(url, discard)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(client.Close)

	h := signalclient.NewHandler(client)
	go h.Start()

	local, err := media.NewLocal(name, discard)
	require.NoError(t, err)

	return New(Options{
		RoomID:             roomID,
		DisplayName:        name,
		Conn:               client,
		Events:             EventsFrom(h),
		Media:              local,
		NewPeerConnection:  offlineFactory(t),
		NegotiationTimeout: time.Minute,
		Logger:             discard,
	})
}

func joinAndRun(t *testing.T, c *Call) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Join(ctx))

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(runCtx)
	}()
	t.Cleanup(func() {
		c.Leave()
		stop()
		<-done
	})
}

func eventually(t *testing.T, c *Call, cond func(s Snapshot) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.Snapshot()) }, 5*time.Second, 10*time.Millisecond, msg)
}

func linked(id string) func(s Snapshot) bool {
	return func(s Snapshot) bool {
		p, ok := s.Peer(id)
		return ok && p.Link == rtc.StateConnected
	}
}

func TestCall_TwoParticipants(t *testing.T) {
	url := startServer(t)

	alice := newCall(t, url, "ROOM42", "alice")
	joinAndRun(t, alice)
	bob := newCall(t, url, "ROOM42", "bob")
	joinAndRun(t, bob)

	aliceID, bobID := alice.Snapshot().SelfID, bob.Snapshot().SelfID
	require.NotEmpty(t, aliceID)
	require.NotEqual(t, aliceID, bobID)

	// bob learned about alice from the join reply; alice offers to bob.
	eventually(t, alice, linked(bobID), "alice never linked to bob")
	eventually(t, bob, linked(aliceID), "bob never linked to alice")

	s := bob.Snapshot()
	require.Len(t, s.Peers, 1)
	assert.Equal(t, "alice", s.Peers[0].DisplayName)
	assert.Equal(t, 1, s.PeersSeen)

	t.Run("toggles", func(t *testing.T) {
		require.NoError(t, bob.ToggleAudio())
		assert.True(t, bob.Snapshot().Muted)
		eventually(t, alice, func(s Snapshot) bool {
			p, _ := s.Peer(bobID)
			return p.IsAudioMuted
		}, "alice never saw bob mute")

		require.NoError(t, bob.ToggleScreenShare())
		eventually(t, alice, func(s Snapshot) bool {
			p, _ := s.Peer(bobID)
			return p.IsScreenSharing
		}, "alice never saw bob share")

		require.NoError(t, bob.ToggleScreenShare())
		eventually(t, alice, func(s Snapshot) bool {
			p, _ := s.Peer(bobID)
			return !p.IsScreenSharing
		}, "alice never saw bob stop sharing")

		require.NoError(t, bob.ToggleVideo())
		eventually(t, alice, func(s Snapshot) bool {
			p, _ := s.Peer(bobID)
			return p.IsVideoOff
		}, "alice never saw bob turn video off")
	})

	t.Run("chat", func(t *testing.T) {
		require.NoError(t, alice.SendChat("  hello bob  "))
		for _, c := range []*Call{alice, bob} {
			eventually(t, c, func(s Snapshot) bool {
				return len(s.Chat) == 1 && s.Chat[0].Text == "hello bob" && s.Chat[0].SenderID == aliceID
			}, "chat message not delivered")
		}
		assert.ErrorIs(t, alice.SendChat("   "), ErrEmptyMessage)
	})

	t.Run("leave", func(t *testing.T) {
		bob.Leave()
		bob.Leave()
		eventually(t, alice, func(s Snapshot) bool { return len(s.Peers) == 0 }, "bob still in alice's roster")
		assert.Equal(t, 1, alice.Snapshot().PeersSeen)
	})
}

func TestCall_LateJoinerGetsHistory(t *testing.T) {
	url := startServer(t)

	alice := newCall(t, url, "HIST01", "alice")
	joinAndRun(t, alice)
	require.NoError(t, alice.SendChat("first"))
	eventually(t, alice, func(s Snapshot) bool { return len(s.Chat) == 1 }, "echo missing")

	carol := newCall(t, url, "HIST01", "carol")
	joinAndRun(t, carol)

	s := carol.Snapshot()
	require.Len(t, s.Chat, 1)
	assert.Equal(t, "first", s.Chat[0].Text)
	assert.Equal(t, "alice", s.Chat[0].SenderName)
}

func TestCall_JoinRejected(t *testing.T) {
	url := startServer(t)

	c := newCall(t, url, "ROOM42", "   ")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Join(ctx)
	require.ErrorIs(t, err, ErrJoinRejected)
	assert.Contains(t, err.Error(), "display name")
}

func TestCall_NotJoined(t *testing.T) {
	c := New(Options{RoomID: "ROOM42", Logger: discard})

	assert.ErrorIs(t, c.ToggleAudio(), ErrNotJoined)
	assert.ErrorIs(t, c.ToggleVideo(), ErrNotJoined)
	assert.ErrorIs(t, c.ToggleScreenShare(), ErrNotJoined)
	assert.ErrorIs(t, c.SendChat("hi"), ErrNotJoined)
	assert.ErrorIs(t, c.Run(context.Background()), ErrNotJoined)
}

func TestCall_RunStopsWhenDisconnected(t *testing.T) {
	url := startServer(t)

	client := signalclient.NewClient(url, discard)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	h := signalclient.NewHandler(client)
	go h.Start()

	local, err := media.NewLocal("dave", discard)
	require.NoError(t, err)
	c := New(Options{
		RoomID: "ROOM42", DisplayName: "dave",
		Conn: client, Events: EventsFrom(h), Media: local,
		NewPeerConnection: offlineFactory(t), Logger: discard,
	})
	require.NoError(t, c.Join(ctx))

	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()

	client.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after disconnect")
	}
	c.Leave()
}
