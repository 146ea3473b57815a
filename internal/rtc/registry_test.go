package rtc

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// network delivers signaling between in-process registries asynchronously
// and in order, like the real server does.
type network struct {
	mu     sync.Mutex
	peers  map[string]*Registry
	offers map[string]int
	answer map[string]int

	queue chan func()
	gate  chan struct{}
	once  sync.Once
}

func newNetwork(t *testing.T, paused bool) *network {
	n := &network{
		peers:  make(map[string]*Registry),
		offers: make(map[string]int),
		answer: make(map[string]int),
		queue:  make(chan func(), 4096),
		gate:   make(chan struct{}),
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-n.gate:
		case <-stop:
			return
		}
		for {
			select {
			case fn := <-n.queue:
				fn()
			case <-stop:
				return
			}
		}
	}()
	if !paused {
		n.start()
	}
	t.Cleanup(func() { close(stop) })
	return n
}

func (n *network) start() {
	n.once.Do(func() { close(n.gate) })
}

func (n *network) offersFrom(id string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offers[id]
}

func (n *network) deliver(to string, fn func(r *Registry)) {
	n.queue <- func() {
		n.mu.Lock()
		r, ok := n.peers[to]
		n.mu.Unlock()
		if ok {
			fn(r)
		}
	}
}

type netSignaler struct {
	n    *network
	self string
}

func (s netSignaler) SendOffer(to string, desc webrtc.SessionDescription) error {
	s.n.mu.Lock()
	s.n.offers[s.self]++
	s.n.mu.Unlock()
	s.n.deliver(to, func(r *Registry) { r.OnOfferReceived(s.self, desc) })
	return nil
}

func (s netSignaler) SendAnswer(to string, desc webrtc.SessionDescription) error {
	s.n.mu.Lock()
	s.n.answer[s.self]++
	s.n.mu.Unlock()
	s.n.deliver(to, func(r *Registry) { r.OnAnswerReceived(s.self, desc) })
	return nil
}

func (s netSignaler) SendCandidate(to string, c webrtc.ICECandidateInit) error {
	s.n.deliver(to, func(r *Registry) { r.OnICECandidateReceived(s.self, c) })
	return nil
}

func testTrack(t *testing.T, kind webrtc.RTPCodecType, id string) webrtc.TrackLocal {
	t.Helper()
	mime := webrtc.MimeTypeOpus
	if kind == webrtc.RTPCodecTypeVideo {
		mime = webrtc.MimeTypeVP8
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, "warpmeet")
	require.NoError(t, err)
	return track
}

// offlineFactory gathers no candidates, so transports never connect and
// every state change comes from signaling alone.
func offlineFactory(t *testing.T) PeerConnectionFactory {
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

func (n *network) join(t *testing.T, id string, timeout time.Duration) *Registry {
	t.Helper()
	r := NewRegistry(Options{
		SelfID:             id,
		NewPeerConnection:  offlineFactory(t),
		Signaler:           netSignaler{n: n, self: id},
		Audio:              testTrack(t, webrtc.RTPCodecTypeAudio, "audio-"+id),
		Video:              testTrack(t, webrtc.RTPCodecTypeVideo, "camera-"+id),
		NegotiationTimeout: timeout,
		Logger:             slog.New(slog.DiscardHandler),
	})
	n.mu.Lock()
	n.peers[id] = r
	n.mu.Unlock()
	t.Cleanup(r.TeardownAll)
	return r
}

func requireState(t *testing.T, r *Registry, remoteID string, want State) *Session {
	t.Helper()
	var s *Session
	require.Eventually(t, func() bool {
		var ok bool
		s, ok = r.Session(remoteID)
		return ok && s.State() == want
	}, 5*time.Second, 10*time.Millisecond, "session %s never reached %s", remoteID, want)
	return s
}

// pair connects a (the existing member) to b (the newcomer).
func pair(t *testing.T, a, b *Registry) {
	t.Helper()
	require.NoError(t, a.OnParticipantJoined(b.selfID))
	requireState(t, a, b.selfID, StateConnected)
	requireState(t, b, a.selfID, StateConnected)
}

func TestRegistry_OfferAnswerReachesConnected(t *testing.T) {
	n := newNetwork(t, false)
	alice := n.join(t, "alice", 0)
	bob := n.join(t, "bob", 0)

	pair(t, alice, bob)

	assert.Equal(t, 1, n.offersFrom("alice"))
	assert.Zero(t, n.offersFrom("bob"))
	assert.Equal(t, 1, alice.Len())
	assert.Equal(t, 1, bob.Len())

	s, _ := alice.Session("bob")
	assert.NotNil(t, s.PeerConnection().RemoteDescription())
	assert.Equal(t, "bob", s.RemoteID())
}

func TestRegistry_DuplicateJoinIgnored(t *testing.T) {
	n := newNetwork(t, true)
	alice := n.join(t, "alice", 0)

	require.NoError(t, alice.OnParticipantJoined("bob"))
	first, ok := alice.Session("bob")
	require.True(t, ok)

	require.NoError(t, alice.OnParticipantJoined("bob"))
	second, _ := alice.Session("bob")

	assert.Same(t, first, second)
	assert.Equal(t, 1, alice.Len())
	assert.Equal(t, 1, n.offersFrom("alice"))
	assert.Equal(t, StateHaveLocalOffer, first.State())
}

func TestRegistry_SelfJoinIgnored(t *testing.T) {
	n := newNetwork(t, true)
	alice := n.join(t, "alice", 0)

	require.NoError(t, alice.OnParticipantJoined("alice"))
	assert.Zero(t, alice.Len())
}

func TestRegistry_BuffersCandidatesUntilRemoteDescription(t *testing.T) {
	n := newNetwork(t, true)
	alice := n.join(t, "alice", 0)

	// A candidate with no session at all is dropped.
	mid := "0"
	idx := uint16(0)
	cand := webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.10 50000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
	require.NoError(t, alice.OnICECandidateReceived("bob", cand))
	assert.Zero(t, alice.Len())

	require.NoError(t, alice.OnParticipantJoined("bob"))
	s, _ := alice.Session("bob")

	require.NoError(t, alice.OnICECandidateReceived("bob", cand))
	require.NoError(t, alice.OnICECandidateReceived("bob", cand))
	s.mu.Lock()
	assert.Len(t, s.pending, 2)
	s.mu.Unlock()

	// Answer from a bare pion peer standing in for bob.
	remote, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer remote.Close()
	require.NoError(t, remote.SetRemoteDescription(*s.PeerConnection().LocalDescription()))
	answer, err := remote.CreateAnswer(nil)
	require.NoError(t, err)
	require.NoError(t, remote.SetLocalDescription(answer))

	require.NoError(t, alice.OnAnswerReceived("bob", answer))

	s.mu.Lock()
	assert.Empty(t, s.pending)
	s.mu.Unlock()
	assert.Equal(t, StateConnected, s.State())
}

func TestRegistry_UnexpectedAnswerDropped(t *testing.T) {
	n := newNetwork(t, false)
	alice := n.join(t, "alice", 0)
	bob := n.join(t, "bob", 0)
	pair(t, alice, bob)

	s, _ := alice.Session("bob")
	require.NoError(t, alice.OnAnswerReceived("bob", *s.PeerConnection().RemoteDescription()))
	assert.Equal(t, StateConnected, s.State())

	require.NoError(t, alice.OnAnswerReceived("carol", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}))
	assert.Equal(t, 1, alice.Len())
}

func TestRegistry_OfferCollision(t *testing.T) {
	n := newNetwork(t, true)
	alice := n.join(t, "alice", 0)
	bob := n.join(t, "bob", 0)

	// Both sides offer before either offer is delivered.
	require.NoError(t, alice.OnParticipantJoined("bob"))
	require.NoError(t, bob.OnParticipantJoined("alice"))
	bobFirst, _ := bob.Session("alice")
	n.start()

	requireState(t, alice, "bob", StateConnected)
	bobSession := requireState(t, bob, "alice", StateConnected)

	// The higher id gave up its own offer and answered.
	assert.NotSame(t, bobFirst, bobSession)
	assert.Equal(t, StateClosed, bobFirst.State())
	assert.Equal(t, 1, alice.Len())
	assert.Equal(t, 1, bob.Len())

	n.mu.Lock()
	assert.Equal(t, 1, n.answer["bob"])
	assert.Zero(t, n.answer["alice"])
	n.mu.Unlock()
}

func TestRegistry_ScreenShareSwapsWithoutRenegotiation(t *testing.T) {
	n := newNetwork(t, false)
	alice := n.join(t, "alice", 0)
	bob := n.join(t, "bob", 0)
	pair(t, alice, bob)

	s, _ := alice.Session("bob")
	camera := s.video.Track()
	mic := s.audio.Track()
	screen := testTrack(t, webrtc.RTPCodecTypeVideo, "screen-alice")

	require.NoError(t, alice.ReplaceOutboundVideoTrack(screen, true))
	assert.True(t, alice.ScreenSharing())
	assert.Same(t, screen, s.video.Track())
	assert.Same(t, mic, s.audio.Track())

	require.NoError(t, alice.ReplaceOutboundVideoTrack(camera, false))
	assert.False(t, alice.ScreenSharing())
	assert.Same(t, camera, s.video.Track())
	assert.Same(t, mic, s.audio.Track(), "audio must survive the swap back")

	assert.Equal(t, 1, n.offersFrom("alice"))
	assert.Equal(t, StateConnected, s.State())

	// Sessions created later start with the current video.
	require.NoError(t, alice.ReplaceOutboundVideoTrack(screen, true))
	carol := n.join(t, "carol", 0)
	pair(t, alice, carol)
	sc, _ := alice.Session("carol")
	assert.Same(t, screen, sc.video.Track())
}

func TestRegistry_SetAudioEnabled(t *testing.T) {
	n := newNetwork(t, false)
	alice := n.join(t, "alice", 0)
	bob := n.join(t, "bob", 0)
	pair(t, alice, bob)

	s, _ := alice.Session("bob")
	mic := s.audio.Track()

	require.NoError(t, alice.SetAudioEnabled(false))
	assert.False(t, alice.AudioEnabled())
	assert.Nil(t, s.audio.Track())

	require.NoError(t, alice.SetAudioEnabled(true))
	assert.Same(t, mic, s.audio.Track())
	assert.Equal(t, 1, n.offersFrom("alice"))
}

func TestRegistry_ParticipantLeftIsIdempotent(t *testing.T) {
	n := newNetwork(t, false)
	alice := n.join(t, "alice", 0)
	bob := n.join(t, "bob", 0)
	pair(t, alice, bob)

	s, _ := alice.Session("bob")
	alice.OnParticipantLeft("bob")
	alice.OnParticipantLeft("bob")

	assert.Zero(t, alice.Len())
	assert.Equal(t, StateClosed, s.State())

	// Late signaling for the departed peer is harmless.
	require.NoError(t, alice.OnAnswerReceived("bob", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}))
	require.NoError(t, alice.OnICECandidateReceived("bob", webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 192.0.2.1 1 typ host"}))
	assert.Zero(t, alice.Len())
}

func TestRegistry_TeardownAll(t *testing.T) {
	n := newNetwork(t, true)
	alice := n.join(t, "alice", 0)

	require.NoError(t, alice.OnParticipantJoined("bob"))
	require.NoError(t, alice.OnParticipantJoined("carol"))
	bob, _ := alice.Session("bob")
	carol, _ := alice.Session("carol")

	alice.TeardownAll()
	alice.TeardownAll()

	assert.Zero(t, alice.Len())
	assert.Equal(t, StateClosed, bob.State())
	assert.Equal(t, StateClosed, carol.State())
	assert.ErrorIs(t, alice.OnParticipantJoined("dave"), ErrRegistryClosed)

	for range alice.Events() {
	}
}

func TestRegistry_NegotiationTimeout(t *testing.T) {
	n := newNetwork(t, false)
	alice := n.join(t, "alice", 150*time.Millisecond)

	// Nobody is listening as bob, so no answer ever comes.
	require.NoError(t, alice.OnParticipantJoined("bob"))

	ev := waitEvent(t, alice, EventUnreachable)
	assert.Equal(t, "bob", ev.RemoteID)
	assert.True(t, errors.Is(ev.Err, ErrNegotiationFailure))
	assert.True(t, errors.Is(ev.Err, ErrNegotiationTimeout))
	assert.Zero(t, alice.Len())
}

func TestRegistry_FailureRestartsOnceThenGivesUp(t *testing.T) {
	n := newNetwork(t, false)
	alice := n.join(t, "alice", 0)
	bob := n.join(t, "bob", 0)
	pair(t, alice, bob)

	alice.OnConnectionStateChanged("bob", webrtc.PeerConnectionStateFailed)
	require.Eventually(t, func() bool { return n.offersFrom("alice") == 2 }, 5*time.Second, 10*time.Millisecond)
	s := requireState(t, alice, "bob", StateConnected)

	// bob answered the restart rather than offering its own.
	assert.Zero(t, n.offersFrom("bob"))

	alice.OnConnectionStateChanged("bob", webrtc.PeerConnectionStateFailed)
	ev := waitEvent(t, alice, EventUnreachable)
	assert.Equal(t, "bob", ev.RemoteID)
	assert.ErrorIs(t, ev.Err, ErrNegotiationFailure)
	assert.Equal(t, StateClosed, s.State())
	assert.Zero(t, alice.Len())
}

func TestRegistry_HigherIDWaitsForRestart(t *testing.T) {
	n := newNetwork(t, false)
	alice := n.join(t, "alice", 0)
	bob := n.join(t, "bob", 0)
	pair(t, alice, bob)

	bob.OnConnectionStateChanged("alice", webrtc.PeerConnectionStateFailed)
	s, _ := bob.Session("alice")
	assert.Equal(t, StateFailed, s.State())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, n.offersFrom("bob"))
}

func waitEvent(t *testing.T, r *Registry, kind EventKind) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-r.Events():
			require.True(t, ok, "event stream closed")
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
		}
	}
}
