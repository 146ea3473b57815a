// Package call runs one client's side of a group call: it feeds server
// events into the peer-connection registry and keeps the roster and chat
// for the UI.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpmeet/internal/media"
	"github.com/BioHazard786/Warpmeet/internal/protocol"
	"github.com/BioHazard786/Warpmeet/internal/rtc"
	"github.com/BioHazard786/Warpmeet/internal/signalclient"
)

var (
	ErrJoinRejected = errors.New("join rejected")
	ErrDisconnected = errors.New("disconnected from signaling server")
	ErrNotJoined    = errors.New("not in a call")
	ErrEmptyMessage = errors.New("message is empty")
)

// Conn is the signaling connection as the call uses it.
type Conn interface {
	rtc.Signaler
	Send(ev protocol.Event) error
}

// Events are the routed server events a call consumes.
type Events struct {
	Joined <-chan *protocol.JoinedRoom
	Room   <-chan protocol.Event
	Chat   <-chan *protocol.NewMessage
	Error  <-chan *protocol.Error
}

// EventsFrom adapts a signaling handler.
func EventsFrom(h *signalclient.Handler) Events {
	return Events{Joined: h.Joined, Room: h.Room, Chat: h.Chat, Error: h.Error}
}

// Options configure a Call.
type Options struct {
	RoomID      string
	DisplayName string
	AvatarRef   string

	Conn   Conn
	Events Events
	Media  *media.Local

	NewPeerConnection  rtc.PeerConnectionFactory
	NegotiationTimeout time.Duration

	Logger *slog.Logger
}

// Call is one participant's view of a room.
type Call struct {
	opts     Options
	conn     Conn
	events   Events
	local    *media.Local
	registry *rtc.Registry

	mu   sync.Mutex
	snap Snapshot
	seen map[string]struct{}

	updates   chan struct{}
	leaveOnce sync.Once
	logger    *slog.Logger
}

// New creates a call that has not joined yet.
func New(opts Options) *Call {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Call{
		opts:    opts,
		conn:    opts.Conn,
		events:  opts.Events,
		local:   opts.Media,
		snap:    Snapshot{RoomID: opts.RoomID, Name: opts.DisplayName},
		seen:    make(map[string]struct{}),
		updates: make(chan struct{}, 1),
		logger:  logger.With("component", "call", "room_id", opts.RoomID),
	}
}

// Join asks the server for a seat in the room and waits for the answer.
// Members already present will send us offers; we do not offer to them.
func (c *Call) Join(ctx context.Context) error {
	err := c.conn.Send(&protocol.JoinRoom{
		RoomID:      c.opts.RoomID,
		DisplayName: c.opts.DisplayName,
		AvatarRef:   c.opts.AvatarRef,
	})
	if err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	select {
	case joined, ok := <-c.events.Joined:
		if !ok {
			return ErrDisconnected
		}
		c.onJoined(joined)
		return nil
	case e, ok := <-c.events.Error:
		if !ok {
			return ErrDisconnected
		}
		return fmt.Errorf("%w: %s", ErrJoinRejected, e.Message)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Call) onJoined(j *protocol.JoinedRoom) {
	c.registry = rtc.NewRegistry(rtc.Options{
		SelfID:             j.SelfParticipantID,
		NewPeerConnection:  c.opts.NewPeerConnection,
		Signaler:           c.conn,
		Audio:              c.local.Audio,
		Video:              c.local.Camera,
		NegotiationTimeout: c.opts.NegotiationTimeout,
		Logger:             c.logger,
	})

	c.mu.Lock()
	c.snap.SelfID = j.SelfParticipantID
	c.snap.RoomID = j.RoomID
	c.snap.JoinedAt = time.Now()
	c.snap.Chat = slices.Clone(j.ChatHistory)
	c.syncRoster(j.Participants)
	c.mu.Unlock()

	c.logger.Info("joined", "self_id", j.SelfParticipantID, "others", len(j.Participants))
	c.notify()
}

// Run processes server and peer events until ctx ends, the connection
// drops or the call is left.
func (c *Call) Run(ctx context.Context) error {
	if c.registry == nil {
		return ErrNotJoined
	}
	rtcEvents := c.registry.Events()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-c.events.Room:
			if !ok {
				return ErrDisconnected
			}
			c.handleRoom(ev)

		case m, ok := <-c.events.Chat:
			if !ok {
				return ErrDisconnected
			}
			c.mu.Lock()
			c.snap.Chat = append(c.snap.Chat, m.Message)
			c.mu.Unlock()

		case e, ok := <-c.events.Error:
			if !ok {
				return ErrDisconnected
			}
			c.logger.Warn("server error", "code", e.Code, "error", e.Message)
			c.mu.Lock()
			c.snap.LastError = e.Message
			c.mu.Unlock()

		case ev, ok := <-rtcEvents:
			if !ok {
				return nil
			}
			c.handleRTC(ev)
		}
		c.notify()
	}
}

func (c *Call) handleRoom(ev protocol.Event) {
	var err error
	switch ev := ev.(type) {
	case *protocol.ParticipantJoined:
		c.mu.Lock()
		c.upsertPeer(ev.Participant)
		c.mu.Unlock()
		err = c.registry.OnParticipantJoined(ev.Participant.ID)

	case *protocol.ParticipantLeft:
		c.registry.OnParticipantLeft(ev.ParticipantID)
		c.mu.Lock()
		c.removePeer(ev.ParticipantID)
		c.mu.Unlock()

	case *protocol.ParticipantsUpdated:
		c.mu.Lock()
		gone := c.syncRoster(ev.Participants)
		c.mu.Unlock()
		for _, id := range gone {
			c.registry.OnParticipantLeft(id)
		}

	case *protocol.Offer:
		var desc webrtc.SessionDescription
		if desc, err = signalclient.ToWebRTC(ev.Description); err == nil {
			err = c.registry.OnOfferReceived(ev.SenderParticipantID, desc)
		}

	case *protocol.Answer:
		var desc webrtc.SessionDescription
		if desc, err = signalclient.ToWebRTC(ev.Description); err == nil {
			err = c.registry.OnAnswerReceived(ev.SenderParticipantID, desc)
		}

	case *protocol.Candidate:
		err = c.registry.OnICECandidateReceived(ev.SenderParticipantID, signalclient.CandidateToWebRTC(ev.Candidate))

	case *protocol.AudioToggled:
		c.updatePeer(ev.ParticipantID, func(p *Peer) { p.IsAudioMuted = ev.Value })
	case *protocol.VideoToggled:
		c.updatePeer(ev.ParticipantID, func(p *Peer) { p.IsVideoOff = ev.Value })
	case *protocol.ScreenShareStarted:
		c.updatePeer(ev.ParticipantID, func(p *Peer) { p.IsScreenSharing = true })
	case *protocol.ScreenShareStopped:
		c.updatePeer(ev.ParticipantID, func(p *Peer) { p.IsScreenSharing = false })
	}

	if err != nil {
		c.logger.Warn("failed to handle event", "type", ev.EventType(), "error", err)
	}
}

func (c *Call) handleRTC(ev rtc.Event) {
	switch ev.Kind {
	case rtc.EventStateChanged:
		c.updatePeer(ev.RemoteID, func(p *Peer) {
			p.Link = ev.State
			if ev.State == rtc.StateConnected {
				p.Unreachable = false
			}
		})

	case rtc.EventRemoteTrack:
		c.updatePeer(ev.RemoteID, func(p *Peer) { p.Tracks++ })
		go c.consume(ev.RemoteID, ev.Track)

	case rtc.EventUnreachable:
		c.updatePeer(ev.RemoteID, func(p *Peer) {
			p.Link = rtc.StateFailed
			p.Unreachable = true
		})
	}
}

// consume reads a remote track so its buffers keep moving and counts what
// arrives. A terminal has nowhere to render it.
func (c *Call) consume(remoteID string, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		c.updatePeer(remoteID, func(p *Peer) { p.BytesIn += int64(n) })
	}
}

// ToggleAudio mutes or unmutes the microphone and tells the room.
func (c *Call) ToggleAudio() error {
	if c.registry == nil {
		return ErrNotJoined
	}
	c.mu.Lock()
	c.snap.Muted = !c.snap.Muted
	muted, roomID, self := c.snap.Muted, c.snap.RoomID, c.snap.SelfID
	c.mu.Unlock()
	c.notify()

	if err := c.registry.SetAudioEnabled(!muted); err != nil {
		c.logger.Warn("audio track swap incomplete", "error", err)
	}
	return c.conn.Send(&protocol.ToggleAudio{RoomID: roomID, ParticipantID: self, Value: muted})
}

// ToggleVideo turns the camera off or on. While sharing the screen only the
// flag changes.
func (c *Call) ToggleVideo() error {
	if c.registry == nil {
		return ErrNotJoined
	}
	c.mu.Lock()
	c.snap.VideoOff = !c.snap.VideoOff
	off, sharing, roomID, self := c.snap.VideoOff, c.snap.Sharing, c.snap.RoomID, c.snap.SelfID
	c.mu.Unlock()
	c.notify()

	if !sharing {
		if err := c.registry.ReplaceOutboundVideoTrack(c.videoTrack(false, off), false); err != nil {
			c.logger.Warn("video track swap incomplete", "error", err)
		}
	}
	return c.conn.Send(&protocol.ToggleVideo{RoomID: roomID, ParticipantID: self, Value: off})
}

// ToggleScreenShare swaps the outbound video between screen and camera on
// every connection at once. Audio is untouched.
func (c *Call) ToggleScreenShare() error {
	if c.registry == nil {
		return ErrNotJoined
	}
	c.mu.Lock()
	c.snap.Sharing = !c.snap.Sharing
	sharing, off, roomID, self := c.snap.Sharing, c.snap.VideoOff, c.snap.RoomID, c.snap.SelfID
	c.mu.Unlock()
	c.notify()

	if err := c.registry.ReplaceOutboundVideoTrack(c.videoTrack(sharing, off), sharing); err != nil {
		c.logger.Warn("video track swap incomplete", "error", err)
	}
	return c.conn.Send(&protocol.ToggleScreenShare{RoomID: roomID, ParticipantID: self, Value: sharing})
}

func (c *Call) videoTrack(sharing, videoOff bool) webrtc.TrackLocal {
	if sharing {
		return c.local.Screen
	}
	if videoOff {
		return nil
	}
	return c.local.Camera
}

// SendChat posts a message to the room. It shows up in Chat once the server
// echoes it back.
func (c *Call) SendChat(text string) error {
	if c.registry == nil {
		return ErrNotJoined
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	c.mu.Lock()
	roomID := c.snap.RoomID
	c.mu.Unlock()
	return c.conn.Send(&protocol.SendMessage{RoomID: roomID, Text: text})
}

// Leave tells the server, closes every peer connection and stops local
// media. Safe to call more than once.
func (c *Call) Leave() {
	c.leaveOnce.Do(func() {
		c.mu.Lock()
		roomID := c.snap.RoomID
		c.mu.Unlock()

		if err := c.conn.Send(&protocol.LeaveRoom{RoomID: roomID}); err != nil && !errors.Is(err, signalclient.ErrClosed) {
			c.logger.Warn("failed to send leave", "error", err)
		}
		if c.registry != nil {
			c.registry.TeardownAll()
		}
		if c.local != nil {
			c.local.Stop()
		}
		c.logger.Info("left call")
	})
}

// Snapshot returns a copy of the call state.
func (c *Call) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snap
	s.Peers = slices.Clone(c.snap.Peers)
	s.Chat = slices.Clone(c.snap.Chat)
	s.PeersSeen = len(c.seen)
	return s
}

// Updates signals that Snapshot has changed. Signals coalesce.
func (c *Call) Updates() <-chan struct{} {
	return c.updates
}

func (c *Call) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// syncRoster replaces the peer list with the server's roster, keeping what
// we know about each connection. It returns the ids that disappeared.
// Caller holds mu.
func (c *Call) syncRoster(roster []protocol.Participant) []string {
	old := c.snap.Peers
	peers := make([]Peer, 0, len(roster))
	for _, p := range roster {
		if p.ID == c.snap.SelfID {
			continue
		}
		peer := Peer{Participant: p}
		if i := slices.IndexFunc(old, func(o Peer) bool { return o.ID == p.ID }); i >= 0 {
			peer.Link = old[i].Link
			peer.Unreachable = old[i].Unreachable
			peer.Tracks = old[i].Tracks
			peer.BytesIn = old[i].BytesIn
		}
		peers = append(peers, peer)
		c.seen[p.ID] = struct{}{}
	}

	var gone []string
	for _, o := range old {
		if !slices.ContainsFunc(peers, func(p Peer) bool { return p.ID == o.ID }) {
			gone = append(gone, o.ID)
		}
	}
	c.snap.Peers = peers
	return gone
}

// Caller holds mu.
func (c *Call) upsertPeer(p protocol.Participant) {
	if p.ID == c.snap.SelfID {
		return
	}
	c.seen[p.ID] = struct{}{}
	if i := slices.IndexFunc(c.snap.Peers, func(o Peer) bool { return o.ID == p.ID }); i >= 0 {
		c.snap.Peers[i].Participant = p
		return
	}
	c.snap.Peers = append(c.snap.Peers, Peer{Participant: p})
}

// Caller holds mu.
func (c *Call) removePeer(id string) {
	c.snap.Peers = slices.DeleteFunc(c.snap.Peers, func(p Peer) bool { return p.ID == id })
}

func (c *Call) updatePeer(id string, fn func(p *Peer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.IndexFunc(c.snap.Peers, func(p Peer) bool { return p.ID == id }); i >= 0 {
		fn(&c.snap.Peers[i])
	}
}
