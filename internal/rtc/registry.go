// Package rtc manages one WebRTC peer connection per remote participant in
// a call.
package rtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// DefaultNegotiationTimeout bounds how long a session may take to connect.
const DefaultNegotiationTimeout = 30 * time.Second

const eventBuffer = 128

// Signaler delivers negotiation messages to one remote participant through
// the signaling server.
type Signaler interface {
	SendOffer(to string, desc webrtc.SessionDescription) error
	SendAnswer(to string, desc webrtc.SessionDescription) error
	SendCandidate(to string, candidate webrtc.ICECandidateInit) error
}

// Options configure a Registry.
type Options struct {
	// SelfID is this client's participant id. It breaks offer collisions.
	SelfID string

	NewPeerConnection PeerConnectionFactory
	Signaler          Signaler

	// Audio and Video are the outbound tracks attached to new sessions.
	// Either may be nil.
	Audio webrtc.TrackLocal
	Video webrtc.TrackLocal

	// NegotiationTimeout of zero disables the deadline.
	NegotiationTimeout time.Duration

	Logger *slog.Logger
}

// Registry owns every Session of a call, at most one per remote
// participant.
//
// Lock order: Session.mu before Registry.mu. The registry lock guards the
// session map and local media state and is never held while negotiating.
type Registry struct {
	selfID   string
	newPC    PeerConnectionFactory
	signaler Signaler
	timeout  time.Duration

	mu            sync.Mutex
	sessions      map[string]*Session
	audio         webrtc.TrackLocal
	video         webrtc.TrackLocal
	audioEnabled  bool
	screenSharing bool
	closed        bool
	events        chan Event

	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		selfID:       opts.SelfID,
		newPC:        opts.NewPeerConnection,
		signaler:     opts.Signaler,
		timeout:      opts.NegotiationTimeout,
		sessions:     make(map[string]*Session),
		audio:        opts.Audio,
		video:        opts.Video,
		audioEnabled: true,
		events:       make(chan Event, eventBuffer),
		logger:       logger.With("component", "rtc"),
	}
}

// Events reports session state changes, remote tracks and abandoned
// sessions. It is closed by TeardownAll.
func (r *Registry) Events() <-chan Event {
	return r.events
}

// Session returns the live session for a remote participant.
func (r *Registry) Session(remoteID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[remoteID]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// AudioEnabled reports whether the microphone track is being sent.
func (r *Registry) AudioEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audioEnabled
}

// ScreenSharing reports whether the outbound video is a screen capture.
func (r *Registry) ScreenSharing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.screenSharing
}

// OnParticipantJoined starts negotiating with a newcomer by sending it an
// offer. A participant that already has a session is ignored.
func (r *Registry) OnParticipantJoined(remoteID string) error {
	if remoteID == r.selfID {
		return nil
	}

	s, created, err := r.getOrCreate(remoteID)
	if err != nil {
		return err
	}
	if !created {
		r.logger.Info("duplicate participant join ignored", "remote_id", remoteID)
		return nil
	}

	s.mu.Lock()
	err = r.offer(s, nil)
	s.mu.Unlock()
	if err != nil {
		r.fail(s, err)
		return err
	}
	return nil
}

// OnOfferReceived answers an offer, creating the session if this is the
// first we hear from the remote.
//
// When both sides offered at once, the participant with the lower id keeps
// its offer and the other side answers.
func (r *Registry) OnOfferReceived(remoteID string, offer webrtc.SessionDescription) error {
	s, _, err := r.getOrCreate(remoteID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateHaveLocalOffer {
		if r.selfID < remoteID {
			s.mu.Unlock()
			r.logger.Info("offer collision, keeping ours", "remote_id", remoteID)
			return nil
		}

		r.logger.Info("offer collision, answering theirs", "remote_id", remoteID)
		carried := s.pending
		s.pending = nil
		s.mu.Unlock()

		s, err = r.replace(s)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.pending = append(carried, s.pending...)
	}

	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	err = r.answer(s, offer)
	s.mu.Unlock()
	if err != nil {
		r.fail(s, err)
		return err
	}
	return nil
}

// OnAnswerReceived completes an offer this side sent. Answers nobody is
// waiting for are dropped.
func (r *Registry) OnAnswerReceived(remoteID string, answer webrtc.SessionDescription) error {
	s, ok := r.Session(remoteID)
	if !ok {
		r.logger.Warn("answer for unknown peer dropped", "remote_id", remoteID)
		return nil
	}

	s.mu.Lock()
	if s.state != StateHaveLocalOffer {
		state := s.state
		s.mu.Unlock()
		r.logger.Warn("unexpected answer dropped", "remote_id", remoteID, "state", state, "error", ErrUnexpectedAnswer)
		return nil
	}
	err := s.applyAnswer(answer)
	if err == nil {
		// The transport may still be checking; media flows once ICE
		// completes.
		r.setState(s, StateConnected)
	}
	s.mu.Unlock()

	if err != nil {
		r.fail(s, err)
		return err
	}
	return nil
}

// OnICECandidateReceived applies a remote candidate, buffering it while the
// session has no remote description.
func (r *Registry) OnICECandidateReceived(remoteID string, candidate webrtc.ICECandidateInit) error {
	s, ok := r.Session(remoteID)
	if !ok {
		r.logger.Warn("candidate for unknown peer dropped", "remote_id", remoteID, "error", ErrUnknownPeer)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.addRemoteCandidate(candidate)
	}
	return nil
}

// OnConnectionStateChanged feeds a transport state change for remoteID into
// its session. Sessions call it themselves from their peer connection.
func (r *Registry) OnConnectionStateChanged(remoteID string, state webrtc.PeerConnectionState) {
	if s, ok := r.Session(remoteID); ok {
		r.connectionStateChanged(s, state)
	}
}

// ReplaceOutboundVideoTrack swaps the video every session sends, e.g.
// camera for screen capture. No renegotiation takes place.
func (r *Registry) ReplaceOutboundVideoTrack(track webrtc.TrackLocal, screenSharing bool) error {
	r.mu.Lock()
	r.video = track
	r.screenSharing = screenSharing
	sessions := r.snapshot()
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.replaceTrack(s.video, track); err != nil {
			errs = append(errs, newError("replace video track", s.remoteID, err))
		}
	}
	return errors.Join(errs...)
}

// SetAudioEnabled stops or resumes sending the microphone track.
func (r *Registry) SetAudioEnabled(enabled bool) error {
	r.mu.Lock()
	r.audioEnabled = enabled
	var track webrtc.TrackLocal
	if enabled {
		track = r.audio
	}
	sessions := r.snapshot()
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.replaceTrack(s.audio, track); err != nil {
			errs = append(errs, newError("replace audio track", s.remoteID, err))
		}
	}
	return errors.Join(errs...)
}

// OnParticipantLeft closes and forgets the remote's session. Calling it for
// an unknown remote does nothing.
func (r *Registry) OnParticipantLeft(remoteID string) {
	r.mu.Lock()
	s, ok := r.sessions[remoteID]
	delete(r.sessions, remoteID)
	r.mu.Unlock()

	if ok {
		r.closeSession(s)
		r.logger.Info("session closed", "remote_id", remoteID, "reason", "participant left")
	}
}

// TeardownAll closes every session and the event stream. The registry
// cannot be reused.
func (r *Registry) TeardownAll() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sessions := r.snapshot()
	clear(r.sessions)
	r.mu.Unlock()

	for _, s := range sessions {
		r.closeSession(s)
	}

	r.mu.Lock()
	close(r.events)
	r.mu.Unlock()
	r.logger.Info("all sessions closed", "count", len(sessions))
}

func (r *Registry) snapshot() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// getOrCreate returns the session for remoteID, creating it if needed.
func (r *Registry) getOrCreate(remoteID string) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, ErrRegistryClosed
	}
	if s, ok := r.sessions[remoteID]; ok {
		return s, false, nil
	}
	s, err := r.newSession(remoteID)
	if err != nil {
		return nil, false, err
	}
	r.sessions[remoteID] = s
	return s, true, nil
}

// replace swaps old for a fresh session with the same remote.
func (r *Registry) replace(old *Session) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	s, err := r.newSession(old.remoteID)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.sessions[old.remoteID] = s
	r.mu.Unlock()

	r.closeSession(old)
	return s, nil
}

// newSession builds a session with the current local tracks attached.
// Caller holds r.mu.
func (r *Registry) newSession(remoteID string) (*Session, error) {
	pc, err := r.newPC()
	if err != nil {
		return nil, newError("create session", remoteID, err)
	}

	audio := r.audio
	if !r.audioEnabled {
		audio = nil
	}
	audioSender, err := addSender(pc, webrtc.RTPCodecTypeAudio, audio)
	if err != nil {
		pc.Close()
		return nil, newError("add audio track", remoteID, err)
	}
	videoSender, err := addSender(pc, webrtc.RTPCodecTypeVideo, r.video)
	if err != nil {
		pc.Close()
		return nil, newError("add video track", remoteID, err)
	}
	go drainRTCP(audioSender)
	go drainRTCP(videoSender)

	s := &Session{
		remoteID: remoteID,
		pc:       pc,
		audio:    audioSender,
		video:    videoSender,
		state:    StateNew,
		logger:   r.logger.With("remote_id", remoteID),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		s.onLocalCandidate(c.ToJSON(), r.candidateSender(remoteID))
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.connectionStateChanged(s, state)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Info("remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		r.emit(Event{Kind: EventRemoteTrack, RemoteID: remoteID, Track: track})
	})

	s.armTimer(r.timeout, func() { r.negotiationTimedOut(s) })
	s.logger.Debug("session created")
	return s, nil
}

// offer sends a fresh local offer. Caller holds s.mu.
func (r *Registry) offer(s *Session, opts *webrtc.OfferOptions) error {
	desc, err := s.createOffer(opts)
	if err != nil {
		return err
	}
	r.setState(s, StateHaveLocalOffer)
	if err := r.signaler.SendOffer(s.remoteID, desc); err != nil {
		return newError("send offer", s.remoteID, err)
	}
	s.releaseLocalCandidates(r.candidateSender(s.remoteID))
	return nil
}

// answer applies offer and sends our answer. Caller holds s.mu.
func (r *Registry) answer(s *Session, offer webrtc.SessionDescription) error {
	desc, err := s.createAnswer(offer)
	if err != nil {
		return err
	}
	r.setState(s, StateHaveRemoteOffer)
	if err := r.signaler.SendAnswer(s.remoteID, desc); err != nil {
		return newError("send answer", s.remoteID, err)
	}
	s.releaseLocalCandidates(r.candidateSender(s.remoteID))
	r.setState(s, StateConnected)
	return nil
}

func (r *Registry) candidateSender(remoteID string) func(webrtc.ICECandidateInit) {
	return func(c webrtc.ICECandidateInit) {
		if err := r.signaler.SendCandidate(remoteID, c); err != nil {
			r.logger.Warn("failed to send candidate", "remote_id", remoteID, "error", err)
		}
	}
}

func (r *Registry) connectionStateChanged(s *Session, state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected,
		webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed:
	default:
		// Closed is reported from inside pc.Close.
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.logger.Debug("transport state", "state", state.String())

	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.linked = true
		s.failures = 0
		s.stopTimer()
		r.setState(s, StateConnected)

	case webrtc.PeerConnectionStateDisconnected:
		s.linked = false
		r.setState(s, StateDisconnected)

	case webrtc.PeerConnectionStateFailed:
		s.linked = false
		s.failures++
		if s.failures > 1 {
			s.mu.Unlock()
			r.fail(s, newError("ice", s.remoteID, fmt.Errorf("%w: connection failed after restart", ErrNegotiationFailure)))
			return
		}
		r.setState(s, StateFailed)
		s.armTimer(r.timeout, func() { r.negotiationTimedOut(s) })

		// Only the lower id restarts, mirroring the collision rule; the other
		// side answers the restart offer.
		if r.selfID < s.remoteID {
			go r.restart(s)
		}
	}
	s.mu.Unlock()
}

// restart renegotiates a failed session with fresh ICE credentials. It runs
// off the peer connection's callback goroutine.
func (r *Registry) restart(s *Session) {
	s.mu.Lock()
	if s.state != StateFailed {
		s.mu.Unlock()
		return
	}
	s.logger.Info("restarting ice")
	err := r.offer(s, &webrtc.OfferOptions{ICERestart: true})
	s.mu.Unlock()
	if err != nil {
		r.fail(s, err)
	}
}

func (r *Registry) negotiationTimedOut(s *Session) {
	s.mu.Lock()
	done := s.state == StateClosed || s.linked
	s.mu.Unlock()
	if done {
		return
	}
	r.fail(s, newError("negotiate", s.remoteID, fmt.Errorf("%w: %w", ErrNegotiationFailure, ErrNegotiationTimeout)))
}

// fail abandons a session and reports the remote as unreachable. Its roster
// entry is not affected.
func (r *Registry) fail(s *Session, err error) {
	r.mu.Lock()
	if r.sessions[s.remoteID] == s {
		delete(r.sessions, s.remoteID)
	}
	r.mu.Unlock()

	r.closeSession(s)
	r.logger.Warn("peer unreachable", "remote_id", s.remoteID, "error", err)
	r.emit(Event{Kind: EventUnreachable, RemoteID: s.remoteID, State: StateFailed, Err: err})
}

func (r *Registry) closeSession(s *Session) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.stopTimer()
	r.setState(s, StateClosed)
	s.mu.Unlock()

	if err := s.pc.Close(); err != nil {
		s.logger.Warn("failed to close peer connection", "error", err)
	}
}

// setState records and publishes a transition. Caller holds s.mu.
func (r *Registry) setState(s *Session, state State) {
	if s.state == state {
		return
	}
	s.state = state
	r.emit(Event{Kind: EventStateChanged, RemoteID: s.remoteID, State: state})
}

func (r *Registry) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("event dropped, consumer too slow", "remote_id", ev.RemoteID, "kind", ev.Kind)
	}
}
