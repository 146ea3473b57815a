package rtc

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// Session is the negotiation with one remote participant. Its lock
// serializes every offer, answer and candidate for that remote.
type Session struct {
	remoteID string
	pc       *webrtc.PeerConnection
	audio    *webrtc.RTPSender
	video    *webrtc.RTPSender

	mu sync.Mutex
	// The fields below are guarded by mu. linked is true while the
	// transport reports connected.
	state    State
	pending  []webrtc.ICECandidateInit
	failures int
	linked   bool
	timer    *time.Timer

	// Local candidates are held back until the description they belong to
	// has been handed to the signaler.
	localMu      sync.Mutex
	localReady   bool
	localPending []webrtc.ICECandidateInit

	logger *slog.Logger
}

// RemoteID is the participant on the other end.
func (s *Session) RemoteID() string {
	return s.remoteID
}

// State returns the current negotiation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PeerConnection exposes the underlying connection, mainly for stats.
func (s *Session) PeerConnection() *webrtc.PeerConnection {
	return s.pc
}

func (s *Session) replaceTrack(sender *webrtc.RTPSender, track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	return sender.ReplaceTrack(track)
}

// addSender attaches track, or an empty send slot of kind when track is nil
// so a later ReplaceTrack needs no renegotiation.
func addSender(pc *webrtc.PeerConnection, kind webrtc.RTPCodecType, track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	if track != nil {
		return pc.AddTrack(track)
	}
	tr, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return nil, err
	}
	return tr.Sender(), nil
}

// drainRTCP reads RTCP for a sender until it is closed. Interceptors only
// run while someone reads.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// createOffer sets and returns a new local offer. Caller holds mu.
func (s *Session) createOffer(opts *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	offer, err := s.pc.CreateOffer(opts)
	if err != nil {
		return webrtc.SessionDescription{}, newError("create offer", s.remoteID, err)
	}
	s.holdLocalCandidates()
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, newError("set local description", s.remoteID, err)
	}
	return offer, nil
}

// createAnswer applies a remote offer and sets and returns the answer.
// Caller holds mu.
func (s *Session) createAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, newError("set remote description", s.remoteID, err)
	}
	s.flushRemoteCandidates()

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, newError("create answer", s.remoteID, err)
	}
	s.holdLocalCandidates()
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, newError("set local description", s.remoteID, err)
	}
	return answer, nil
}

// applyAnswer completes an offer this side made. Caller holds mu.
func (s *Session) applyAnswer(answer webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return newError("set remote description", s.remoteID, err)
	}
	s.flushRemoteCandidates()
	return nil
}

// addRemoteCandidate applies c, or buffers it while there is no remote
// description yet. Caller holds mu.
func (s *Session) addRemoteCandidate(c webrtc.ICECandidateInit) {
	if s.pc.RemoteDescription() == nil {
		s.pending = append(s.pending, c)
		s.logger.Debug("buffered remote candidate", "pending", len(s.pending))
		return
	}
	if err := s.pc.AddICECandidate(c); err != nil {
		s.logger.Warn("failed to add remote candidate", "error", err)
	}
}

func (s *Session) flushRemoteCandidates() {
	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.logger.Warn("failed to add buffered candidate", "error", err)
		}
	}
	if len(pending) > 0 {
		s.logger.Debug("flushed remote candidates", "count", len(pending))
	}
}

func (s *Session) holdLocalCandidates() {
	s.localMu.Lock()
	s.localReady = false
	s.localMu.Unlock()
}

// releaseLocalCandidates marks the local description as sent and hands
// over any candidates gathered meanwhile.
func (s *Session) releaseLocalCandidates(send func(webrtc.ICECandidateInit)) {
	s.localMu.Lock()
	defer s.localMu.Unlock()
	s.localReady = true
	for _, c := range s.localPending {
		send(c)
	}
	s.localPending = nil
}

func (s *Session) onLocalCandidate(c webrtc.ICECandidateInit, send func(webrtc.ICECandidateInit)) {
	s.localMu.Lock()
	defer s.localMu.Unlock()
	if !s.localReady {
		s.localPending = append(s.localPending, c)
		return
	}
	send(c)
}

// armTimer (re)starts the negotiation deadline. Caller holds mu.
func (s *Session) armTimer(d time.Duration, fire func()) {
	if s.timer != nil {
		s.timer.Stop()
	}
	if d > 0 {
		s.timer = time.AfterFunc(d, fire)
	}
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
