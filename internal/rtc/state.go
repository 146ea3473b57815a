package rtc

import "github.com/pion/webrtc/v4"

// State is where a Session is in its negotiation lifecycle.
type State int

const (
	StateNew State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// EventKind says what an Event reports.
type EventKind int

const (
	// EventStateChanged carries a Session's new State.
	EventStateChanged EventKind = iota
	// EventRemoteTrack carries a track the remote started sending.
	EventRemoteTrack
	// EventUnreachable means the session was given up on. The remote may
	// still be in the room.
	EventUnreachable
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state-changed"
	case EventRemoteTrack:
		return "remote-track"
	case EventUnreachable:
		return "unreachable"
	}
	return "unknown"
}

// Event is published on Registry.Events.
type Event struct {
	Kind     EventKind
	RemoteID string
	State    State
	Track    *webrtc.TrackRemote
	Err      error
}
