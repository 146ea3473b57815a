package call

import (
	"slices"
	"time"

	"github.com/BioHazard786/Warpmeet/internal/protocol"
	"github.com/BioHazard786/Warpmeet/internal/rtc"
)

// Peer is what the client knows about one other participant: the roster
// entry from the server plus the state of our connection to them.
type Peer struct {
	protocol.Participant

	Link        rtc.State
	Unreachable bool
	Tracks      int
	BytesIn     int64
}

// Snapshot is a copy of the call's state for rendering.
type Snapshot struct {
	SelfID   string
	RoomID   string
	Name     string
	Muted    bool
	VideoOff bool
	Sharing  bool
	JoinedAt time.Time

	Peers []Peer
	Chat  []protocol.ChatMessage

	// PeersSeen counts everyone who was in the room at some point.
	PeersSeen int
	LastError string
}

// Peer looks a remote participant up by id.
func (s Snapshot) Peer(id string) (Peer, bool) {
	i := slices.IndexFunc(s.Peers, func(p Peer) bool { return p.ID == id })
	if i < 0 {
		return Peer{}, false
	}
	return s.Peers[i], true
}
