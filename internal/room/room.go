// Package room holds the in-memory registry of call rooms: who is in each
// room and what has been said there. Nothing here outlives the process.
package room

import (
	"slices"
	"sync"
	"time"
)

// Room is a snapshot of a room's state. Values returned by Directory are
// copies; mutating them has no effect on the directory.
type Room struct {
	ID           string
	Participants []Participant
	ChatHistory  []ChatMessage
	CreatedAt    time.Time
}

// Participant is one connected transport session inside a room.
type Participant struct {
	ID              string
	DisplayName     string
	AvatarRef       string
	IsAudioMuted    bool
	IsVideoOff      bool
	IsScreenSharing bool
	JoinedAt        time.Time
}

// ChatMessage is immutable once appended to a room's history.
type ChatMessage struct {
	ID         string
	SenderID   string
	SenderName string
	Text       string
	SentAt     time.Time
}

// Participant returns the member with the given id.
func (r Room) Participant(id string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Others returns every member except the one with the given id.
func (r Room) Others(id string) []Participant {
	out := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// entry is the directory's mutable record for one room.
type entry struct {
	mu           sync.RWMutex
	id           string
	participants []Participant
	history      []ChatMessage
	createdAt    time.Time

	// deleted is set, under mu, by the removal that emptied the roster.
	// A deleted entry is never handed out again.
	deleted bool
}

func (e *entry) snapshot() Room {
	return Room{
		ID:           e.id,
		Participants: slices.Clone(e.participants),
		ChatHistory:  slices.Clone(e.history),
		CreatedAt:    e.createdAt,
	}
}

func (e *entry) indexOf(participantID string) int {
	return slices.IndexFunc(e.participants, func(p Participant) bool {
		return p.ID == participantID
	})
}
