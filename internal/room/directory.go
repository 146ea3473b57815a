package room

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrAlreadyInRoom       = errors.New("participant already in a room")
)

const (
	roomIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomIDLength   = 6
)

// Directory is the authoritative registry of live rooms.
//
// Lock order: Directory.mu before entry.mu before Directory.membersMu.
// Mutations of a room only hold that room's lock; the directory lock guards
// the id→room map and is never held across two rooms' work.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*entry

	// members maps participant id to the room it currently belongs to.
	membersMu sync.Mutex
	members   map[string]string

	now    func() time.Time
	logger *slog.Logger
}

// NewDirectory creates an empty directory. A nil logger falls back to the
// process default.
func NewDirectory(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		rooms:   make(map[string]*entry),
		members: make(map[string]string),
		now:     time.Now,
		logger:  logger.With("component", "rooms"),
	}
}

// EnsureRoom returns the room with the given id, creating an empty one if
// none is live.
func (d *Directory) EnsureRoom(roomID string) Room {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.rooms[roomID]; ok {
		e.mu.RLock()
		deleted := e.deleted
		snap := e.snapshot()
		e.mu.RUnlock()
		if !deleted {
			return snap
		}
	}

	e := &entry{id: roomID, createdAt: d.now()}
	d.rooms[roomID] = e
	d.logger.Info("room created", "room_id", roomID)
	return e.snapshot()
}

// GetRoom looks up a live room. A missing room is an ordinary outcome.
func (d *Directory) GetRoom(roomID string) (Room, bool) {
	e := d.lookup(roomID)
	if e == nil {
		return Room{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return Room{}, false
	}
	return e.snapshot(), true
}

// AddParticipant appends p to the roster of an existing room and returns the
// room as it stands after the join.
func (d *Directory) AddParticipant(roomID string, p Participant) (Room, error) {
	e := d.lookup(roomID)
	if e == nil {
		return Room{}, ErrRoomNotFound
	}
	if err := d.claim(p.ID, roomID); err != nil {
		return Room{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		d.release(p.ID, roomID)
		return Room{}, ErrRoomNotFound
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = d.now()
	}
	e.participants = append(e.participants, p)

	d.logger.Debug("participant added", "room_id", roomID, "participant_id", p.ID, "size", len(e.participants))
	return e.snapshot(), nil
}

// RemoveParticipant drops a member from a room. When the roster becomes
// empty the room is deleted in the same critical section, and deleted is
// true. The returned room is the state after removal.
func (d *Directory) RemoveParticipant(roomID, participantID string) (Room, bool, error) {
	e := d.lookup(roomID)
	if e == nil {
		return Room{}, false, ErrRoomNotFound
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return Room{}, false, ErrRoomNotFound
	}
	i := e.indexOf(participantID)
	if i < 0 {
		e.mu.Unlock()
		return Room{}, false, ErrParticipantNotFound
	}
	e.participants = append(e.participants[:i], e.participants[i+1:]...)
	d.release(participantID, roomID)

	deleted := len(e.participants) == 0
	if deleted {
		e.deleted = true
	}
	snap := e.snapshot()
	e.mu.Unlock()

	if deleted {
		// A concurrent EnsureRoom may already have replaced the entry.
		d.mu.Lock()
		if d.rooms[roomID] == e {
			delete(d.rooms, roomID)
		}
		d.mu.Unlock()
		d.logger.Info("room deleted", "room_id", roomID)
	}

	return snap, deleted, nil
}

// UpdateParticipant applies fn to a member's record under the room lock.
// fn must not change the participant's ID.
func (d *Directory) UpdateParticipant(roomID, participantID string, fn func(p *Participant)) (Room, error) {
	e := d.lookup(roomID)
	if e == nil {
		return Room{}, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return Room{}, ErrRoomNotFound
	}
	i := e.indexOf(participantID)
	if i < 0 {
		return Room{}, ErrParticipantNotFound
	}
	fn(&e.participants[i])
	e.participants[i].ID = participantID

	return e.snapshot(), nil
}

// AppendMessage adds msg to a room's history. The sender must be a member.
// Missing ID and SentAt are filled in.
func (d *Directory) AppendMessage(roomID string, msg ChatMessage) (ChatMessage, error) {
	e := d.lookup(roomID)
	if e == nil {
		return ChatMessage{}, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return ChatMessage{}, ErrRoomNotFound
	}
	if e.indexOf(msg.SenderID) < 0 {
		return ChatMessage{}, ErrParticipantNotFound
	}
	if msg.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return ChatMessage{}, fmt.Errorf("generate message id: %w", err)
		}
		msg.ID = id
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = d.now()
	}
	e.history = append(e.history, msg)

	return msg, nil
}

// RoomOf reports which room a participant is in.
func (d *Directory) RoomOf(participantID string) (string, bool) {
	d.membersMu.Lock()
	defer d.membersMu.Unlock()
	roomID, ok := d.members[participantID]
	return roomID, ok
}

// Len returns the number of live rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// NewRoomID returns a short upper-case code not used by any live room.
// The room itself is only created by the first join.
func (d *Directory) NewRoomID() (string, error) {
	for {
		id, err := gonanoid.Generate(roomIDAlphabet, roomIDLength)
		if err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		if _, ok := d.GetRoom(id); !ok {
			return id, nil
		}
	}
}

func (d *Directory) lookup(roomID string) *entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rooms[roomID]
}

func (d *Directory) claim(participantID, roomID string) error {
	d.membersMu.Lock()
	defer d.membersMu.Unlock()
	if current, ok := d.members[participantID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyInRoom, current)
	}
	d.members[participantID] = roomID
	return nil
}

func (d *Directory) release(participantID, roomID string) {
	d.membersMu.Lock()
	defer d.membersMu.Unlock()
	if d.members[participantID] == roomID {
		delete(d.members, participantID)
	}
}
