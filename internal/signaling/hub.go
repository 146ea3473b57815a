// Package signaling is the server side of call setup: it owns room
// membership, relays offer/answer/ICE between exactly two sessions and fans
// out chat and media-state changes.
package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/BioHazard786/Warpmeet/internal/protocol"
	"github.com/BioHazard786/Warpmeet/internal/room"
)

// MaxChatLength is the longest chat message accepted, in runes.
const MaxChatLength = 2000

// Hub is the central brain of the signaling server.
//
// All session state (the clients map, each client's room) is owned by the
// goroutine running Run. Room state lives in the injected room.Directory,
// which is also read concurrently by the HTTP API.
type Hub struct {
	rooms   *room.Directory
	clients map[string]*Client

	// Register, Unregister and Inbound are unbuffered so that a single
	// connection's events reach the hub in the order it read them.
	Register   chan *Client
	Unregister chan *Client
	Inbound    chan *Inbound

	done   chan struct{}
	logger *slog.Logger
}

// NewHub creates a hub over the given directory.
func NewHub(rooms *room.Directory, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      rooms,
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Inbound),
		done:       make(chan struct{}),
		logger:     logger.With("component", "hub"),
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Rooms exposes the directory for read-only consumers such as the HTTP API.
func (h *Hub) Rooms() *room.Directory {
	return h.rooms
}

// Run processes registrations, disconnects and inbound events until ctx is
// cancelled. Each event is handled to completion before the next.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.disconnect(client)

		case in := <-h.Inbound:
			h.handle(in)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.clients[c.ID] = c
	c.logger.Debug("client registered", "clients", len(h.clients))
}

// disconnect is leave followed by dropping the session. Safe to call twice.
func (h *Hub) disconnect(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	h.leave(c)
	delete(h.clients, c.ID)
	c.closed = true
	close(c.Send)
	c.logger.Debug("client unregistered", "clients", len(h.clients))
}

func (h *Hub) shutdown() {
	for _, c := range h.clients {
		h.disconnect(c)
	}
	h.logger.Info("hub stopped")
}

// handle dispatches one inbound event. A panic is confined to the event that
// caused it.
func (h *Hub) handle(in *Inbound) {
	c := in.Client
	if c.closed {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", "panic", r)
			h.send(c, &protocol.Error{Code: protocol.CodeInternal, Message: "internal error"})
		}
	}()

	if in.Err != nil {
		h.reject(c, newRequestError("decode", in.Err))
		return
	}

	var err error
	switch ev := in.Event.(type) {
	case *protocol.JoinRoom:
		err = h.join(c, ev)
	case *protocol.SendMessage:
		err = h.chat(c, ev)
	case *protocol.Offer:
		err = h.relay(c, ev.TargetParticipantID, &protocol.Offer{
			SenderParticipantID: c.ID,
			Description:         ev.Description,
		})
	case *protocol.Answer:
		err = h.relay(c, ev.TargetParticipantID, &protocol.Answer{
			SenderParticipantID: c.ID,
			Description:         ev.Description,
		})
	case *protocol.Candidate:
		err = h.relay(c, ev.TargetParticipantID, &protocol.Candidate{
			SenderParticipantID: c.ID,
			Candidate:           ev.Candidate,
		})
	case *protocol.ToggleAudio:
		err = h.toggle(c, ev.RoomID, ev.ParticipantID, mediaAudio, ev.Value)
	case *protocol.ToggleVideo:
		err = h.toggle(c, ev.RoomID, ev.ParticipantID, mediaVideo, ev.Value)
	case *protocol.ToggleScreenShare:
		err = h.toggle(c, ev.RoomID, ev.ParticipantID, mediaScreen, ev.Value)
	case *protocol.LeaveRoom:
		h.leave(c)
	default:
		err = invalid("dispatch", fmt.Sprintf("%s is not accepted from clients", in.Event.EventType()))
	}

	if err != nil {
		h.reject(c, err)
	}
}

func (h *Hub) join(c *Client, ev *protocol.JoinRoom) error {
	const op = "join room"

	roomID := strings.TrimSpace(ev.RoomID)
	name := strings.TrimSpace(ev.DisplayName)
	switch {
	case roomID == "":
		return invalid(op, "room id is required")
	case name == "":
		return invalid(op, "display name is required")
	case c.roomID != "":
		return newRequestError(op, fmt.Errorf("%w: %s", room.ErrAlreadyInRoom, c.roomID))
	}

	h.rooms.EnsureRoom(roomID)
	self := room.Participant{
		ID:          c.ID,
		DisplayName: name,
		AvatarRef:   strings.TrimSpace(ev.AvatarRef),
	}
	r, err := h.rooms.AddParticipant(roomID, self)
	if err != nil {
		return newRequestError(op, err)
	}
	c.roomID = roomID
	self, _ = r.Participant(c.ID)

	c.logger.Info("joined room", "room_id", roomID, "display_name", name, "size", len(r.Participants))

	h.send(c, &protocol.JoinedRoom{
		SelfParticipantID: c.ID,
		RoomID:            roomID,
		Participants:      toWireParticipants(r.Others(c.ID)),
		ChatHistory:       toWireMessages(r.ChatHistory),
	})
	h.broadcast(r.Participants, &protocol.ParticipantJoined{Participant: toWireParticipant(self)}, c.ID)
	h.broadcast(r.Participants, &protocol.ParticipantsUpdated{Participants: toWireParticipants(r.Participants)}, "")
	return nil
}

// relay forwards out to target if, and only if, target is connected and in
// the sender's room.
func (h *Hub) relay(c *Client, target string, out protocol.Event) error {
	op := "relay " + string(out.EventType())

	switch {
	case c.roomID == "":
		return newRequestError(op, ErrNotInRoom)
	case target == "":
		return invalid(op, "target participant id is required")
	case target == c.ID:
		return invalid(op, "cannot signal yourself")
	}

	t, ok := h.clients[target]
	if !ok || t.roomID != c.roomID {
		c.logger.Debug("relay dropped", "type", out.EventType(), "target", target, "reason", ErrTargetUnreachable)
		return nil
	}

	h.send(t, out)
	return nil
}

func (h *Hub) chat(c *Client, ev *protocol.SendMessage) error {
	const op = "send message"

	if c.roomID == "" {
		return newRequestError(op, ErrNotInRoom)
	}
	if ev.RoomID != "" && ev.RoomID != c.roomID {
		return newRequestError(op, ErrNotInRoom)
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return invalid(op, "message text is required")
	}
	if utf8.RuneCountInString(text) > MaxChatLength {
		return invalid(op, fmt.Sprintf("message longer than %d characters", MaxChatLength))
	}

	r, ok := h.rooms.GetRoom(c.roomID)
	if !ok {
		return newRequestError(op, room.ErrRoomNotFound)
	}
	self, ok := r.Participant(c.ID)
	if !ok {
		return newRequestError(op, room.ErrParticipantNotFound)
	}

	msg, err := h.rooms.AppendMessage(c.roomID, room.ChatMessage{
		SenderID:   c.ID,
		SenderName: self.DisplayName,
		Text:       text,
	})
	if err != nil {
		return newRequestError(op, err)
	}

	// The sender renders its own message from this event too.
	h.broadcast(r.Participants, &protocol.NewMessage{Message: toWireMessage(msg)}, "")
	return nil
}

type mediaField int

const (
	mediaAudio mediaField = iota
	mediaVideo
	mediaScreen
)

func (f mediaField) String() string {
	switch f {
	case mediaAudio:
		return "audio"
	case mediaVideo:
		return "video"
	default:
		return "screen-share"
	}
}

// toggle changes one media flag on the caller's own record. Attempts to
// address anyone else are dropped without touching state.
func (h *Hub) toggle(c *Client, roomID, participantID string, field mediaField, value bool) error {
	op := "toggle " + field.String()

	if c.roomID == "" {
		return newRequestError(op, ErrNotInRoom)
	}
	if (participantID != "" && participantID != c.ID) || (roomID != "" && roomID != c.roomID) {
		c.logger.Warn("state change rejected",
			"field", field.String(), "target", participantID, "room_id", roomID,
			"reason", ErrUnauthorizedStateChange)
		return nil
	}

	changed := false
	r, err := h.rooms.UpdateParticipant(c.roomID, c.ID, func(p *room.Participant) {
		flag := &p.IsAudioMuted
		switch field {
		case mediaVideo:
			flag = &p.IsVideoOff
		case mediaScreen:
			flag = &p.IsScreenSharing
		}
		changed = *flag != value
		*flag = value
	})
	if err != nil {
		return newRequestError(op, err)
	}
	if !changed {
		return nil
	}

	var ev protocol.Event
	switch field {
	case mediaAudio:
		ev = &protocol.AudioToggled{ParticipantID: c.ID, Value: value}
	case mediaVideo:
		ev = &protocol.VideoToggled{ParticipantID: c.ID, Value: value}
	case mediaScreen:
		if value {
			ev = &protocol.ScreenShareStarted{ParticipantID: c.ID}
		} else {
			ev = &protocol.ScreenShareStopped{ParticipantID: c.ID}
		}
	}
	h.broadcast(r.Participants, ev, c.ID)
	h.broadcast(r.Participants, &protocol.ParticipantsUpdated{Participants: toWireParticipants(r.Participants)}, "")
	return nil
}

// leave removes the client from its room, if any, and tells whoever is
// left. Calling it again is a no-op.
func (h *Hub) leave(c *Client) {
	if c.roomID == "" {
		return
	}
	roomID := c.roomID
	c.roomID = ""

	r, deleted, err := h.rooms.RemoveParticipant(roomID, c.ID)
	if err != nil {
		c.logger.Warn("leave found no membership", "room_id", roomID, "error", err)
		return
	}
	c.logger.Info("left room", "room_id", roomID, "remaining", len(r.Participants))
	if deleted {
		return
	}

	h.broadcast(r.Participants, &protocol.ParticipantLeft{ParticipantID: c.ID}, "")
	h.broadcast(r.Participants, &protocol.ParticipantsUpdated{Participants: toWireParticipants(r.Participants)}, "")
}

// send queues ev for c without blocking the hub. A full queue drops the
// event; the transport's own liveness checks deal with stuck clients.
func (h *Hub) send(c *Client, ev protocol.Event) {
	if c.closed {
		return
	}
	select {
	case c.Send <- ev:
	default:
		c.logger.Warn("send queue full, event dropped", "type", ev.EventType())
	}
}

func (h *Hub) broadcast(members []room.Participant, ev protocol.Event, except string) {
	for _, p := range members {
		if p.ID == except {
			continue
		}
		if c, ok := h.clients[p.ID]; ok {
			h.send(c, ev)
		}
	}
}

func (h *Hub) reject(c *Client, err error) {
	code := errorCode(err)
	c.logger.Info("request rejected", "code", code, "error", err)
	h.send(c, &protocol.Error{Code: code, Message: err.Error()})
}
