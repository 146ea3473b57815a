package signalclient

import (
	"log/slog"

	"github.com/BioHazard786/Warpmeet/internal/protocol"
)

// Handler routes incoming server events to channels.
//
// Presence, signaling and media-state events share the Room channel so that
// a participant's join, offers, candidates and departure are seen in the
// order the server sent them.
type Handler struct {
	client *Client
	logger *slog.Logger

	Joined chan *protocol.JoinedRoom
	Room   chan protocol.Event
	Chat   chan *protocol.NewMessage
	Error  chan *protocol.Error

	// Done is closed once the connection has ended and every channel above
	// is closed.
	Done chan struct{}
}

// NewHandler creates a new event handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client: client,
		logger: client.logger,
		Joined: make(chan *protocol.JoinedRoom, 1),
		Room:   make(chan protocol.Event, 256),
		Chat:   make(chan *protocol.NewMessage, 64),
		Error:  make(chan *protocol.Error, 8),
		Done:   make(chan struct{}),
	}
}

// Start routes events until the connection closes.
func (h *Handler) Start() {
	defer h.close()

	for ev := range h.client.Incoming() {
		switch ev := ev.(type) {
		case *protocol.JoinedRoom:
			h.Joined <- ev

		case *protocol.ParticipantJoined,
			*protocol.ParticipantLeft,
			*protocol.ParticipantsUpdated,
			*protocol.Offer,
			*protocol.Answer,
			*protocol.Candidate,
			*protocol.AudioToggled,
			*protocol.VideoToggled,
			*protocol.ScreenShareStarted,
			*protocol.ScreenShareStopped:
			h.Room <- ev

		case *protocol.NewMessage:
			h.Chat <- ev

		case *protocol.Error:
			select {
			case h.Error <- ev:
			default:
				h.logger.Warn("server error dropped", "code", ev.Code, "error", ev.Message)
			}

		default:
			h.logger.Debug("ignoring event", "type", ev.EventType())
		}
	}
}

func (h *Handler) close() {
	close(h.Joined)
	close(h.Room)
	close(h.Chat)
	close(h.Error)
	close(h.Done)
}
