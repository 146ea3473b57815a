// Package server wires the signaling hub and the room directory to HTTP.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpmeet/internal/protocol"
	"github.com/BioHazard786/Warpmeet/internal/signaling"
)

// Options configure the HTTP surface.
type Options struct {
	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string

	// SendQueue is the outbound buffer per websocket session.
	SendQueue int

	Logger *slog.Logger
}

// RoomStatus is the body of the room-existence check.
type RoomStatus struct {
	RoomID           string `json:"roomId"`
	Exists           bool   `json:"exists"`
	ParticipantCount int    `json:"participantCount,omitempty"`
}

// NewRoom is the body returned when minting a room code.
type NewRoom struct {
	RoomID string `json:"roomId"`
}

// NewHandler returns the server's routes.
func NewHandler(hub *signaling.Hub, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /ws", ServeWs(hub, newUpgrader(opts.AllowedOrigins), opts.SendQueue, logger))
	mux.HandleFunc("GET /api/rooms/{id}", checkRoomHandler(hub, logger))
	mux.HandleFunc("POST /api/rooms", newRoomHandler(hub, logger))
	return mux
}

func newUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		Subprotocols:    protocol.Subprotocols,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowed, origin)
		},
	}
}

// ServeWs returns an http.HandlerFunc that upgrades to a websocket session.
// The negotiated subprotocol picks the wire codec; none means JSON.
func ServeWs(hub *signaling.Hub, upgrader *websocket.Upgrader, queue int, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		codec := protocol.CodecFor(conn.Subprotocol())
		client := signaling.NewClient(hub, conn, codec, queue)

		select {
		case hub.Register <- client:
		case <-hub.Done():
			conn.Close()
			return
		}

		logger.Debug("websocket session opened", "participant_id", client.ID, "codec", codec.Name())

		go client.WritePump()
		go client.ReadPump()
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

func checkRoomHandler(hub *signaling.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("id")
		rm, ok := hub.Rooms().GetRoom(roomID)
		if !ok {
			writeJSON(w, http.StatusNotFound, RoomStatus{RoomID: roomID}, logger)
			return
		}
		writeJSON(w, http.StatusOK, RoomStatus{
			RoomID:           roomID,
			Exists:           true,
			ParticipantCount: len(rm.Participants),
		}, logger)
	}
}

func newRoomHandler(hub *signaling.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := hub.Rooms().NewRoomID()
		if err != nil {
			logger.Error("failed to mint room id", "error", err)
			http.Error(w, "could not create room", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, NewRoom{RoomID: id}, logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}
