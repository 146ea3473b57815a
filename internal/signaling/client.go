package signaling

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpmeet/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP with many candidates fits.
	maxMessageSize = 64 * 1024

	// DefaultSendQueue is the outbound buffer per connection.
	DefaultSendQueue = 256
)

// Client is one websocket connection, i.e. one transport session. Its ID
// doubles as the participant id once it joins a room.
type Client struct {
	ID    string
	Hub   *Hub
	Conn  *websocket.Conn
	Codec protocol.Codec

	// Send is drained by WritePump. Only the hub goroutine writes to it or
	// closes it.
	Send chan protocol.Event

	// roomID and closed are owned by the hub goroutine.
	roomID string
	closed bool

	logger *slog.Logger
}

// Inbound is an event read from a client, or the error that prevented
// decoding one.
type Inbound struct {
	Client *Client
	Event  protocol.Event
	Err    error
}

// NewClient wraps an upgraded connection with a fresh session id.
func NewClient(hub *Hub, conn *websocket.Conn, codec protocol.Codec, queue int) *Client {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	id := uuid.NewString()
	return &Client{
		ID:     id,
		Hub:    hub,
		Conn:   conn,
		Codec:  codec,
		Send:   make(chan protocol.Event, queue),
		logger: hub.logger.With("participant_id", id),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}

		ev, err := c.Codec.Decode(data)
		select {
		case c.Hub.Inbound <- &Inbound{Client: c, Event: ev, Err: err}:
		case <-c.Hub.Done():
			return
		}
	}
}

// WritePump pumps events from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	frame := websocket.TextMessage
	if c.Codec.Binary() {
		frame = websocket.BinaryMessage
	}

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.Codec.Encode(ev)
			if err != nil {
				c.logger.Error("encode failed", "type", ev.EventType(), "error", err)
				continue
			}
			if err := c.Conn.WriteMessage(frame, data); err != nil {
				c.logger.Warn("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
