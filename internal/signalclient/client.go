// Package signalclient is the call client's side of the signaling
// websocket.
package signalclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpmeet/internal/protocol"
	"github.com/BioHazard786/Warpmeet/internal/resolve"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	codec     protocol.Codec

	incoming chan protocol.Event
	outgoing chan protocol.Event
	done     chan struct{}

	closeOnce sync.Once
	logger    *slog.Logger
}

// NewClient creates a new signaling client.
func NewClient(serverURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan protocol.Event, 64),
		outgoing:  make(chan protocol.Event, 64),
		done:      make(chan struct{}),
		logger:    logger.With("component", "signalclient"),
	}
}

// Connect establishes the WebSocket connection. The server picks the codec
// from the offered subprotocols; msgpack is preferred.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     protocol.Subprotocols,
		NetDialContext:   resolve.New().DialContext,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.codec = protocol.CodecFor(conn.Subprotocol())
	c.logger.Debug("connected", "url", u.String(), "codec", c.codec.Name())

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads events from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("read loop ended", "error", err)
			}
			return
		}

		ev, err := c.codec.Decode(data)
		if err != nil {
			c.logger.Warn("dropping undecodable event", "error", err)
			continue
		}
		c.incoming <- ev
	}
}

// writePump writes events to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frame := websocket.TextMessage
	if c.codec.Binary() {
		frame = websocket.BinaryMessage
	}

	for {
		select {
		case ev := <-c.outgoing:
			data, err := c.codec.Encode(ev)
			if err != nil {
				c.logger.Error("encode failed", "type", ev.EventType(), "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(frame, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues an event for the server.
func (c *Client) Send(ev protocol.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- ev:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel of decoded server events. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan protocol.Event {
	return c.incoming
}

// Codec reports the negotiated wire codec. Valid after Connect.
func (c *Client) Codec() protocol.Codec {
	return c.codec
}

// Close closes the WebSocket connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// SendOffer relays an SDP offer to one remote participant.
func (c *Client) SendOffer(to string, desc webrtc.SessionDescription) error {
	return c.Send(&protocol.Offer{TargetParticipantID: to, Description: FromWebRTC(desc)})
}

// SendAnswer relays an SDP answer to one remote participant.
func (c *Client) SendAnswer(to string, desc webrtc.SessionDescription) error {
	return c.Send(&protocol.Answer{TargetParticipantID: to, Description: FromWebRTC(desc)})
}

// SendCandidate relays a trickled ICE candidate to one remote participant.
func (c *Client) SendCandidate(to string, candidate webrtc.ICECandidateInit) error {
	return c.Send(&protocol.Candidate{TargetParticipantID: to, Candidate: CandidateFromWebRTC(candidate)})
}
