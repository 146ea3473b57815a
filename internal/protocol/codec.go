package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Websocket subprotocols understood by the server. Browsers that offer none
// get JSON.
const (
	SubprotocolJSON    = "warpmeet.json"
	SubprotocolMsgpack = "warpmeet.msgpack"
)

// Subprotocols lists every supported subprotocol in preference order.
var Subprotocols = []string{SubprotocolMsgpack, SubprotocolJSON}

var (
	ErrUnknownType = errors.New("unknown event type")
	ErrMalformed   = errors.New("malformed event")
)

// Codec converts events to and from websocket frames.
type Codec interface {
	// Name is the websocket subprotocol this codec answers to.
	Name() string
	// Binary reports whether frames are binary rather than text.
	Binary() bool
	Encode(ev Event) ([]byte, error)
	Decode(data []byte) (Event, error)
}

// CodecFor returns the codec for a negotiated subprotocol, JSON by default.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgpack {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

type jsonEnvelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JSONCodec encodes events as {"type": ..., "payload": {...}} text frames.
type JSONCodec struct{}

func (JSONCodec) Name() string { return SubprotocolJSON }
func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	return json.Marshal(jsonEnvelope{Type: ev.EventType(), Payload: payload})
}

func (JSONCodec) Decode(data []byte) (Event, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev, ok := New(env.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
		}
	}
	return ev, nil
}

type msgpackEnvelope struct {
	Type    Type               `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// MsgpackCodec encodes the same envelope as MessagePack binary frames.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return SubprotocolMsgpack }
func (MsgpackCodec) Binary() bool { return true }

func (MsgpackCodec) Encode(ev Event) ([]byte, error) {
	payload, err := msgpack.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	return msgpack.Marshal(msgpackEnvelope{Type: ev.EventType(), Payload: payload})
}

func (MsgpackCodec) Decode(data []byte) (Event, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev, ok := New(env.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if len(env.Payload) > 0 {
		if err := msgpack.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
		}
	}
	return ev, nil
}
