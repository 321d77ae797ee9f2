/*
Package eventrpc contains a set of types used for communication with the
real-time event channel of Trellis servers. It defines the framing of channel
messages, subscription filters, server-pushed event payloads and errors, as
well as the JSON-RPC request/response envelope used to bootstrap the channel.
*/
package eventrpc

import (
	"encoding/json"
	"fmt"
)

// MessageType represents a type of message flowing through the event channel
// in either direction.
type MessageType byte

const (
	// InvalidMsg is an invalid message type that is the default value of
	// MessageType. It's only used as an initial value similar to nil.
	InvalidMsg MessageType = iota
	// RegisterFilterMsg is a client-to-server `REGISTER_FILTER` request
	// carrying a serialized filter.
	RegisterFilterMsg
	// DeregisterFilterMsg is a client-to-server `DEREGISTER_FILTER` request
	// carrying a serialized filter.
	DeregisterFilterMsg
	// EmitEventMsg is a server-to-client `EMIT_EVENT` message carrying an
	// event notification.
	EmitEventMsg
	// EmitErrorMsg is a server-to-client `EMIT_ERROR` message carrying an
	// error scoped either to a filter or to the whole connection.
	EmitErrorMsg
	// PingMsg is a server-to-client `PING` liveness probe. It carries no data.
	PingMsg
	// PongMsg is a client-to-server `PONG` reply to a PING. It carries no data.
	PongMsg
)

// String implements the fmt.Stringer interface.
func (m MessageType) String() string {
	switch m {
	case RegisterFilterMsg:
		return "REGISTER_FILTER"
	case DeregisterFilterMsg:
		return "DEREGISTER_FILTER"
	case EmitEventMsg:
		return "EMIT_EVENT"
	case EmitErrorMsg:
		return "EMIT_ERROR"
	case PingMsg:
		return "PING"
	case PongMsg:
		return "PONG"
	default:
		return "unknown"
	}
}

// GetMessageTypeFromString converts the input string into a MessageType if
// it's possible.
func GetMessageTypeFromString(s string) (MessageType, error) {
	switch s {
	case "REGISTER_FILTER":
		return RegisterFilterMsg, nil
	case "DEREGISTER_FILTER":
		return DeregisterFilterMsg, nil
	case "EMIT_EVENT":
		return EmitEventMsg, nil
	case "EMIT_ERROR":
		return EmitErrorMsg, nil
	case "PING":
		return PingMsg, nil
	case "PONG":
		return PongMsg, nil
	default:
		return InvalidMsg, fmt.Errorf("invalid message type: %s", s)
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (m MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (m *MessageType) UnmarshalJSON(b []byte) error {
	var s string

	err := json.Unmarshal(b, &s)
	if err != nil {
		return err
	}
	mt, err := GetMessageTypeFromString(s)
	if err != nil {
		return err
	}
	*m = mt
	return nil
}

// Message is a single frame of the event channel: a type tag plus a
// type-specific body. PING and PONG messages have no body at all, for other
// types the body is mandatory.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventNotification is the data of an EMIT_EVENT message: a category-specific
// payload addressed to a particular filter.
type EventNotification struct {
	FilterID string          `json:"filter_id"`
	Category EventCategory   `json:"category"`
	Payload  json.RawMessage `json:"payload"`
}

// DecodePayload unmarshals the category-specific payload of the notification.
// The concrete type returned is *BlockFinalized, *ValueChanged,
// *TxStateChanged or *FilterDeleted depending on the category.
func (n *EventNotification) DecodePayload() (interface{}, error) {
	var v interface{}

	switch n.Category {
	case BlockFinalizedCategory:
		v = new(BlockFinalized)
	case ValueChangedCategory:
		v = new(ValueChanged)
	case TxStateChangedCategory:
		v = new(TxStateChanged)
	case FilterDeletedCategory:
		v = new(FilterDeleted)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, n.Category)
	}
	if len(n.Payload) == 0 {
		return nil, fmt.Errorf("missing %s payload", n.Category)
	}
	if err := json.Unmarshal(n.Payload, v); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", n.Category, err)
	}
	return v, nil
}

// NewRegisterFilterMessage returns a new REGISTER_FILTER message carrying the
// given filter.
func NewRegisterFilterMessage(f *Filter) (*Message, error) {
	return newFilterMessage(RegisterFilterMsg, f)
}

// NewDeregisterFilterMessage returns a new DEREGISTER_FILTER message carrying
// the given filter.
func NewDeregisterFilterMessage(f *Filter) (*Message, error) {
	return newFilterMessage(DeregisterFilterMsg, f)
}

func newFilterMessage(typ MessageType, f *Filter) (*Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter %s: %w", f.ID, err)
	}
	return &Message{Type: typ, Data: data}, nil
}

// NewEmitEventMessage returns a new EMIT_EVENT message carrying the given
// notification. It's used by server implementations and tests, the client
// only ever receives these.
func NewEmitEventMessage(n *EventNotification) (*Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}
	return &Message{Type: EmitEventMsg, Data: data}, nil
}

// NewEmitErrorMessage returns a new EMIT_ERROR message carrying the given
// error. It's used by server implementations and tests, the client only ever
// receives these.
func NewEmitErrorMessage(e *EventError) (*Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode error: %w", err)
	}
	return &Message{Type: EmitErrorMsg, Data: data}, nil
}

// NewPingMessage returns a new PING message.
func NewPingMessage() *Message {
	return &Message{Type: PingMsg}
}

// NewPongMessage returns a new PONG message.
func NewPongMessage() *Message {
	return &Message{Type: PongMsg}
}
