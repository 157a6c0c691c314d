package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed reports a payload that is not a well-formed envelope. Callers
// treat it as a single dropped message, never as a fatal fault.
var ErrMalformed = errors.New("malformed message")

// Message is one decoded envelope. Exactly one of Frame, Events, Complete is
// non-nil, matching Type.
type Message struct {
	Type     MessageType
	Frame    *FramePayload
	Events   *EventPayload
	Complete *CompletePayload
}

// Decode parses raw into a Message. Any input that is not valid JSON, has an
// unknown type tag, or whose payload does not match the tag's shape returns
// an error wrapping ErrMalformed.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	msg := Message{Type: env.Type}
	switch env.Type {
	case MsgFrameUpdate:
		var p FramePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("%w: frame_update payload: %v", ErrMalformed, err)
		}
		msg.Frame = &p
	case MsgEventUpdate:
		var p EventPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("%w: event_update payload: %v", ErrMalformed, err)
		}
		msg.Events = &p
	case MsgComplete:
		var p CompletePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("%w: processing_complete payload: %v", ErrMalformed, err)
		}
		msg.Complete = &p
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
	return msg, nil
}

// Encode marshals a typed payload into an envelope. The payload must be one
// of the three variant structs.
func Encode(t MessageType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: data})
}
