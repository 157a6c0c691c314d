package wire

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	MsgFrameUpdate MessageType = "frame_update"
	MsgEventUpdate MessageType = "event_update"
	MsgComplete    MessageType = "processing_complete"
)

// Envelope is one unit of push-channel payload. Type selects which payload
// struct Payload decodes into.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DetectionEvent is a single disposal event reported by the analysis engine.
// Identity is the ID; the engine may re-send an event and receivers must
// treat the ID as authoritative.
type DetectionEvent struct {
	ID          int64      `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Source      string     `json:"source"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Position    [3]float64 `json:"position"`
}

// FramePayload carries one preview frame as a base64-encoded JPEG.
type FramePayload struct {
	Image      string `json:"image"`
	FrameCount int    `json:"frameCount"`
}

type EventPayload struct {
	Events []DetectionEvent `json:"events"`
}

// CompletePayload ends a session. The engine repeats the full event list so
// that a receiver joining late still gets the complete record.
type CompletePayload struct {
	EventsDetected int              `json:"eventsDetected"`
	Events         []DetectionEvent `json:"events,omitempty"`
}
