package controller

import (
	"encoding/json"
	"time"

	"github.com/wastewatch/console/internal/wire"
)

type Status int

const (
	Idle Status = iota
	Uploading
	AwaitingChannel
	Streaming
	Completed
	Failed
)

var statusNames = map[Status]string{
	Idle:            "idle",
	Uploading:       "uploading",
	AwaitingChannel: "awaiting_channel",
	Streaming:       "streaming",
	Completed:       "completed",
	Failed:          "failed",
}

var statusFromName = map[string]Status{
	"idle":             Idle,
	"uploading":        Uploading,
	"awaiting_channel": AwaitingChannel,
	"streaming":        Streaming,
	"completed":        Completed,
	"failed":           Failed,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := statusFromName[name]; ok {
		*s = v
	}
	return nil
}

func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed
}

// FrameSnapshot is the latest decoded preview frame. At most one is retained;
// a new frame replaces it.
type FrameSnapshot struct {
	Image      []byte
	FrameCount int
	ReceivedAt time.Time
}

// Snapshot is a point-in-time copy of the session the controller owns.
type Snapshot struct {
	Status         Status
	SessionID      string
	Progress       int
	Frame          *FrameSnapshot
	Summary        *wire.CompletePayload
	Failure        *SessionError
	CreatedAt      time.Time
	LastActivityAt time.Time
}
