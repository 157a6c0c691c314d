// Package enginemock is an in-process stand-in for the waste-analysis engine.
// It accepts video uploads, replays a scripted detection run over a push
// channel, and serves the export endpoints. Used by the demo mode of the CLI
// and by integration-style tests.
package enginemock

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wastewatch/console/internal/wire"
)

// Script controls what a session's push channel replays.
type Script struct {
	// Frames is the number of frame_update messages interleaved with the
	// event batches.
	Frames int

	// Events are delivered in batches of BatchSize, then repeated once in
	// the completion summary.
	Events    []wire.DetectionEvent
	BatchSize int

	// Delay between consecutive messages. Zero replays as fast as the
	// socket drains.
	Delay time.Duration

	// OmitSessionID makes the upload response an empty object.
	OmitSessionID bool

	// InjectMalformed inserts one undecodable message mid-stream.
	InjectMalformed bool

	// DropBeforeComplete closes the channel abruptly instead of sending
	// processing_complete.
	DropBeforeComplete bool
}

// DefaultScript mirrors a short real run: a handful of frames and three
// detection events.
func DefaultScript() Script {
	base := time.Date(2026, 8, 14, 9, 30, 0, 0, time.UTC)
	return Script{
		Frames:    6,
		BatchSize: 1,
		Delay:     300 * time.Millisecond,
		Events: []wire.DetectionEvent{
			{ID: 1, Timestamp: base, Source: "Camera 01", Category: "unauthorized_dumping", Description: "Bagged waste left outside bin area", Position: [3]float64{12.4, 0, 3.1}},
			{ID: 2, Timestamp: base.Add(4 * time.Second), Source: "Camera 01", Category: "sorting_error", Description: "Organic waste in recycling stream", Position: [3]float64{8.0, 0, 1.2}},
			{ID: 3, Timestamp: base.Add(11 * time.Second), Source: "Camera 02", Category: "overflow", Description: "Container exceeding fill line", Position: [3]float64{20.7, 0, 5.5}},
		},
	}
}

// Server simulates the engine's HTTP and push-channel surface.
type Server struct {
	script   Script
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]bool
}

func New(script Script) *Server {
	return &Server{
		script:   script,
		sessions: make(map[string]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the engine's route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api/upload", s.handleUpload)
	r.Get("/ws/{sid}", s.handleStream)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/export/excel", s.handleExportCSV)
	r.Get("/api/export/report/{id}", s.handleExportReport)

	return r
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file submitted"})
		return
	}
	file.Close()

	if s.script.OmitSessionID {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Processing started"})
		return
	}

	sid := uuid.NewString()
	s.mu.Lock()
	s.sessions[sid] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "Processing started", "sid": sid})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	s.mu.Lock()
	known := s.sessions[sid]
	s.mu.Unlock()
	if !known {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("enginemock: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Drain client frames so ping/pong keeps working.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.replay(conn); err != nil {
		log.Printf("enginemock: session %s: %v", sid, err)
		return
	}

	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	// Give the peer a chance to acknowledge before tearing the socket down.
	select {
	case <-clientGone:
	case <-time.After(time.Second):
	}
}

// replay walks the script, interleaving frames with event batches the way the
// real engine reports while it decodes.
func (s *Server) replay(conn *websocket.Conn) error {
	send := func(t wire.MessageType, payload any) error {
		raw, err := wire.Encode(t, payload)
		if err != nil {
			return err
		}
		if s.script.Delay > 0 {
			time.Sleep(s.script.Delay)
		}
		return conn.WriteMessage(websocket.TextMessage, raw)
	}

	batchSize := s.script.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]wire.DetectionEvent, 0)
	for i := 0; i < len(s.script.Events); i += batchSize {
		end := i + batchSize
		if end > len(s.script.Events) {
			end = len(s.script.Events)
		}
		batches = append(batches, s.script.Events[i:end])
	}

	frame := synthFrame()
	sent := 0
	for i := 0; i < s.script.Frames; i++ {
		if err := send(wire.MsgFrameUpdate, wire.FramePayload{Image: frame, FrameCount: i + 1}); err != nil {
			return err
		}
		if s.script.InjectMalformed && i == s.script.Frames/2 {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"frame_update","payload":42}`)); err != nil {
				return err
			}
		}
		// Spread batches across the frame sequence.
		for sent < len(batches) && (i+1)*len(batches) >= (sent+1)*s.script.Frames {
			if err := send(wire.MsgEventUpdate, wire.EventPayload{Events: batches[sent]}); err != nil {
				return err
			}
			sent++
		}
	}
	for ; sent < len(batches); sent++ {
		if err := send(wire.MsgEventUpdate, wire.EventPayload{Events: batches[sent]}); err != nil {
			return err
		}
	}

	if s.script.DropBeforeComplete {
		return conn.Close()
	}

	return send(wire.MsgComplete, wire.CompletePayload{
		EventsDetected: len(s.script.Events),
		Events:         s.script.Events,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.script.Events)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	wanted := make(map[int64]bool)
	for _, part := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			http.Error(w, "bad id "+part, http.StatusBadRequest)
			return
		}
		wanted[id] = true
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.Write([]string{"ID", "Timestamp", "Source", "Type", "Description"})
	for _, ev := range s.script.Events {
		if len(wanted) > 0 && !wanted[ev.ID] {
			continue
		}
		cw.Write([]string{
			strconv.FormatInt(ev.ID, 10),
			ev.Timestamp.Format(time.RFC3339),
			ev.Source,
			ev.Category,
			ev.Description,
		})
	}
	cw.Flush()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
	w.Write(buf.Bytes())
}

func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "bad event id", http.StatusBadRequest)
		return
	}

	for _, ev := range s.script.Events {
		if ev.ID != id {
			continue
		}
		report := fmt.Sprintf("Event Report\n\nID: %d\nTimestamp: %s\nSource: %s\nType: %s\nDescription: %s\nPosition: %.1f, %.1f, %.1f\n",
			ev.ID, ev.Timestamp.Format(time.RFC3339), ev.Source, ev.Category, ev.Description,
			ev.Position[0], ev.Position[1], ev.Position[2])
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="Event_%d_Report.txt"`, id))
		w.Write([]byte(report))
		return
	}

	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Event not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("enginemock: encode response: %v", err)
	}
}

// synthFrame is a 1x1 gray JPEG, enough for clients that render previews.
func synthFrame() string {
	return base64.StdEncoding.EncodeToString([]byte{
		0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46, 0x00, 0x01,
		0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xFF, 0xD9,
	})
}
