// Package controller owns the session lifecycle: one upload call plus an
// asynchronous push channel, turned into an ordered, race-free
// client-observable session. All state mutation happens on a single actor
// goroutine; callbacks from superseded sessions are discarded by epoch.
package controller

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wastewatch/console/internal/config"
	"github.com/wastewatch/console/internal/engine"
	"github.com/wastewatch/console/internal/ledger"
	"github.com/wastewatch/console/internal/stream"
	"github.com/wastewatch/console/internal/wire"
)

// Engine is the upload/handshake boundary of the analysis engine.
type Engine interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	StreamURL(sessionID string) string
}

// Listener receives session activity. All callbacks fire from the
// controller's actor goroutine, so implementations must not block.
type Listener interface {
	StatusChanged(Status)
	Progress(int)
	Frame(FrameSnapshot)
	EventsAppended(count int)
	Completed(summary wire.CompletePayload)
	Failed(*SessionError)
}

// NopListener implements Listener with no-ops, for embedding.
type NopListener struct{}

func (NopListener) StatusChanged(Status)           {}
func (NopListener) Progress(int)                   {}
func (NopListener) Frame(FrameSnapshot)            {}
func (NopListener) EventsAppended(int)             {}
func (NopListener) Completed(wire.CompletePayload) {}
func (NopListener) Failed(*SessionError)           {}

// Input is one video submission.
type Input struct {
	Name        string
	ContentType string
	Data        io.Reader
}

var errClosed = errors.New("controller closed")

type channel interface{ Close() }

type dialFunc func(ctx context.Context, url string, h stream.Handlers) (channel, error)

type Controller struct {
	engine   Engine
	ledger   *ledger.Ledger
	prog     config.ProgressConfig
	listener Listener
	dial     dialFunc

	queue    chan func()
	quit     chan struct{}
	quitOnce sync.Once

	mu   sync.RWMutex
	snap Snapshot

	// Everything below is touched only by the actor goroutine.
	epoch        uint64
	ch           channel
	rampStop     chan struct{}
	completeSeen bool
}

func New(eng Engine, lg *ledger.Ledger, prog config.ProgressConfig, listener Listener) *Controller {
	if listener == nil {
		listener = NopListener{}
	}
	if prog.Interval <= 0 {
		prog.Interval = 300 * time.Millisecond
	}
	if prog.Step <= 0 {
		prog.Step = 15
	}
	if prog.Ceiling <= 0 || prog.Ceiling >= 100 {
		prog.Ceiling = 85
	}
	c := &Controller{
		engine:   eng,
		ledger:   lg,
		prog:     prog,
		listener: listener,
		queue:    make(chan func(), 64),
		quit:     make(chan struct{}),
	}
	c.dial = func(ctx context.Context, url string, h stream.Handlers) (channel, error) {
		return stream.Dial(ctx, url, h)
	}
	go c.run()
	return c
}

func (c *Controller) run() {
	for {
		select {
		case fn := <-c.queue:
			fn()
		case <-c.quit:
			c.teardown()
			return
		}
	}
}

// post enqueues fn on the actor. Returns false once the controller is shut
// down.
func (c *Controller) post(fn func()) bool {
	select {
	case c.queue <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// Start submits a video and begins a new session, superseding any session in
// progress (its channel is closed and its late callbacks are ignored). The
// precondition is checked synchronously: the file must declare itself as
// video content.
func (c *Controller) Start(ctx context.Context, in Input) error {
	if err := validateInput(in); err != nil {
		return err
	}
	if !c.post(func() { c.begin(ctx, in) }) {
		return errClosed
	}
	return nil
}

// Reset tears down any session and returns the controller to Idle. Safe to
// call from any state, any number of times.
func (c *Controller) Reset() {
	c.post(func() {
		c.teardown()
		c.ledger.Clear()
		c.update(func(s *Snapshot) { *s = Snapshot{Status: Idle} })
	})
}

// Shutdown stops the actor. The controller cannot be reused afterward.
func (c *Controller) Shutdown() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.snap
	if c.snap.Frame != nil {
		f := *c.snap.Frame
		out.Frame = &f
	}
	return out
}

func validateInput(in Input) error {
	if in.Name == "" || in.Data == nil {
		return &SessionError{Kind: InvalidInput, Err: errors.New("no file submitted")}
	}
	if strings.HasPrefix(in.ContentType, "video/") {
		return nil
	}
	if strings.ToLower(filepath.Ext(in.Name)) == ".mp4" {
		return nil
	}
	return &SessionError{Kind: InvalidInput, Err: fmt.Errorf("not video content: %q", in.ContentType)}
}

// --- actor-side transitions ---

func (c *Controller) begin(ctx context.Context, in Input) {
	c.teardown()
	c.ledger.Clear()

	epoch := c.epoch
	now := time.Now()
	c.update(func(s *Snapshot) {
		*s = Snapshot{Status: Uploading, CreatedAt: now, LastActivityAt: now}
	})
	c.listener.StatusChanged(Uploading)

	c.startRamp(epoch)

	contentType := in.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	go func() {
		sid, err := c.engine.Upload(ctx, in.Name, contentType, in.Data)
		c.post(func() { c.uploadDone(ctx, epoch, sid, err) })
	}()
}

func (c *Controller) uploadDone(ctx context.Context, epoch uint64, sid string, err error) {
	if epoch != c.epoch {
		return
	}
	c.stopRamp()

	if err != nil {
		kind := UploadError
		if errors.Is(err, engine.ErrNoSessionID) {
			kind = ProtocolViolation
		}
		c.fail(kind, err)
		return
	}

	c.update(func(s *Snapshot) {
		s.SessionID = sid
		s.Status = AwaitingChannel
		s.LastActivityAt = time.Now()
	})
	c.listener.StatusChanged(AwaitingChannel)

	url := c.engine.StreamURL(sid)
	h := stream.Handlers{
		OnMessage: func(msg wire.Message) {
			c.post(func() { c.onMessage(epoch, msg) })
		},
		OnError: func(cause error) {
			c.post(func() { c.onChannelDown(epoch, cause) })
		},
		OnClose: func() {
			c.post(func() { c.onChannelDown(epoch, errors.New("channel closed before completion")) })
		},
	}
	go func() {
		ch, dialErr := c.dial(ctx, url, h)
		c.post(func() { c.dialDone(epoch, ch, dialErr) })
	}()
}

func (c *Controller) dialDone(epoch uint64, ch channel, err error) {
	if epoch != c.epoch {
		if ch != nil {
			ch.Close()
		}
		return
	}
	if err != nil {
		c.fail(ChannelLost, fmt.Errorf("open stream: %w", err))
		return
	}
	c.ch = ch
}

func (c *Controller) onMessage(epoch uint64, msg wire.Message) {
	if epoch != c.epoch || c.snap.Status.IsTerminal() {
		return
	}

	switch msg.Type {
	case wire.MsgFrameUpdate:
		image, err := base64.StdEncoding.DecodeString(msg.Frame.Image)
		if err != nil {
			log.Printf("controller: dropping frame with bad image encoding: %v", err)
			return
		}
		frame := FrameSnapshot{Image: image, FrameCount: msg.Frame.FrameCount, ReceivedAt: time.Now()}
		entered := false
		c.update(func(s *Snapshot) {
			if s.Status == AwaitingChannel {
				s.Status = Streaming
				entered = true
			}
			s.Frame = &frame
			s.LastActivityAt = frame.ReceivedAt
		})
		if entered {
			c.listener.StatusChanged(Streaming)
		}
		c.listener.Frame(frame)

	case wire.MsgEventUpdate:
		appended := c.ledger.Ingest(msg.Events.Events)
		c.update(func(s *Snapshot) { s.LastActivityAt = time.Now() })
		if appended > 0 {
			c.listener.EventsAppended(appended)
		}

	case wire.MsgComplete:
		c.completeSeen = true
		c.ledger.Ingest(msg.Complete.Events)
		summary := *msg.Complete
		c.update(func(s *Snapshot) {
			s.Progress = 100
			s.Summary = &summary
			s.Status = Completed
			s.LastActivityAt = time.Now()
		})
		if c.ch != nil {
			c.ch.Close()
			c.ch = nil
		}
		c.listener.StatusChanged(Completed)
		c.listener.Completed(summary)
	}
}

func (c *Controller) onChannelDown(epoch uint64, cause error) {
	if epoch != c.epoch || c.completeSeen || c.snap.Status.IsTerminal() {
		return
	}
	// Aggregated events stay in the ledger: they are valid engine output
	// already delivered.
	c.fail(ChannelLost, cause)
}

func (c *Controller) fail(kind FailureKind, cause error) {
	c.stopRamp()
	if c.ch != nil {
		c.ch.Close()
		c.ch = nil
	}
	sessErr := &SessionError{Kind: kind, Err: cause}
	c.update(func(s *Snapshot) {
		s.Status = Failed
		s.Failure = sessErr
	})
	log.Printf("controller: session failed: %v", sessErr)
	c.listener.StatusChanged(Failed)
	c.listener.Failed(sessErr)
}

// teardown cancels the current session: bumps the epoch so queued callbacks
// go stale, closes the channel, and stops the synthetic ramp.
func (c *Controller) teardown() {
	c.epoch++
	c.stopRamp()
	if c.ch != nil {
		c.ch.Close()
		c.ch = nil
	}
	c.completeSeen = false
}

func (c *Controller) startRamp(epoch uint64) {
	stop := make(chan struct{})
	c.rampStop = stop
	ticker := time.NewTicker(c.prog.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.quit:
				return
			case <-ticker.C:
				c.post(func() { c.rampTick(epoch) })
			}
		}
	}()
}

func (c *Controller) stopRamp() {
	if c.rampStop != nil {
		close(c.rampStop)
		c.rampStop = nil
	}
}

// rampTick advances the synthetic progress estimate. It runs only while the
// upload is in flight and can never reach 100; only a completion message
// reports 100.
func (c *Controller) rampTick(epoch uint64) {
	if epoch != c.epoch || c.snap.Status != Uploading {
		return
	}
	var prev, next int
	c.update(func(s *Snapshot) {
		prev = s.Progress
		next = min(s.Progress+c.prog.Step, c.prog.Ceiling)
		s.Progress = next
	})
	if next != prev {
		c.listener.Progress(next)
	}
}

// update applies fn to the snapshot under the write lock. Listener
// notifications happen after the lock is released.
func (c *Controller) update(fn func(*Snapshot)) {
	c.mu.Lock()
	fn(&c.snap)
	c.mu.Unlock()
}
