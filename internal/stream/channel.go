// Package stream owns the push-channel connection to the analysis engine:
// transport, envelope decode, and dispatch. Reconnection policy lives with
// the caller, not here.
package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wastewatch/console/internal/wire"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Handlers receive channel activity. All callbacks fire from the channel's
// single read goroutine, in delivery order. On a transport error OnError
// fires once and the channel is implicitly closed; on a clean remote close
// only OnClose fires. A locally closed channel fires neither.
type Handlers struct {
	OnMessage func(wire.Message)
	OnError   func(error)
	OnClose   func()
}

type Channel struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Dial opens the push channel at url and starts dispatching decoded
// envelopes to h. Malformed payloads are logged and dropped; the channel
// stays up.
func Dial(ctx context.Context, url string, h Handlers) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &Channel{conn: conn}

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	go c.pingLoop()
	go c.readLoop(h)

	return c, nil
}

// Close tears the connection down. It is idempotent and safe on a nil
// channel; closing suppresses all further handler callbacks.
func (c *Channel) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.conn.Close()
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// markClosed flips the closed flag, reporting whether this call did the flip.
// The read loop uses it to claim the right to fire the terminal callback.
func (c *Channel) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

func (c *Channel) readLoop(h Handlers) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.markClosed() {
				// Locally closed; stale callbacks stay silent.
				return
			}
			c.conn.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if h.OnClose != nil {
					h.OnClose()
				}
			} else if h.OnError != nil {
				h.OnError(err)
			}
			return
		}

		msg, err := wire.Decode(data)
		if err != nil {
			log.Printf("stream: dropping message: %v", err)
			continue
		}
		if h.OnMessage != nil {
			h.OnMessage(msg)
		}
	}
}

func (c *Channel) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for range ticker.C {
		if c.isClosed() {
			return
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}
