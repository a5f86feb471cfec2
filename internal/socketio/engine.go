package socketio

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type outFrame struct {
	data  string
	paced bool
	last  bool
}

// engineConn owns one WebSocket. All writes go through writeLoop so the
// gorilla connection only ever has a single writer.
type engineConn struct {
	ws       *websocket.Conn
	out      chan outFrame
	quit     chan struct{}
	finished chan struct{}
	limiter  *rate.Limiter

	startOnce sync.Once
	quitOnce  sync.Once
}

func newEngineConn(ws *websocket.Conn, limiter *rate.Limiter) *engineConn {
	return &engineConn{
		ws:       ws,
		out:      make(chan outFrame, outboundQueue),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
		limiter:  limiter,
	}
}

// send queues a frame. It reports false once the connection is shutting down.
func (c *engineConn) send(data string, paced bool) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.out <- outFrame{data: data, paced: paced}:
		return true
	case <-c.quit:
		return false
	}
}

func (c *engineConn) writeLoop() {
	started := false
	c.startOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(c.finished)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case f := <-c.out:
			if f.paced && c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return
				}
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(f.data)); err != nil {
				_ = c.ws.Close()
				return
			}
			if f.last {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				_ = c.ws.Close()
				return
			}
		case <-c.quit:
			return
		}
	}
}

// finish writes a final frame after everything already queued, then closes.
func (c *engineConn) finish(final string) {
	select {
	case c.out <- outFrame{data: final, last: true}:
		t := time.NewTimer(closeWait)
		select {
		case <-c.finished:
		case <-t.C:
		}
		t.Stop()
	case <-c.quit:
	}
	c.abort()
}

// abort stops the write loop and closes the WebSocket immediately.
func (c *engineConn) abort() {
	c.quitOnce.Do(func() {
		close(c.quit)
		_ = c.ws.Close()
	})
	// A write loop that never started must not leave finished open.
	c.startOnce.Do(func() { close(c.finished) })
}
