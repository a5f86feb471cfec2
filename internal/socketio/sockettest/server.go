// Package sockettest provides an in-process Socket.IO server for tests, in the spirit of
// net/http/httptest. It speaks the Engine.IO v4 WebSocket transport and the root
// namespace only.
package sockettest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mithrel/asst/internal/socketio"
)

// AckHandler answers an event. Returning ok=false withholds the acknowledgment.
type AckHandler func(args []json.RawMessage) (reply []any, ok bool)

// Emission is one event received from a client.
type Emission struct {
	SID   string
	Event string
	Args  []json.RawMessage
	AckID *uint64
}

// Server is a Socket.IO test server listening on a loopback address.
type Server struct {
	*httptest.Server

	PingInterval time.Duration
	PingTimeout  time.Duration
	// Reject, when set, answers namespace CONNECT with CONNECT_ERROR carrying this message.
	Reject string

	upgrader websocket.Upgrader

	mu         sync.Mutex
	handlers   map[string]AckHandler
	received   []Emission
	conns      map[string]*conn
	connects   int
	joined     chan string
	disconnect chan string
}

type conn struct {
	engineSID string
	sid       string
	ws        *websocket.Conn
	writeMu   sync.Mutex
	done      chan struct{}
	once      sync.Once
}

// NewServer starts a server. Callers should Close it when done.
func NewServer() *Server {
	s := &Server{
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		handlers:     make(map[string]AckHandler),
		conns:        make(map[string]*conn),
		joined:       make(chan string, 64),
		disconnect:   make(chan string, 64),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveWS))
	return s
}

// Handle registers the acknowledgment handler for event.
func (s *Server) Handle(event string, h AckHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// Reply registers a handler that always acknowledges event with reply.
func (s *Server) Reply(event string, reply ...any) {
	s.Handle(event, func([]json.RawMessage) ([]any, bool) { return reply, true })
}

// Received returns a snapshot of all events received so far.
func (s *Server) Received() []Emission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Emission(nil), s.received...)
}

// Connects returns how many namespace connects were accepted.
func (s *Server) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// WaitJoined blocks until a client joins the namespace and returns its sid.
func (s *Server) WaitJoined(timeout time.Duration) (string, error) {
	select {
	case sid := <-s.joined:
		return sid, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("sockettest: no client joined within %s", timeout)
	}
}

// WaitDisconnected blocks until a client leaves and returns its sid.
func (s *Server) WaitDisconnected(timeout time.Duration) (string, error) {
	select {
	case sid := <-s.disconnect:
		return sid, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("sockettest: no client left within %s", timeout)
	}
}

// WaitReceived polls until at least n events were received.
func (s *Server) WaitReceived(n int, timeout time.Duration) ([]Emission, error) {
	deadline := time.Now().Add(timeout)
	for {
		got := s.Received()
		if len(got) >= n {
			return got, nil
		}
		if time.Now().After(deadline) {
			return got, fmt.Errorf("sockettest: received %d events, want %d", len(got), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Emit sends an event to every joined client.
func (s *Server) Emit(event string, args ...any) error {
	p, err := socketio.EventPacket("/", event, args...)
	if err != nil {
		return err
	}
	for _, c := range s.snapshot() {
		if err := c.write(p.Encode()); err != nil {
			return err
		}
	}
	return nil
}

// Kick sends a namespace DISCONNECT to every client.
func (s *Server) Kick() {
	frame := socketio.Packet{Type: socketio.PacketDisconnect}.Encode()
	for _, c := range s.snapshot() {
		_ = c.write(frame)
	}
}

// DropConnections closes every transport abruptly, without a DISCONNECT packet.
func (s *Server) DropConnections() {
	for _, c := range s.snapshot() {
		c.close()
	}
}

// Close drops all connections and shuts the listener down.
func (s *Server) Close() {
	s.DropConnections()
	s.Server.Close()
}

func (s *Server) snapshot() []*conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, socketio.DefaultPath) || r.URL.Query().Get("transport") != "websocket" {
		http.NotFound(w, r)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{engineSID: uuid.NewString(), ws: ws, done: make(chan struct{})}
	defer c.close()

	open, _ := json.Marshal(socketio.Handshake{
		SID:          c.engineSID,
		Upgrades:     []string{},
		PingInterval: int(s.PingInterval / time.Millisecond),
		PingTimeout:  int(s.PingTimeout / time.Millisecond),
		MaxPayload:   1000000,
	})
	if err := c.write(string(socketio.EngineOpen) + string(open)); err != nil {
		return
	}
	go s.pinger(c)

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			s.leave(c)
			return
		}
		frame := string(msg)
		if frame == "" || socketio.EngineType(frame[0]) != socketio.EngineMessage {
			continue
		}
		p, err := socketio.DecodePacket(frame[1:])
		if err != nil {
			continue
		}
		switch p.Type {
		case socketio.PacketConnect:
			s.join(c)
		case socketio.PacketDisconnect:
			s.leave(c)
			return
		case socketio.PacketEvent:
			s.event(c, p)
		}
	}
}

func (s *Server) join(c *conn) {
	if s.Reject != "" {
		data, _ := json.Marshal(map[string]string{"message": s.Reject})
		_ = c.write(socketio.Packet{Type: socketio.PacketConnectError, Data: data}.Encode())
		return
	}
	c.sid = uuid.NewString()
	s.mu.Lock()
	s.conns[c.sid] = c
	s.connects++
	s.mu.Unlock()
	data, _ := json.Marshal(map[string]string{"sid": c.sid})
	_ = c.write(socketio.Packet{Type: socketio.PacketConnect, Data: data}.Encode())
	s.joined <- c.sid
}

func (s *Server) leave(c *conn) {
	s.mu.Lock()
	_, ok := s.conns[c.sid]
	delete(s.conns, c.sid)
	s.mu.Unlock()
	if ok {
		s.disconnect <- c.sid
	}
}

func (s *Server) event(c *conn, p socketio.Packet) {
	name, args, err := socketio.SplitEvent(p.Data)
	if err != nil {
		return
	}
	em := Emission{SID: c.sid, Event: name, Args: args}
	if p.HasID {
		id := p.ID
		em.AckID = &id
	}
	s.mu.Lock()
	s.received = append(s.received, em)
	h := s.handlers[name]
	s.mu.Unlock()

	if !p.HasID || h == nil {
		return
	}
	reply, ok := h(args)
	if !ok {
		return
	}
	ack, err := socketio.AckPacket("/", p.ID, reply...)
	if err != nil {
		return
	}
	_ = c.write(ack.Encode())
}

func (s *Server) pinger(c *conn) {
	t := time.NewTicker(s.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := c.write(string(socketio.EnginePing)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *conn) write(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
