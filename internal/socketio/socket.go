// Package socketio is a client for Socket.IO v5 servers using the Engine.IO v4
// WebSocket transport. It covers what an event/ack style client needs: namespace
// connect, events, acknowledgments, ping answering, send buffering while offline and
// reconnection with backoff. Binary attachments and HTTP long-polling are not supported.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	DefaultPath = "/socket.io/"

	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
	writeWait           = 10 * time.Second
	closeWait           = time.Second
	outboundQueue       = 1024
)

// Disconnect reasons reported to OnDisconnect handlers.
const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
)

// Options controls the connection. The zero value is not useful; start from DefaultOptions.
type Options struct {
	Path      string
	Namespace string
	// Auth is sent as the CONNECT payload when non-nil.
	Auth   any
	Header http.Header

	DialTimeout time.Duration

	Reconnection         bool
	ReconnectionAttempts int // 0 means unlimited
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration
	RandomizationFactor  float64

	// EmitRate paces outbound event frames; 0 disables pacing.
	EmitRate  rate.Limit
	EmitBurst int

	Logger *log.Logger
}

// DefaultOptions mirrors the defaults of the reference JavaScript client.
func DefaultOptions() Options {
	return Options{
		Path:                 DefaultPath,
		Namespace:            rootNamespace,
		DialTimeout:          20 * time.Second,
		Reconnection:         true,
		ReconnectionDelay:    time.Second,
		ReconnectionDelayMax: 5 * time.Second,
		RandomizationFactor:  0.5,
		EmitBurst:            1,
	}
}

// EventHandler receives the arguments of a server event.
type EventHandler func(args []json.RawMessage)

// AckFunc receives the arguments of an acknowledgment. It is called at most once.
type AckFunc func(args []json.RawMessage)

// Socket is a single Socket.IO namespace connection. Handlers run on the read-loop
// goroutine in arrival order and must not block waiting for acknowledgments.
type Socket struct {
	endpoint  string
	namespace string
	opts      Options
	dialer    *websocket.Dialer
	limiter   *rate.Limiter
	log       *log.Logger

	handlersMu     sync.RWMutex
	onConnect      []func()
	onDisconnect   []func(reason string)
	onConnectError []func(err error)
	events         map[string][]EventHandler

	mu        sync.Mutex
	conn      *engineConn
	connected bool
	sid       string
	buffer    []string
	started   bool
	closed    bool

	nextID atomic.Uint64
	ackMu  sync.Mutex
	acks   map[uint64]AckFunc

	stop chan struct{}
	done chan struct{}
}

// New validates rawURL and prepares a socket. Nothing is dialed until Open.
// A path component in rawURL selects the namespace, as in the JavaScript client.
func New(rawURL string, opts Options) (*Socket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q has no host", rawURL)
	}

	ns := opts.Namespace
	if ns == "" {
		ns = rootNamespace
	}
	if ns == rootNamespace && u.Path != "" && u.Path != "/" {
		ns = u.Path
	}
	if !strings.HasPrefix(ns, "/") {
		ns = "/" + ns
	}

	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	u.Path = path
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	s := &Socket{
		endpoint:  u.String(),
		namespace: ns,
		opts:      opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.DialTimeout,
		},
		log:    logger,
		events: make(map[string][]EventHandler),
		acks:   make(map[uint64]AckFunc),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if opts.EmitRate > 0 {
		burst := opts.EmitBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(opts.EmitRate, burst)
	}
	return s, nil
}

// Endpoint returns the WebSocket URL the socket dials.
func (s *Socket) Endpoint() string { return s.endpoint }

// Namespace returns the namespace the socket joins.
func (s *Socket) Namespace() string { return s.namespace }

func (s *Socket) OnConnect(fn func()) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

func (s *Socket) OnDisconnect(fn func(reason string)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onDisconnect = append(s.onDisconnect, fn)
}

func (s *Socket) OnConnectError(fn func(err error)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onConnectError = append(s.onConnectError, fn)
}

// On registers a handler for a server-emitted event.
func (s *Socket) On(event string, fn EventHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.events[event] = append(s.events[event], fn)
}

// Connected reports whether the namespace is currently joined.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ID returns the namespace session id, or "" while disconnected.
func (s *Socket) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

// Done is closed once the background connection manager has stopped.
func (s *Socket) Done() <-chan struct{} { return s.done }

// Open starts the background connection manager. It returns immediately.
func (s *Socket) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true
	go s.run()
	return nil
}

// Emit sends an event without requesting an acknowledgment.
func (s *Socket) Emit(event string, args ...any) error {
	p, err := EventPacket(s.namespace, event, args...)
	if err != nil {
		return err
	}
	return s.write(p.Encode())
}

// EmitWithAck sends an event and registers ack for the server's acknowledgment.
// The returned id can be passed to CancelAck. While disconnected the packet is buffered
// and sent after the next successful connect.
func (s *Socket) EmitWithAck(event string, ack AckFunc, args ...any) (uint64, error) {
	p, err := EventPacket(s.namespace, event, args...)
	if err != nil {
		return 0, err
	}
	id := s.nextID.Add(1) - 1
	p.HasID = true
	p.ID = id

	s.ackMu.Lock()
	s.acks[id] = ack
	s.ackMu.Unlock()

	if err := s.write(p.Encode()); err != nil {
		s.CancelAck(id)
		return 0, err
	}
	return id, nil
}

// CancelAck forgets a pending acknowledgment; a late reply is then dropped.
func (s *Socket) CancelAck(id uint64) {
	s.ackMu.Lock()
	delete(s.acks, id)
	s.ackMu.Unlock()
}

// PendingAcks returns the number of acknowledgments still awaited.
func (s *Socket) PendingAcks() int {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	return len(s.acks)
}

// Close leaves the namespace, closes the transport and stops reconnection.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	wasConnected := s.connected
	started := s.started
	s.connected = false
	s.sid = ""
	s.buffer = nil
	s.mu.Unlock()

	close(s.stop)
	if !started {
		close(s.done)
	}
	if conn != nil {
		if wasConnected {
			conn.finish(Packet{Type: PacketDisconnect, Namespace: s.namespace}.Encode())
		} else {
			conn.abort()
		}
	}
	if wasConnected {
		s.fireDisconnect(ReasonClientDisconnect)
	}
	return nil
}

func (s *Socket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Socket) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.connected && s.conn != nil {
		if !s.conn.send(frame, true) {
			s.buffer = append(s.buffer, frame)
		}
		return nil
	}
	s.buffer = append(s.buffer, frame)
	return nil
}

// run dials, serves one connection at a time and reconnects with backoff.
func (s *Socket) run() {
	defer close(s.done)
	attempt := 0
	for {
		joined, err := s.session()
		if s.isClosed() {
			return
		}
		if errors.Is(err, ErrConnectRejected) || errors.Is(err, errServerDisconnect) {
			s.log.Warn("not reconnecting", "reason", err)
			return
		}
		if joined {
			attempt = 0
		}
		if !s.opts.Reconnection {
			s.log.Debug("reconnection disabled", "err", err)
			return
		}
		attempt++
		if s.opts.ReconnectionAttempts > 0 && attempt > s.opts.ReconnectionAttempts {
			s.log.Error("reconnection attempts exhausted", "attempts", s.opts.ReconnectionAttempts)
			return
		}
		delay := s.backoff(attempt - 1)
		s.log.Debug("reconnecting", "attempt", attempt, "delay", delay, "err", err)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-s.stop:
			t.Stop()
			return
		}
	}
}

var errServerDisconnect = errors.New(ReasonServerDisconnect)

// backoff computes the exponential delay with jitter used before reconnect attempt n.
func (s *Socket) backoff(n int) time.Duration {
	base := float64(s.opts.ReconnectionDelay)
	if base <= 0 {
		base = float64(time.Second)
	}
	maxDelay := float64(s.opts.ReconnectionDelayMax)
	if maxDelay <= 0 {
		maxDelay = base
	}
	d := base * math.Pow(2, float64(n))
	if f := s.opts.RandomizationFactor; f > 0 {
		r := rand.Float64()
		dev := math.Floor(r * f * d)
		if int(math.Floor(r*10))&1 == 0 {
			d -= dev
		} else {
			d += dev
		}
	}
	return time.Duration(math.Min(d, maxDelay))
}

// session runs one transport connection. joined reports whether the namespace CONNECT
// succeeded before the connection ended.
func (s *Socket) session() (joined bool, err error) {
	ws, err := s.dial()
	if err != nil {
		s.fireConnectError(err)
		return false, err
	}

	ec := newEngineConn(ws, s.limiter)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ec.abort()
		return false, ErrClosed
	}
	s.conn = ec
	s.mu.Unlock()

	defer func() {
		ec.abort()
		s.mu.Lock()
		if s.conn == ec {
			s.conn = nil
		}
		wasConnected := s.connected
		s.connected = false
		s.sid = ""
		closed := s.closed
		s.mu.Unlock()
		if wasConnected && !closed {
			s.fireDisconnect(disconnectReason(err))
		}
	}()

	hs, err := s.handshake(ws)
	if err != nil {
		s.fireConnectError(err)
		return false, err
	}
	s.log.Debug("engine open", "sid", hs.SID, "pingInterval", hs.PingInterval, "pingTimeout", hs.PingTimeout)
	go ec.writeLoop()

	connect := Packet{Type: PacketConnect, Namespace: s.namespace}
	if s.opts.Auth != nil {
		data, err := json.Marshal(s.opts.Auth)
		if err != nil {
			return false, fmt.Errorf("encode auth: %w", err)
		}
		connect.Data = data
	}
	ec.send(connect.Encode(), false)

	idle := time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond
	for {
		if err := ws.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return joined, err
		}
		_, msg, err := ws.ReadMessage()
		if err != nil {
			var ne interface{ Timeout() bool }
			if errors.As(err, &ne) && ne.Timeout() {
				return joined, errPingTimeout
			}
			return joined, err
		}
		frame := string(msg)
		if frame == "" {
			continue
		}
		switch EngineType(frame[0]) {
		case EnginePing:
			ec.send(string(EnginePong)+frame[1:], false)
		case EngineClose:
			return joined, errTransportClose
		case EngineNoop, EnginePong:
		case EngineMessage:
			p, err := DecodePacket(frame[1:])
			if err != nil {
				s.log.Warn("dropping packet", "err", err)
				continue
			}
			if p.Namespace != s.namespace {
				continue
			}
			switch p.Type {
			case PacketConnect:
				s.joined(p.Data)
				joined = true
			case PacketConnectError:
				err := fmt.Errorf("%w: %s", ErrConnectRejected, connectErrorMessage(p.Data))
				s.fireConnectError(err)
				return joined, err
			case PacketDisconnect:
				return joined, errServerDisconnect
			case PacketEvent:
				s.dispatch(p)
			case PacketAck:
				s.resolve(p)
			}
		default:
			s.log.Debug("ignoring engine frame", "type", string(frame[0]))
		}
	}
}

var (
	errPingTimeout    = errors.New(ReasonPingTimeout)
	errTransportClose = errors.New(ReasonTransportClose)
)

func disconnectReason(err error) string {
	switch {
	case errors.Is(err, errServerDisconnect):
		return ReasonServerDisconnect
	case errors.Is(err, errPingTimeout):
		return ReasonPingTimeout
	case errors.Is(err, errTransportClose), websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return ReasonTransportClose
	default:
		return ReasonTransportError
	}
}

func (s *Socket) dial() (*websocket.Conn, error) {
	timeout := s.opts.DialTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().DialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	s.log.Debug("dialing", "url", s.endpoint)
	ws, resp, err := s.dialer.DialContext(ctx, s.endpoint, s.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.endpoint, err)
	}
	return ws, nil
}

func (s *Socket) handshake(ws *websocket.Conn) (Handshake, error) {
	var hs Handshake
	timeout := s.opts.DialTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().DialTimeout
	}
	if err := ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return hs, err
	}
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return hs, fmt.Errorf("read open frame: %w", err)
	}
	if len(msg) == 0 || EngineType(msg[0]) != EngineOpen {
		return hs, &DecodeError{Frame: string(msg), Reason: "expected engine open frame"}
	}
	if err := json.Unmarshal(msg[1:], &hs); err != nil {
		return hs, &DecodeError{Frame: string(msg), Reason: "bad handshake payload"}
	}
	if hs.PingInterval <= 0 {
		hs.PingInterval = int(defaultPingInterval / time.Millisecond)
	}
	if hs.PingTimeout <= 0 {
		hs.PingTimeout = int(defaultPingTimeout / time.Millisecond)
	}
	return hs, nil
}

// joined records the namespace session and flushes frames buffered while offline.
func (s *Socket) joined(data json.RawMessage) {
	var payload struct {
		SID string `json:"sid"`
	}
	_ = json.Unmarshal(data, &payload)

	s.mu.Lock()
	if s.closed || s.conn == nil {
		s.mu.Unlock()
		return
	}
	s.connected = true
	s.sid = payload.SID
	pending := s.buffer
	s.buffer = nil
	for i, frame := range pending {
		if !s.conn.send(frame, true) {
			s.buffer = append(s.buffer, pending[i:]...)
			break
		}
	}
	s.mu.Unlock()

	s.log.Debug("namespace joined", "namespace", s.namespace, "sid", payload.SID, "flushed", len(pending))
	s.handlersMu.RLock()
	handlers := append([]func(){}, s.onConnect...)
	s.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn()
	}
}

func (s *Socket) dispatch(p Packet) {
	name, args, err := SplitEvent(p.Data)
	if err != nil {
		s.log.Warn("dropping event", "err", err)
		return
	}
	if p.HasID {
		s.log.Debug("server requested an ack; answering empty", "event", name, "id", p.ID)
		if ack, err := AckPacket(s.namespace, p.ID); err == nil {
			_ = s.write(ack.Encode())
		}
	}
	s.handlersMu.RLock()
	handlers := append([]EventHandler{}, s.events[name]...)
	s.handlersMu.RUnlock()
	if len(handlers) == 0 {
		s.log.Debug("no handler for event", "event", name)
		return
	}
	for _, fn := range handlers {
		fn(args)
	}
}

func (s *Socket) resolve(p Packet) {
	s.ackMu.Lock()
	ack, ok := s.acks[p.ID]
	delete(s.acks, p.ID)
	s.ackMu.Unlock()
	if !ok {
		s.log.Debug("unexpected ack", "id", p.ID)
		return
	}
	args, err := SplitArgs(p.Data)
	if err != nil {
		s.log.Warn("malformed ack", "id", p.ID, "err", err)
	}
	if ack != nil {
		ack(args)
	}
}

func (s *Socket) fireDisconnect(reason string) {
	s.handlersMu.RLock()
	handlers := append([]func(string){}, s.onDisconnect...)
	s.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(reason)
	}
}

func (s *Socket) fireConnectError(err error) {
	s.handlersMu.RLock()
	handlers := append([]func(error){}, s.onConnectError...)
	s.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(err)
	}
}
