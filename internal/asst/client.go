// Package asst is a client session for an Automation Support Service server: one
// Socket.IO connection, an append-only record of what the server pushed, and
// request/acknowledgment exchanges on the server's message event.
package asst

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mithrel/asst/internal/logs"
	"github.com/mithrel/asst/internal/socketio"
	"github.com/mithrel/asst/pkg/api"
)

const (
	DefaultEvent    = "message"
	DefaultLogEvent = "server_log"
)

type Options struct {
	URL    string
	Socket socketio.Options
	// Event carries requests; LogEvent carries server pushed log lines.
	Event    string
	LogEvent string
	Logger   *log.Logger
}

// Client owns one connection to the server for its whole lifetime.
type Client struct {
	sock     *socketio.Socket
	event    string
	log      *log.Logger
	srvLog   *log.Logger
	serverLg *ServerLog

	cmdMu    sync.Mutex
	commands *Commands
}

// New prepares the session and registers the lifecycle and server-log observers.
// Nothing is dialed until Connect.
func New(opts Options) (*Client, error) {
	base := opts.Logger
	if base == nil {
		base = logs.Discard()
	}
	sockOpts := opts.Socket
	if sockOpts.Logger == nil {
		sockOpts.Logger = base.WithPrefix("transport")
	}
	sock, err := socketio.New(opts.URL, sockOpts)
	if err != nil {
		return nil, err
	}
	c := &Client{
		sock:     sock,
		event:    opts.Event,
		log:      base.WithPrefix("client"),
		srvLog:   base.WithPrefix("server"),
		serverLg: &ServerLog{},
	}
	if c.event == "" {
		c.event = DefaultEvent
	}
	logEvent := opts.LogEvent
	if logEvent == "" {
		logEvent = DefaultLogEvent
	}

	sock.OnConnect(func() {
		c.log.Info("connection", "connected", sock.Connected(), "id", sock.ID())
	})
	sock.OnDisconnect(func(reason string) {
		c.log.Info("connection", "connected", sock.Connected(), "id", sock.ID(), "reason", reason)
	})
	sock.OnConnectError(func(err error) {
		c.log.Warn("connect failed", "err", err)
	})
	sock.On(logEvent, c.onServerLog)
	return c, nil
}

// Connect starts connecting in the background and returns immediately. Network
// failures are retried by the transport; requests sent meanwhile are queued.
func (c *Client) Connect() error {
	c.log.Debug("connecting", "url", c.sock.Endpoint(), "namespace", c.sock.Namespace())
	return c.sock.Open()
}

func (c *Client) Close() error { return c.sock.Close() }

func (c *Client) Connected() bool { return c.sock.Connected() }

// ID is the server-assigned session id, empty while disconnected.
func (c *Client) ID() string { return c.sock.ID() }

// ServerLog is the session's record of server pushed entries.
func (c *Client) ServerLog() *ServerLog { return c.serverLg }

// Disconnected is closed when the transport gives up for good: after Close, a
// server-side disconnect, a rejected connect or exhausted reconnection attempts.
func (c *Client) Disconnected() <-chan struct{} { return c.sock.Done() }

func (c *Client) onServerLog(args []json.RawMessage) {
	raw := json.RawMessage("null")
	if len(args) > 0 {
		raw = args[0]
	}
	entry := api.NewLogEntry(raw)
	c.serverLg.Append(entry)

	switch entry.Level {
	case api.LevelDebug:
		c.srvLog.Debug("said", "entry", entry.Text)
	case api.LevelWarning:
		c.srvLog.Warn("said", "entry", entry.Text)
	case api.LevelError, api.LevelCritical:
		c.srvLog.Error("said", "entry", entry.Text)
	default:
		c.srvLog.Info("said", "entry", entry.Text)
	}
}

// Result is the single resolution of an asynchronous send.
type Result struct {
	Response Response
	Err      error
}

// Go emits req and returns a channel that receives exactly one Result: the reply when
// the server acknowledges, or an error if the request could not be queued. If the
// server never acknowledges, nothing is ever delivered; watch Disconnected to stop
// waiting on a transport that is gone.
func (c *Client) Go(req any) <-chan Result {
	ch := make(chan Result, 1)
	if _, err := c.emit(req, func(r Response) { ch <- Result{Response: r} }); err != nil {
		ch <- Result{Err: err}
	}
	return ch
}

// ErrDisconnected is returned to callers still waiting when the transport gives up.
var ErrDisconnected = errors.New("connection to server closed for good")

// Send emits req and blocks until the server acknowledges it. There is no built-in
// timeout; Send returns without a reply only when ctx ends or the transport gives up.
func (c *Client) Send(ctx context.Context, req any) (Response, error) {
	ch := make(chan Response, 1)
	id, err := c.emit(req, func(r Response) { ch <- r })
	if err != nil {
		return Response{}, err
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		c.sock.CancelAck(id)
		return Response{}, ctx.Err()
	case <-c.Disconnected():
		c.sock.CancelAck(id)
		select {
		case r := <-ch:
			return r, nil
		default:
		}
		return Response{}, ErrDisconnected
	}
}

func (c *Client) emit(req any, done func(Response)) (uint64, error) {
	trace := api.NewTraceID()
	c.log.Info("send message", "trace", trace, "msg", describe(req))
	return c.sock.EmitWithAck(c.event, func(args []json.RawMessage) {
		r := newResponse(args)
		c.log.Debug("ack received", "trace", trace, "answer", r.String())
		done(r)
	}, req)
}

func describe(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "<unencodable>"
	}
	return string(b)
}
