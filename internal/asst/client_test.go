package asst_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mithrel/asst/internal/asst"
	"github.com/mithrel/asst/internal/logs"
	"github.com/mithrel/asst/internal/socketio"
	"github.com/mithrel/asst/internal/socketio/sockettest"
	"github.com/mithrel/asst/pkg/api"
)

const wait = 2 * time.Second

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		var m map[string]any
		if json.Unmarshal(sc.Bytes(), &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func newClient(t *testing.T, srv *sockettest.Server, logger *log.Logger) *asst.Client {
	t.Helper()
	opts := socketio.DefaultOptions()
	opts.ReconnectionDelay = 10 * time.Millisecond
	opts.ReconnectionDelayMax = 50 * time.Millisecond
	c, err := asst.New(asst.Options{URL: srv.URL, Socket: opts, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, c.Connect())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// jobServer answers like an ASST server: a command list, SSH init and module calls.
func jobServer(t *testing.T) *sockettest.Server {
	srv := sockettest.NewServer()
	t.Cleanup(srv.Close)
	srv.Handle("message", func(args []json.RawMessage) ([]any, bool) {
		var req api.Request
		if len(args) == 0 || json.Unmarshal(args[0], &req) != nil {
			return []any{nil}, true
		}
		switch req.Job {
		case api.JobCommandList:
			return []any{`["show_uptime", "show_hostname"]`}, true
		case api.JobSSHInit:
			return []any{`{"result": true}`}, true
		case api.JobSSH:
			switch req.Func {
			case "show_hostname":
				return []any{`[0, ["host1"]]`}, true
			case "show_uptime":
				return []any{`[1, ["uptime: not found"]]`}, true
			}
		}
		return []any{"false"}, true
	})
	return srv
}

func TestConnectLogsTransportState(t *testing.T) {
	srv := sockettest.NewServer()
	defer srv.Close()

	var buf syncBuffer
	logger, err := logs.New(&buf, logs.Options{Level: "debug", Format: "json"})
	require.NoError(t, err)
	c := newClient(t, srv, logger)

	sid, err := srv.WaitJoined(wait)
	require.NoError(t, err)

	var entry map[string]any
	require.Eventually(t, func() bool {
		for _, l := range buf.lines() {
			if l["msg"] == "connection" {
				entry = l
				return true
			}
		}
		return false
	}, wait, 10*time.Millisecond)
	assert.Equal(t, "true", fmt.Sprint(entry["connected"]))
	assert.Equal(t, sid, entry["id"])
	assert.True(t, c.Connected())
	assert.Equal(t, sid, c.ID())
}

func TestServerLogKeepsArrivalOrder(t *testing.T) {
	srv := sockettest.NewServer()
	defer srv.Close()
	c := newClient(t, srv, nil)
	_, err := srv.WaitJoined(wait)
	require.NoError(t, err)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, srv.Emit("server_log", fmt.Sprintf("[INFO] line %d", i)))
	}
	require.NoError(t, srv.Emit("server_log", map[string]int{"n": n}))

	require.Eventually(t, func() bool { return c.ServerLog().Len() == n+1 }, wait, 10*time.Millisecond)
	entries := c.ServerLog().Entries()
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("[INFO] line %d", i), entries[i].Text)
		assert.Equal(t, api.LevelInfo, entries[i].Level)
	}
	assert.JSONEq(t, `{"n":50}`, string(entries[n].Raw))
	assert.Equal(t, api.LevelNone, entries[n].Level)
}

func TestSendEmitsRequestUnchanged(t *testing.T) {
	srv := sockettest.NewServer()
	defer srv.Close()
	srv.Reply("message", "ok")
	c := newClient(t, srv, nil)

	req := map[string]any{"type": "module", "job": "ssh", "func": "show_hostname", "params": "", "extra": []int{1, 2}}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	_, err := c.Send(ctx, req)
	require.NoError(t, err)

	got := srv.Received()
	require.Len(t, got, 1)
	assert.Equal(t, "message", got[0].Event)
	require.Len(t, got[0].Args, 1)
	assert.JSONEq(t, `{"type":"module","job":"ssh","func":"show_hostname","params":"","extra":[1,2]}`, string(got[0].Args[0]))
	assert.NotNil(t, got[0].AckID)
}

func TestCommandListScenario(t *testing.T) {
	srv := sockettest.NewServer()
	defer srv.Close()
	srv.Reply("message", []string{"list", "of", "commands"})
	c := newClient(t, srv, nil)

	select {
	case r := <-c.Go(map[string]string{"type": "system", "job": "get_server_command_list"}):
		require.NoError(t, r.Err)
		assert.JSONEq(t, `["list","of","commands"]`, r.Response.String())
		var names []string
		require.NoError(t, r.Response.Decode(&names))
		assert.Equal(t, []string{"list", "of", "commands"}, names)
	case <-time.After(wait):
		t.Fatal("no answer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	names, err := c.CommandList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"list", "of", "commands"}, names)
}

func TestUnacknowledgedSendNeverResolves(t *testing.T) {
	srv := sockettest.NewServer()
	defer srv.Close()
	srv.Handle("message", func([]json.RawMessage) ([]any, bool) { return nil, false })
	c := newClient(t, srv, nil)

	ch := c.Go(api.Request{Type: api.TypeSystem, Job: api.JobCommandList})
	_, err := srv.WaitReceived(1, wait)
	require.NoError(t, err)
	select {
	case r := <-ch:
		t.Fatalf("resolved without an ack: %+v", r)
	case <-time.After(200 * time.Millisecond):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Send(ctx, api.Request{Type: api.TypeSystem, Job: api.JobCommandList})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendBeforeConnectIsQueued(t *testing.T) {
	srv := sockettest.NewServer()
	defer srv.Close()
	srv.Reply("message", "queued")

	c, err := asst.New(asst.Options{URL: srv.URL, Socket: socketio.DefaultOptions()})
	require.NoError(t, err)
	defer c.Close()

	ch := c.Go("hello")
	require.NoError(t, c.Connect())
	select {
	case r := <-ch:
		require.NoError(t, r.Err)
		assert.Equal(t, `"queued"`, r.Response.String())
	case <-time.After(wait):
		t.Fatal("queued request never answered")
	}
}

func TestGoReportsUnencodableRequest(t *testing.T) {
	srv := sockettest.NewServer()
	defer srv.Close()
	c := newClient(t, srv, nil)

	r := <-c.Go(map[string]any{"bad": make(chan int)})
	assert.Error(t, r.Err)
}
