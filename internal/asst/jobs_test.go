package asst_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mithrel/asst/internal/asst"
	"github.com/mithrel/asst/pkg/api"
)

func TestSSHInit(t *testing.T) {
	srv := jobServer(t)
	c := newClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	p := api.SSHParams{IP: "server1", User: "user", Password: "password"}
	require.NoError(t, c.SSHInit(ctx, p))

	got := srv.Received()
	require.Len(t, got, 1)
	assert.JSONEq(t,
		`{"type":"system","job":"ssh_connection_init","params":{"ssh_ip":"server1","ssh_user":"user","ssh_pass":"password"}}`,
		string(got[0].Args[0]))
}

func TestSSHInitRejected(t *testing.T) {
	srv := jobServer(t)
	srv.Reply("message", `{"result": false}`)
	c := newClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	err := c.SSHInit(ctx, api.SSHParams{IP: "server1", User: "user", Password: "bad"})
	assert.ErrorIs(t, err, asst.ErrRejected)
}

func TestSSHInitUnchangedParams(t *testing.T) {
	srv := jobServer(t)
	srv.Reply("message", nil)
	c := newClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	assert.NoError(t, c.SSHInit(ctx, api.SSHParams{IP: "server1", User: "user", Password: "password"}))
}

func TestExec(t *testing.T) {
	srv := jobServer(t)
	c := newClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	res, err := c.Exec(ctx, "show_hostname")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, []string{"host1"}, res.Output)

	res, err = c.Exec(ctx, "show_uptime")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RC)

	_, err = c.Exec(ctx, "show_hostnme")
	assert.ErrorIs(t, err, asst.ErrUnknownCommand)
	assert.Contains(t, err.Error(), "show_hostname")

	// The command list is fetched once: 1 list + 2 module calls.
	got := srv.Received()
	require.Len(t, got, 3)
	assert.JSONEq(t, `{"type":"module","job":"ssh","func":"show_hostname","params":[]}`, string(got[1].Args[0]))
}

func TestParseExecResult(t *testing.T) {
	ok := func(raw string) asst.Response { return asst.Response{Raw: json.RawMessage(raw)} }
	tests := []struct {
		name string
		raw  string
		want api.ExecResult
		err  error
	}{
		{name: "lines", raw: `[0, ["a", "b"]]`, want: api.ExecResult{RC: 0, Output: []string{"a", "b"}}},
		{name: "string output", raw: `[2, "boom"]`, want: api.ExecResult{RC: 2, Output: []string{"boom"}}},
		{name: "wrapped", raw: `"[0, [\"x\"]]"`, want: api.ExecResult{Output: []string{"x"}}},
		{name: "lone false", raw: `[false]`, err: asst.ErrRejected},
		{name: "false", raw: `"false"`, err: asst.ErrRejected},
		{name: "result false", raw: `{"result": false}`, err: asst.ErrRejected},
		{name: "empty list", raw: `[]`, err: asst.ErrNoAnswer},
		{name: "null", raw: `null`, err: asst.ErrNoAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := asst.ParseExecResult(ok(tt.raw))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := asst.ParseExecResult(ok(`{"rc": 0}`))
	assert.Error(t, err)
}

func TestResponseUnwrap(t *testing.T) {
	r := asst.Response{Raw: json.RawMessage(`"{\"result\": true}"`)}
	assert.JSONEq(t, `{"result": true}`, string(r.Unwrap()))

	plain := asst.Response{Raw: json.RawMessage(`"hello"`)}
	assert.Equal(t, `"hello"`, string(plain.Unwrap()))
	var s string
	require.NoError(t, plain.Decode(&s))
	assert.Equal(t, "hello", s)

	assert.True(t, asst.Response{}.IsEmpty())
	assert.True(t, asst.Response{Raw: json.RawMessage(" null ")}.IsEmpty())
	b, err := json.Marshal(asst.Response{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestCommandsLookup(t *testing.T) {
	cmds := asst.NewCommands([]string{"show_uptime", "show_hostname"})
	assert.NoError(t, cmds.Lookup("show_uptime"))
	assert.True(t, cmds.Has("show_hostname"))

	err := cmds.Lookup("uptim")
	require.ErrorIs(t, err, asst.ErrUnknownCommand)
	assert.Contains(t, err.Error(), "did you mean show_uptime")

	err = cmds.Lookup("zzz")
	require.ErrorIs(t, err, asst.ErrUnknownCommand)
	assert.NotContains(t, err.Error(), "did you mean")
	assert.Nil(t, cmds.Suggest("", 3))
}

func TestRunDemo(t *testing.T) {
	srv := jobServer(t)
	c := newClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	var mu sync.Mutex
	seen := map[int]string{}
	n, err := c.RunDemo(ctx, asst.DemoRequests(), func(a asst.Answer) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, a.Err)
		seen[a.Index] = a.Response.String()
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, seen, 3)

	got := srv.Received()
	require.Len(t, got, 3)
	assert.JSONEq(t, `{"type":"module","job":"ssh","func":"show_hostname","params":""}`, string(got[2].Args[0]))
}

func TestRunDemoStopsOnCancel(t *testing.T) {
	srv := jobServer(t)
	srv.Handle("message", func([]json.RawMessage) ([]any, bool) { return nil, false })
	c := newClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	n, err := c.RunDemo(ctx, asst.DemoRequests(), nil)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunDemoStopsWhenConnectIsRejected(t *testing.T) {
	srv := jobServer(t)
	srv.Reject = "not allowed"
	c := newClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	n, err := c.RunDemo(ctx, asst.DemoRequests(), nil)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, asst.ErrDisconnected)
	assert.NoError(t, ctx.Err())
}

func TestSendReturnsWhenTransportGivesUp(t *testing.T) {
	srv := jobServer(t)
	srv.Reject = "not allowed"
	c := newClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	_, err := c.CommandList(ctx)
	assert.ErrorIs(t, err, asst.ErrDisconnected)
	select {
	case <-c.Disconnected():
	default:
		t.Fatal("Disconnected not closed after a rejected connect")
	}
}
