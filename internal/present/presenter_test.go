package present

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mithrel/asst/pkg/api"
)

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModePlain, "plain": ModePlain, "PRETTY": ModePretty, "json": ModeJSON} {
		got, ok := ParseMode(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseMode("tui")
	assert.False(t, ok)
}

func TestRenderReply(t *testing.T) {
	raw := json.RawMessage(`[ "list", "of",  "commands" ]`)
	var buf bytes.Buffer
	require.NoError(t, RenderReply(&buf, raw, Options{Mode: ModePlain}))
	assert.Equal(t, "[\"list\",\"of\",\"commands\"]\n", buf.String())

	buf.Reset()
	require.NoError(t, RenderReply(&buf, raw, Options{Mode: ModeJSON}))
	assert.JSONEq(t, `["list","of","commands"]`, buf.String())

	buf.Reset()
	require.NoError(t, RenderReply(&buf, raw, Options{Mode: ModePretty}))
	assert.Contains(t, buf.String(), `"commands"`)
}

func TestRenderCommands(t *testing.T) {
	names := []string{"show_uptime", "show_hostname"}
	var buf bytes.Buffer
	require.NoError(t, RenderCommands(&buf, names, Options{}))
	assert.Equal(t, "show_uptime\nshow_hostname\n", buf.String())

	buf.Reset()
	require.NoError(t, RenderCommands(&buf, nil, Options{Mode: ModeJSON}))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, RenderCommands(&buf, names, Options{Mode: ModePretty}))
	assert.Contains(t, buf.String(), "show_hostname")
}

func TestRenderExec(t *testing.T) {
	res := api.ExecResult{RC: 0, Output: []string{"host1"}}
	var buf bytes.Buffer
	require.NoError(t, RenderExec(&buf, "show_hostname", res, Options{}))
	assert.Equal(t, "show_hostname\trc=0\nhost1\n", buf.String())

	buf.Reset()
	require.NoError(t, RenderExec(&buf, "show_hostname", res, Options{Mode: ModeJSON}))
	assert.JSONEq(t, `{"func":"show_hostname","rc":0,"output":["host1"]}`, buf.String())

	buf.Reset()
	require.NoError(t, RenderExec(&buf, "show_hostname", res, Options{Mode: ModePretty}))
	assert.Contains(t, buf.String(), "host1")
}

func TestRenderServerLog(t *testing.T) {
	entries := []api.LogEntry{
		api.NewLogEntry(json.RawMessage(`"[INFO] client connected"`)),
		api.NewLogEntry(json.RawMessage(`{"tab":"a\tb"}`)),
	}
	var buf bytes.Buffer
	require.NoError(t, RenderServerLog(&buf, entries, Options{Headers: true}))
	out := buf.String()
	assert.Contains(t, out, "seq")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "[INFO] client connected")

	buf.Reset()
	require.NoError(t, RenderServerLog(&buf, nil, Options{Mode: ModeJSON}))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, RenderServerLog(&buf, entries, Options{Mode: ModePretty}))
	assert.Contains(t, buf.String(), "server log (2)")
}
