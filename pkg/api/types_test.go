package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestKeepsEmptyStringParams(t *testing.T) {
	b, err := json.Marshal(Request{Type: TypeModule, Job: JobSSH, Func: "show_hostname", Params: ""})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"module","job":"ssh","func":"show_hostname","params":""}`, string(b))

	b, err = json.Marshal(Request{Type: TypeSystem, Job: JobCommandList})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"system","job":"get_server_command_list"}`, string(b))
}

func TestSSHParamsWireNames(t *testing.T) {
	p := SSHParams{IP: "server1", User: "user", Password: "password"}
	assert.True(t, p.Ready())
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ssh_ip":"server1","ssh_user":"user","ssh_pass":"password"}`, string(b))

	assert.False(t, SSHParams{IP: "server1"}.Ready())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"[DEBUG] x":      LevelDebug,
		"[INFO] abc":     LevelInfo,
		"[WARNING] w":    LevelWarning,
		"[ERROR] e":      LevelError,
		"[CRITICAL] c":   LevelCritical,
		"[abc123] hello": LevelNone,
		"plain":          LevelNone,
		"[unterminated":  LevelNone,
	}
	for line, want := range cases {
		assert.Equal(t, want, ParseLevel(line), line)
	}
}

func TestNewLogEntry(t *testing.T) {
	e := NewLogEntry(json.RawMessage(`"[INFO] [sid] connected"`))
	assert.Equal(t, LevelInfo, e.Level)
	assert.Equal(t, "[INFO] [sid] connected", e.Text)

	e = NewLogEntry(json.RawMessage(`{"n":1}`))
	assert.Equal(t, LevelNone, e.Level)
	assert.Equal(t, `{"n":1}`, e.Text)
	assert.JSONEq(t, `{"n":1}`, string(e.Raw))
}

func TestNewTraceID(t *testing.T) {
	a, b := NewTraceID(), NewTraceID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}
