package api

import (
	"encoding/json"
	"strings"
)

// Request categories understood by the ASST server.
const (
	TypeSystem = "system"
	TypeModule = "module"
)

// Jobs understood by the ASST server.
const (
	JobCommandList = "get_server_command_list"
	JobSSHInit     = "ssh_connection_init"
	JobSSH         = "ssh"
)

// Request is the conventional message shape. The server enforces no schema, so callers
// may also send any other JSON-encodable value.
type Request struct {
	Type string `json:"type"`
	Job  string `json:"job"`
	Func string `json:"func,omitempty"`
	// Params carries either a structured object or a plain string; the server accepts both.
	Params any `json:"params,omitempty"`
}

// SSHParams are the connection parameters the server keeps per client session.
type SSHParams struct {
	IP       string `json:"ssh_ip"`
	Hostname string `json:"ssh_hostname,omitempty"`
	User     string `json:"ssh_user"`
	Password string `json:"ssh_pass"`
	Port     int    `json:"ssh_port,omitempty"`
}

// Ready reports whether the params are complete enough for the server to dial.
func (p SSHParams) Ready() bool {
	return p.IP != "" && p.User != "" && p.Password != ""
}

// ExecResult is a decoded module/ssh reply: the remote exit code and output lines.
type ExecResult struct {
	RC     int      `json:"rc"`
	Output []string `json:"output"`
}

// OK reports a zero exit code.
func (r ExecResult) OK() bool { return r.RC == 0 }

// Level is the severity tag the server puts in front of pushed log lines.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
	LevelNone     Level = ""
)

// LogEntry is one out-of-band value pushed by the server.
type LogEntry struct {
	Raw   json.RawMessage `json:"raw"`
	Text  string          `json:"text"`
	Level Level           `json:"level,omitempty"`
}

// NewLogEntry keeps raw verbatim and, when it is a JSON string, extracts its text and
// severity tag.
func NewLogEntry(raw json.RawMessage) LogEntry {
	e := LogEntry{Raw: append(json.RawMessage(nil), raw...)}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		e.Text = string(raw)
		return e
	}
	e.Text = s
	e.Level = ParseLevel(s)
	return e
}

// ParseLevel returns the severity tag at the start of a server log line.
func ParseLevel(line string) Level {
	if !strings.HasPrefix(line, "[") {
		return LevelNone
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return LevelNone
	}
	switch l := Level(line[1:end]); l {
	case LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical:
		return l
	}
	return LevelNone
}
