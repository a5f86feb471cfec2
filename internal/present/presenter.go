package present

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/mithrel/asst/internal/present/format"
	"github.com/mithrel/asst/pkg/api"
)

type Mode int

const (
	ModePlain Mode = iota
	ModePretty
	ModeJSON
)

type Options struct {
	Mode       Mode
	JSONIndent bool
	Headers    bool
}

// ParseMode parses "plain", "pretty" or "json".
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain":
		return ModePlain, true
	case "pretty":
		return ModePretty, true
	case "json":
		return ModeJSON, true
	default:
		return ModePlain, false
	}
}

// RenderReply renders a raw server reply.
func RenderReply(w io.Writer, raw json.RawMessage, opts Options) error {
	switch opts.Mode {
	case ModeJSON:
		return format.WriteJSONReply(w, raw, opts.JSONIndent)
	case ModePretty:
		return format.WritePrettyReply(w, raw)
	default:
		return format.WritePlainReply(w, raw)
	}
}

func RenderCommands(w io.Writer, names []string, opts Options) error {
	switch opts.Mode {
	case ModeJSON:
		return format.WriteJSONCommands(w, names, opts.JSONIndent)
	case ModePretty:
		return format.WritePrettyCommands(w, names)
	default:
		return format.WritePlainCommands(w, names)
	}
}

func RenderExec(w io.Writer, fn string, res api.ExecResult, opts Options) error {
	switch opts.Mode {
	case ModeJSON:
		return format.WriteJSONExec(w, fn, res, opts.JSONIndent)
	case ModePretty:
		return format.WritePrettyExec(w, fn, res)
	default:
		return format.WritePlainExec(w, fn, res)
	}
}

// RenderServerLog renders the entries the server pushed during a session.
func RenderServerLog(w io.Writer, entries []api.LogEntry, opts Options) error {
	switch opts.Mode {
	case ModeJSON:
		return format.WriteJSONLog(w, entries, opts.JSONIndent)
	case ModePretty:
		return format.WritePrettyLog(w, entries)
	default:
		return format.WritePlainLog(w, entries, opts.Headers)
	}
}
