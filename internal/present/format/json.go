package format

import (
	"encoding/json"
	"io"

	"github.com/mithrel/asst/pkg/api"
)

func encoder(w io.Writer, indent bool) *json.Encoder {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc
}

func WriteJSONReply(w io.Writer, raw json.RawMessage, indent bool) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return encoder(w, indent).Encode(raw)
}

func WriteJSONCommands(w io.Writer, names []string, indent bool) error {
	if names == nil {
		names = []string{}
	}
	return encoder(w, indent).Encode(names)
}

func WriteJSONExec(w io.Writer, fn string, res api.ExecResult, indent bool) error {
	return encoder(w, indent).Encode(struct {
		Func string `json:"func"`
		api.ExecResult
	}{fn, res})
}

func WriteJSONLog(w io.Writer, entries []api.LogEntry, indent bool) error {
	if entries == nil {
		entries = []api.LogEntry{}
	}
	return encoder(w, indent).Encode(entries)
}
