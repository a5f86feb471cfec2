package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mithrel/asst/pkg/api"
)

func esc(field string) string {
	field = strings.ReplaceAll(field, "\t", "\\t")
	field = strings.ReplaceAll(field, "\n", "\\n")
	return field
}

// WritePlainReply writes the reply as one line of compact JSON.
func WritePlainReply(w io.Writer, raw json.RawMessage) error {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		b.Reset()
		b.Write(raw)
	}
	b.WriteByte('\n')
	_, err := w.Write(b.Bytes())
	return err
}

func WritePlainCommands(w io.Writer, names []string) error {
	for _, n := range names {
		if _, err := fmt.Fprintln(w, n); err != nil {
			return err
		}
	}
	return nil
}

// WritePlainExec writes the exit code line followed by the output lines.
func WritePlainExec(w io.Writer, fn string, res api.ExecResult) error {
	if _, err := fmt.Fprintf(w, "%s\trc=%d\n", fn, res.RC); err != nil {
		return err
	}
	for _, line := range res.Output {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WritePlainLog writes one TSV row per entry: sequence, level, text.
func WritePlainLog(w io.Writer, entries []api.LogEntry, headers bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if headers {
		_, _ = io.WriteString(tw, "seq\tlevel\ttext\n")
	}
	for i, e := range entries {
		level := string(e.Level)
		if level == "" {
			level = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, level, esc(e.Text))
	}
	return tw.Flush()
}
