package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/mithrel/asst/pkg/api"
)

// WritePrettyExec renders a module result as markdown using glamour.
func WritePrettyExec(w io.Writer, fn string, res api.ExecResult) error {
	status := "ok"
	if !res.OK() {
		status = "failed"
	}
	md := fmt.Sprintf("## %s\n\n> **RC:** %d | **Status:** %s\n\n```\n%s\n```\n", fn, res.RC, status, strings.Join(res.Output, "\n"))

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dracula"),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
