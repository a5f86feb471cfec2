package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mithrel/asst/pkg/api"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).Padding(0, 1)
	faintStyle = lipgloss.NewStyle().Faint(true)
	boxStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)

	levelStyles = map[api.Level]lipgloss.Style{
		api.LevelDebug:    lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
		api.LevelInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		api.LevelWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("192")),
		api.LevelError:    lipgloss.NewStyle().Foreground(lipgloss.Color("204")),
		api.LevelCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("134")),
	}
)

// WritePrettyReply writes the reply indented inside a bordered box.
func WritePrettyReply(w io.Writer, raw json.RawMessage) error {
	var b bytes.Buffer
	if err := json.Indent(&b, raw, "", "  "); err != nil {
		b.Reset()
		b.Write(raw)
	}
	_, err := fmt.Fprintln(w, boxStyle.Render(b.String()))
	return err
}

func WritePrettyCommands(w io.Writer, names []string) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("server commands (%d)", len(names))))
	b.WriteByte('\n')
	for _, n := range names {
		b.WriteString(faintStyle.Render("•") + " " + n + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func WritePrettyLog(w io.Writer, entries []api.LogEntry) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("server log (%d)", len(entries))))
	b.WriteByte('\n')
	for i, e := range entries {
		level := string(e.Level)
		if level == "" {
			level = "-"
		}
		style, ok := levelStyles[e.Level]
		if !ok {
			style = faintStyle
		}
		fmt.Fprintf(&b, "%s %s %s\n", faintStyle.Render(fmt.Sprintf("%3d", i+1)), style.Render(fmt.Sprintf("%-8s", level)), e.Text)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
