package editor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var ErrEmptyRequest = errors.New("request is empty")

// DefaultRequest seeds the editor when no request is given.
var DefaultRequest = json.RawMessage(`{"type": "system", "job": "get_server_command_list"}`)

// ComposeRequest creates the text presented to the editor.
func ComposeRequest(initial json.RawMessage) string {
	if len(bytes.TrimSpace(initial)) == 0 {
		initial = DefaultRequest
	}
	var body bytes.Buffer
	if err := json.Indent(&body, initial, "", "  "); err != nil {
		body.Reset()
		body.Write(initial)
	}
	var b strings.Builder
	b.WriteString("# asst request\n")
	b.WriteString("# Lines starting with '#' are ignored. Save an empty file to abort.\n")
	b.WriteString("# Conventional keys: type, job, func, params.\n")
	b.Write(body.Bytes())
	b.WriteString("\n")
	return b.String()
}

// ParseEditedRequest strips comment lines and validates the remaining JSON.
func ParseEditedRequest(s string) (json.RawMessage, error) {
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if out == "" {
		return nil, ErrEmptyRequest
	}
	if !json.Valid([]byte(out)) {
		return nil, fmt.Errorf("edited request is not valid JSON")
	}
	var compact bytes.Buffer
	_ = json.Compact(&compact, []byte(out))
	return json.RawMessage(compact.Bytes()), nil
}

// PreferredEditor finds a suitable editor from env or common defaults.
func PreferredEditor() (string, error) {
	if v := os.Getenv("VISUAL"); v != "" {
		return v, nil
	}
	if e := os.Getenv("EDITOR"); e != "" {
		return e, nil
	}
	for _, cand := range []string{"nvim", "vim", "vi", "nano"} {
		if p, err := exec.LookPath(cand); err == nil {
			return p, nil
		}
	}
	return "", errors.New("no editor found; set $EDITOR or $VISUAL")
}

// PathFor returns a private temp file path for a request draft.
func PathFor(trace string) (string, error) {
	name := "request-" + trace + ".json"
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "asst", name), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "asst", "edit", name), nil
}

// OpenAt writes initial to path, opens the editor on it and returns the saved bytes
// and whether they changed. The draft is removed afterwards.
func OpenAt(path string, initial []byte) (final []byte, changed bool, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(path, initial, 0o600); err != nil {
		return nil, false, err
	}
	defer os.Remove(path)

	ed := os.Getenv("VISUAL")
	if ed == "" {
		ed = os.Getenv("EDITOR")
	}
	var cmd *exec.Cmd
	if strings.TrimSpace(ed) != "" {
		// Run through a shell so editor flags in $EDITOR are honored.
		cmd = exec.Command("sh", "-c", "$EDITORCMD \"$FILEPATH\"")
		cmd.Env = append(os.Environ(), "EDITORCMD="+ed, "FILEPATH="+path)
	} else {
		prog, err := PreferredEditor()
		if err != nil {
			return nil, false, err
		}
		cmd = exec.Command(prog, path)
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, false, err
	}
	out, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	return out, !bytes.Equal(out, initial), nil
}
