package asst

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mithrel/asst/pkg/api"
)

var (
	ErrNoAnswer = errors.New("no answer from server")
	ErrRejected = errors.New("server returned a negative result")
)

// CommandList asks the server which module functions it can run.
func (c *Client) CommandList(ctx context.Context) ([]string, error) {
	resp, err := c.Send(ctx, api.Request{Type: api.TypeSystem, Job: api.JobCommandList})
	if err != nil {
		return nil, err
	}
	if resp.IsEmpty() {
		return nil, ErrNoAnswer
	}
	var names []string
	if err := resp.Decode(&names); err != nil {
		return nil, fmt.Errorf("decode command list %s: %w", resp, err)
	}
	c.log.Debug("server commands", "commands", names)
	return names, nil
}

// Commands returns the server's command registry, fetching it on first use.
func (c *Client) Commands(ctx context.Context) (*Commands, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	if c.commands != nil {
		return c.commands, nil
	}
	names, err := c.CommandList(ctx)
	if err != nil {
		return nil, err
	}
	c.commands = NewCommands(names)
	return c.commands, nil
}

// SSHInit hands the server the SSH parameters it should use for this session. A null
// reply means the server already holds identical parameters.
func (c *Client) SSHInit(ctx context.Context, p api.SSHParams) error {
	resp, err := c.Send(ctx, api.Request{Type: api.TypeSystem, Job: api.JobSSHInit, Params: p})
	if err != nil {
		return err
	}
	if resp.IsEmpty() {
		c.log.Warn("server kept its existing SSH parameters", "ip", p.IP, "user", p.User)
		return nil
	}
	var out struct {
		Result bool `json:"result"`
	}
	if err := resp.Decode(&out); err != nil {
		return fmt.Errorf("decode ssh init reply %s: %w", resp, err)
	}
	if !out.Result {
		return fmt.Errorf("ssh init %s@%s: %w", p.User, p.IP, ErrRejected)
	}
	c.log.Info("server set SSH connection data", "ip", p.IP, "user", p.User)
	return nil
}

// Exec runs a module function over the session's SSH connection. Names the server does
// not list are refused locally with ErrUnknownCommand.
func (c *Client) Exec(ctx context.Context, fn string, params ...any) (api.ExecResult, error) {
	cmds, err := c.Commands(ctx)
	if err != nil {
		return api.ExecResult{}, err
	}
	if err := cmds.Lookup(fn); err != nil {
		return api.ExecResult{}, err
	}
	if params == nil {
		params = []any{}
	}
	resp, err := c.Send(ctx, api.Request{Type: api.TypeModule, Job: api.JobSSH, Func: fn, Params: params})
	if err != nil {
		return api.ExecResult{}, err
	}
	res, err := ParseExecResult(resp)
	if err != nil {
		c.log.Error("exec failed", "func", fn, "err", err)
		return res, err
	}
	if res.OK() {
		c.log.Debug("result received from server", "func", fn, "rc", res.RC, "output", res.Output)
	} else {
		c.log.Warn("result received from server", "func", fn, "rc", res.RC, "output", res.Output)
	}
	return res, nil
}

// ParseExecResult decodes a module reply of the form [rc, output]. A lone false is a
// rejection; an empty or null reply means the server had nothing to say.
func ParseExecResult(resp Response) (api.ExecResult, error) {
	if resp.IsEmpty() {
		return api.ExecResult{}, ErrNoAnswer
	}
	raw := resp.Unwrap()
	if bytes.Equal(bytes.TrimSpace(raw), []byte("false")) {
		return api.ExecResult{}, ErrRejected
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		var obj struct {
			Result *bool `json:"result"`
		}
		if json.Unmarshal(raw, &obj) == nil && obj.Result != nil && !*obj.Result {
			return api.ExecResult{}, ErrRejected
		}
		return api.ExecResult{}, fmt.Errorf("unexpected exec reply %s", raw)
	}
	switch len(parts) {
	case 0:
		return api.ExecResult{}, ErrNoAnswer
	case 1:
		var ok bool
		if json.Unmarshal(parts[0], &ok) == nil && !ok {
			return api.ExecResult{}, ErrRejected
		}
		return api.ExecResult{}, fmt.Errorf("unexpected exec reply %s", raw)
	}

	var res api.ExecResult
	if err := json.Unmarshal(parts[0], &res.RC); err != nil {
		return res, fmt.Errorf("exec reply rc %s: %w", parts[0], err)
	}
	out, err := outputLines(parts[1])
	if err != nil {
		return res, fmt.Errorf("exec reply output %s: %w", parts[1], err)
	}
	res.Output = out
	return res, nil
}

func outputLines(raw json.RawMessage) ([]string, error) {
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return lines, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return []string{s}, nil
}
