package asst

import (
	"context"

	"github.com/mithrel/asst/pkg/api"
)

// DemoRequests are the three literal requests of the demonstration run.
func DemoRequests() []api.Request {
	return []api.Request{
		{Type: api.TypeSystem, Job: api.JobCommandList},
		{Type: api.TypeSystem, Job: api.JobSSHInit, Params: api.SSHParams{IP: "server1", User: "user", Password: "password"}},
		{Type: api.TypeModule, Job: api.JobSSH, Func: "show_hostname", Params: ""},
	}
}

// Answer pairs a request index with its resolution.
type Answer struct {
	Index int
	Result
}

// RunDemo fires reqs back-to-back and calls onAnswer, in arrival order, for each one
// answered. It returns how many were answered, and the cause when it stopped early:
// ctx ending or ErrDisconnected.
func (c *Client) RunDemo(ctx context.Context, reqs []api.Request, onAnswer func(Answer)) (int, error) {
	merged := make(chan Answer, len(reqs))
	for i, req := range reqs {
		ch := c.Go(req)
		go func() {
			select {
			case r := <-ch:
				merged <- Answer{Index: i, Result: r}
			case <-ctx.Done():
			case <-c.Disconnected():
			}
		}()
	}
	return c.gather(ctx, merged, len(reqs), onAnswer)
}

// gather takes up to want answers from merged. Answers already delivered when ctx ends
// or the transport goes away still count.
func (c *Client) gather(ctx context.Context, merged <-chan Answer, want int, onAnswer func(Answer)) (int, error) {
	answered := 0
	handle := func(a Answer) {
		if a.Err != nil {
			c.log.Error("request failed", "err", a.Err)
		} else {
			c.log.Info("answer from server", "answer", a.Response.String())
		}
		if onAnswer != nil {
			onAnswer(a)
		}
		answered++
	}
	drain := func() {
		for answered < want {
			select {
			case a := <-merged:
				handle(a)
			default:
				return
			}
		}
	}
	for answered < want {
		select {
		case a := <-merged:
			handle(a)
		case <-ctx.Done():
			drain()
			if answered == want {
				return answered, nil
			}
			return answered, context.Cause(ctx)
		case <-c.Disconnected():
			drain()
			if answered == want {
				return answered, nil
			}
			return answered, ErrDisconnected
		}
	}
	return answered, nil
}
