// Package systemtest provides a scripted system.Runner for tests, so the
// pipeline can run without root or real block devices.
package systemtest

import (
	"context"
	"os/exec"
	"sync"

	"github.com/onkernel/bootimg/lib/system"
)

// HandlerFunc produces the output and error for one scripted command.
type HandlerFunc func(ctx context.Context, cmd system.Cmd) ([]byte, error)

// Runner records every command it is asked to run and answers from
// handlers registered per tool name. Unscripted commands succeed with
// empty output.
type Runner struct {
	mu       sync.Mutex
	calls    []system.Cmd
	handlers map[string]HandlerFunc
}

func New() *Runner {
	return &Runner{handlers: make(map[string]HandlerFunc)}
}

// Handle scripts the response for a tool (matched on Cmd.Path).
func (r *Runner) Handle(path string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[path] = fn
}

// Fail scripts a tool to exit nonzero with the given diagnostic output.
func (r *Runner) Fail(path, output string) {
	r.Handle(path, func(_ context.Context, cmd system.Cmd) ([]byte, error) {
		return []byte(output), &system.CommandError{
			Command: cmd.String(),
			Output:  output,
			Err:     &exec.ExitError{},
		}
	})
}

// Reply scripts a tool to succeed with fixed output.
func (r *Runner) Reply(path, output string) {
	r.Handle(path, func(context.Context, system.Cmd) ([]byte, error) {
		return []byte(output), nil
	})
}

func (r *Runner) Run(ctx context.Context, cmd system.Cmd) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	fn := r.handlers[cmd.Path]
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, cmd)
	}
	return nil, nil
}

// Calls returns every recorded command in order.
func (r *Runner) Calls() []system.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]system.Cmd(nil), r.calls...)
}

// CommandLines returns the recorded command lines in order.
func (r *Runner) CommandLines() []string {
	calls := r.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, c.String())
	}
	return lines
}

// Ran reports whether a tool was invoked at least once.
func (r *Runner) Ran(path string) bool {
	for _, c := range r.Calls() {
		if c.Path == path {
			return true
		}
	}
	return false
}
