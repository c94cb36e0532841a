// Package system runs the privileged host tools the conversion pipeline
// depends on (sfdisk, losetup, mkfs, mount, chroot, extlinux, ...). All
// invocations go through the Runner interface so the pipeline can be
// exercised in tests without touching real block devices.
package system

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// Cmd describes a single external command invocation.
type Cmd struct {
	Path  string
	Args  []string
	Stdin io.Reader
}

// String returns the command line for logging and error reporting.
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner executes host commands and returns their combined output.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) ([]byte, error)
}

type execRunner struct {
	logger *slog.Logger
}

// NewRunner creates a Runner backed by os/exec.
func NewRunner(logger *slog.Logger) Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &execRunner{logger: logger}
}

func (r *execRunner) Run(ctx context.Context, c Cmd) ([]byte, error) {
	r.logger.DebugContext(ctx, "exec", "cmd", c.String())

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, &CommandError{
			Command: c.String(),
			Output:  strings.TrimSpace(string(output)),
			Err:     err,
		}
	}
	return output, nil
}
