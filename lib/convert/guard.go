package convert

import (
	"context"
	"log/slog"
)

type guardEntry struct {
	name    string
	release func(context.Context) error
}

// guardStack tracks acquired OS resources in acquisition order and releases
// them in strict reverse order. Each release swallows its own error after
// logging it, so one stuck resource never blocks releasing the rest.
type guardStack struct {
	logger  *slog.Logger
	entries []guardEntry
}

func newGuardStack(logger *slog.Logger) *guardStack {
	if logger == nil {
		logger = slog.Default()
	}
	return &guardStack{logger: logger}
}

// Push registers a releaser for a just-acquired resource.
func (s *guardStack) Push(name string, release func(context.Context) error) {
	s.entries = append(s.entries, guardEntry{name: name, release: release})
}

// Len returns the number of currently-held resources.
func (s *guardStack) Len() int { return len(s.entries) }

// Unwind releases everything, newest first. Safe to call more than once;
// a second call finds an empty stack.
func (s *guardStack) Unwind(ctx context.Context) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if err := e.release(ctx); err != nil {
			s.logger.WarnContext(ctx, "resource release failed", "resource", e.name, "error", err)
		}
	}
	s.entries = s.entries[:0]
}
