// Package shelltest provides a scripted shell.Runner for tests.
package shelltest

import (
	"context"
	"sync"

	"proxy_manager/internal/shell"
)

// HandlerFunc answers one command
type HandlerFunc func(cmd shell.Command) (string, error)

// Runner records every command it receives and answers through Handler.
// A nil Handler succeeds with empty output.
type Runner struct {
	mu       sync.Mutex
	Handler  HandlerFunc
	commands []shell.Command
}

// Run implements shell.Runner
func (r *Runner) Run(ctx context.Context, cmd shell.Command) (string, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	handler := r.Handler
	r.mu.Unlock()

	if handler == nil {
		return "", nil
	}
	return handler(cmd)
}

// Commands returns a copy of the recorded commands
func (r *Runner) Commands() []shell.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shell.Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Named returns the recorded commands for one binary
func (r *Runner) Named(name string) []shell.Command {
	var out []shell.Command
	for _, cmd := range r.Commands() {
		if cmd.Name == name {
			out = append(out, cmd)
		}
	}
	return out
}

// Reset clears recorded commands
func (r *Runner) Reset() {
	r.mu.Lock()
	r.commands = nil
	r.mu.Unlock()
}
