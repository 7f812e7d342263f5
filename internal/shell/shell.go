package shell

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Command describes one invocation of an external binary
type Command struct {
	Name string
	Args []string
	Env  []string // KEY=VALUE pairs appended to the process environment
}

// String renders the command line for logging
func (c Command) String() string {
	parts := make([]string, 0, len(c.Env)+len(c.Args)+1)
	parts = append(parts, c.Env...)
	parts = append(parts, c.Name)
	parts = append(parts, c.Args...)
	return strings.Join(parts, " ")
}

// Runner executes external commands. Only the exit status and the captured
// output are consumed.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// ExitError is returned when a command exits non-zero
type ExitError struct {
	Command Command
	Output  string
	Err     error
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Command.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command.Name, e.Err, out)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	Logger *logrus.Entry
}

// NewExecRunner creates an ExecRunner
func NewExecRunner(logger *logrus.Entry) *ExecRunner {
	return &ExecRunner{Logger: logger.WithField("component", "shell")}
}

// Run executes cmd and returns its combined output. A started process is not
// killed when ctx is cancelled; it runs until the binary itself exits.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (string, error) {
	r.Logger.Debugf("exec: %s", cmd)

	c := exec.CommandContext(context.WithoutCancel(ctx), cmd.Name, cmd.Args...)
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	output, err := c.CombinedOutput()
	if err != nil {
		return string(output), &ExitError{Command: cmd, Output: string(output), Err: err}
	}

	return string(output), nil
}
