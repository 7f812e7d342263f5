package nginx

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"proxy_manager/internal/shell"
)

// containerised nginx always reports this alert when the log device is missing
const noisyErrorLog = "/var/log/nginx/error.log"

// TestError is returned when nginx rejects the configuration
type TestError struct {
	Message string
	Err     error
}

func (e *TestError) Error() string {
	return e.Message
}

func (e *TestError) Unwrap() error {
	return e.Err
}

// Runner invokes the nginx binary
type Runner struct {
	bin    string
	shell  shell.Runner
	logger *logrus.Entry
}

// NewRunner creates a Runner
func NewRunner(bin string, sh shell.Runner, logger *logrus.Entry) *Runner {
	return &Runner{bin: bin, shell: sh, logger: logger}
}

// Test validates the global configuration with nginx -tq
func (r *Runner) Test(ctx context.Context) error {
	r.logger.Debug("Testing nginx configuration")
	out, err := r.shell.Run(ctx, shell.Command{Name: r.bin, Args: []string{"-tq"}})
	if err != nil {
		msg := filterOutput(out)
		if msg == "" {
			msg = err.Error()
		}
		return &TestError{Message: msg, Err: err}
	}
	return nil
}

// Reload tests the configuration and then signals the master process
func (r *Runner) Reload(ctx context.Context) error {
	if err := r.Test(ctx); err != nil {
		return err
	}
	r.logger.Info("Reloading nginx")
	_, err := r.shell.Run(ctx, shell.Command{Name: r.bin, Args: []string{"-s", "reload"}})
	return err
}

func filterOutput(out string) string {
	var valid []string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" || strings.Contains(line, noisyErrorLog) {
			continue
		}
		valid = append(valid, line)
	}
	return strings.Join(valid, "\n")
}
