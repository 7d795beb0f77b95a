package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/intake/internal/monitor"
)

const (
	// maxStderrBytes caps the stderr kept for the diagnostic sidecar.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the wait between SIGTERM and SIGKILL.
	terminationGracePeriod = 5 * time.Second

	// DefaultExecTimeout bounds one command run.
	DefaultExecTimeout = 5 * time.Minute
)

// Exec runs an external command per item. "{path}" and "{name}" in the
// arguments are replaced with the item's path and name.
type Exec struct {
	Base
	Command []string
	Timeout time.Duration
	Env     []string
}

var _ monitor.Processor = (*Exec)(nil)

// ExecError is a failed command run. Its diagnostic carries the stderr.
type ExecError struct {
	Command  string
	ExitCode int
	Err      error
	Stderr   string
}

func (e *ExecError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("command %s exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %s: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

func (e *ExecError) Diagnostic() string {
	if e.Stderr == "" {
		return ""
	}
	return "stderr:\n" + e.Stderr
}

func (e *Exec) Validate() error {
	if len(e.Command) == 0 || strings.TrimSpace(e.Command[0]) == "" {
		return errors.New("exec processor: command is required")
	}
	if e.Timeout < 0 {
		return errors.New("exec processor: timeout must not be negative")
	}
	if _, err := exec.LookPath(e.Command[0]); err != nil {
		return fmt.Errorf("exec processor: %w", err)
	}
	return nil
}

func (e *Exec) Process(ctx context.Context, item *monitor.Item) error {
	args := make([]string, len(e.Command))
	for i, a := range e.Command {
		a = strings.ReplaceAll(a, "{path}", item.Path)
		args[i] = strings.ReplaceAll(a, "{name}", item.Name)
	}

	// Not CommandContext: termination is SIGTERM first, then SIGKILL.
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Env = append(cmd.Env,
		"INTAKE_FILE="+item.Path,
		"INTAKE_NAME="+item.Name,
		"INTAKE_MONITOR="+item.Monitor,
		fmt.Sprintf("INTAKE_CORRELATION_ID=%v", item.Scratch[CorrelationID]),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger := e.logger().With("item", item.Name, "command", args[0])
	logger.Debug("Starting command")

	if err := cmd.Start(); err != nil {
		return &ExecError{Command: args[0], ExitCode: -1, Err: err}
	}
	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	timeout := e.Timeout
	if timeout == 0 {
		timeout = DefaultExecTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-waitErr:
	case <-ctx.Done():
		e.terminate(cmd, waitErr, logger)
		return &ExecError{Command: args[0], ExitCode: -1, Err: ctx.Err(), Stderr: truncateStderr(stderr.String())}
	case <-timer.C:
		logger.Warn("Command timed out, sending SIGTERM", "timeout", timeout)
		e.terminate(cmd, waitErr, logger)
		return &ExecError{Command: args[0], ExitCode: -1, Err: context.DeadlineExceeded, Stderr: truncateStderr(stderr.String())}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExecError{Command: args[0], ExitCode: exitErr.ExitCode(), Err: err, Stderr: truncateStderr(stderr.String())}
		}
		return &ExecError{Command: args[0], ExitCode: -1, Err: err, Stderr: truncateStderr(stderr.String())}
	}
	return nil
}

func (e *Exec) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()
	select {
	case <-waitErr:
	case <-grace.C:
		logger.Warn("Command did not exit after SIGTERM, sending SIGKILL")
		_ = cmd.Process.Kill()
		<-waitErr
	}
}

func truncateStderr(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
