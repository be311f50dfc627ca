package ufw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// waitDelayAfterKill is the grace period for ufw to exit after context
// cancellation before it is forcibly killed.
const waitDelayAfterKill = 500 * time.Millisecond

// ErrNotInstalled is returned when the ufw binary cannot be found.
var ErrNotInstalled = errors.New("ufw: binary not found")

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	// Run executes name with args and returns combined stdout and stderr.
	// A non-zero exit is reported as an error alongside the output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookPath resolves name to an executable path.
	LookPath(name string) (string, error)
}

// ExecRunner implements CommandRunner with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a CommandRunner that runs real processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and captures its combined output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelayAfterKill
	// Status parsing expects untranslated output.
	cmd.Env = append(cmd.Environ(), "LC_ALL=C", "LANG=C")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// LookPath delegates to exec.LookPath.
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// CommandError describes a ufw invocation that exited unsuccessfully.
type CommandError struct {
	Args     []string
	Output   string
	ExitCode int
	Err      error
}

// Error returns the formatted error string.
func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		return fmt.Sprintf("ufw: %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("ufw: %s: %v: %s", strings.Join(e.Args, " "), e.Err, msg)
}

// Unwrap returns the underlying process error.
func (e *CommandError) Unwrap() error { return e.Err }

func newCommandError(args []string, output []byte, err error) *CommandError {
	ce := &CommandError{
		Args:     args,
		Output:   string(output),
		ExitCode: -1,
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ce.ExitCode = exitErr.ExitCode()
	}
	return ce
}
