package mcpbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// StdioUpstream runs the MCP tool server as a subprocess and talks to it
// over its stdio pipes.
type StdioUpstream struct {
	command string
	args    []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// NewStdioUpstream creates an upstream for the given server command.
func NewStdioUpstream(command string, args ...string) *StdioUpstream {
	return &StdioUpstream{command: command, args: args}
}

// Start launches the tool server. The server's stderr is forwarded to the
// bridge's stderr (MCP allows server logging there).
func (u *StdioUpstream) Start(ctx context.Context) (io.WriteCloser, io.ReadCloser, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.cmd != nil {
		return nil, nil, errors.New("upstream already started")
	}

	u.cmd = exec.CommandContext(ctx, u.command, u.args...)

	stdin, err := u.cmd.StdinPipe()
	if err != nil {
		u.cmd = nil
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := u.cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		u.cmd = nil
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	u.cmd.Stderr = os.Stderr

	if err := u.cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		u.cmd = nil
		return nil, nil, fmt.Errorf("start tool server: %w", err)
	}

	u.stdin = stdin
	u.stdout = stdout
	return stdin, stdout, nil
}

// Wait blocks until the tool server process exits.
func (u *StdioUpstream) Wait() error {
	u.mu.Lock()
	cmd := u.cmd
	u.mu.Unlock()

	if cmd == nil {
		return errors.New("upstream not started")
	}
	return cmd.Wait()
}

// Close kills the process if still running and closes the pipes. Stdin is
// closed first so a well-behaved server sees EOF before the kill.
func (u *StdioUpstream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	var errs []error
	if u.stdin != nil {
		if err := u.stdin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stdin: %w", err))
		}
		u.stdin = nil
	}
	if u.cmd != nil && u.cmd.Process != nil {
		if err := u.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill process: %w", err))
		}
	}
	u.cmd = nil
	if u.stdout != nil {
		if err := u.stdout.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stdout: %w", err))
		}
		u.stdout = nil
	}
	return errors.Join(errs...)
}

// Compile-time check that StdioUpstream implements Upstream.
var _ Upstream = (*StdioUpstream)(nil)
