// Package sandbox executes untrusted commands under resource limits.
// Three isolation modes are supported: bare subprocess, subprocess with a
// scrubbed environment, and a container runtime launch.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Mode selects the isolation level.
type Mode string

const (
	// ModeNone runs a plain subprocess in a temp working directory.
	ModeNone Mode = "none"
	// ModeProcess adds environment scrubbing on top of ModeNone.
	ModeProcess Mode = "process"
	// ModeContainer launches under a container runtime with memory, CPU,
	// network, and filesystem restrictions.
	ModeContainer Mode = "container"
)

// containerStartupGrace extends the wall clock for container launches,
// covering image setup before the command runs.
const containerStartupGrace = 10 * time.Second

// scrubbedEnvKeys are removed from the inherited environment in process
// mode so sandboxed code cannot read ambient credentials.
var scrubbedEnvKeys = []string{
	"AWS_SECRET_ACCESS_KEY",
	"AWS_ACCESS_KEY_ID",
	"OPENAI_API_KEY",
	"ANTHROPIC_API_KEY",
	"DATABASE_URL",
	"SECRET_KEY",
}

// Config bounds a sandboxed execution.
type Config struct {
	// Mode is the isolation level. Default ModeProcess.
	Mode Mode
	// Timeout is the wall-clock budget for the command itself.
	Timeout time.Duration
	// MemoryLimitMB caps container memory.
	MemoryLimitMB int
	// CPUShares sets the container CPU weight.
	CPUShares int
	// Runtime is the container runtime binary. Default "docker".
	Runtime string
	// Image is the container image for ModeContainer.
	Image string
	// Mounts are host:container[:ro] volume specs for ModeContainer.
	Mounts []string
	// Env layers user-supplied variables on top of the scrubbed base.
	Env map[string]string
}

// Outcome is the result of one execution.
type Outcome struct {
	Success   bool
	Stdout    string
	Stderr    string
	ExitCode  int
	ElapsedMS int64
	Error     string
}

// Sandbox is one allocated execution slot with its own working directory.
type Sandbox struct {
	cfg    Config
	dir    string
	logger *slog.Logger
}

// New allocates a sandbox: a tempdir prefixed "sandbox_" plus the config.
// The caller owns the lifecycle and must call Teardown.
func New(cfg Config, logger *slog.Logger) (*Sandbox, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeProcess
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Runtime == "" {
		cfg.Runtime = "docker"
	}
	dir, err := os.MkdirTemp("", "sandbox_")
	if err != nil {
		return nil, fmt.Errorf("allocate workdir: %w", err)
	}
	return &Sandbox{cfg: cfg, dir: dir, logger: logger}, nil
}

// Dir returns the sandbox working directory.
func (s *Sandbox) Dir() string {
	return s.dir
}

// Teardown removes the working directory recursively, ignoring errors.
func (s *Sandbox) Teardown() {
	if s.dir != "" {
		_ = os.RemoveAll(s.dir)
	}
}

// Execute runs the command and reports the outcome. Timeouts kill the
// whole process group and yield exit code -1 with success false.
func (s *Sandbox) Execute(ctx context.Context, command []string) Outcome {
	if len(command) == 0 {
		return Outcome{ExitCode: -1, Error: "empty command"}
	}

	argv := command
	budget := s.cfg.Timeout
	if s.cfg.Mode == ModeContainer {
		argv = s.containerArgv(command)
		budget = s.cfg.Timeout + containerStartupGrace
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.dir
	cmd.Env = s.environment()
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{
			ExitCode:  -1,
			ElapsedMS: time.Since(start).Milliseconds(),
			Error:     fmt.Sprintf("start: %v", err),
		}
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	var (
		waitErr  error
		timedOut bool
	)
	select {
	case waitErr = <-waitCh:
	case <-ctx.Done():
		s.killGroup(cmd)
		<-waitCh
		timedOut = true
	case <-timer.C:
		s.killGroup(cmd)
		<-waitCh
		timedOut = true
	}

	elapsed := time.Since(start)
	out := Outcome{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ElapsedMS: elapsed.Milliseconds(),
	}
	if timedOut {
		out.ExitCode = -1
		out.Error = fmt.Sprintf("command timed out after %s", budget)
		return out
	}
	if waitErr != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
		out.Error = waitErr.Error()
		return out
	}
	out.Success = true
	return out
}

// killGroup terminates the command's whole process group so children of a
// shell do not outlive the timeout.
func (s *Sandbox) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		s.logger.Warn("process group kill failed", "pid", cmd.Process.Pid, "error", err)
		_ = cmd.Process.Kill()
	}
}

// environment builds the subprocess environment per mode. Process and
// container modes scrub ambient credentials; every mode gets the sandbox
// markers, with user additions layered last.
func (s *Sandbox) environment() []string {
	base := os.Environ()
	if s.cfg.Mode != ModeNone {
		filtered := base[:0]
		for _, kv := range base {
			if !isScrubbedKey(kv) {
				filtered = append(filtered, kv)
			}
		}
		base = filtered
	}
	base = append(base, "SANDBOX=1", "SANDBOX_MODE="+string(s.cfg.Mode))
	for key, val := range s.cfg.Env {
		base = append(base, key+"="+val)
	}
	return base
}

func isScrubbedKey(kv string) bool {
	for _, key := range scrubbedEnvKeys {
		if strings.HasPrefix(kv, key+"=") {
			return true
		}
	}
	return false
}

// containerArgv wraps the command in a container runtime launch with the
// configured restrictions.
func (s *Sandbox) containerArgv(command []string) []string {
	argv := []string{
		s.cfg.Runtime, "run", "--rm",
		"--network", "none",
		"--read-only",
		"--workdir", "/work",
		"-v", s.dir + ":/work",
	}
	if s.cfg.MemoryLimitMB > 0 {
		argv = append(argv, "--memory", fmt.Sprintf("%dm", s.cfg.MemoryLimitMB))
	}
	if s.cfg.CPUShares > 0 {
		argv = append(argv, "--cpu-shares", fmt.Sprintf("%d", s.cfg.CPUShares))
	}
	for _, mount := range s.cfg.Mounts {
		argv = append(argv, "-v", mount)
	}
	argv = append(argv, "-e", "SANDBOX=1", "-e", "SANDBOX_MODE="+string(ModeContainer))
	argv = append(argv, s.cfg.Image)
	return append(argv, command...)
}
