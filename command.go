package mcphost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Command implements Transport over the standard streams of a child process.
// It spawns the server executable, speaks the line protocol over the child's
// stdin/stdout through an inner StdIO, and owns the process for its whole
// life: nothing else may signal, wait on, or write to it.
//
// The child's stderr is not part of the protocol channel. It is discarded
// unless redirected with WithCommandStderr.
//
// Proper initialization requires using the NewCommand constructor function
// to create new instances.
type Command struct {
	id     string
	name   string
	args   []string
	env    map[string]string
	stderr io.Writer
	logger *slog.Logger

	exitGrace time.Duration
	termGrace time.Duration

	cmd   *exec.Cmd
	stdio *StdIO

	closeOnce sync.Once
}

// CommandOption represents the options for the Command.
type CommandOption func(*Command)

// NewCommand creates a Command that will run the given executable with args.
// Entries in env are appended to the parent's environment. The process is
// not spawned until Start is called.
func NewCommand(name string, args []string, env map[string]string, options ...CommandOption) *Command {
	c := &Command{
		id:        uuid.New().String(),
		name:      name,
		args:      args,
		env:       env,
		logger:    slog.Default(),
		exitGrace: 2 * time.Second,
		termGrace: time.Second,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// WithCommandLogger sets the logger for the Command.
func WithCommandLogger(logger *slog.Logger) CommandOption {
	return func(c *Command) {
		c.logger = logger
	}
}

// WithCommandStderr redirects the child process's stderr to w instead of
// discarding it.
func WithCommandStderr(w io.Writer) CommandOption {
	return func(c *Command) {
		c.stderr = w
	}
}

// WithCommandExitGrace sets how long Close waits for the process to exit on
// its own after the streams are closed, before escalating to SIGTERM.
func WithCommandExitGrace(d time.Duration) CommandOption {
	return func(c *Command) {
		c.exitGrace = d
	}
}

// WithCommandTermGrace sets how long Close waits after SIGTERM before the
// process is forcefully killed.
func WithCommandTermGrace(d time.Duration) CommandOption {
	return func(c *Command) {
		c.termGrace = d
	}
}

// ID returns the transport's unique identifier, used to correlate log
// entries across a process's lifetime.
func (c *Command) ID() string {
	return c.id
}

// PID returns the operating system process id of the running child, or 0 if
// the process has not been started.
func (c *Command) PID() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Start spawns the child process and wires its stdin/stdout into the line
// protocol. A failure to spawn leaves the Command inert; it is safe to call
// Close afterwards.
func (c *Command) Start(ctx context.Context) error {
	if c.cmd != nil {
		return errors.New("command already started")
	}

	cmd := exec.Command(c.name, c.args...)
	if len(c.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	cmd.Stderr = c.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.name, err)
	}

	c.cmd = cmd
	c.stdio = NewStdIO(stdout, stdin)
	if err := c.stdio.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stdio: %w", err)
	}

	c.logger.Info("server process started",
		slog.String("id", c.id),
		slog.String("command", c.name),
		slog.Int("pid", cmd.Process.Pid))

	return nil
}

// WriteFrame sends one frame to the child's stdin.
func (c *Command) WriteFrame(ctx context.Context, frame []byte) error {
	if c.stdio == nil {
		return errors.New("command not started")
	}
	return c.stdio.WriteFrame(ctx, frame)
}

// ReadFrame receives the next frame from the child's stdout. It returns
// io.EOF once the child has closed its output or exited.
func (c *Command) ReadFrame(ctx context.Context) ([]byte, error) {
	if c.stdio == nil {
		return nil, errors.New("command not started")
	}
	return c.stdio.ReadFrame(ctx)
}

// Close tears the process down in stages: it closes the child's streams and
// waits up to the exit grace for a voluntary exit, then sends SIGTERM and
// waits up to the term grace, then kills. Failures at any stage feed the
// next one, so Close always returns nil and never blocks longer than the two
// graces combined plus the final reap. It is idempotent.
func (c *Command) Close() error {
	c.closeOnce.Do(func() {
		if c.cmd == nil {
			return
		}

		// Closing stdin signals the server to exit on its own.
		_ = c.stdio.Close()

		exited := make(chan error, 1)
		go func() {
			exited <- c.cmd.Wait()
		}()

		select {
		case err := <-exited:
			c.logProcessExit(err)
			return
		case <-time.After(c.exitGrace):
		}

		c.logger.Warn("server process still running, sending SIGTERM",
			slog.String("id", c.id),
			slog.Int("pid", c.cmd.Process.Pid))
		if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			c.logger.Debug("failed to signal server process", slog.String("err", err.Error()))
		}

		select {
		case err := <-exited:
			c.logProcessExit(err)
			return
		case <-time.After(c.termGrace):
		}

		c.logger.Warn("server process ignored SIGTERM, killing",
			slog.String("id", c.id),
			slog.Int("pid", c.cmd.Process.Pid))
		if err := c.cmd.Process.Kill(); err != nil {
			c.logger.Debug("failed to kill server process", slog.String("err", err.Error()))
		}

		c.logProcessExit(<-exited)
	})
	return nil
}

func (c *Command) logProcessExit(err error) {
	if err != nil {
		c.logger.Info("server process exited",
			slog.String("id", c.id),
			slog.String("state", err.Error()))
		return
	}
	c.logger.Info("server process exited", slog.String("id", c.id))
}
