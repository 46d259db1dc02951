package mcphost_test

import (
	"context"
	"errors"
	"io"
	"runtime"
	"testing"
	"time"

	mcphost "github.com/MegaGrindStone/go-mcp-host"
)

// requirePOSIX skips tests that drive real child processes through a POSIX
// shell and coreutils.
func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestCommandRoundTrip(t *testing.T) {
	requirePOSIX(t)

	// cat echoes every line back, which is enough to exercise the full
	// write-read path through a real child process.
	cmd := mcphost.NewCommand("cat", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cmd.Start(ctx); err != nil {
		t.Fatalf("failed to start command: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Close()
	})

	if cmd.ID() == "" {
		t.Error("expected a non-empty transport id")
	}
	if cmd.PID() <= 0 {
		t.Errorf("expected a positive pid, got %d", cmd.PID())
	}

	request, err := mcphost.EncodeMessage(mcphost.JSONRPCMessage{
		JSONRPC: mcphost.JSONRPCVersion,
		ID:      mcphost.RequestID(1),
		Method:  "ping",
	})
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	if err := cmd.WriteFrame(ctx, request); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}

	frame, err := cmd.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	msg, err := mcphost.DecodeMessage(frame)
	if err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	if msg.Method != "ping" {
		t.Errorf("expected method ping, got %q", msg.Method)
	}
	if msg.ID != mcphost.RequestID(1) {
		t.Errorf("expected id 1, got %d", msg.ID)
	}
}

func TestCommandEnvPassthrough(t *testing.T) {
	requirePOSIX(t)

	cmd := mcphost.NewCommand(
		"sh",
		[]string{"-c", `printf '%s\n' "$GREETING"`},
		map[string]string{"GREETING": `{"jsonrpc":"2.0","method":"hello"}`},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cmd.Start(ctx); err != nil {
		t.Fatalf("failed to start command: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Close()
	})

	frame, err := cmd.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	msg, err := mcphost.DecodeMessage(frame)
	if err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	if msg.Method != "hello" {
		t.Errorf("expected method hello, got %q", msg.Method)
	}
}

func TestCommandLaunchFailure(t *testing.T) {
	cmd := mcphost.NewCommand("/nonexistent/mcp-server-binary", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cmd.Start(ctx); err == nil {
		t.Fatal("expected an error starting a nonexistent binary")
	}
	if cmd.PID() != 0 {
		t.Errorf("expected pid 0 after a failed start, got %d", cmd.PID())
	}
	if err := cmd.Close(); err != nil {
		t.Errorf("Close() after a failed start should be a no-op, got %v", err)
	}
}

func TestCommandNotStarted(t *testing.T) {
	cmd := mcphost.NewCommand("cat", nil, nil)

	ctx := context.Background()

	if err := cmd.WriteFrame(ctx, []byte("{}")); err == nil {
		t.Error("expected an error writing before Start")
	}
	if _, err := cmd.ReadFrame(ctx); err == nil {
		t.Error("expected an error reading before Start")
	}
	if err := cmd.Close(); err != nil {
		t.Errorf("Close() before Start should be a no-op, got %v", err)
	}
}

func TestCommandStartTwice(t *testing.T) {
	requirePOSIX(t)

	cmd := mcphost.NewCommand("cat", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cmd.Start(ctx); err != nil {
		t.Fatalf("failed to start command: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Close()
	})

	if err := cmd.Start(ctx); err == nil {
		t.Error("expected an error starting a command twice")
	}
}

func TestCommandCloseExitsPromptly(t *testing.T) {
	requirePOSIX(t)

	// cat exits as soon as its stdin closes, so Close must return on the
	// fast path without escalating to signals.
	cmd := mcphost.NewCommand("cat", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cmd.Start(ctx); err != nil {
		t.Fatalf("failed to start command: %v", err)
	}

	start := time.Now()
	if err := cmd.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 2*time.Second {
		t.Errorf("Close took %v, expected the voluntary-exit fast path", elapsed)
	}

	// Reads observe the ended stream.
	if _, err := cmd.ReadFrame(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after Close, got %v", err)
	}
}

func TestCommandCloseKillsStubbornProcess(t *testing.T) {
	requirePOSIX(t)

	// The child ignores SIGTERM and never reads stdin, forcing Close through
	// every escalation stage up to the kill.
	cmd := mcphost.NewCommand(
		"sh",
		[]string{"-c", `trap '' TERM; while true; do sleep 0.1; done`},
		nil,
		mcphost.WithCommandExitGrace(100*time.Millisecond),
		mcphost.WithCommandTermGrace(100*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cmd.Start(ctx); err != nil {
		t.Fatalf("failed to start command: %v", err)
	}

	start := time.Now()
	if err := cmd.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 100*time.Millisecond {
		t.Errorf("Close returned in %v, before the exit grace elapsed", elapsed)
	}
	if elapsed >= 2*time.Second {
		t.Errorf("Close took %v, should stay bounded by the two graces", elapsed)
	}
}

func TestCommandCloseIdempotent(t *testing.T) {
	requirePOSIX(t)

	cmd := mcphost.NewCommand("cat", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cmd.Start(ctx); err != nil {
		t.Fatalf("failed to start command: %v", err)
	}

	if err := cmd.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := cmd.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
