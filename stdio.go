package mcphost

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Transport moves whole newline-delimited frames between the client and a
// server. Implementations own the underlying byte streams: Start makes the
// transport ready for traffic, and Close releases every resource it holds.
//
// ReadFrame returns io.EOF once the inbound stream has ended, either because
// the server closed its side or because Close was called. A frame abandoned
// by a cancelled context is not lost; the next ReadFrame call receives it.
type Transport interface {
	Start(ctx context.Context) error
	WriteFrame(ctx context.Context, frame []byte) error
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// StdIO implements Transport over an io.Reader/io.Writer pair, framing
// messages as single lines. It serves as the byte-stream core for Command,
// which wires it to a child process's pipes, and works directly over
// in-process pipes for testing.
//
// Proper initialization requires using the NewStdIO constructor function to
// create new instances. Resources must be released by calling Close when the
// instance is no longer needed.
type StdIO struct {
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	frames      chan []byte
	writes      chan stdIOWrite
	done        chan struct{}
	readClosed  chan struct{}
	writeClosed chan struct{}

	readErr   error
	started   bool
	closeOnce sync.Once
}

type stdIOWrite struct {
	frame []byte
	errs  chan error
}

// NewStdIO creates a new StdIO instance over the provided reader and writer.
// The instance is initialized with default logging and the required internal
// communication channels.
func NewStdIO(reader io.Reader, writer io.Writer) *StdIO {
	return &StdIO{
		reader:      reader,
		writer:      writer,
		logger:      slog.Default(),
		frames:      make(chan []byte),
		writes:      make(chan stdIOWrite),
		done:        make(chan struct{}),
		readClosed:  make(chan struct{}),
		writeClosed: make(chan struct{}),
	}
}

// Start launches the read and write loops. It must be called once before
// WriteFrame or ReadFrame.
func (s *StdIO) Start(_ context.Context) error {
	s.started = true
	go s.readFrames()
	go s.processWrites()
	return nil
}

// WriteFrame writes one frame to the outbound stream, terminating it with a
// newline when one is not already present. The write happens immediately;
// there is no buffering between frames.
func (s *StdIO) WriteFrame(ctx context.Context, frame []byte) error {
	if len(frame) == 0 || frame[len(frame)-1] != '\n' {
		frame = append(frame, '\n')
	}

	w := stdIOWrite{
		frame: frame,
		errs:  make(chan error, 1),
	}

	// Queue the frame so concurrent callers never interleave bytes.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return io.EOF
	case s.writes <- w:
	}

	select {
	case err := <-w.errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return io.EOF
	}
}

// ReadFrame returns the next inbound frame without its trailing newline.
// Empty lines are skipped. Once the stream ends it returns io.EOF, or the
// underlying read error if the stream failed some other way.
func (s *StdIO) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, io.EOF
	case frame := <-s.frames:
		return frame, nil
	case <-s.readClosed:
		if s.readErr != nil {
			return nil, s.readErr
		}
		return nil, io.EOF
	}
}

// Close stops both loops and closes the underlying reader and writer if they
// implement io.Closer. It is idempotent and always returns nil.
func (s *StdIO) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if c, ok := s.reader.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Debug("failed to close reader", slog.String("err", err.Error()))
			}
		}
		if c, ok := s.writer.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Debug("failed to close writer", slog.String("err", err.Error()))
			}
		}
		if s.started {
			<-s.readClosed
			<-s.writeClosed
		}
	})
	return nil
}

func (s *StdIO) readFrames() {
	defer close(s.readClosed)

	// Use bufio.Reader instead of bufio.Scanner to avoid max token size errors.
	reader := bufio.NewReader(s.reader)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-s.done:
			default:
				if err != io.EOF {
					s.logger.Debug("inbound stream failed", slog.String("err", err.Error()))
					s.readErr = err
				}
			}
			return
		}

		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}

		select {
		case <-s.done:
			return
		case s.frames <- []byte(line):
		}
	}
}

func (s *StdIO) processWrites() {
	defer close(s.writeClosed)

	for {
		var w stdIOWrite
		select {
		case <-s.done:
			return
		case w = <-s.writes:
		}

		_, err := s.writer.Write(w.frame)

		w.errs <- err
	}
}
