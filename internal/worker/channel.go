package worker

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/mattjoyce/sqlbridge/internal/log"
)

const (
	// maxLineBytes caps a single worker output line. Whole result sets
	// arrive as one JSON line each, so the cap is generous.
	maxLineBytes = 8 * 1024 * 1024

	// stderrChunkBytes is the read size for the error stream.
	stderrChunkBytes = 4096

	// defaultTerminateGrace is the time we wait after SIGTERM before SIGKILL.
	defaultTerminateGrace = 5 * time.Second

	defaultEventBuffer = 64
)

// EventKind discriminates channel events.
type EventKind int

const (
	// EventOutput carries one decoded line from the worker's stdout.
	EventOutput EventKind = iota
	// EventStderr carries decoded data from the worker's error stream, or
	// the description of an output-stream read failure; either way the
	// stream can no longer be trusted for in-flight requests.
	EventStderr
	// EventExit reports that the worker process exited. It is always the
	// final event before the feed closes.
	EventExit
)

// Event is one occurrence on the worker's streams.
type Event struct {
	Kind EventKind
	Line string // EventOutput: the line, without its trailing newline
	Text string // EventStderr: the decoded chunk
	Err  error  // EventExit: the Wait result, nil on clean exit
}

// Options configures Start.
type Options struct {
	Command string
	Args    []string
	// Env entries are appended to the parent environment.
	Env []string
	// Encoding names the worker's output text encoding: utf-8 (default)
	// or latin-1/iso-8859-1.
	Encoding string
	// TerminateGrace is the SIGTERM-to-SIGKILL window; zero means 5s.
	TerminateGrace time.Duration
	// Spawner substitutes the process launcher; nil means ExecSpawner.
	Spawner Spawner
	// EventBuffer sizes the event feed; zero means 64.
	EventBuffer int
}

// Channel owns a running worker subprocess: its stdin for outbound lines and
// a single consolidated event feed for output lines, error-stream data, and
// process exit. The consumer must drain Events until it closes; the feed
// closes right after the EventExit event.
type Channel struct {
	proc   Process
	stdin  io.WriteCloser
	events chan Event
	done   chan struct{}
	grace  time.Duration
	logger *slog.Logger

	writeMu  sync.Mutex
	termOnce sync.Once
}

// Start spawns the worker and begins pumping its streams. Spawn failure is
// reported synchronously; after a successful return all further failures
// arrive on the event feed.
func Start(opts Options) (*Channel, error) {
	enc, err := resolveEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}

	spawner := opts.Spawner
	if spawner == nil {
		spawner = ExecSpawner{}
	}
	grace := opts.TerminateGrace
	if grace <= 0 {
		grace = defaultTerminateGrace
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	proc, stdin, stdout, stderr, err := spawner.Spawn(opts.Command, opts.Args, opts.Env)
	if err != nil {
		return nil, fmt.Errorf("spawn worker: %w", err)
	}

	c := &Channel{
		proc:   proc,
		stdin:  stdin,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		grace:  grace,
		logger: log.WithComponent("worker").With("pid", proc.Pid()),
	}

	c.logger.Info("worker started", "command", opts.Command)

	var readers sync.WaitGroup
	readers.Add(2)
	go c.readOutput(stdout, enc, &readers)
	go c.readStderr(stderr, enc, &readers)
	go c.awaitExit(&readers)

	return c, nil
}

// Events returns the consolidated event feed. It closes after EventExit.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Done is closed once the worker process has been reaped.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Pid returns the worker process id.
func (c *Channel) Pid() int {
	return c.proc.Pid()
}

// WriteLine appends a newline to line and writes the frame to the worker's
// stdin as a single write, so concurrent submissions never interleave.
func (c *Channel) WriteLine(line []byte) error {
	frame := make([]byte, 0, len(line)+1)
	frame = append(frame, line...)
	frame = append(frame, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(frame); err != nil {
		return fmt.Errorf("write to worker: %w", err)
	}
	return nil
}

// Terminate shuts the worker down: close stdin so a well-behaved worker
// exits on EOF, SIGTERM, grace period, then SIGKILL. Idempotent.
func (c *Channel) Terminate() {
	c.termOnce.Do(func() {
		_ = c.stdin.Close()

		select {
		case <-c.done:
			return
		default:
		}

		c.logger.Debug("terminating worker")
		if err := c.proc.Signal(syscall.SIGTERM); err != nil {
			c.logger.Debug("failed to send SIGTERM", "error", err)
		}

		grace := time.NewTimer(c.grace)
		defer grace.Stop()

		select {
		case <-c.done:
			c.logger.Debug("worker exited after SIGTERM")
		case <-grace.C:
			c.logger.Warn("worker did not exit after SIGTERM, sending SIGKILL")
			if err := c.proc.Kill(); err != nil {
				c.logger.Error("failed to send SIGKILL", "error", err)
			}
			kill := time.NewTimer(c.grace)
			defer kill.Stop()
			select {
			case <-c.done:
			case <-kill.C:
				c.logger.Error("worker still running after SIGKILL")
			}
		}
	})
}

// readOutput pumps decoded stdout lines into the event feed. A read failure
// is surfaced as an EventStderr: once the output stream is broken, every
// in-flight request on it is undeliverable.
func (c *Channel) readOutput(r io.ReadCloser, enc encoding.Encoding, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(transform.NewReader(r, enc.NewDecoder()))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		c.events <- Event{Kind: EventOutput, Line: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		c.events <- Event{Kind: EventStderr, Text: fmt.Sprintf("output stream read failed: %v", err)}
	}
}

// readStderr pumps decoded error-stream chunks into the event feed.
func (c *Channel) readStderr(r io.ReadCloser, enc encoding.Encoding, wg *sync.WaitGroup) {
	defer wg.Done()

	decoded := transform.NewReader(r, enc.NewDecoder())
	buf := make([]byte, stderrChunkBytes)
	for {
		n, err := decoded.Read(buf)
		if n > 0 {
			c.events <- Event{Kind: EventStderr, Text: string(buf[:n])}
		}
		if err != nil {
			return
		}
	}
}

// awaitExit reaps the process once both stream readers are finished (Wait
// closes the pipes, so it must not race the reads), then emits the final
// EventExit and closes the feed.
func (c *Channel) awaitExit(readers *sync.WaitGroup) {
	readers.Wait()

	err := c.proc.Wait()
	if err != nil {
		c.logger.Warn("worker exited with error", "error", err)
	} else {
		c.logger.Debug("worker exited cleanly")
	}

	c.events <- Event{Kind: EventExit, Err: err}
	close(c.events)
	close(c.done)
}

// resolveEncoding maps a configured encoding name to its decoder.
func resolveEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unsupported worker encoding: %q", name)
	}
}
