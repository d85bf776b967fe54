package status

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hpungsan/lens/internal/errors"
)

// streamBuffer bounds each event stream. The reader never blocks on a slow
// consumer; overflow is logged and dropped.
const streamBuffer = 16

// Default wait for the companion to exit after its stdin is closed.
const defaultExitWait = 2 * time.Second

// Config describes how to launch the companion.
type Config struct {
	// Command is the companion argv.
	Command []string
	// Env is appended to the current environment.
	Env []string
	// DurationSeconds is sent with configure. Nil means manual stop.
	DurationSeconds *int
	// ExitWait bounds Terminate's wait before killing. Zero uses the default.
	ExitWait time.Duration
}

// Channel is a running companion process.
type Channel struct {
	cmd      *exec.Cmd
	exitWait time.Duration
	done     chan struct{}

	writeMu sync.Mutex
	stdin   io.WriteCloser
	closed  bool

	mu        sync.Mutex
	recording chan Event
	current   chan Event
	exited    bool
	sent      []Command

	termOnce sync.Once
}

// Launch starts the companion, sends configure and returns. The returned
// channel's Events stream is live from this point.
func Launch(ctx context.Context, cfg Config) (*Channel, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.NewStatusChannelUnavailable(fmt.Errorf("no companion command configured"))
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewStatusChannelUnavailable(err)
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.NewStatusChannelUnavailable(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewStatusChannelUnavailable(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.NewStatusChannelUnavailable(err)
	}

	exitWait := cfg.ExitWait
	if exitWait <= 0 {
		exitWait = defaultExitWait
	}
	stream := make(chan Event, streamBuffer)
	c := &Channel{
		cmd:       cmd,
		exitWait:  exitWait,
		done:      make(chan struct{}),
		stdin:     stdin,
		recording: stream,
		current:   stream,
	}
	go c.read(stdout)

	c.Send(Configure(cfg.DurationSeconds))
	return c, nil
}

// Events returns the recording-phase stream.
func (c *Channel) Events() <-chan Event {
	return c.recording
}

// FreshEvents closes the previous stream and returns a new one that receives
// only events read from now on. If the companion has already exited the new
// stream carries a single processExited and is closed.
func (c *Channel) FreshEvents() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		close(c.current)
	}
	stream := make(chan Event, streamBuffer)
	if c.exited {
		stream <- Event{Type: EventProcessExited}
		close(stream)
		c.current = nil
		return stream
	}
	c.current = stream
	return stream
}

// Send writes cmd to the companion. It never fails: errors are logged
// because the overlay is a convenience.
func (c *Channel) Send(cmd Command) {
	c.mu.Lock()
	c.sent = append(c.sent, cmd)
	c.mu.Unlock()

	line, err := EncodeCommand(cmd)
	if err != nil {
		log.Printf("[status] %v", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		log.Printf("[status] dropped %s: companion stdin closed", cmd.Type)
		return
	}
	if _, err := c.stdin.Write(line); err != nil {
		log.Printf("[status] send %s: %v", cmd.Type, err)
	}
}

// Sent returns the commands passed to Send, in order.
func (c *Channel) Sent() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Command, len(c.sent))
	copy(out, c.sent)
	return out
}

// Exited reports whether the companion's stdout has closed.
func (c *Channel) Exited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited
}

// Terminate closes the companion's stdin, waits for it to exit and kills it
// if it does not. It is safe to call repeatedly and after the process exited.
func (c *Channel) Terminate() {
	c.termOnce.Do(func() {
		c.writeMu.Lock()
		if !c.closed {
			c.closed = true
			_ = c.stdin.Close()
		}
		c.writeMu.Unlock()

		select {
		case <-c.done:
			return
		case <-time.After(c.exitWait):
		}

		log.Printf("[status] companion did not exit after %s, killing", c.exitWait)
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		select {
		case <-c.done:
		case <-time.After(c.exitWait):
			log.Printf("[status] companion still running after kill")
		}
	})
}

func (c *Channel) read(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := DecodeEvent(line)
		if err != nil {
			log.Printf("[status] ignoring companion line: %v", err)
			continue
		}
		c.dispatch(ev)
	}
	if err := sc.Err(); err != nil {
		log.Printf("[status] read companion stdout: %v", err)
	}

	c.mu.Lock()
	c.exited = true
	c.mu.Unlock()
	c.dispatch(Event{Type: EventProcessExited})

	c.mu.Lock()
	if c.current != nil {
		close(c.current)
		c.current = nil
	}
	c.mu.Unlock()

	if err := c.cmd.Wait(); err != nil {
		log.Printf("[status] companion exited: %v", err)
	}
	close(c.done)
}

func (c *Channel) dispatch(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	select {
	case c.current <- ev:
	default:
		log.Printf("[status] event stream full, dropped %s", ev.Type)
	}
}
