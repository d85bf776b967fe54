// Package capture wraps the platform screen-capture engine behind a
// state-machine-guarded adapter.
//
// The engine is a process-wide singleton: only one session may be outside the
// idle state at a time. ForceReset returns the adapter to idle from any state
// and must be called before a new session when the previous one may have died
// without reaching a clean terminal state.
package capture

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/hpungsan/lens/internal/errors"
)

// State is the adapter lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
	StateError     State = "error"
)

// EventKind tags a RecordingEvent.
type EventKind int

const (
	EventStarted EventKind = iota + 1
	EventFirstFrame
	EventStopped
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventFirstFrame:
		return "firstFrameCaptured"
	case EventStopped:
		return "stopped"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one transition of a capture session.
type Event struct {
	Kind EventKind
	// Path is set on Started and Stopped.
	Path string
	// Reason is set on Error.
	Reason string
}

// Settings are the per-process capture options shared by all sessions.
type Settings struct {
	FrameRate    int
	Resolution   string // "WxH", empty keeps the source size
	ShowCursor   bool
	CaptureAudio bool
}

// Options is what a Backend needs to start one capture.
type Options struct {
	Settings
	Target     Target
	OutputPath string
}

// Hooks are called by a Backend from its own goroutines.
type Hooks struct {
	// OnFirstFrame is called once, when the first encoded frame is reported.
	OnFirstFrame func()
	// OnExit is called once, when the backend process has exited.
	OnExit func(err error)
}

// Backend starts the platform capture process.
type Backend interface {
	Start(opts Options, hooks Hooks) (Process, error)
}

// Process is a running capture.
type Process interface {
	// Stop asks the process to finalize the artifact and waits for it to exit.
	Stop(ctx context.Context) error
	// Kill terminates the process without waiting.
	Kill()
}

// eventBuffer holds every event a single session can produce.
const eventBuffer = 4

// Adapter guards the capture engine.
type Adapter struct {
	backend  Backend
	settings Settings

	mu         sync.Mutex
	state      State
	gen        uint64
	proc       Process
	path       string
	events     chan Event
	firstFrame bool

	// pendingFirst holds a first frame reported before Started was emitted.
	pendingFirst bool
}

// NewAdapter creates an idle adapter.
func NewAdapter(backend Backend, settings Settings) *Adapter {
	return &Adapter{
		backend:  backend,
		settings: settings,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start launches a capture of target into outputPath and returns its event
// stream. It does not wait for the first frame: Started is emitted once the
// backend is running and FirstFrameCaptured follows asynchronously.
func (a *Adapter) Start(ctx context.Context, target Target, outputPath string) (<-chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCaptureStartFailed(err)
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.state != StateIdle {
		state := a.state
		a.mu.Unlock()
		return nil, errors.NewCaptureStartFailed(fmt.Errorf("capture engine is %s", state))
	}
	a.gen++
	gen := a.gen
	a.state = StatePreparing
	a.path = outputPath
	a.firstFrame = false
	a.pendingFirst = false
	a.events = make(chan Event, eventBuffer)
	events := a.events
	a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0700); err != nil {
		a.fail(gen)
		return nil, errors.NewCaptureStartFailed(err)
	}

	proc, err := a.backend.Start(Options{
		Settings:   a.settings,
		Target:     target,
		OutputPath: outputPath,
	}, Hooks{
		OnFirstFrame: func() { a.onFirstFrame(gen) },
		OnExit:       func(err error) { a.onExit(gen, err) },
	})
	if err != nil {
		a.fail(gen)
		return nil, errors.NewCaptureStartFailed(err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen || a.state != StatePreparing {
		// Reset, or the process already died, while the backend was starting.
		proc.Kill()
		return nil, errors.NewCaptureStartFailed(fmt.Errorf("capture was reset during start"))
	}
	a.proc = proc
	a.state = StateRecording
	a.emitLocked(Event{Kind: EventStarted, Path: outputPath})
	if a.pendingFirst {
		a.firstFrame = true
		a.emitLocked(Event{Kind: EventFirstFrame})
	}
	log.Printf("[capture] started %s -> %s", target, outputPath)
	return events, nil
}

// Stop finalizes the recording and returns the artifact path. It is only
// valid while recording.
func (a *Adapter) Stop(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.state != StateRecording {
		state := a.state
		a.mu.Unlock()
		return "", errors.NewInvalidState("stop", string(state))
	}
	a.state = StateStopping
	gen, proc, path := a.gen, a.proc, a.path
	a.mu.Unlock()

	err := proc.Stop(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen {
		return "", errors.NewCaptureEngine("capture was reset during stop")
	}
	if err != nil {
		a.state = StateError
		a.emitLocked(Event{Kind: EventError, Reason: err.Error()})
		a.closeLocked()
		return "", errors.NewCaptureEngine(err.Error())
	}
	a.state = StateIdle
	a.proc = nil
	a.emitLocked(Event{Kind: EventStopped, Path: path})
	a.closeLocked()
	log.Printf("[capture] stopped -> %s", path)
	return path, nil
}

// ForceReset releases all engine resources and returns to idle regardless of
// the current state. Calling it repeatedly is a no-op.
func (a *Adapter) ForceReset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateIdle {
		log.Printf("[capture] force reset from %s", a.state)
	}
	a.gen++
	if a.proc != nil {
		a.proc.Kill()
		a.proc = nil
	}
	a.closeLocked()
	a.state = StateIdle
}

func (a *Adapter) onFirstFrame(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen || a.firstFrame {
		return
	}
	switch a.state {
	case StatePreparing:
		a.pendingFirst = true
		return
	case StateRecording:
	default:
		return
	}
	a.firstFrame = true
	a.emitLocked(Event{Kind: EventFirstFrame})
}

func (a *Adapter) onExit(gen uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen {
		return
	}
	switch a.state {
	case StatePreparing, StateRecording:
	default:
		// Exits during stopping are reported by Stop.
		return
	}

	reason := "capture process exited unexpectedly"
	if err != nil {
		reason = err.Error()
	}
	log.Printf("[capture] %s", reason)
	a.state = StateError
	a.proc = nil
	a.emitLocked(Event{Kind: EventError, Reason: reason})
	a.closeLocked()
}

func (a *Adapter) fail(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen {
		return
	}
	a.state = StateError
	a.closeLocked()
}

func (a *Adapter) emitLocked(ev Event) {
	if a.events == nil {
		return
	}
	select {
	case a.events <- ev:
	default:
		log.Printf("[capture] dropped %s event: listener is not reading", ev.Kind)
	}
}

func (a *Adapter) closeLocked() {
	if a.events != nil {
		close(a.events)
		a.events = nil
	}
}
