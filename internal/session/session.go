// Package session composes the capture engine, the status channel and the
// analysis pipeline into single synchronous operations.
//
// One session runs at a time. Every exit path releases the capture engine
// and terminates the companion exactly once, and the companion's last
// command is exactly one of success, error or cancelled.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/lens/internal/analyzer"
	"github.com/hpungsan/lens/internal/capture"
	"github.com/hpungsan/lens/internal/config"
	"github.com/hpungsan/lens/internal/cost"
	"github.com/hpungsan/lens/internal/errors"
	"github.com/hpungsan/lens/internal/sampler"
	"github.com/hpungsan/lens/internal/status"
)

// Engine is the capture engine as seen by a session. *capture.Adapter
// implements it.
type Engine interface {
	Start(ctx context.Context, target capture.Target, outputPath string) (<-chan capture.Event, error)
	Stop(ctx context.Context) (string, error)
	ForceReset()
}

// StatusChannel is a running companion. *status.Channel implements it.
type StatusChannel interface {
	Events() <-chan status.Event
	FreshEvents() <-chan status.Event
	Send(cmd status.Command)
	Terminate()
}

// Launcher starts a companion configured with durationSeconds (nil for
// manual stop). A nil Launcher records without a status channel.
type Launcher func(ctx context.Context, durationSeconds *int) (StatusChannel, error)

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Engine   Engine
	Analyzer *analyzer.Analyzer
	Launch   Launcher
	// Sweep kills leftover companions. Nil skips the sweep.
	Sweep func()
}

// RecordRequest asks for a recording followed by an analysis.
type RecordRequest struct {
	Mode sampler.Mode
	// DurationSeconds is the requested length. Nil records until the user
	// stops or the mode's hard maximum is reached.
	DurationSeconds *int
	Target          capture.Target
	Focus           string
}

// AnalyzeRequest asks for an analysis of an existing video file.
type AnalyzeRequest struct {
	Path  string
	Mode  sampler.Mode
	Focus string
}

// Result is a completed session.
type Result struct {
	ID       string           `json:"id"`
	Artifact string           `json:"artifact"`
	Analysis *analyzer.Result `json:"analysis"`
	// Recorded is the time from the first captured frame to the stop request.
	// Zero for file analysis.
	Recorded time.Duration `json:"recorded_ns,omitempty"`
}

// Orchestrator runs sessions.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps

	// second is the length of one requested second. Tests shorten it.
	second time.Duration

	mu sync.Mutex
}

// New creates an orchestrator.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{cfg: cfg, deps: deps, second: time.Second}
}

// AnalyzeFile runs the analysis pipeline over an existing video without a
// status channel.
func (o *Orchestrator) AnalyzeFile(ctx context.Context, req AnalyzeRequest) (*Result, error) {
	if req.Path == "" {
		return nil, errors.NewInvalidInput("path is required")
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewInvalidInput(fmt.Sprintf("video file not found: %s", req.Path))
		}
		return nil, errors.NewInvalidInput(fmt.Sprintf("cannot access %s: %v", req.Path, err))
	}
	if info.IsDir() {
		return nil, errors.NewInvalidInput(fmt.Sprintf("%s is a directory", req.Path))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	id := newID()
	an := o.deps.Analyzer.WithLogPrefix(logPrefix(id))
	res, err := an.Analyze(ctx, req.Path, o.options(req.Mode, req.Focus))
	if err != nil {
		return nil, err
	}
	return &Result{ID: id, Artifact: req.Path, Analysis: res}, nil
}

// Reset sweeps orphaned companions and force-resets the capture engine.
// It refuses while a session is running.
func (o *Orchestrator) Reset() error {
	if !o.mu.TryLock() {
		return errors.NewInvalidState("reset", "a session is running")
	}
	defer o.mu.Unlock()

	if o.deps.Sweep != nil {
		o.deps.Sweep()
	}
	o.deps.Engine.ForceReset()
	return nil
}

func (o *Orchestrator) options(mode sampler.Mode, focus string) analyzer.Options {
	budget := o.cfg.DescribeBudget
	if mode.TwoPass() {
		budget = o.cfg.AnimationBudget
	}
	return analyzer.Options{Mode: mode, Budget: cost.BudgetFromConfig(budget), Focus: focus}
}

// seconds converts a requested length into wall-clock time.
func (o *Orchestrator) seconds(n int) time.Duration {
	return time.Duration(n) * o.second
}

func newID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func logPrefix(id string) string {
	return "[session " + id + "]"
}

func logf(id, format string, args ...any) {
	log.Printf(logPrefix(id)+" "+format, args...)
}
