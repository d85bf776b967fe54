package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/lens/internal/analyzer"
	"github.com/hpungsan/lens/internal/capture"
	"github.com/hpungsan/lens/internal/errors"
	"github.com/hpungsan/lens/internal/status"
)

// stopTimeout bounds the capture engine's finalize after a stop request.
const stopTimeout = 10 * time.Second

// errAnalysisDone ends the analysis race when the pipeline wins.
var errAnalysisDone = stderrors.New("analysis done")

// RecordAndAnalyze records the screen until the requested duration, the
// user's stop, or the mode's hard maximum, whichever comes first, then
// analyzes the recording. The companion can cancel the analysis.
func (o *Orchestrator) RecordAndAnalyze(ctx context.Context, req RecordRequest) (*Result, error) {
	if req.DurationSeconds != nil && *req.DurationSeconds <= 0 {
		return nil, errors.NewInvalidInput(fmt.Sprintf("duration must be positive, got %d", *req.DurationSeconds))
	}
	if err := req.Target.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	r := &recording{o: o, id: newID(), req: req}
	defer r.cleanup()
	return r.run(ctx)
}

// recording is the state of one RecordAndAnalyze call.
type recording struct {
	o   *Orchestrator
	id  string
	req RecordRequest

	ch        StatusChannel
	effective *int
	artifact  string

	terminalOnce sync.Once
	cleanupOnce  sync.Once
}

func (r *recording) logf(format string, args ...any) {
	logf(r.id, format, args...)
}

func (r *recording) run(ctx context.Context) (*Result, error) {
	o := r.o
	if o.deps.Sweep != nil {
		o.deps.Sweep()
	}
	o.deps.Engine.ForceReset()

	hardMax := int(r.req.Mode.HardMax() / time.Second)
	if d := r.req.DurationSeconds; d != nil {
		effective := min(*d, hardMax)
		r.effective = &effective
	}
	r.openChannel(ctx)

	events, err := o.deps.Engine.Start(ctx, r.req.Target, filepath.Join(o.cfg.OutputDir, r.id+".mp4"))
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	if err := r.awaitFirstFrame(ctx, events); err != nil {
		return nil, r.fail(ctx, err)
	}
	r.send(status.CmdRecording)
	recordingSince := time.Now()

	limit := o.seconds(hardMax)
	if r.effective != nil {
		limit = o.seconds(*r.effective)
	}
	if err := r.race(ctx, events, limit); err != nil {
		return nil, r.fail(ctx, err)
	}
	recorded := time.Since(recordingSince)

	// The analysis stream is taken before stop is shown so a cancel clicked
	// from then on is never read off the retired recording stream.
	var cancels <-chan status.Event
	if r.ch != nil {
		cancels = r.ch.FreshEvents()
	}
	if err := r.stop(ctx, events); err != nil {
		return nil, r.fail(ctx, err)
	}
	r.logf("recorded %s -> %s", recorded.Round(time.Millisecond), r.artifact)
	r.send(status.CmdStop)
	r.send(status.CmdAnalyzing)

	res, err := r.analyze(ctx, cancels)
	if errors.IsCancelledByUser(err) {
		r.logf("analysis cancelled by user")
		r.finish(ctx, status.CmdCancelled, o.cfg.CancelGrace())
		return nil, err
	}
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	r.finish(ctx, status.CmdSuccess, o.cfg.SuccessGrace())
	return &Result{ID: r.id, Artifact: r.artifact, Analysis: res, Recorded: recorded}, nil
}

// openChannel launches the companion. Failure is logged and the session
// continues without it.
func (r *recording) openChannel(ctx context.Context) {
	if r.o.deps.Launch == nil {
		return
	}
	ch, err := r.o.deps.Launch(ctx, r.effective)
	if err != nil {
		r.logf("status channel unavailable, continuing without overlay: %v", err)
		return
	}
	r.ch = ch
}

func (r *recording) awaitFirstFrame(ctx context.Context, events <-chan capture.Event) error {
	timeout := r.o.cfg.FirstFrameTimeout()
	bound := time.NewTimer(timeout)
	defer bound.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return errors.NewCaptureEngine("capture stream closed before the first frame")
			}
			switch ev.Kind {
			case capture.EventStarted:
				r.artifact = ev.Path
			case capture.EventFirstFrame:
				return nil
			case capture.EventError:
				return errors.NewCaptureEngine(ev.Reason)
			}
		case <-bound.C:
			r.o.deps.Engine.ForceReset()
			return errors.NewCaptureNoFirstFrame(timeout.Milliseconds())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// race waits for the first of the timer, a UI stop and a capture failure.
func (r *recording) race(ctx context.Context, events <-chan capture.Event, limit time.Duration) error {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	var ui <-chan status.Event
	if r.ch != nil {
		ui = r.ch.Events()
	}

	for {
		select {
		case <-timer.C:
			r.logf("timer elapsed after %s", limit)
			return nil

		case ev, ok := <-ui:
			if !ok {
				ui = nil
				continue
			}
			switch ev.Type {
			case status.EventStopClicked, status.EventTimeout:
				r.logf("stop requested by overlay (%s)", ev.Type)
				return nil
			case status.EventProcessExited:
				ui = nil
				if r.effective == nil {
					r.logf("overlay exited, stopping manual recording")
					return nil
				}
			}

		case ev, ok := <-events:
			if !ok {
				return errors.NewCaptureEngine("capture stream closed while recording")
			}
			if ev.Kind == capture.EventError {
				return errors.NewCaptureEngine(ev.Reason)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// stop finalizes the capture and waits for Stopped.
func (r *recording) stop(ctx context.Context, events <-chan capture.Event) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	path, err := r.o.deps.Engine.Stop(stopCtx)
	if err != nil {
		// The engine may have died between the race and the stop request.
		// Its buffered Error carries the real reason.
		if reason, ok := bufferedError(events); ok {
			return errors.NewCaptureEngine(reason)
		}
		return err
	}
	r.artifact = path
	for ev := range events {
		switch ev.Kind {
		case capture.EventStopped:
			r.artifact = ev.Path
		case capture.EventError:
			return errors.NewCaptureEngine(ev.Reason)
		}
	}
	return nil
}

// bufferedError returns the reason of an Error already queued on events
// without blocking.
func bufferedError(events <-chan capture.Event) (string, bool) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return "", false
			}
			if ev.Kind == capture.EventError {
				return ev.Reason, true
			}
		default:
			return "", false
		}
	}
}

// analyze runs the pipeline. With a cancel stream it races a watcher; the
// pipeline stops before its next remote call once the watcher wins.
func (r *recording) analyze(ctx context.Context, cancels <-chan status.Event) (*analyzer.Result, error) {
	an := r.o.deps.Analyzer.WithLogPrefix(logPrefix(r.id))
	opts := r.o.options(r.req.Mode, r.req.Focus)
	if cancels == nil {
		return an.Analyze(ctx, r.artifact, opts)
	}

	g, gctx := errgroup.WithContext(ctx)

	var res *analyzer.Result
	g.Go(func() error {
		out, err := an.Analyze(gctx, r.artifact, opts)
		if err != nil {
			return err
		}
		res = out
		return errAnalysisDone
	})
	g.Go(func() error {
		for {
			select {
			case ev, ok := <-cancels:
				if !ok {
					<-gctx.Done()
					return nil
				}
				if ev.Type == status.EventCancelClicked {
					r.terminal(status.CmdCancelled)
					return errors.NewCancelledByUser()
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	err := g.Wait()
	if stderrors.Is(err, errAnalysisDone) {
		return res, nil
	}
	return nil, err
}

func (r *recording) send(t status.CommandType) {
	if r.ch != nil {
		r.ch.Send(status.Cmd(t))
	}
}

// terminal sends the session's final command. Only the first call sends.
func (r *recording) terminal(t status.CommandType) {
	r.terminalOnce.Do(func() { r.send(t) })
}

// fail reports err to the companion and returns it.
func (r *recording) fail(ctx context.Context, err error) error {
	r.logf("failed: %v", err)
	r.finish(ctx, status.CmdError, r.o.cfg.ErrorGrace())
	return err
}

// finish sends the final command, keeps it visible for grace and releases
// everything.
func (r *recording) finish(ctx context.Context, t status.CommandType, grace time.Duration) {
	r.terminal(t)
	if r.ch != nil && grace > 0 {
		timer := time.NewTimer(grace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	r.cleanup()
}

// cleanup releases the engine and the companion. It runs once.
func (r *recording) cleanup() {
	r.cleanupOnce.Do(func() {
		r.o.deps.Engine.ForceReset()
		if r.ch != nil {
			r.terminal(status.CmdError)
			r.ch.Terminate()
		}
	})
}
