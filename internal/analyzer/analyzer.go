// Package analyzer runs sampled frames through the understanding service.
//
// Calls are issued strictly in sampling order, one at a time. Every call is
// checked against the session's cost budget before it is made. The context
// passed to Analyze is checked before each call; a call already in flight is
// allowed to finish and its reply is discarded.
package analyzer

import (
	"context"
	"fmt"
	"log"

	"github.com/hpungsan/lens/internal/cost"
	"github.com/hpungsan/lens/internal/errors"
	"github.com/hpungsan/lens/internal/frames"
	"github.com/hpungsan/lens/internal/sampler"
	"github.com/hpungsan/lens/internal/vision"
)

// BatchSize is the number of frames per narrative call.
const BatchSize = 8

// Options configures one analysis.
type Options struct {
	Mode   sampler.Mode
	Budget cost.Budget
	// Focus is appended to every prompt.
	Focus string
}

// Analyzer drives the frame-extraction and understanding-service boundaries.
type Analyzer struct {
	client    vision.Client
	extractor frames.Extractor
	logPrefix string
}

// New creates an analyzer.
func New(client vision.Client, extractor frames.Extractor) *Analyzer {
	return &Analyzer{client: client, extractor: extractor, logPrefix: "[analyzer]"}
}

// WithLogPrefix returns a copy that logs with prefix.
func (a *Analyzer) WithLogPrefix(prefix string) *Analyzer {
	cp := *a
	cp.logPrefix = prefix
	return &cp
}

// Analyze probes path, samples it for opts.Mode and runs the mode's pipeline.
func (a *Analyzer) Analyze(ctx context.Context, path string, opts Options) (*Result, error) {
	md, err := a.extractor.Probe(ctx, path)
	if err != nil {
		return nil, errors.NewInvalidInput(fmt.Sprintf("cannot read video %s: %v", path, err))
	}
	plan, err := sampler.Build(md.Duration, opts.Mode)
	if err != nil {
		return nil, err
	}

	tracker := cost.NewTracker(opts.Budget)
	res := &Result{Mode: opts.Mode, Source: *md}
	run := &run{
		a:       a,
		ctx:     ctx,
		path:    path,
		plan:    plan,
		tracker: tracker,
		focus:   opts.Focus,
	}

	if opts.Mode.TwoPass() {
		res.Spec, err = run.twoPass()
	} else {
		res.Narrative, err = run.narrative()
	}
	if err != nil {
		return nil, err
	}
	res.Cost = tracker.Finalize()
	return res, nil
}

// run is the state of one Analyze call.
type run struct {
	a       *Analyzer
	ctx     context.Context
	path    string
	plan    *sampler.Plan
	tracker *cost.Tracker
	focus   string
	tokens  TokenTotals
}

func (r *run) logf(format string, args ...any) {
	log.Printf(r.a.logPrefix+" "+format, args...)
}

// call checks ctx and the budget, issues req and commits its usage.
func (r *run) call(req vision.Request) (string, error) {
	if err := r.ctx.Err(); err != nil {
		return "", err
	}
	if err := r.tracker.CheckCall(); err != nil {
		return "", err
	}

	// In-flight calls are not interrupted by cancellation.
	resp, err := r.a.client.Analyze(context.WithoutCancel(r.ctx), req)
	if err != nil {
		return "", errors.NewAnalysisService(err)
	}
	if err := r.ctx.Err(); err != nil {
		return "", err
	}
	if err := r.tracker.RecordCall(resp.PromptTokens, resp.CompletionTokens); err != nil {
		return "", err
	}
	r.tokens.Input += resp.PromptTokens
	r.tokens.Output += resp.CompletionTokens
	return resp.Text, nil
}

func (r *run) extract(timestamps []float64) ([]vision.Image, error) {
	frs, err := r.a.extractor.Extract(r.ctx, r.path, timestamps)
	if err != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.NewInternal(fmt.Errorf("extract frames: %w", err))
	}
	images := make([]vision.Image, len(frs))
	for i, f := range frs {
		images[i] = vision.Image{JPEG: f.JPEG, Label: frameLabel(f.Timestamp)}
	}
	return images, nil
}

// narrative runs sequential batches and a final text-only synthesis call.
// Any budget violation is fatal.
func (r *run) narrative() (*Narrative, error) {
	timestamps := r.plan.Global
	if err := r.tracker.RecordFrames(len(timestamps)); err != nil {
		return nil, err
	}
	images, err := r.extract(timestamps)
	if err != nil {
		return nil, err
	}

	batches := (len(images) + BatchSize - 1) / BatchSize
	texts := make([]string, 0, batches)
	for b := 0; b < batches; b++ {
		lo := b * BatchSize
		hi := min(lo+BatchSize, len(images))
		r.logf("narrative batch %d/%d (%d frames)", b+1, batches, hi-lo)
		text, err := r.call(vision.Request{
			System:    narrativeSystem,
			Prompt:    batchPrompt(b+1, batches, timestamps[lo], timestamps[hi-1], r.focus),
			Images:    images[lo:hi],
			Detail:    vision.DetailLow,
			MaxTokens: batchMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}

	r.logf("narrative synthesis over %d batches", len(texts))
	summary, err := r.call(vision.Request{
		System:    narrativeSystem,
		Prompt:    synthesisPrompt(r.plan.Duration, texts, r.focus),
		MaxTokens: synthesisMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	return &Narrative{Summary: summary, BatchTexts: texts, Tokens: r.tokens}, nil
}

// twoPass runs the global call, then one call per segment until the budget
// runs out, then the local synthesis. Budget exhaustion during the segment
// pass truncates the result instead of failing it.
func (r *run) twoPass() (*SpecResult, error) {
	if err := r.tracker.RecordFrames(len(r.plan.Global)); err != nil {
		return nil, err
	}
	images, err := r.extract(r.plan.Global)
	if err != nil {
		return nil, err
	}
	r.logf("global pass (%d frames)", len(images))
	text, err := r.call(vision.Request{
		System:    specSystem,
		Prompt:    globalPrompt(r.plan.Duration, r.focus),
		Images:    images,
		Detail:    vision.DetailLow,
		MaxTokens: globalMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	global, err := parseGlobal(text)
	if err != nil {
		return nil, errors.NewAnalysisService(err)
	}

	known := make(map[string]bool, len(global.Elements))
	for _, el := range global.Elements {
		known[el.ID] = true
	}

	out := &SpecResult{Global: global, Motion: []SegmentMotion{}}
	for i, seg := range r.plan.Segments {
		if len(seg.Timestamps) == 0 {
			continue
		}
		if len(global.Elements) == 0 {
			break
		}
		if !r.tracker.CanMakeCall() {
			out.markDropped(r.plan.Segments[i:])
			break
		}
		if err := r.tracker.RecordFrames(len(seg.Timestamps)); err != nil {
			out.markDropped(r.plan.Segments[i:])
			break
		}

		images, err := r.extract(seg.Timestamps)
		if err != nil {
			return nil, err
		}
		r.logf("segment %d [%.2fs, %.2fs) (%d frames)", seg.Index, seg.Start, seg.End, len(images))
		text, err := r.call(vision.Request{
			System:    specSystem,
			Prompt:    segmentPrompt(seg.Index, seg.Start, seg.End, global.Elements, r.focus),
			Images:    images,
			Detail:    vision.DetailHigh,
			MaxTokens: segmentMaxTokens,
		})
		if errors.Is(err, errors.ErrCostLimitExceeded) {
			out.markDropped(r.plan.Segments[i:])
			break
		}
		if err != nil {
			return nil, err
		}

		motions, unknown, err := parseSegment(text, known)
		if err != nil {
			r.logf("segment %d: %v", seg.Index, err)
			continue
		}
		if len(unknown) > 0 {
			r.logf("segment %d: dropped motion for unknown elements %v", seg.Index, unknown)
		}
		out.Motion = append(out.Motion, SegmentMotion{
			Segment: seg.Index,
			Start:   seg.Start,
			End:     seg.End,
			Motions: motions,
		})
	}
	if out.Truncated {
		r.logf("budget exhausted, dropped segments %v", out.DroppedSegments)
	}

	out.Spec = Synthesize(r.plan.Duration, global, out.Motion)
	out.Tokens = r.tokens
	return out, nil
}

func (s *SpecResult) markDropped(rest []sampler.Segment) {
	for _, seg := range rest {
		if len(seg.Timestamps) > 0 {
			s.DroppedSegments = append(s.DroppedSegments, seg.Index)
		}
	}
	s.Truncated = len(s.DroppedSegments) > 0
}
