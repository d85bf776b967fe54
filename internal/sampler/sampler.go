// Package sampler turns a clip duration and an analysis mode into the list of
// timestamps to extract.
//
// Sampling is a pure function. When a mode's frame cap would be exceeded the
// plan is truncated rather than re-spaced: later timestamps are dropped so that
// the earliest motion keeps its full density. Segments past the cap keep their
// time range with an empty timestamp list, so the segments always tile the
// whole clip.
package sampler

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hpungsan/lens/internal/errors"
)

// Mode selects an analysis pipeline.
type Mode string

const (
	// ModeDescribe is the single-pass narrative mode.
	ModeDescribe Mode = "describe"
	// ModeAnimation is the two-pass structured animation spec mode.
	ModeAnimation Mode = "animation"
)

// Profile holds the sampling constants of a mode.
type Profile struct {
	// HardMax caps recording length in this mode.
	HardMax time.Duration

	// Single pass
	FPS      float64
	FrameCap int

	// Two pass
	TwoPass       bool
	GlobalFrames  int
	SegmentLength float64 // seconds
	MotionFPS     float64
	MotionCap     int
}

var profiles = map[Mode]Profile{
	ModeDescribe: {
		HardMax:  60 * time.Second,
		FPS:      1,
		FrameCap: 40,
	},
	ModeAnimation: {
		HardMax:       30 * time.Second,
		TwoPass:       true,
		GlobalFrames:  6,
		SegmentLength: 2,
		MotionFPS:     4,
		MotionCap:     48,
	},
}

// ParseMode validates a mode name. Empty selects ModeDescribe.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDescribe:
		return ModeDescribe, nil
	case ModeAnimation:
		return ModeAnimation, nil
	}
	return "", errors.NewInvalidInput(fmt.Sprintf("mode must be one of: %s, %s", ModeDescribe, ModeAnimation))
}

// ProfileFor returns the constants of mode.
func ProfileFor(mode Mode) (Profile, error) {
	p, ok := profiles[mode]
	if !ok {
		return Profile{}, errors.NewInvalidInput(fmt.Sprintf("unknown mode %q", mode))
	}
	return p, nil
}

// HardMax returns the maximum recording length for mode.
func (m Mode) HardMax() time.Duration {
	return profiles[m].HardMax
}

// TwoPass reports whether mode uses the global + per-segment pipeline.
func (m Mode) TwoPass() bool {
	return profiles[m].TwoPass
}

// Segment is a contiguous time window with its own timestamps.
// Times are seconds from clip start. Segment ranges tile [0, duration] and
// timestamps satisfy Start <= t < End in every segment, the final one
// included: a seek to exactly the clip duration yields no frame.
type Segment struct {
	Index      int       `json:"index"`
	Start      float64   `json:"start"`
	End        float64   `json:"end"`
	Timestamps []float64 `json:"timestamps"`
}

// Plan is an immutable sampling plan.
type Plan struct {
	Mode     Mode      `json:"mode"`
	Duration float64   `json:"duration"`
	Global   []float64 `json:"global"`
	Segments []Segment `json:"segments"`
}

// FrameCount returns the number of timestamps across segments.
func (p *Plan) FrameCount() int {
	n := 0
	for _, s := range p.Segments {
		n += len(s.Timestamps)
	}
	return n
}

// Build computes the sampling plan for a clip of duration seconds.
func Build(duration float64, mode Mode) (*Plan, error) {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return nil, errors.NewInvalidInput(fmt.Sprintf("duration must be a positive number of seconds, got %v", duration))
	}
	prof, err := ProfileFor(mode)
	if err != nil {
		return nil, err
	}

	if !prof.TwoPass {
		ts := evenRate(0, duration, prof.FPS, prof.FrameCap)
		return &Plan{
			Mode:     mode,
			Duration: duration,
			Global:   ts,
			Segments: []Segment{{Index: 0, Start: 0, End: duration, Timestamps: ts}},
		}, nil
	}

	plan := &Plan{
		Mode:     mode,
		Duration: duration,
		Global:   midpoints(duration, prof.GlobalFrames),
	}

	count := int(math.Ceil(duration/prof.SegmentLength - 1e-9))
	if count < 1 {
		count = 1
	}
	budget := prof.MotionCap
	for i := 0; i < count; i++ {
		start := float64(i) * prof.SegmentLength
		end := float64(i+1) * prof.SegmentLength
		if i == count-1 {
			end = duration
		}
		ts := evenRate(start, end, prof.MotionFPS, budget)
		budget -= len(ts)
		plan.Segments = append(plan.Segments, Segment{
			Index:      i,
			Start:      start,
			End:        end,
			Timestamps: ts,
		})
	}

	return plan, nil
}

// evenRate returns start + k/fps for k = 0.. while below end, at most limit values.
func evenRate(start, end, fps float64, limit int) []float64 {
	ts := make([]float64, 0)
	for k := 0; len(ts) < limit; k++ {
		t := start + float64(k)/fps
		if t >= end {
			break
		}
		ts = append(ts, round3(t))
	}
	return ts
}

// midpoints spreads n timestamps evenly, one at the middle of each of n slices.
func midpoints(duration float64, n int) []float64 {
	ts := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		ts = append(ts, math.Min(round3((float64(i)+0.5)*duration/float64(n)), duration))
	}
	return ts
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
