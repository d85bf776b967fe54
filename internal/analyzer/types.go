package analyzer

import (
	"github.com/hpungsan/lens/internal/cost"
	"github.com/hpungsan/lens/internal/frames"
	"github.com/hpungsan/lens/internal/sampler"
)

// Result is a complete analysis. Partial results are never returned except a
// two-pass spec truncated by the cost budget, which is marked as such.
type Result struct {
	Mode      sampler.Mode    `json:"mode"`
	Source    frames.Metadata `json:"source"`
	Narrative *Narrative      `json:"narrative,omitempty"`
	Spec      *SpecResult     `json:"spec,omitempty"`
	Cost      cost.Report     `json:"cost"`
}

// TokenTotals sums the usage reported by the service.
type TokenTotals struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Narrative is the single-pass result.
type Narrative struct {
	Summary    string      `json:"summary"`
	BatchTexts []string    `json:"batch_texts"`
	Tokens     TokenTotals `json:"tokens"`
}

// SpecResult is the two-pass result.
type SpecResult struct {
	Global GlobalContext   `json:"global"`
	Motion []SegmentMotion `json:"motion"`
	Spec   AnimationSpec   `json:"spec"`
	Tokens TokenTotals     `json:"tokens"`

	// Truncated is set when the budget stopped the segment pass early.
	Truncated       bool  `json:"truncated"`
	DroppedSegments []int `json:"dropped_segments,omitempty"`
}

// GlobalContext is what the global pass recovers from the sparse sample.
type GlobalContext struct {
	Summary     string       `json:"summary"`
	Elements    []Element    `json:"elements"`
	Actions     []Action     `json:"actions"`
	Transitions []Transition `json:"transitions"`
}

type Element struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Action is a detected user action at a whole-clip time in seconds.
type Action struct {
	Time        float64 `json:"time"`
	Type        string  `json:"type"`
	Target      string  `json:"target"`
	Description string  `json:"description"`
}

type Transition struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// SegmentMotion is the per-segment reply, in segment-relative time.
type SegmentMotion struct {
	Segment int      `json:"segment"`
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
	Motions []Motion `json:"motions"`
}

type Motion struct {
	ElementID string     `json:"element_id"`
	Easing    string     `json:"easing,omitempty"`
	Keyframes []Keyframe `json:"keyframes"`
}

// Keyframe is a snapshot of an element's visual properties. Unreported
// properties are nil.
type Keyframe struct {
	T        float64  `json:"t"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
}

// AnimationSpec is the locally synthesized specification.
type AnimationSpec struct {
	Duration    float64            `json:"duration"`
	Elements    []ElementAnimation `json:"elements"`
	Transitions []Transition       `json:"transitions"`
	Timeline    []TimelineEvent    `json:"timeline"`
}

// ElementAnimation is one element's merged keyframes across segments.
type ElementAnimation struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Easing    string         `json:"easing,omitempty"`
	Keyframes []SpecKeyframe `json:"keyframes"`
}

// SpecKeyframe is a keyframe in whole-clip time. NormalizedTime is in [0, 1].
type SpecKeyframe struct {
	Time           float64  `json:"time"`
	NormalizedTime float64  `json:"normalized_time"`
	X              *float64 `json:"x,omitempty"`
	Y              *float64 `json:"y,omitempty"`
	Scale          *float64 `json:"scale,omitempty"`
	Opacity        *float64 `json:"opacity,omitempty"`
	Rotation       *float64 `json:"rotation,omitempty"`
}

// Timeline event kinds.
const (
	EventAction         = "action"
	EventAnimationStart = "animation_start"
	EventAnimationEnd   = "animation_end"
)

type TimelineEvent struct {
	Time        float64 `json:"time"`
	Kind        string  `json:"kind"`
	Target      string  `json:"target"`
	Description string  `json:"description"`
}
