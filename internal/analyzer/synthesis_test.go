package analyzer

import (
	"testing"
)

func f(v float64) *float64 { return &v }

func TestSynthesize_OmitsStaticElements(t *testing.T) {
	global := GlobalContext{
		Elements: []Element{{ID: "A", Name: "toast"}, {ID: "B", Name: "header"}},
	}
	segments := []SegmentMotion{
		{Segment: 0, Start: 0, End: 2, Motions: []Motion{{ElementID: "A", Keyframes: []Keyframe{{T: 1, Opacity: f(0.5)}}}}},
		{Segment: 1, Start: 2, End: 4, Motions: []Motion{
			{ElementID: "A", Keyframes: []Keyframe{{T: 0.5, Opacity: f(1)}}},
			{ElementID: "C", Keyframes: []Keyframe{{T: 0}}},
		}},
	}

	spec := Synthesize(4, global, segments)
	if len(spec.Elements) != 1 || spec.Elements[0].ID != "A" {
		t.Fatalf("Elements = %+v, want only A", spec.Elements)
	}
	kfs := spec.Elements[0].Keyframes
	if len(kfs) != 2 {
		t.Fatalf("len(Keyframes) = %d, want 2", len(kfs))
	}
	if kfs[0].Time != 1 || kfs[1].Time != 2.5 {
		t.Fatalf("times = %v, %v, want 1, 2.5", kfs[0].Time, kfs[1].Time)
	}
	if kfs[0].NormalizedTime != 0.25 || kfs[1].NormalizedTime != 0.625 {
		t.Fatalf("normalized = %v, %v", kfs[0].NormalizedTime, kfs[1].NormalizedTime)
	}
	if *kfs[1].Opacity != 1 {
		t.Fatalf("Opacity = %v, want 1", *kfs[1].Opacity)
	}
	for _, ev := range spec.Timeline {
		if ev.Target == "B" || ev.Target == "C" {
			t.Fatalf("timeline mentions %s: %+v", ev.Target, ev)
		}
	}
}

func TestSynthesize_ClampsAndSorts(t *testing.T) {
	global := GlobalContext{
		Elements: []Element{{ID: "A", Name: "menu"}},
		Actions: []Action{
			{Time: 9, Type: "click", Target: "A"},
			{Time: -1, Type: "hover"},
		},
	}
	segments := []SegmentMotion{
		// A reply in absolute time overshoots the segment and is clamped to its end.
		{Segment: 1, Start: 2, End: 3, Motions: []Motion{{ElementID: "A", Keyframes: []Keyframe{{T: 2.5}, {T: 0.2}}}}},
	}

	spec := Synthesize(3, global, segments)
	kfs := spec.Elements[0].Keyframes
	if kfs[0].Time != 2.2 || kfs[1].Time != 3 || kfs[1].NormalizedTime != 1 {
		t.Fatalf("keyframes = %+v", kfs)
	}

	want := []struct {
		time float64
		kind string
	}{
		{0, EventAction},
		{2.2, EventAnimationStart},
		{3, EventAction},
		{3, EventAnimationEnd},
	}
	if len(spec.Timeline) != len(want) {
		t.Fatalf("Timeline = %+v", spec.Timeline)
	}
	for i, w := range want {
		if spec.Timeline[i].Time != w.time || spec.Timeline[i].Kind != w.kind {
			t.Errorf("Timeline[%d] = %+v, want %v %s", i, spec.Timeline[i], w.time, w.kind)
		}
	}
	if spec.Timeline[0].Description != "hover" || spec.Timeline[2].Description != "click A" {
		t.Errorf("action descriptions = %q, %q", spec.Timeline[0].Description, spec.Timeline[2].Description)
	}
}

func TestSynthesize_Empty(t *testing.T) {
	spec := Synthesize(2, GlobalContext{}, nil)
	if spec.Elements == nil || spec.Timeline == nil || spec.Transitions == nil {
		t.Fatalf("Synthesize() should return empty slices, got %+v", spec)
	}
}
