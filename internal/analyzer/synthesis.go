package analyzer

import (
	"math"
	"sort"
)

// Synthesize merges segment keyframes per element into whole-clip time and
// builds the timeline. No remote call is made. Elements without keyframes
// are omitted.
func Synthesize(duration float64, global GlobalContext, segments []SegmentMotion) AnimationSpec {
	type acc struct {
		easing    string
		keyframes []SpecKeyframe
	}
	byID := make(map[string]*acc, len(global.Elements))
	for _, el := range global.Elements {
		byID[el.ID] = &acc{}
	}

	for _, seg := range segments {
		for _, m := range seg.Motions {
			a, ok := byID[m.ElementID]
			if !ok {
				continue
			}
			if a.easing == "" {
				a.easing = m.Easing
			}
			for _, kf := range m.Keyframes {
				t := clamp(seg.Start+kf.T, seg.Start, seg.End)
				a.keyframes = append(a.keyframes, SpecKeyframe{
					Time:           round4(t),
					NormalizedTime: normalize(t, duration),
					X:              kf.X,
					Y:              kf.Y,
					Scale:          kf.Scale,
					Opacity:        kf.Opacity,
					Rotation:       kf.Rotation,
				})
			}
		}
	}

	spec := AnimationSpec{
		Duration:    duration,
		Elements:    []ElementAnimation{},
		Transitions: global.Transitions,
		Timeline:    []TimelineEvent{},
	}
	if spec.Transitions == nil {
		spec.Transitions = []Transition{}
	}

	for _, a := range global.Actions {
		spec.Timeline = append(spec.Timeline, TimelineEvent{
			Time:        round4(clamp(a.Time, 0, duration)),
			Kind:        EventAction,
			Target:      a.Target,
			Description: actionDescription(a),
		})
	}

	for _, el := range global.Elements {
		a := byID[el.ID]
		if len(a.keyframes) == 0 {
			continue
		}
		sort.SliceStable(a.keyframes, func(i, j int) bool {
			return a.keyframes[i].Time < a.keyframes[j].Time
		})
		spec.Elements = append(spec.Elements, ElementAnimation{
			ID:        el.ID,
			Name:      el.Name,
			Type:      el.Type,
			Easing:    a.easing,
			Keyframes: a.keyframes,
		})

		first, last := a.keyframes[0], a.keyframes[len(a.keyframes)-1]
		spec.Timeline = append(spec.Timeline,
			TimelineEvent{Time: first.Time, Kind: EventAnimationStart, Target: el.ID, Description: el.Name + " starts animating"},
			TimelineEvent{Time: last.Time, Kind: EventAnimationEnd, Target: el.ID, Description: el.Name + " comes to rest"},
		)
	}

	sort.SliceStable(spec.Timeline, func(i, j int) bool {
		return spec.Timeline[i].Time < spec.Timeline[j].Time
	})
	return spec
}

func actionDescription(a Action) string {
	if a.Description != "" {
		return a.Description
	}
	if a.Target != "" {
		return a.Type + " " + a.Target
	}
	return a.Type
}

func normalize(t, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return round4(clamp(t/duration, 0, 1))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
