package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hpungsan/lens/internal/errors"
)

// TargetKind selects what is recorded.
type TargetKind string

const (
	TargetFullscreen TargetKind = "fullscreen"
	TargetDisplay    TargetKind = "display"
	TargetWindow     TargetKind = "window"
	TargetRegion     TargetKind = "region"
)

// Region is a screen rectangle in pixels.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Target describes the capture source.
type Target struct {
	Kind    TargetKind `json:"kind"`
	Display int        `json:"display,omitempty"`
	Window  string     `json:"window,omitempty"`
	Region  *Region    `json:"region,omitempty"`
}

// Validate checks that the fields required by Kind are present.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetFullscreen, "":
		return nil
	case TargetDisplay:
		if t.Display < 0 {
			return errors.NewInvalidInput("display index must not be negative")
		}
	case TargetWindow:
		if strings.TrimSpace(t.Window) == "" {
			return errors.NewInvalidInput("window target requires a window title")
		}
	case TargetRegion:
		if t.Region == nil {
			return errors.NewInvalidInput("region target requires x, y, width and height")
		}
		r := t.Region
		if r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0 {
			return errors.NewInvalidInput("region must have a non-negative origin and a positive size")
		}
	default:
		return errors.NewInvalidInput(fmt.Sprintf("unknown target %q (use fullscreen, display, window or region)", t.Kind))
	}
	return nil
}

func (t Target) String() string {
	switch t.Kind {
	case TargetDisplay:
		return fmt.Sprintf("display %d", t.Display)
	case TargetWindow:
		return fmt.Sprintf("window %q", t.Window)
	case TargetRegion:
		if t.Region != nil {
			return fmt.Sprintf("region %d,%d %dx%d", t.Region.X, t.Region.Y, t.Region.Width, t.Region.Height)
		}
	}
	return "fullscreen"
}

// ParseRegion parses "x,y,w,h".
func ParseRegion(s string) (*Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.NewInvalidInput(fmt.Sprintf("region must be x,y,width,height, got %q", s))
	}
	vals := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.NewInvalidInput(fmt.Sprintf("region must be x,y,width,height, got %q", s))
		}
		vals[i] = n
	}
	r := &Region{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	if err := (Target{Kind: TargetRegion, Region: r}).Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseTarget builds a target from flat request fields. An empty kind is
// fullscreen. A region string implies the region kind, a window title the
// window kind.
func ParseTarget(kind string, display int, window, region string) (Target, error) {
	k := TargetKind(strings.ToLower(strings.TrimSpace(kind)))
	if k == "" {
		switch {
		case region != "":
			k = TargetRegion
		case window != "":
			k = TargetWindow
		default:
			k = TargetFullscreen
		}
	}

	t := Target{Kind: k}
	switch k {
	case TargetDisplay:
		t.Display = display
	case TargetWindow:
		t.Window = window
	case TargetRegion:
		if region == "" {
			return Target{}, errors.NewInvalidInput("region target requires x,y,width,height")
		}
		r, err := ParseRegion(region)
		if err != nil {
			return Target{}, err
		}
		t.Region = r
	}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}
