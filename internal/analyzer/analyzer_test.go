package analyzer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/lens/internal/cost"
	"github.com/hpungsan/lens/internal/errors"
	"github.com/hpungsan/lens/internal/frames"
	"github.com/hpungsan/lens/internal/sampler"
	"github.com/hpungsan/lens/internal/vision"
)

type fakeExtractor struct {
	duration  float64
	probeErr  error
	extracted [][]float64
}

func (f *fakeExtractor) Probe(ctx context.Context, path string) (*frames.Metadata, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &frames.Metadata{Duration: f.duration, Width: 1280, Height: 720, FPS: 30, Codec: "h264"}, nil
}

func (f *fakeExtractor) Extract(ctx context.Context, path string, timestamps []float64) ([]frames.Frame, error) {
	f.extracted = append(f.extracted, timestamps)
	out := make([]frames.Frame, len(timestamps))
	for i, ts := range timestamps {
		out[i] = frames.Frame{Timestamp: ts, JPEG: []byte{0xff, byte(i)}}
	}
	return out, nil
}

func bigBudget() cost.Budget {
	return cost.Budget{MaxFrames: 1000, MaxCalls: 100, MaxInputTokens: 1_000_000, MaxOutputTokens: 1_000_000}
}

func text(s string) vision.MockReply {
	return vision.MockReply{Text: s, PromptTokens: 100, CompletionTokens: 10}
}

const globalAB = "```json\n" + `{"summary":"a card slides in",
 "elements":[{"id":"A","name":"card","type":"container"},{"id":"B","name":"logo","type":"image"},{"id":"A","name":"dup"}],
 "actions":[{"time":0.4,"type":"click","target":"A","description":"user clicks the card"}],
 "transitions":[{"type":"slide","description":"card slides up"}]}` + "\n```"

func TestNarrative(t *testing.T) {
	ext := &fakeExtractor{duration: 20}
	mock := vision.NewMock(text("part one"), text("part two"), text("part three"), text("the whole story"))
	a := New(mock, ext)

	res, err := a.Analyze(context.Background(), "/tmp/a.mp4", Options{Mode: sampler.ModeDescribe, Budget: bigBudget(), Focus: "the sidebar"})
	require.NoError(t, err)
	require.NotNil(t, res.Narrative)
	require.Nil(t, res.Spec)

	require.Equal(t, []string{"part one", "part two", "part three"}, res.Narrative.BatchTexts)
	require.Equal(t, "the whole story", res.Narrative.Summary)
	require.Equal(t, TokenTotals{Input: 400, Output: 40}, res.Narrative.Tokens)
	require.Equal(t, cost.Usage{Frames: 20, Calls: 4, InputTokens: 400, OutputTokens: 40}, res.Cost.Used)

	calls := mock.Calls()
	require.Len(t, calls, 4)
	require.Len(t, calls[0].Images, 8)
	require.Len(t, calls[1].Images, 8)
	require.Len(t, calls[2].Images, 4)
	require.Equal(t, "t=16.00s", calls[2].Images[0].Label)
	require.Empty(t, calls[3].Images, "synthesis is text only")
	require.Contains(t, calls[3].Prompt, "part two")
	for _, c := range calls {
		require.Contains(t, c.Prompt, "Focus on: the sidebar")
	}
}

func TestNarrative_BudgetIsFatal(t *testing.T) {
	t.Run("calls", func(t *testing.T) {
		mock := vision.NewMock()
		budget := bigBudget()
		budget.MaxCalls = 2
		_, err := New(mock, &fakeExtractor{duration: 20}).Analyze(context.Background(), "v", Options{Mode: sampler.ModeDescribe, Budget: budget})
		require.True(t, errors.Is(err, errors.ErrCostLimitExceeded), "got %v", err)
		require.Len(t, mock.Calls(), 2)
	})
	t.Run("frames", func(t *testing.T) {
		mock := vision.NewMock()
		budget := bigBudget()
		budget.MaxFrames = 10
		_, err := New(mock, &fakeExtractor{duration: 20}).Analyze(context.Background(), "v", Options{Mode: sampler.ModeDescribe, Budget: budget})
		require.True(t, errors.Is(err, errors.ErrCostLimitExceeded))
		require.Empty(t, mock.Calls())
	})
}

func TestTwoPass(t *testing.T) {
	ext := &fakeExtractor{duration: 5}
	mock := vision.NewMock(
		text(globalAB),
		text(`{"motions":[
			{"element_id":"A","easing":"ease-out","keyframes":[{"t":1.5,"y":0,"opacity":1},{"t":0,"y":40,"opacity":0}]},
			{"element_id":"ghost","keyframes":[{"t":0}]}]}`),
		text("```\n"+`{"motions":[{"element_id":"A","keyframes":[{"t":0.5,"y":0,"scale":1.05}]}]}`+"\n```"),
		text("I could not tell."),
	)
	res, err := New(mock, ext).Analyze(context.Background(), "v", Options{Mode: sampler.ModeAnimation, Budget: bigBudget()})
	require.NoError(t, err)
	require.NotNil(t, res.Spec)
	spec := res.Spec

	require.False(t, spec.Truncated)
	require.Len(t, spec.Global.Elements, 2, "duplicate ids are collapsed")
	require.Len(t, mock.Calls(), 4)
	require.Equal(t, vision.DetailLow, mock.Calls()[0].Detail)
	require.Equal(t, vision.DetailHigh, mock.Calls()[1].Detail)
	require.Contains(t, mock.Calls()[1].Prompt, `"id":"B"`, "segment prompts carry the known ids")

	// Global frames plus three segments of 8, 8 and 4.
	require.Len(t, ext.extracted, 4)
	require.Len(t, ext.extracted[3], 4)
	require.Equal(t, 26, res.Cost.Used.Frames)

	require.Len(t, spec.Spec.Elements, 1)
	el := spec.Spec.Elements[0]
	require.Equal(t, "A", el.ID)
	require.Equal(t, "card", el.Name)
	require.Equal(t, "ease-out", el.Easing)
	var times, norm []float64
	for _, kf := range el.Keyframes {
		times = append(times, kf.Time)
		norm = append(norm, kf.NormalizedTime)
	}
	require.Equal(t, []float64{0, 1.5, 2.5}, times)
	require.Equal(t, []float64{0, 0.3, 0.5}, norm)

	var kinds []string
	for _, ev := range spec.Spec.Timeline {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []string{EventAnimationStart, EventAction, EventAnimationEnd}, kinds)
}

func TestTwoPass_TruncatesOnBudget(t *testing.T) {
	seg := text(`{"motions":[{"element_id":"A","keyframes":[{"t":0.25,"x":3}]}]}`)

	tests := []struct {
		name    string
		budget  func(b *cost.Budget)
		calls   int
		dropped []int
	}{
		{
			name:    "calls",
			budget:  func(b *cost.Budget) { b.MaxCalls = 2 },
			calls:   2,
			dropped: []int{1, 2},
		},
		{
			name:    "frames",
			budget:  func(b *cost.Budget) { b.MaxFrames = 6 + 8 + 7 },
			calls:   2,
			dropped: []int{1, 2},
		},
		{
			name:    "output tokens after the call",
			budget:  func(b *cost.Budget) { b.MaxOutputTokens = 25 },
			calls:   3,
			dropped: []int{1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget := bigBudget()
			tt.budget(&budget)
			mock := vision.NewMock(text(globalAB), seg, seg, seg)

			res, err := New(mock, &fakeExtractor{duration: 5}).Analyze(context.Background(), "v", Options{Mode: sampler.ModeAnimation, Budget: budget})
			require.NoError(t, err, "budget exhaustion truncates instead of failing")
			require.True(t, res.Spec.Truncated)
			require.Equal(t, tt.dropped, res.Spec.DroppedSegments)
			require.Len(t, mock.Calls(), tt.calls)
			require.Len(t, res.Spec.Motion, 1)
			require.Len(t, res.Spec.Spec.Elements, 1)
		})
	}
}

func TestTwoPass_GlobalFailures(t *testing.T) {
	t.Run("unparseable", func(t *testing.T) {
		mock := vision.NewMock(text("no json here"))
		_, err := New(mock, &fakeExtractor{duration: 5}).Analyze(context.Background(), "v", Options{Mode: sampler.ModeAnimation, Budget: bigBudget()})
		require.True(t, errors.Is(err, errors.ErrAnalysisService))
	})
	t.Run("service error", func(t *testing.T) {
		mock := vision.NewMock(vision.MockReply{Err: fmt.Errorf("503 overloaded")})
		_, err := New(mock, &fakeExtractor{duration: 5}).Analyze(context.Background(), "v", Options{Mode: sampler.ModeAnimation, Budget: bigBudget()})
		require.True(t, errors.Is(err, errors.ErrAnalysisService))
		require.Contains(t, err.Error(), "503 overloaded")
	})
	t.Run("no budget for the global call", func(t *testing.T) {
		budget := bigBudget()
		budget.MaxCalls = 0
		_, err := New(vision.NewMock(), &fakeExtractor{duration: 5}).Analyze(context.Background(), "v", Options{Mode: sampler.ModeAnimation, Budget: budget})
		require.True(t, errors.Is(err, errors.ErrCostLimitExceeded))
	})
}

func TestAnalyze_ProbeFailure(t *testing.T) {
	_, err := New(vision.NewMock(), &fakeExtractor{probeErr: fmt.Errorf("moov atom not found")}).
		Analyze(context.Background(), "v", Options{Mode: sampler.ModeDescribe, Budget: bigBudget()})
	require.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = New(vision.NewMock(), &fakeExtractor{duration: 0}).
		Analyze(context.Background(), "v", Options{Mode: sampler.ModeDescribe, Budget: bigBudget()})
	require.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestAnalyze_CancelLetsInFlightCallFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := vision.NewMock(text(globalAB))
	mock.OnCall = func(i int, _ vision.Request) {
		if i == 0 {
			cancel()
		}
	}

	_, err := New(mock, &fakeExtractor{duration: 5}).Analyze(ctx, "v", Options{Mode: sampler.ModeAnimation, Budget: bigBudget()})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, mock.Calls(), 1, "no call may start after cancellation")
}

func TestStripFence(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```\n", `{"a":1}`},
		{"  ```json{\"a\":1}```  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFence(tt.in); got != tt.want {
			t.Errorf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSegment_DropsUnknown(t *testing.T) {
	motions, unknown, err := parseSegment(`{"motions":[{"element_id":"A","keyframes":[{"t":0}]},{"element_id":"Z","keyframes":[{"t":0}]},{"element_id":"A","keyframes":[]}]}`,
		map[string]bool{"A": true})
	require.NoError(t, err)
	require.Len(t, motions, 1)
	require.Equal(t, []string{"Z"}, unknown)

	_, _, err = parseSegment("nope", nil)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "segment"))
}
