package cost

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/lens/internal/config"
	"github.com/hpungsan/lens/internal/errors"
)

func testBudget() Budget {
	return Budget{MaxFrames: 10, MaxCalls: 3, MaxInputTokens: 1000, MaxOutputTokens: 200}
}

func dimensionOf(t *testing.T, err error) string {
	t.Helper()
	lErr, ok := errors.As(err)
	require.True(t, ok, "expected LensError, got %T", err)
	require.Equal(t, errors.ErrCostLimitExceeded, lErr.Code)
	return lErr.Details["dimension"].(string)
}

func TestRecordFrames(t *testing.T) {
	tr := NewTracker(testBudget())

	require.NoError(t, tr.RecordFrames(6))
	require.NoError(t, tr.RecordFrames(4))

	err := tr.RecordFrames(1)
	require.Error(t, err)
	require.Equal(t, DimensionFrames, dimensionOf(t, err))
	require.Equal(t, 10, tr.Used().Frames)
}

func TestRecordFrames_Negative(t *testing.T) {
	tr := NewTracker(testBudget())
	err := tr.RecordFrames(-1)
	require.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestRecordCall_EachDimension(t *testing.T) {
	tests := []struct {
		name      string
		prep      func(tr *Tracker)
		in, out   int
		dimension string
	}{
		{
			name: "calls",
			prep: func(tr *Tracker) {
				for i := 0; i < 3; i++ {
					_ = tr.RecordCall(1, 1)
				}
			},
			in: 1, out: 1,
			dimension: DimensionCalls,
		},
		{
			name:      "input tokens",
			prep:      func(tr *Tracker) { _ = tr.RecordCall(900, 10) },
			in:        101,
			out:       1,
			dimension: DimensionInputTokens,
		},
		{
			name:      "output tokens",
			prep:      func(tr *Tracker) { _ = tr.RecordCall(10, 150) },
			in:        1,
			out:       51,
			dimension: DimensionOutputTokens,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(testBudget())
			tt.prep(tr)
			before := tr.Used()

			err := tr.RecordCall(tt.in, tt.out)
			require.Error(t, err)
			require.Equal(t, tt.dimension, dimensionOf(t, err))
			require.Equal(t, before, tr.Used(), "rejected call must not change counters")
		})
	}
}

func TestRecordCall_OverByDetail(t *testing.T) {
	tr := NewTracker(testBudget())
	require.NoError(t, tr.RecordCall(990, 0))

	err := tr.RecordCall(25, 0)
	lErr, ok := errors.As(err)
	require.True(t, ok)
	require.Equal(t, 15, lErr.Details["over_by"])
	require.Equal(t, 990, lErr.Details["current"])
	require.Equal(t, 1000, lErr.Details["max"])
}

func TestCanMakeCall(t *testing.T) {
	tr := NewTracker(testBudget())
	require.True(t, tr.CanMakeCall())

	require.NoError(t, tr.RecordCall(100, 200))
	require.False(t, tr.CanMakeCall(), "output tokens exhausted")

	before := tr.Used()
	tr.CanMakeCall()
	require.Equal(t, before, tr.Used())
}

func TestCheckCall(t *testing.T) {
	tr := NewTracker(testBudget())
	require.NoError(t, tr.CheckCall())

	for i := 0; i < 3; i++ {
		require.NoError(t, tr.RecordCall(1, 1))
	}
	err := tr.CheckCall()
	require.Equal(t, DimensionCalls, dimensionOf(t, err))
	require.Equal(t, 0, tr.Finalize().Rejected, "a pre-check is not a rejected increment")
}

func TestRemainingAndFinalize(t *testing.T) {
	tr := NewTracker(testBudget())
	require.NoError(t, tr.RecordFrames(4))
	require.NoError(t, tr.RecordCall(300, 50))
	require.Error(t, tr.RecordFrames(100))

	rem := tr.Remaining()
	require.Equal(t, Usage{Frames: 6, Calls: 2, InputTokens: 700, OutputTokens: 150}, rem)

	rep := tr.Finalize()
	require.Equal(t, testBudget(), rep.Budget)
	require.Equal(t, Usage{Frames: 4, Calls: 1, InputTokens: 300, OutputTokens: 50}, rep.Used)
	require.Equal(t, 1, rep.Rejected)
}

// TestAtomicity_RandomSequences replays random increments and checks that a
// rejected increment never changes any counter and an accepted one changes
// exactly the expected counters.
func TestAtomicity_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 50; run++ {
		tr := NewTracker(testBudget())
		for step := 0; step < 40; step++ {
			before := tr.Used()
			if rng.Intn(2) == 0 {
				n := rng.Intn(5)
				if err := tr.RecordFrames(n); err != nil {
					require.Equal(t, before, tr.Used())
					require.Equal(t, DimensionFrames, dimensionOf(t, err))
				} else {
					require.Equal(t, before.Frames+n, tr.Used().Frames)
				}
				continue
			}
			in, out := rng.Intn(400), rng.Intn(80)
			if err := tr.RecordCall(in, out); err != nil {
				require.Equal(t, before, tr.Used())
				dimensionOf(t, err)
			} else {
				after := tr.Used()
				require.Equal(t, before.Calls+1, after.Calls)
				require.Equal(t, before.InputTokens+in, after.InputTokens)
				require.Equal(t, before.OutputTokens+out, after.OutputTokens)
			}
		}
		used := tr.Used()
		require.LessOrEqual(t, used.Frames, 10)
		require.LessOrEqual(t, used.Calls, 3)
		require.LessOrEqual(t, used.InputTokens, 1000)
		require.LessOrEqual(t, used.OutputTokens, 200)
	}
}

func TestConcurrentRecordFrames(t *testing.T) {
	tr := NewTracker(Budget{MaxFrames: 100, MaxCalls: 1, MaxInputTokens: 1, MaxOutputTokens: 1})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.RecordFrames(3)
		}()
	}
	wg.Wait()

	// 33 increments of 3 fit, the rest are rejected
	require.Equal(t, 99, tr.Used().Frames)
	require.Equal(t, 17, tr.Finalize().Rejected)
}

func TestBudgetFromConfig(t *testing.T) {
	b := BudgetFromConfig(config.Budget{MaxFrames: 1, MaxCalls: 2, MaxInputTokens: 3, MaxOutputTokens: 4})
	require.Equal(t, Budget{MaxFrames: 1, MaxCalls: 2, MaxInputTokens: 3, MaxOutputTokens: 4}, b)
}
