package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingPacer struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (p *recordingPacer) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.pauses = append(p.pauses, d)
	p.mu.Unlock()
	return ctx.Err()
}

func numbers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestProcessThirtySevenItems(t *testing.T) {
	pacer := &recordingPacer{}
	var observed []Summary
	p := New[int](WithPacer(pacer), WithObserver(func(_ context.Context, s Summary) {
		observed = append(observed, s)
	}))

	var dispatched atomic.Int64
	report, err := p.Process(context.Background(), "campaign-1", numbers(37), func(context.Context, int) error {
		dispatched.Add(1)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{10, 10, 10, 7}, report.Sizes())
	require.Equal(t, 37, report.Processed)
	require.Equal(t, 37, report.Succeeded())
	require.Equal(t, int64(37), dispatched.Load())
	require.False(t, report.Cancelled)
	require.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, pacer.pauses)

	require.Len(t, observed, 4)
	for i, s := range observed {
		require.Equal(t, i, s.Index)
		require.Equal(t, "campaign-1", s.JobID)
		require.Equal(t, StatusCompleted, s.Status)
		require.Equal(t, s.Total, s.Processed)
	}
}

func TestPartialFailureCompletesBatch(t *testing.T) {
	p := New[int](WithPacer(&recordingPacer{}), WithSize(5))
	report, err := p.Process(context.Background(), "job", numbers(12), func(_ context.Context, n int) error {
		if n%2 == 0 {
			return fmt.Errorf("item %d rejected", n)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 12, report.Processed)
	require.Equal(t, 6, report.Failed)
	for _, b := range report.Batches {
		require.Equal(t, StatusCompleted, b.Status)
	}
	errs := report.Errors()
	require.Len(t, errs, 6)
	require.Equal(t, 0, errs[0].Item)
	require.Equal(t, 10, errs[5].Item)
	require.Equal(t, 2, errs[5].Batch)
	require.EqualError(t, errs[5], "item 10 rejected")
}

func TestAllItemsFailedMarksBatchFailed(t *testing.T) {
	boom := errors.New("boom")
	p := New[int](WithPacer(&recordingPacer{}), WithSize(3))
	report, err := p.Process(context.Background(), "job", numbers(6), func(_ context.Context, n int) error {
		if n < 3 {
			return boom
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, report.Batches[0].Status)
	require.Equal(t, StatusCompleted, report.Batches[1].Status)
	require.ErrorIs(t, report.Batches[0].Errors[0], boom)
}

func TestPanicIsIsolated(t *testing.T) {
	p := New[int](WithPacer(&recordingPacer{}))
	report, err := p.Process(context.Background(), "job", numbers(4), func(_ context.Context, n int) error {
		if n == 1 {
			panic("bad item")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, report.Processed)
	require.Equal(t, 1, report.Failed)
	require.Contains(t, report.Errors()[0].Error(), "bad item")
}

func TestCancellationBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := New[int](WithPacer(&recordingPacer{}))

	var seenCancelled atomic.Int64
	report, err := p.Process(ctx, "job", numbers(25), func(itemCtx context.Context, n int) error {
		if n == 0 {
			cancel()
		}
		if itemCtx.Err() != nil {
			seenCancelled.Add(1)
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, report.Cancelled)
	require.Equal(t, 10, report.Processed)
	require.Zero(t, seenCancelled.Load())
	require.Equal(t, StatusCompleted, report.Batches[0].Status)
	require.Equal(t, StatusPending, report.Batches[1].Status)
	require.Equal(t, StatusPending, report.Batches[2].Status)
}

func TestConcurrencyIsBounded(t *testing.T) {
	p := New[int](WithPacer(&recordingPacer{}), WithConcurrency(3), WithRateLimit(10000, 10))
	var inFlight, peak atomic.Int64
	report, err := p.Process(context.Background(), "job", numbers(20), func(context.Context, int) error {
		n := inFlight.Add(1)
		for {
			cur := peak.Load()
			if n <= cur || peak.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 20, report.Processed)
	require.LessOrEqual(t, peak.Load(), int64(3))
}

func TestProcessEmpty(t *testing.T) {
	report, err := New[string]().Process(context.Background(), "job", nil, func(context.Context, string) error { return nil })
	require.NoError(t, err)
	require.Empty(t, report.Batches)
	require.Zero(t, report.Total)
}

func TestChunk(t *testing.T) {
	require.Nil(t, Chunk([]int{}, 10))
	require.Equal(t, [][]int{{0, 1, 2}}, Chunk(numbers(3), 0))
	chunks := Chunk(numbers(5), 2)
	require.Equal(t, [][]int{{0, 1}, {2, 3}, {4}}, chunks)
	chunks[0] = append(chunks[0], 99)
	require.Equal(t, []int{2, 3}, chunks[1])
}

func TestTimerPacer(t *testing.T) {
	var p TimerPacer
	require.NoError(t, p.Pause(context.Background(), 0))
	require.NoError(t, p.Pause(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Pause(ctx, time.Hour), context.Canceled)
}

// TestBatchCountProperty checks that N items in batches of B produce
// ceil(N/B) batches whose processed counts sum to N.
func TestBatchCountProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ceil(N/B) batches covering every item", prop.ForAll(
		func(n, size int) bool {
			p := New[int](WithPacer(&recordingPacer{}), WithSize(size))
			report, err := p.Process(context.Background(), "job", numbers(n), func(context.Context, int) error { return nil })
			if err != nil {
				return false
			}
			if len(report.Batches) != (n+size-1)/size {
				return false
			}
			sum := 0
			for _, b := range report.Batches {
				if b.Processed > b.Total {
					return false
				}
				sum += b.Processed
			}
			return sum == n && report.Processed == n
		},
		gen.IntRange(0, 250),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}
