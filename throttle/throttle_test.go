package throttle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func newTestThrottler(rec *sleepRecorder) *Throttler {
	return New(WithSleep(rec.sleep), WithRandSource(func() float64 { return 0.5 }))
}

func TestRun_OrderAndLength(t *testing.T) {
	rec := &sleepRecorder{}
	th := newTestThrottler(rec)

	results, err := Run(context.Background(), th, Batch[string, string]{
		Items: []string{"a", "b", "c"},
		Call: func(ctx context.Context, s string) (string, error) {
			return strings.ToUpper(s), nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, results)

	// One pause between each pair of items, none before the first.
	require.Len(t, rec.sleeps, 2)
	for _, d := range rec.sleeps {
		assert.Equal(t, time.Second, d)
	}
}

func TestRun_FallbackOnErrorAndPanic(t *testing.T) {
	th := newTestThrottler(&sleepRecorder{})

	results, err := Run(context.Background(), th, Batch[int, string]{
		Items: []int{1, 2, 3, 4},
		Call: func(ctx context.Context, n int) (string, error) {
			switch n {
			case 2:
				return "", errors.New("boom")
			case 3:
				panic("kaboom")
			}
			return "ok", nil
		},
		Fallback: func(n int, err error) string {
			return "fallback:" + err.Error()
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "ok", results[0])
	assert.Equal(t, "fallback:boom", results[1])
	assert.Contains(t, results[2], "panicked")
	assert.Equal(t, "ok", results[3])
}

func TestRun_NilFallbackUsesZero(t *testing.T) {
	th := newTestThrottler(&sleepRecorder{})

	results, err := Run(context.Background(), th, Batch[int, int]{
		Items: []int{1, 2},
		Call: func(ctx context.Context, n int) (int, error) {
			if n == 1 {
				return 0, errors.New("nope")
			}
			return n * 10, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 20}, results)
}

func TestRun_FatalAborts(t *testing.T) {
	th := newTestThrottler(&sleepRecorder{})
	fatal := errors.New("credentials rejected")
	var calls int

	results, err := Run(context.Background(), th, Batch[int, string]{
		Items: []int{1, 2, 3},
		Call: func(ctx context.Context, n int) (string, error) {
			calls++
			if n == 2 {
				return "", fatal
			}
			return "ok", nil
		},
		Fallback: func(int, error) string { return "fallback" },
		Fatal:    func(err error) bool { return errors.Is(err, fatal) },
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 2, calls)
	assert.Len(t, results, 3)
	assert.Equal(t, "ok", results[0])
	assert.Empty(t, results[2])
}

func TestRun_ProgressIsMonotonicAndClamped(t *testing.T) {
	th := newTestThrottler(&sleepRecorder{})
	var progress []int

	_, err := Run(context.Background(), th, Batch[int, int]{
		Items:    []int{1, 2, 3},
		Call:     func(ctx context.Context, n int) (int, error) { return n, nil },
		Range:    Range{Start: 10, End: 80},
		Progress: func(p int) { progress = append(progress, p) },
	})
	require.NoError(t, err)
	assert.Equal(t, []int{33, 56, 80}, progress)
}

func TestRange_At(t *testing.T) {
	tests := []struct {
		name  string
		r     Range
		done  int
		total int
		want  int
	}{
		{"start", Range{10, 80}, 0, 4, 10},
		{"half", Range{10, 80}, 2, 4, 45},
		{"end", Range{10, 80}, 4, 4, 80},
		{"overshoot clamps", Range{10, 80}, 9, 4, 80},
		{"empty batch", Range{10, 80}, 0, 0, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.At(tt.done, tt.total))
		})
	}
}

func TestRun_DelayWithinBounds(t *testing.T) {
	rec := &sleepRecorder{}
	values := []float64{0, 0.999}
	var i int
	th := New(WithSleep(rec.sleep), WithRandSource(func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}))

	_, err := Run(context.Background(), th, Batch[int, int]{
		Items: []int{1, 2, 3},
		Call:  func(ctx context.Context, n int) (int, error) { return n, nil },
	})
	require.NoError(t, err)
	require.Len(t, rec.sleeps, 2)
	for _, d := range rec.sleeps {
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}
}

func TestRun_SharedThrottlerSerializes(t *testing.T) {
	th := New(WithDelay(0, 0))
	var active, peak atomic.Int32

	call := func(ctx context.Context, n int) (int, error) {
		cur := active.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return n, nil
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Run(context.Background(), th, Batch[int, int]{Items: []int{1, 2, 3}, Call: call})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestRun_CanceledContextFallsBack(t *testing.T) {
	th := newTestThrottler(&sleepRecorder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := Run(ctx, th, Batch[int, string]{
		Items:    []int{1, 2},
		Call:     func(ctx context.Context, n int) (string, error) { return "ok", nil },
		Fallback: func(int, error) string { return "fallback" },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback", "fallback"}, results)
}
