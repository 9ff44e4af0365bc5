package rowbuffer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

// recorder collects flushed batches.
type recorder struct {
	mu      sync.Mutex
	batches [][]int
	err     error
}

func (r *recorder) flush(_ context.Context, rows []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches = append(r.batches, append([]int(nil), rows...))

	return r.err
}

func (r *recorder) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	sizes := make([]int, 0, len(r.batches))
	for _, b := range r.batches {
		sizes = append(sizes, len(b))
	}

	return sizes
}

func rowsOf(n int) []int {
	return make([]int, n)
}

func TestBuffer_FlushTriggers(t *testing.T) {
	tests := []struct {
		name    string
		maxRows int
		submit  []int
		advance time.Duration
		want    []int
	}{
		{name: "row limit", maxRows: 10, submit: []int{10}, want: []int{10}},
		{name: "row limit across submissions", maxRows: 10, submit: []int{4, 6}, want: []int{10}},
		{name: "timer", maxRows: 1000, submit: []int{5}, advance: time.Second, want: []int{5}},
		{name: "below limit waits", maxRows: 1000, submit: []int{5}, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				rec := &recorder{}
				buf := New(Config{MaxRows: tt.maxRows, FlushInterval: time.Second}, rec.flush, newTestLogger())

				require.NoError(t, buf.Start(t.Context()))

				for _, n := range tt.submit {
					go func() { _ = buf.Submit(context.Background(), rowsOf(n)) }()

					synctest.Wait()
				}

				time.Sleep(tt.advance)
				synctest.Wait()

				assert.Equal(t, tt.want, rec.sizes())

				require.NoError(t, buf.Stop(context.Background()))
			})
		})
	}
}

func TestBuffer_ConcurrentSubmissions(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var total atomic.Int64

		buf := New(Config{MaxRows: 100, FlushInterval: time.Second},
			func(_ context.Context, rows []int) error {
				total.Add(int64(len(rows)))

				return nil
			}, newTestLogger())

		require.NoError(t, buf.Start(t.Context()))

		var wg sync.WaitGroup

		for range 50 {
			wg.Go(func() {
				assert.NoError(t, buf.Submit(context.Background(), rowsOf(10)))
			})
		}

		synctest.Wait()
		time.Sleep(time.Second)
		wg.Wait()

		require.NoError(t, buf.Stop(context.Background()))
		assert.Equal(t, int64(500), total.Load())
	})
}

func TestBuffer_FlushesDoNotOverlap(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var (
			active  atomic.Int32
			overlap atomic.Bool
			flushes atomic.Int32
		)

		buf := New(Config{MaxRows: 1, FlushInterval: time.Hour},
			func(_ context.Context, _ []int) error {
				if active.Add(1) > 1 {
					overlap.Store(true)
				}

				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				flushes.Add(1)

				return nil
			}, newTestLogger())

		require.NoError(t, buf.Start(t.Context()))

		var wg sync.WaitGroup

		for range 5 {
			wg.Go(func() {
				assert.NoError(t, buf.Submit(context.Background(), rowsOf(1)))
			})
		}

		wg.Wait()
		require.NoError(t, buf.Stop(context.Background()))

		assert.False(t, overlap.Load())
		assert.Equal(t, int32(5), flushes.Load())
	})
}

func TestBuffer_ErrorReachesEveryWaiter(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		errInsert := errors.New("insert failed")
		rec := &recorder{err: errInsert}

		buf := New(Config{MaxRows: 20, FlushInterval: time.Hour}, rec.flush, newTestLogger())
		require.NoError(t, buf.Start(t.Context()))

		errs := make(chan error, 2)

		for range 2 {
			go func() { errs <- buf.Submit(context.Background(), rowsOf(10)) }()
		}

		synctest.Wait()

		require.ErrorIs(t, <-errs, errInsert)
		require.ErrorIs(t, <-errs, errInsert)

		require.NoError(t, buf.Stop(context.Background()))
	})
}

func TestBuffer_StopFlushesRemaining(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}

		buf := New(Config{MaxRows: 1000, FlushInterval: time.Hour}, rec.flush, newTestLogger())
		require.NoError(t, buf.Start(t.Context()))

		done := make(chan error, 1)

		go func() { done <- buf.Submit(context.Background(), rowsOf(7)) }()

		synctest.Wait()
		assert.Equal(t, 7, buf.Len())
		assert.Equal(t, 1, buf.WaiterCount())

		require.NoError(t, buf.Stop(context.Background()))
		require.NoError(t, <-done)

		assert.Equal(t, []int{7}, rec.sizes())
		assert.Zero(t, buf.Len())
		assert.Zero(t, buf.WaiterCount())
	})
}

func TestBuffer_StopReportsFinalFlushError(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		errInsert := errors.New("insert failed")
		rec := &recorder{err: errInsert}

		buf := New(Config{MaxRows: 1000, FlushInterval: time.Hour}, rec.flush, newTestLogger())
		require.NoError(t, buf.Start(t.Context()))

		go func() { _ = buf.Submit(context.Background(), rowsOf(3)) }()

		synctest.Wait()

		require.ErrorIs(t, buf.Stop(context.Background()), errInsert)
	})
}

func TestBuffer_StartContextCancellationKeepsRows(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}

		ctx, cancel := context.WithCancel(context.Background())

		buf := New(Config{MaxRows: 1000, FlushInterval: time.Second}, rec.flush, newTestLogger())
		require.NoError(t, buf.Start(ctx))

		cancel()

		done := make(chan error, 1)

		go func() { done <- buf.Submit(context.Background(), rowsOf(2)) }()

		time.Sleep(time.Second)
		synctest.Wait()

		require.NoError(t, <-done)
		assert.Equal(t, []int{2}, rec.sizes())

		require.NoError(t, buf.Stop(context.Background()))
	})
}

func TestBuffer_SubmitContextCancellation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}

		buf := New(Config{MaxRows: 1000, FlushInterval: time.Hour}, rec.flush, newTestLogger())
		require.NoError(t, buf.Start(t.Context()))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := buf.Submit(ctx, rowsOf(4))
		require.ErrorIs(t, err, context.DeadlineExceeded)

		// Accepted rows are still written.
		require.NoError(t, buf.Stop(context.Background()))
		assert.Equal(t, []int{4}, rec.sizes())
	})
}

func TestBuffer_Lifecycle(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		buf := New(Config{}, rec.flush, newTestLogger())

		assert.Equal(t, 10000, buf.config.MaxRows)
		assert.Equal(t, time.Second, buf.config.FlushInterval)

		require.ErrorIs(t, buf.Submit(context.Background(), rowsOf(1)), ErrNotStarted)
		require.NoError(t, buf.Submit(context.Background(), nil))
		require.NoError(t, buf.Stop(context.Background()))

		require.NoError(t, buf.Start(t.Context()))
		require.NoError(t, buf.Start(t.Context()))
		require.NoError(t, buf.Stop(context.Background()))
		require.NoError(t, buf.Stop(context.Background()))

		require.ErrorIs(t, buf.Submit(context.Background(), rowsOf(1)), ErrStopped)
		require.ErrorIs(t, buf.Start(t.Context()), ErrStopped)
		assert.Empty(t, rec.sizes())
	})
}
