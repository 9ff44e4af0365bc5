// Package rowbuffer batches graph rows from concurrent analyses into bulk
// ClickHouse inserts. One goroutine per buffer owns the pending batch and
// runs every flush, so inserts into a table never overlap. Batches are
// flushed on a row limit, on a timer and on shutdown; each Submit blocks
// until the batch holding its rows is written.
package rowbuffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-cfg/pkg/common"
)

var (
	ErrNotStarted = errors.New("buffer is not started")
	ErrStopped    = errors.New("buffer is stopped")
)

// FlushFunc writes one batch of rows.
type FlushFunc[R any] func(ctx context.Context, rows []R) error

type Config struct {
	MaxRows       int           // Flush threshold (default: 10000)
	FlushInterval time.Duration // Max wait before flush (default: 1s)
	Network       string        // For metrics
	Table         string        // For metrics
}

const (
	stateNew = iota
	stateRunning
	stateStopped
)

type submission[R any] struct {
	rows []R
	done chan error
}

// batch is the pending rows and the submissions waiting on them. Only the
// run goroutine touches it.
type batch[R any] struct {
	rows    []R
	waiters []chan error
}

type Buffer[R any] struct {
	config  Config
	flushFn FlushFunc[R]
	log     logrus.FieldLogger

	submits chan submission[R]
	stop    chan struct{}
	stopped chan struct{}

	mu          sync.Mutex
	state       int
	shutdownErr error

	pending atomic.Int64
	waiting atomic.Int64
}

func New[R any](cfg Config, flushFn FlushFunc[R], log logrus.FieldLogger) *Buffer[R] {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	return &Buffer[R]{
		config:  cfg,
		flushFn: flushFn,
		log:     log.WithFields(logrus.Fields{"component": "rowbuffer", "table": cfg.Table}),
		submits: make(chan submission[R]),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the batching goroutine. Cancelling ctx does not drop
// buffered rows: they are written by Stop.
func (b *Buffer[R]) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrStopped
	}

	b.state = stateRunning

	go b.run(context.WithoutCancel(ctx))

	b.log.WithFields(logrus.Fields{
		"max_rows":       b.config.MaxRows,
		"flush_interval": b.config.FlushInterval,
	}).Debug("Row buffer started")

	return nil
}

// Stop writes whatever is still buffered and ends the batching goroutine.
func (b *Buffer[R]) Stop(ctx context.Context) error {
	b.mu.Lock()

	if b.state != stateRunning {
		b.mu.Unlock()

		return nil
	}

	b.state = stateStopped
	b.mu.Unlock()

	close(b.stop)

	select {
	case <-b.stopped:
	case <-ctx.Done():
		return fmt.Errorf("waiting for final flush: %w", ctx.Err())
	}

	b.mu.Lock()
	err := b.shutdownErr
	b.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to flush remaining rows: %w", err)
	}

	b.log.Debug("Row buffer stopped")

	return nil
}

// Submit buffers rows and blocks until they are flushed or ctx is done.
// Rows accepted before ctx is done are still written.
func (b *Buffer[R]) Submit(ctx context.Context, rows []R) error {
	if len(rows) == 0 {
		return nil
	}

	b.mu.Lock()
	state := b.state
	b.mu.Unlock()

	switch state {
	case stateNew:
		return ErrNotStarted
	case stateStopped:
		return ErrStopped
	}

	s := submission[R]{rows: rows, done: make(chan error, 1)}

	select {
	case b.submits <- s:
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-s.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Buffer[R]) run(ctx context.Context) {
	defer close(b.stopped)

	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	var cur batch[R]

	for {
		select {
		case s := <-b.submits:
			b.add(&cur, s)

			if len(cur.rows) >= b.config.MaxRows {
				b.flush(ctx, &cur, "size")
			}
		case <-ticker.C:
			b.flush(ctx, &cur, "timer")
		case <-b.stop:
			b.drain(&cur)

			err := b.flush(ctx, &cur, "shutdown")

			b.mu.Lock()
			b.shutdownErr = err
			b.mu.Unlock()

			return
		}
	}
}

// drain picks up submissions that raced with Stop.
func (b *Buffer[R]) drain(cur *batch[R]) {
	for {
		select {
		case s := <-b.submits:
			b.add(cur, s)
		default:
			return
		}
	}
}

func (b *Buffer[R]) add(cur *batch[R], s submission[R]) {
	cur.rows = append(cur.rows, s.rows...)
	cur.waiters = append(cur.waiters, s.done)

	b.pending.Store(int64(len(cur.rows)))
	b.waiting.Store(int64(len(cur.waiters)))

	common.RowBufferPendingRows.WithLabelValues(b.config.Network, b.config.Table).Set(float64(len(cur.rows)))
}

// flush writes the batch, reports the result to its waiters and resets it.
func (b *Buffer[R]) flush(ctx context.Context, cur *batch[R], trigger string) error {
	if len(cur.rows) == 0 {
		return nil
	}

	start := time.Now()
	err := b.flushFn(ctx, cur.rows)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "failed"
	}

	common.RowBufferFlushTotal.WithLabelValues(b.config.Network, b.config.Table, trigger, status).Inc()
	common.RowBufferFlushDuration.WithLabelValues(b.config.Network, b.config.Table).Observe(duration.Seconds())
	common.RowBufferFlushSize.WithLabelValues(b.config.Network, b.config.Table).Observe(float64(len(cur.rows)))

	log := b.log.WithFields(logrus.Fields{
		"rows":     len(cur.rows),
		"waiters":  len(cur.waiters),
		"trigger":  trigger,
		"duration": duration,
	})

	if err != nil {
		log.WithError(err).Error("ClickHouse flush failed")
	} else {
		log.Debug("ClickHouse flush completed")
	}

	for _, done := range cur.waiters {
		done <- err
	}

	*cur = batch[R]{}

	b.pending.Store(0)
	b.waiting.Store(0)

	common.RowBufferPendingRows.WithLabelValues(b.config.Network, b.config.Table).Set(0)

	return err
}

// Len returns the current number of buffered rows.
func (b *Buffer[R]) Len() int {
	return int(b.pending.Load())
}

// WaiterCount returns the number of Submit calls waiting for a flush.
func (b *Buffer[R]) WaiterCount() int {
	return int(b.waiting.Load())
}
