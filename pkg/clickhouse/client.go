package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/chpool"
	"github.com/ClickHouse/ch-go/compress"
	"github.com/ClickHouse/ch-go/proto"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-cfg/pkg/common"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

var ErrNotStarted = errors.New("clickhouse client is not started")

// Client implements ClientInterface over the ch-go native protocol.
type Client struct {
	pool        *chpool.Pool
	config      *Config
	compression ch.Compression
	network     string
	log         logrus.FieldLogger
	lock        sync.RWMutex

	metricsDone chan struct{}
	metricsWg   sync.WaitGroup
}

// isRetryableError checks if an error is transient and can be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ch.ErrClosed) {
		return false
	}

	if exc, ok := ch.AsException(err); ok {
		return exc.IsCode(
			proto.ErrTimeoutExceeded,
			proto.ErrNoFreeConnection,
			proto.ErrTooManySimultaneousQueries,
			proto.ErrSocketTimeout,
			proto.ErrNetworkError,
		)
	}

	var corruptedErr *compress.CorruptedDataErr
	if errors.As(err, &corruptedErr) {
		return false
	}

	// Checked before net.Error since syscall.Errno implements it.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())

	for _, pattern := range []string{"connection reset", "connection refused", "broken pipe", "server is overloaded", "too many connections"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// withQueryTimeout applies the configured query timeout unless ctx already
// has a deadline.
func (c *Client) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.QueryTimeout == 0 {
		return ctx, func() {}
	}

	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.config.QueryTimeout)
}

func retryPolicy(ctx context.Context, cfg *Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryBaseDelay
	b.MaxInterval = cfg.RetryMaxDelay
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(cfg.MaxRetries, 0))), ctx)
}

// retry runs fn until it succeeds, fails permanently or the retry budget
// runs out.
func retry(ctx context.Context, log logrus.FieldLogger, cfg *Config, operation string, fn func() error) error {
	attempt := 0

	return backoff.RetryNotify(func() error {
		attempt++

		err := fn()
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}

		return err
	}, retryPolicy(ctx, cfg), func(err error, delay time.Duration) {
		log.WithFields(logrus.Fields{
			"attempt":   attempt,
			"max":       cfg.MaxRetries,
			"delay":     delay,
			"operation": operation,
		}).WithError(err).Debug("Retrying after transient error")
	})
}

// doWithRetry runs fn with the query timeout applied per attempt.
func (c *Client) doWithRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return retry(ctx, c.log, c.config, operation, func() error {
		attemptCtx, cancel := c.withQueryTimeout(ctx)
		defer cancel()

		return fn(attemptCtx)
	})
}

// New creates a client. It does not connect until Start is called.
func New(cfg *Config) (*Client, error) {
	if err := cfg.SetDefaults(); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	compression := ch.CompressionLZ4

	switch cfg.Compression {
	case "zstd":
		compression = ch.CompressionZSTD
	case "none":
		compression = ch.CompressionDisabled
	}

	return &Client{
		config:      cfg,
		compression: compression,
		network:     cfg.Network,
		log:         logrus.WithField("component", "clickhouse"),
	}, nil
}

// Start dials the pool. It is a no-op once connected.
func (c *Client) Start() error {
	c.lock.RLock()
	connected := c.pool != nil
	c.lock.RUnlock()

	if connected {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.DialTimeout*time.Duration(c.config.MaxRetries+1))
	defer cancel()

	var pool *chpool.Pool

	err := retry(ctx, c.log, c.config, "dial", func() error {
		var dialErr error

		pool, dialErr = chpool.Dial(ctx, chpool.Options{
			ClientOptions: ch.Options{
				Address:     c.config.Addr,
				Database:    c.config.Database,
				User:        c.config.Username,
				Password:    c.config.Password,
				Compression: c.compression,
				DialTimeout: c.config.DialTimeout,
			},
			MaxConns:          c.config.MaxConns,
			MinConns:          c.config.MinConns,
			MaxConnLifetime:   c.config.ConnMaxLifetime,
			MaxConnIdleTime:   c.config.ConnMaxIdleTime,
			HealthCheckPeriod: c.config.HealthCheckPeriod,
		})

		return dialErr
	})
	if err != nil {
		return fmt.Errorf("failed to dial clickhouse: %w", err)
	}

	c.lock.Lock()
	c.pool = pool
	c.metricsDone = make(chan struct{})
	c.lock.Unlock()

	c.log.Info("Connected to ClickHouse native interface")

	c.metricsWg.Add(1)

	go c.collectPoolMetrics()

	return nil
}

// Stop closes the connection pool.
func (c *Client) Stop() error {
	c.lock.Lock()
	pool, done := c.pool, c.metricsDone
	c.pool, c.metricsDone = nil, nil
	c.lock.Unlock()

	if done != nil {
		close(done)
		c.metricsWg.Wait()
	}

	if pool != nil {
		pool.Close()
		c.log.Info("Closed ClickHouse connection pool")
	}

	return nil
}

func (c *Client) SetNetwork(network string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.network = network
}

func (c *Client) getPool() (*chpool.Pool, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.pool == nil {
		return nil, ErrNotStarted
	}

	return c.pool, nil
}

// Execute runs a query without expecting results.
func (c *Client) Execute(ctx context.Context, query string) error {
	start := time.Now()
	status := statusSuccess

	defer func() {
		c.recordMetrics("execute", status, time.Since(start), extractTableName(query))
	}()

	pool, err := c.getPool()
	if err != nil {
		status = statusFailed

		return err
	}

	if err := c.doWithRetry(ctx, "execute", func(attemptCtx context.Context) error {
		return pool.Do(attemptCtx, ch.Query{Body: query})
	}); err != nil {
		status = statusFailed

		return fmt.Errorf("execution failed: %w", err)
	}

	return nil
}

// Insert writes input into table with a single INSERT.
func (c *Client) Insert(ctx context.Context, table string, input proto.Input) error {
	start := time.Now()
	status := statusSuccess

	rows := 0
	if len(input) > 0 {
		rows = input[0].Data.Rows()
	}

	defer func() {
		c.recordMetrics("insert", status, time.Since(start), table)
		common.ClickHouseInsertsRows.WithLabelValues(c.networkLabel(), table, status).Add(float64(rows))
	}()

	pool, err := c.getPool()
	if err != nil {
		status = statusFailed

		return err
	}

	if err := c.doWithRetry(ctx, "insert", func(attemptCtx context.Context) error {
		return pool.Do(attemptCtx, ch.Query{
			Body:  input.Into(table),
			Input: input,
		})
	}); err != nil {
		status = statusFailed

		return fmt.Errorf("insert into %s failed: %w", table, err)
	}

	return nil
}

// QueryUInt64 returns the first value of column, or nil if the query
// returned no rows.
func (c *Client) QueryUInt64(ctx context.Context, query string, column string) (*uint64, error) {
	start := time.Now()
	status := statusSuccess

	defer func() {
		c.recordMetrics("query_uint64", status, time.Since(start), extractTableName(query))
	}()

	pool, err := c.getPool()
	if err != nil {
		status = statusFailed

		return nil, err
	}

	var result *uint64

	col := new(proto.ColUInt64)

	if err := c.doWithRetry(ctx, "query_uint64", func(attemptCtx context.Context) error {
		col.Reset()

		result = nil

		return pool.Do(attemptCtx, ch.Query{
			Body:   query,
			Result: proto.Results{{Name: column, Data: col}},
			OnResult: func(_ context.Context, _ proto.Block) error {
				if result == nil && col.Rows() > 0 {
					val := col.Row(0)
					result = &val
				}

				return nil
			},
		})
	}); err != nil {
		status = statusFailed

		return nil, fmt.Errorf("query failed: %w", err)
	}

	return result, nil
}

// extractTableName returns the table an INSERT, SELECT, CREATE or DROP
// statement targets, or "".
func extractTableName(query string) string {
	fields := strings.Fields(query)

	for i, f := range fields {
		switch strings.ToUpper(f) {
		case "INTO", "TABLE", "FROM":
		default:
			continue
		}

		j := i + 1
		for j < len(fields) && isQualifier(fields[j]) {
			j++
		}

		if j < len(fields) {
			return strings.Trim(fields[j], "`'\"(")
		}

		return ""
	}

	return ""
}

func isQualifier(word string) bool {
	switch strings.ToUpper(word) {
	case "IF", "NOT", "EXISTS":
		return true
	}

	return false
}

func (c *Client) networkLabel() string {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.network
}

func (c *Client) recordMetrics(operation, status string, duration time.Duration, table string) {
	network := c.networkLabel()

	common.ClickHouseOperationDuration.WithLabelValues(network, operation, table, status).Observe(duration.Seconds())
	common.ClickHouseOperationTotal.WithLabelValues(network, operation, table, status).Inc()
}

// collectPoolMetrics periodically exports pool statistics.
func (c *Client) collectPoolMetrics() {
	defer c.metricsWg.Done()

	c.lock.RLock()
	pool, done := c.pool, c.metricsDone
	c.lock.RUnlock()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var prevAcquireCount int64

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			network := c.networkLabel()
			stat := pool.Stat()

			common.ClickHousePoolAcquiredResources.WithLabelValues(network).Set(float64(stat.AcquiredResources()))
			common.ClickHousePoolIdleResources.WithLabelValues(network).Set(float64(stat.IdleResources()))
			common.ClickHousePoolTotalResources.WithLabelValues(network).Set(float64(stat.TotalResources()))

			current := stat.AcquireCount()
			if prevAcquireCount > 0 && current > prevAcquireCount {
				common.ClickHousePoolAcquireTotal.WithLabelValues(network).Add(float64(current - prevAcquireCount))
			}

			prevAcquireCount = current
		}
	}
}
