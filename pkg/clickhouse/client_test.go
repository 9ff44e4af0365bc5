package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/compress"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name: "valid config with addr",
			config: Config{
				Addr: "localhost:9000",
			},
			expectError: false,
		},
		{
			name:        "missing addr",
			config:      Config{},
			expectError: true,
		},
		{
			name: "valid config with all fields",
			config: Config{
				Addr:        "localhost:9000",
				Database:    "test_db",
				Username:    "default",
				Password:    "secret",
				MaxConns:    20,
				MinConns:    5,
				Compression: "zstd",
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	config := Config{
		Addr: "localhost:9000",
	}

	require.NoError(t, config.SetDefaults())

	assert.Equal(t, "default", config.Database)
	assert.Equal(t, int32(10), config.MaxConns)
	assert.Equal(t, int32(2), config.MinConns)
	assert.Equal(t, time.Hour, config.ConnMaxLifetime)
	assert.Equal(t, 30*time.Minute, config.ConnMaxIdleTime)
	assert.Equal(t, time.Minute, config.HealthCheckPeriod)
	assert.Equal(t, 10*time.Second, config.DialTimeout)
	assert.Equal(t, "lz4", config.Compression)
	assert.Equal(t, 60*time.Second, config.QueryTimeout)
	assert.Equal(t, 10*time.Second, config.RetryMaxDelay)
	assert.Equal(t, 3, config.MaxRetries)
}

func TestConfig_SetDefaults_PreservesValues(t *testing.T) {
	config := Config{
		Addr:         "localhost:9000",
		Database:     "custom_db",
		MaxConns:     50,
		DialTimeout:  30 * time.Second,
		Compression:  "zstd",
		QueryTimeout: 120 * time.Second,
	}

	require.NoError(t, config.SetDefaults())

	assert.Equal(t, "custom_db", config.Database)
	assert.Equal(t, int32(50), config.MaxConns)
	assert.Equal(t, 30*time.Second, config.DialTimeout)
	assert.Equal(t, "zstd", config.Compression)
	assert.Equal(t, 120*time.Second, config.QueryTimeout)
}

func TestNew(t *testing.T) {
	_, err := New(&Config{})
	require.ErrorIs(t, err, ErrMissingAddr)

	_, err = New(&Config{Addr: "localhost:9000", Compression: "gzip"})
	require.Error(t, err)

	client, err := New(&Config{Addr: "localhost:9000"})
	require.NoError(t, err)

	// Not dialled yet.
	err = client.Execute(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, ErrNotStarted)

	_, err = client.QueryUInt64(context.Background(), "SELECT 1 AS v", "v")
	require.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, client.Stop())
}

func TestRetry(t *testing.T) {
	cfg := &Config{MaxRetries: 2, RetryBaseDelay: time.Millisecond, RetryMaxDelay: time.Millisecond}
	log := logrus.New()

	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), log, cfg, "test", func() error {
			calls++
			if calls < 3 {
				return io.EOF
			}

			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("budget is bounded", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), log, cfg, "test", func() error {
			calls++

			return io.EOF
		})

		require.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent errors stop immediately", func(t *testing.T) {
		calls := 0
		unknown := &ch.Exception{Code: proto.ErrUnknownTable, Message: "unknown table"}

		err := retry(context.Background(), log, cfg, "test", func() error {
			calls++

			return unknown
		})

		require.ErrorIs(t, err, unknown)
		assert.Equal(t, 1, calls)
	})
}

func TestExtractTableName(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"INSERT INTO cfg_block (a, b) VALUES", "cfg_block"},
		{`INSERT INTO "cfg_edge" VALUES`, "cfg_edge"},
		{"SELECT count() AS count FROM cfg_block FINAL WHERE tx_hash = 'x'", "cfg_block"},
		{"CREATE TABLE IF NOT EXISTS cfg_edge (", "cfg_edge"},
		{"DROP TABLE IF EXISTS cfg_block", "cfg_block"},
		{"SELECT 1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, extractTableName(tt.query))
		})
	}
}

func TestClient_withQueryTimeout(t *testing.T) {
	tests := []struct {
		name             string
		queryTimeout     time.Duration
		ctxHasDeadline   bool
		expectNewContext bool
	}{
		{
			name:             "applies timeout when no deadline exists",
			queryTimeout:     5 * time.Second,
			ctxHasDeadline:   false,
			expectNewContext: true,
		},
		{
			name:             "preserves existing deadline",
			queryTimeout:     5 * time.Second,
			ctxHasDeadline:   true,
			expectNewContext: false,
		},
		{
			name:             "no-op when timeout is zero",
			queryTimeout:     0,
			ctxHasDeadline:   false,
			expectNewContext: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{
				config: &Config{
					QueryTimeout: tt.queryTimeout,
				},
			}

			var ctx context.Context

			var originalCancel context.CancelFunc

			if tt.ctxHasDeadline {
				ctx, originalCancel = context.WithTimeout(context.Background(), 10*time.Second)
				defer originalCancel()
			} else {
				ctx = context.Background()
			}

			newCtx, cancel := client.withQueryTimeout(ctx)
			defer cancel()

			_, hasDeadline := newCtx.Deadline()

			if tt.expectNewContext {
				require.True(t, hasDeadline, "expected context to have deadline")
			} else if tt.ctxHasDeadline {
				require.True(t, hasDeadline, "expected original deadline to be preserved")
			} else {
				require.False(t, hasDeadline, "expected no deadline")
			}
		})
	}
}

// mockNetError implements net.Error for testing.
type mockNetError struct {
	timeout   bool
	temporary bool
}

func (e *mockNetError) Error() string   { return "mock network error" }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return e.temporary }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		// Nil error
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		// Context errors - non-retryable
		{
			name:     "context canceled",
			err:      context.Canceled,
			expected: false,
		},
		{
			name:     "context deadline exceeded",
			err:      context.DeadlineExceeded,
			expected: false,
		},
		// ch-go sentinel errors - non-retryable
		{
			name:     "ch.ErrClosed",
			err:      ch.ErrClosed,
			expected: false,
		},
		{
			name:     "wrapped ch.ErrClosed",
			err:      errors.Join(errors.New("operation failed"), ch.ErrClosed),
			expected: false,
		},
		// ch-go server exceptions - retryable codes (using ch.Exception which implements error)
		{
			name:     "proto.ErrTimeoutExceeded",
			err:      &ch.Exception{Code: proto.ErrTimeoutExceeded, Message: "timeout"},
			expected: true,
		},
		{
			name:     "proto.ErrNoFreeConnection",
			err:      &ch.Exception{Code: proto.ErrNoFreeConnection, Message: "no free connection"},
			expected: true,
		},
		{
			name:     "proto.ErrTooManySimultaneousQueries",
			err:      &ch.Exception{Code: proto.ErrTooManySimultaneousQueries, Message: "rate limited"},
			expected: true,
		},
		{
			name:     "proto.ErrSocketTimeout",
			err:      &ch.Exception{Code: proto.ErrSocketTimeout, Message: "socket timeout"},
			expected: true,
		},
		{
			name:     "proto.ErrNetworkError",
			err:      &ch.Exception{Code: proto.ErrNetworkError, Message: "network error"},
			expected: true,
		},
		// ch-go server exceptions - non-retryable codes
		{
			name:     "proto.ErrBadArguments",
			err:      &ch.Exception{Code: proto.ErrBadArguments, Message: "bad arguments"},
			expected: false,
		},
		{
			name:     "proto.ErrUnknownTable",
			err:      &ch.Exception{Code: proto.ErrUnknownTable, Message: "unknown table"},
			expected: false,
		},
		// Data corruption - non-retryable
		{
			name:     "compress.CorruptedDataErr",
			err:      &compress.CorruptedDataErr{},
			expected: false,
		},
		// Network errors
		{
			name:     "network timeout error",
			err:      &mockNetError{timeout: true},
			expected: true,
		},
		{
			name:     "network non-timeout error",
			err:      &mockNetError{timeout: false},
			expected: false,
		},
		// Syscall errors - retryable
		{
			name:     "syscall.ECONNRESET",
			err:      syscall.ECONNRESET,
			expected: true,
		},
		{
			name:     "syscall.ECONNREFUSED",
			err:      syscall.ECONNREFUSED,
			expected: true,
		},
		{
			name:     "syscall.EPIPE",
			err:      syscall.EPIPE,
			expected: true,
		},
		{
			name:     "io.EOF",
			err:      io.EOF,
			expected: true,
		},
		{
			name:     "io.ErrUnexpectedEOF",
			err:      io.ErrUnexpectedEOF,
			expected: true,
		},
		// String pattern fallback - retryable
		{
			name:     "connection reset string",
			err:      errors.New("connection reset by peer"),
			expected: true,
		},
		{
			name:     "wrapped io.EOF",
			err:      fmt.Errorf("insert failed: %w", io.EOF),
			expected: true,
		},
		{
			name:     "server overloaded string",
			err:      errors.New("server is overloaded"),
			expected: true,
		},
		{
			name:     "too many connections string",
			err:      errors.New("too many connections"),
			expected: true,
		},
		// Unknown errors - non-retryable
		{
			name:     "unknown error",
			err:      errors.New("some unknown error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryableError(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// Ensure mockNetError implements net.Error.
var _ net.Error = (*mockNetError)(nil)
