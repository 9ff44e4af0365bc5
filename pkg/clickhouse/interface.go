package clickhouse

import (
	"context"

	"github.com/ClickHouse/ch-go/proto"
)

// ClientInterface defines the methods for interacting with ClickHouse.
type ClientInterface interface {
	// Start dials the connection pool
	Start() error
	// Stop closes the connection pool
	Stop() error
	// Execute runs a query without expecting results
	Execute(ctx context.Context, query string) error
	// Insert writes the columns of input into table
	Insert(ctx context.Context, table string, input proto.Input) error
	// QueryUInt64 returns the first value of a UInt64 column, or nil without rows
	QueryUInt64(ctx context.Context, query string, column string) (*uint64, error)
	// SetNetwork updates the network name for metrics labeling
	SetNetwork(network string)
}
