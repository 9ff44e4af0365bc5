package execution

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Node is an execution client the analyzer reads code and traces from.
//
// All methods must be safe for concurrent use.
type Node interface {
	// Start connects to the node and begins background metadata refreshes.
	Start(ctx context.Context) error

	// Stop releases the node's resources.
	Stop(ctx context.Context) error

	// OnReady registers a callback run once the node metadata is available.
	OnReady(ctx context.Context, callback func(ctx context.Context) error)

	// GetCode returns the deployed bytecode of address at block. An empty
	// block uses the configured block tag.
	GetCode(ctx context.Context, address common.Address, block string) ([]byte, error)

	// TraceTransaction returns the struct logger trace of a transaction.
	TraceTransaction(ctx context.Context, hash string, opts TraceOptions) (*TraceTransaction, error)

	// TransactionByHash returns the transaction envelope fields used to
	// locate the root contract.
	TransactionByHash(ctx context.Context, hash string) (*Transaction, error)

	ChainID() int32
	ClientType() string
	IsSynced() bool
	Name() string
}
