package execution

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/0xsequence/ethkit/ethrpc"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethpandaops/execution-cfg/pkg/common"
)

const (
	STATUS_ERROR   = "error"
	STATUS_SUCCESS = "success"
)

// DefaultTraceTimeout bounds traces whose context has no deadline.
const DefaultTraceTimeout = 60 * time.Second

func (n *RPCNode) observe(method string, start time.Time, err error) {
	status := STATUS_SUCCESS
	if err != nil {
		status = STATUS_ERROR
	}

	chainID := strconv.Itoa(int(n.ChainID()))

	common.RPCCallDuration.WithLabelValues(chainID, n.config.Name, method, status).Observe(time.Since(start).Seconds())
	common.RPCCallsTotal.WithLabelValues(chainID, n.config.Name, method, status).Inc()
}

func (n *RPCNode) GetCode(ctx context.Context, address gethcommon.Address, block string) ([]byte, error) {
	rpc, err := n.provider()
	if err != nil {
		return nil, err
	}

	if block == "" {
		block = n.config.CodeBlock
	}

	if block == "" {
		block = "latest"
	}

	var code hexutil.Bytes

	call := ethrpc.NewCallBuilder[hexutil.Bytes]("eth_getCode", nil, address.Hex(), block)

	start := time.Now()
	_, err = rpc.Do(ctx, call.Into(&code))
	n.observe("eth_getCode", start, err)

	if err != nil {
		return nil, fmt.Errorf("failed to get code of %s: %w", address.Hex(), err)
	}

	return code, nil
}

func (n *RPCNode) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	rpc, err := n.provider()
	if err != nil {
		return nil, err
	}

	var tx *Transaction

	call := ethrpc.NewCallBuilder[*Transaction]("eth_getTransactionByHash", nil, hash)

	start := time.Now()
	_, err = rpc.Do(ctx, call.Into(&tx))
	n.observe("eth_getTransactionByHash", start, err)

	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}

	if tx == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, hash)
	}

	return tx, nil
}

// TraceTransaction runs debug_traceTransaction with the struct logger.
func (n *RPCNode) TraceTransaction(ctx context.Context, hash string, opts TraceOptions) (*TraceTransaction, error) {
	rpc, err := n.provider()
	if err != nil {
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, DefaultTraceTimeout)

		defer cancel()
	}

	var rsp rpcTrace

	call := ethrpc.NewCallBuilder[rpcTrace]("debug_traceTransaction", nil, hash, opts.params())

	start := time.Now()
	_, err = rpc.Do(ctx, call.Into(&rsp))
	n.observe("debug_traceTransaction", start, err)

	if err != nil {
		return nil, fmt.Errorf("failed to trace transaction %s: %w", hash, err)
	}

	return rsp.toTraceTransaction(), nil
}
