package ethereum

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-cfg/pkg/ethereum/execution"
)

// call runs fn against the healthy nodes in random order until one succeeds.
// Missing transactions and cancelled contexts end the search without
// counting against the node.
func call[T any](ctx context.Context, p *Pool, method string, fn func(execution.Node) (T, error)) (T, error) {
	var zero T

	nodes := p.GetHealthyExecutionNodes()
	if len(nodes) == 0 {
		return zero, ErrNoHealthyNode
	}

	var errs []error

	for _, node := range nodes {
		v, err := fn(node)
		if err == nil {
			p.report(node, nil)

			return v, nil
		}

		if ctx.Err() != nil || errors.Is(err, execution.ErrTransactionNotFound) {
			return zero, err
		}

		p.report(node, err)

		errs = append(errs, fmt.Errorf("%s: %w", node.Name(), err))

		if len(nodes) > 1 {
			p.log.WithError(err).WithFields(logrus.Fields{
				"node":   node.Name(),
				"method": method,
			}).Debug("Execution node call failed, trying next node")
		}
	}

	return zero, errors.Join(errs...)
}

func (p *Pool) GetCode(ctx context.Context, address common.Address, block string) ([]byte, error) {
	return call(ctx, p, "eth_getCode", func(n execution.Node) ([]byte, error) {
		return n.GetCode(ctx, address, block)
	})
}

func (p *Pool) TraceTransaction(ctx context.Context, hash string, opts execution.TraceOptions) (*execution.TraceTransaction, error) {
	return call(ctx, p, "debug_traceTransaction", func(n execution.Node) (*execution.TraceTransaction, error) {
		return n.TraceTransaction(ctx, hash, opts)
	})
}

func (p *Pool) TransactionByHash(ctx context.Context, hash string) (*execution.Transaction, error) {
	return call(ctx, p, "eth_getTransactionByHash", func(n execution.Node) (*execution.Transaction, error) {
		return n.TransactionByHash(ctx, hash)
	})
}
