package analyzer

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/execution-cfg/pkg/cfg"
	"github.com/ethpandaops/execution-cfg/pkg/highlight"
	"github.com/ethpandaops/execution-cfg/pkg/stitch"
	"github.com/ethpandaops/execution-cfg/pkg/trace"
)

// Contract is the static graph of one piece of code.
type Contract struct {
	Address common.Address
	Code    []byte
	Graph   *cfg.Graph
}

// Result is the outcome of analysing one transaction.
type Result struct {
	TxHash string
	Root   common.Address
	Tree   *trace.Tree

	// Contracts holds the runtime code graphs keyed by code address.
	Contracts map[common.Address]*Contract
	// InitCode is the graph of the deployment code of a creation
	// transaction, when its input was available.
	InitCode *Contract
	// Views holds the highlighted graph of each frame that has one.
	Views  map[uint32]*highlight.Annotation
	Global *stitch.GlobalGraph

	Duration time.Duration
}

// IsCreation reports whether the transaction deployed a contract.
func (r *Result) IsCreation() bool {
	return r.Tree.Root.Type.IsCreate()
}

// ContractOf returns the graph the code of frame f was analysed with.
func (r *Result) ContractOf(f *trace.Frame) *Contract {
	if f.IsRoot() && f.Type.IsCreate() {
		return r.InitCode
	}

	if !f.Resolved || f.Type.IsCreate() {
		return nil
	}

	return r.Contracts[f.Address]
}

// Mismatches sums the trace mismatches of every frame.
func (r *Result) Mismatches() int {
	total := 0
	for _, v := range r.Views {
		total += v.Mismatches()
	}

	return total
}
