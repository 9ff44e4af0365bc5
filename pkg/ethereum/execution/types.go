package execution

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TraceOptions configures debug_traceTransaction parameters.
type TraceOptions struct {
	DisableStorage   bool
	DisableStack     bool
	DisableMemory    bool
	EnableReturnData bool
}

// DefaultTraceOptions returns the options control-flow analysis needs: the
// stack is kept so call targets can be recovered.
func DefaultTraceOptions() TraceOptions {
	return TraceOptions{
		DisableStorage:   true,
		DisableStack:     false,
		DisableMemory:    true,
		EnableReturnData: false,
	}
}

func (o TraceOptions) params() map[string]any {
	return map[string]any{
		"disableStorage":   o.DisableStorage,
		"disableStack":     o.DisableStack,
		"disableMemory":    o.DisableMemory,
		"enableReturnData": o.EnableReturnData,
	}
}

// Transaction holds the fields of eth_getTransactionByHash the analyzer uses.
type Transaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Input       hexutil.Bytes   `json:"input"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
}

// IsCreation reports whether the transaction deploys a contract.
func (t *Transaction) IsCreation() bool {
	return t.To == nil
}
