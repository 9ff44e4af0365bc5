package execution

import "github.com/ethereum/go-ethereum/common/hexutil"

type rpcTrace struct {
	Gas         uint64  `json:"gas"`
	Failed      bool    `json:"failed"`
	ReturnValue *string `json:"returnValue"`
	// empty array on transfer
	StructLogs []rpcStructLog `json:"structLogs"`
}

type rpcStructLog struct {
	PC         uint32        `json:"pc"`
	Op         string        `json:"op"`
	Gas        uint64        `json:"gas"`
	GasCost    uint64        `json:"gasCost"`
	Depth      uint64        `json:"depth"`
	ReturnData hexutil.Bytes `json:"returnData"`
	Refund     *uint64       `json:"refund,omitempty"`
	Error      *string       `json:"error,omitempty"`
	Stack      []string      `json:"stack"`
}

func (r *rpcTrace) toTraceTransaction() *TraceTransaction {
	returnValue := r.ReturnValue
	if returnValue != nil && *returnValue == "" {
		returnValue = nil
	}

	result := &TraceTransaction{
		Gas:         r.Gas,
		Failed:      r.Failed,
		ReturnValue: returnValue,
		Structlogs:  make([]StructLog, 0, len(r.StructLogs)),
	}

	for i := range r.StructLogs {
		log := &r.StructLogs[i]

		var returnData *string

		if len(log.ReturnData) > 0 {
			encoded := log.ReturnData.String()
			returnData = &encoded
		}

		var stack *[]string

		if log.Stack != nil {
			stack = &log.Stack
		}

		result.Structlogs = append(result.Structlogs, StructLog{
			PC:         log.PC,
			Op:         log.Op,
			Gas:        log.Gas,
			GasCost:    log.GasCost,
			Depth:      log.Depth,
			ReturnData: returnData,
			Refund:     log.Refund,
			Error:      log.Error,
			Stack:      stack,
		})
	}

	return result
}
