// Package trace parses transaction execution traces and rebuilds their call tree.
package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/ethpandaops/execution-cfg/pkg/ethereum/execution"
)

// Step is one executed opcode of a transaction trace.
type Step struct {
	PC      uint32   `json:"pc"`
	Op      string   `json:"op"`
	Gas     uint64   `json:"gas"`
	GasCost uint64   `json:"gasCost"`
	Depth   uint64   `json:"depth"`
	Error   string   `json:"error,omitempty"`
	Stack   []string `json:"stack,omitempty"`
	// Address is the executing contract when the tracer reports it.
	Address *common.Address `json:"address,omitempty"`
}

// OpCode returns the step's opcode. Unknown names map to INVALID.
func (s *Step) OpCode() vm.OpCode {
	op := vm.StringToOp(s.Op)
	if op == vm.STOP && s.Op != "STOP" {
		return vm.INVALID
	}

	return op
}

// stackBack returns the n-th value from the top of the stack.
func (s *Step) stackBack(n int) (string, bool) {
	if len(s.Stack) <= n {
		return "", false
	}

	return s.Stack[len(s.Stack)-1-n], true
}

// UnmarshalJSON accepts the address as a hex string or as a map of byte index
// to byte value, as emitted by javascript tracers.
func (s *Step) UnmarshalJSON(data []byte) error {
	type plain Step

	aux := struct {
		*plain
		Address json.RawMessage `json:"address"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	addr, err := parseStepAddress(aux.Address)
	if err != nil {
		return err
	}

	s.Address = addr

	return nil
}

func parseStepAddress(raw json.RawMessage) (*common.Address, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, err
		}

		addr, ok := ParseAddress(str)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, str)
		}

		return &addr, nil
	case '{':
		var byIndex map[string]uint8
		if err := json.Unmarshal(raw, &byIndex); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		}

		if len(byIndex) != common.AddressLength {
			return nil, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(byIndex))
		}

		var addr common.Address

		for i := range addr {
			b, ok := byIndex[strconv.Itoa(i)]
			if !ok {
				return nil, fmt.Errorf("%w: missing byte %d", ErrInvalidAddress, i)
			}

			addr[i] = b
		}

		return &addr, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, raw)
	}
}

// Transaction is the struct logger result of debug_traceTransaction.
type Transaction struct {
	Gas         uint64 `json:"gas"`
	Failed      bool   `json:"failed"`
	ReturnValue string `json:"returnValue"`
	StructLogs  []Step `json:"structLogs"`
}

// ParseTrace reads either a plain array of steps or a struct logger result.
func ParseTrace(r io.Reader) ([]Step, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidTrace)
	}

	if data[0] == '[' {
		var steps []Step
		if err := json.Unmarshal(data, &steps); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTrace, err)
		}

		return steps, nil
	}

	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTrace, err)
	}

	return tx.StructLogs, nil
}

// FromStructLogs converts struct logs returned by an execution node.
func FromStructLogs(logs []execution.StructLog) []Step {
	steps := make([]Step, len(logs))

	for i := range logs {
		l := &logs[i]

		steps[i] = Step{
			PC:      l.PC,
			Op:      l.Op,
			Gas:     l.Gas,
			GasCost: l.GasCost,
			Depth:   l.Depth,
		}

		if l.Error != nil {
			steps[i].Error = *l.Error
		}

		if l.Stack != nil {
			steps[i].Stack = *l.Stack
		}
	}

	return steps
}
