// Package evm decodes raw EVM bytecode into addressable instructions.
package evm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// Instruction is a single decoded opcode with its immediate operand.
type Instruction struct {
	PC        uint32
	Op        vm.OpCode
	Immediate []byte
	// Length is the number of bytes the instruction occupies in the code.
	// It is shorter than 1+len(Immediate) when a PUSH operand was truncated.
	Length uint32
}

// Next returns the pc of the instruction that follows.
func (i *Instruction) Next() uint32 {
	return i.PC + i.Length
}

// Last returns the pc of the final byte owned by the instruction.
func (i *Instruction) Last() uint32 {
	return i.PC + i.Length - 1
}

// Truncated reports whether the immediate was cut off by the end of the code.
func (i *Instruction) Truncated() bool {
	return IsPush(i.Op) && i.Length < uint32(1+len(i.Immediate)) //nolint:gosec // immediates are at most 32 bytes
}

// Value returns the immediate as a 256-bit word. PUSH0 and non-push opcodes yield zero.
func (i *Instruction) Value() *uint256.Int {
	return new(uint256.Int).SetBytes(i.Immediate)
}

func (i Instruction) String() string {
	if IsPush(i.Op) {
		return fmt.Sprintf("%d %s %s", i.PC, i.Op, hexutil.Encode(i.Immediate))
	}

	return fmt.Sprintf("%d %s", i.PC, i.Op)
}

// Anomaly records a recoverable decoding irregularity.
type Anomaly struct {
	PC      uint32
	Message string
}

// Program is decoded bytecode.
type Program struct {
	Code         []byte
	Instructions []Instruction
	Anomalies    []Anomaly

	index     map[uint32]int
	jumpdests map[uint32]struct{}
}

// Decode turns code into an ordered instruction sequence covering every byte.
// It never fails: a PUSH operand running past the end is zero-padded to its full
// width and recorded as an anomaly.
func Decode(code []byte) *Program {
	p := &Program{
		Code:         code,
		Instructions: make([]Instruction, 0, len(code)),
		index:        make(map[uint32]int, len(code)),
		jumpdests:    make(map[uint32]struct{}),
	}

	for pc := 0; pc < len(code); {
		op := vm.OpCode(code[pc])
		ins := Instruction{PC: uint32(pc), Op: op, Length: 1} //nolint:gosec // code size fits in uint32

		if n := PushSize(op); n > 0 {
			ins.Immediate = make([]byte, n)

			avail := len(code) - pc - 1
			if avail >= n {
				copy(ins.Immediate, code[pc+1:pc+1+n])
				ins.Length += uint32(n) //nolint:gosec // n <= 32
			} else {
				copy(ins.Immediate, code[pc+1:])
				ins.Length += uint32(avail) //nolint:gosec // avail < 32

				p.Anomalies = append(p.Anomalies, Anomaly{
					PC:      ins.PC,
					Message: fmt.Sprintf("%s operand truncated: %d of %d bytes present", op, avail, n),
				})
			}
		}

		if op == vm.JUMPDEST {
			p.jumpdests[ins.PC] = struct{}{}
		}

		p.index[ins.PC] = len(p.Instructions)
		p.Instructions = append(p.Instructions, ins)

		pc += int(ins.Length)
	}

	return p
}

// DecodeHex decodes a 0x-prefixed or bare hex string.
func DecodeHex(s string) (*Program, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}

	code, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode hex: %w", err)
	}

	return Decode(code), nil
}

// Len returns the code size in bytes.
func (p *Program) Len() uint32 {
	return uint32(len(p.Code)) //nolint:gosec // code size fits in uint32
}

// At returns the instruction starting exactly at pc.
func (p *Program) At(pc uint32) (*Instruction, bool) {
	i, ok := p.index[pc]
	if !ok {
		return nil, false
	}

	return &p.Instructions[i], true
}

// IsJumpDest reports whether pc holds a JUMPDEST opcode outside push data.
func (p *Program) IsJumpDest(pc uint32) bool {
	_, ok := p.jumpdests[pc]

	return ok
}

// IsJumpDestValue reports whether v is a valid jump destination.
func (p *Program) IsJumpDestValue(v *uint256.Int) bool {
	if !v.IsUint64() || v.Uint64() > uint64(^uint32(0)) {
		return false
	}

	return p.IsJumpDest(uint32(v.Uint64()))
}

// JumpDests returns all jump destinations in ascending order.
func (p *Program) JumpDests() []uint32 {
	out := make([]uint32, 0, len(p.jumpdests))
	for pc := range p.jumpdests {
		out = append(out, pc)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
