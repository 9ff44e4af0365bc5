// Package asm assembles and disassembles EVM mnemonic listings.
//
// A listing is a sequence of mnemonics separated by whitespace. PUSH opcodes
// take an operand, either an integer literal or a reference to a label:
//
//	start:
//	  PUSH1 @done   ; jump forward
//	  JUMP
//	done:
//	  JUMPDEST
//	  STOP
package asm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/ethpandaops/execution-cfg/pkg/evm"
)

var (
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
	ErrUnknownLabel    = errors.New("unknown label")
	ErrDuplicateLabel  = errors.New("duplicate label")
	ErrBadOperand      = errors.New("bad operand")
)

// SyntaxError is a parse failure with its location.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// Assemble converts a listing into bytecode.
func Assemble(src string) ([]byte, error) {
	prog, err := parser.ParseString("", src)
	if err != nil {
		var pe participle.Error
		if errors.As(err, &pe) {
			pos := pe.Position()

			return nil, &SyntaxError{Line: pos.Line, Column: pos.Column, Message: pe.Message()}
		}

		return nil, err
	}

	labels := make(map[string]int)
	pc := 0

	for _, it := range prog.Items {
		if it.Label != nil {
			name := strings.TrimSuffix(*it.Label, ":")
			if _, ok := labels[name]; ok {
				return nil, fmt.Errorf("%w: %s at line %d", ErrDuplicateLabel, name, it.Pos.Line)
			}

			labels[name] = pc

			continue
		}

		op, err := lookup(it.Instr)
		if err != nil {
			return nil, err
		}

		pc += 1 + evm.PushSize(op)
	}

	out := make([]byte, 0, pc)

	for _, it := range prog.Items {
		if it.Instr == nil {
			continue
		}

		op, _ := lookup(it.Instr)
		out = append(out, byte(op))

		n := evm.PushSize(op)
		if n == 0 {
			if it.Instr.Value != nil || it.Instr.Ref != nil {
				return nil, fmt.Errorf("%w: %s takes no operand at line %d", ErrBadOperand, op, it.Instr.Pos.Line)
			}

			continue
		}

		operand, err := resolve(it.Instr, labels)
		if err != nil {
			return nil, err
		}

		raw := operand.Bytes()
		if len(raw) > n {
			return nil, fmt.Errorf("%w: %s operand %s exceeds %d bytes at line %d", ErrBadOperand, op, operand, n, it.Instr.Pos.Line)
		}

		word := make([]byte, n)
		copy(word[n-len(raw):], raw)
		out = append(out, word...)
	}

	return out, nil
}

// MustAssemble is Assemble for fixed listings. It panics on error.
func MustAssemble(src string) []byte {
	code, err := Assemble(src)
	if err != nil {
		panic(err)
	}

	return code
}

func lookup(ins *instruction) (vm.OpCode, error) {
	name := strings.ToUpper(ins.Mnemonic)

	op := vm.StringToOp(name)
	if op == vm.STOP && name != "STOP" {
		return 0, fmt.Errorf("%w: %s at line %d", ErrUnknownMnemonic, ins.Mnemonic, ins.Pos.Line)
	}

	return op, nil
}

func resolve(ins *instruction, labels map[string]int) (*big.Int, error) {
	switch {
	case ins.Ref != nil:
		name := strings.TrimPrefix(*ins.Ref, "@")

		pc, ok := labels[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s at line %d", ErrUnknownLabel, name, ins.Pos.Line)
		}

		return big.NewInt(int64(pc)), nil
	case ins.Value != nil:
		v, ok := new(big.Int).SetString(*ins.Value, 0)
		if !ok {
			// "0x" alone is a valid token but not a number.
			if *ins.Value == "0x" {
				return new(big.Int), nil
			}

			return nil, fmt.Errorf("%w: %q at line %d", ErrBadOperand, *ins.Value, ins.Pos.Line)
		}

		return v, nil
	default:
		return nil, fmt.Errorf("%w: %s needs an operand at line %d", ErrBadOperand, ins.Mnemonic, ins.Pos.Line)
	}
}

// Disassemble renders a decoded program one instruction per line.
func Disassemble(p *evm.Program) string {
	var sb strings.Builder

	for _, ins := range p.Instructions {
		name := ins.Op.String()
		if !evm.IsDefined(ins.Op) {
			name = fmt.Sprintf("UNDEFINED(0x%02x)", byte(ins.Op))
		}

		if evm.IsPush(ins.Op) {
			fmt.Fprintf(&sb, "%04x: %s 0x%x", ins.PC, name, ins.Immediate)
			if ins.Truncated() {
				sb.WriteString(" ; truncated")
			}
		} else {
			fmt.Fprintf(&sb, "%04x: %s", ins.PC, name)
		}

		sb.WriteByte('\n')
	}

	return sb.String()
}
