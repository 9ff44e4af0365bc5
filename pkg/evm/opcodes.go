package evm

import (
	"github.com/ethereum/go-ethereum/core/vm"
)

// arity holds the number of stack items an opcode consumes and produces.
type arity struct {
	pops    int
	pushes  int
	defined bool
}

var arities = func() [256]arity {
	var t [256]arity

	set := func(pops, pushes int, ops ...vm.OpCode) {
		for _, op := range ops {
			t[op] = arity{pops: pops, pushes: pushes, defined: true}
		}
	}

	// 0x00 - 0x0b
	set(0, 0, vm.STOP)
	set(2, 1, vm.ADD, vm.MUL, vm.SUB, vm.DIV, vm.SDIV, vm.MOD, vm.SMOD, vm.EXP, vm.SIGNEXTEND)
	set(3, 1, vm.ADDMOD, vm.MULMOD)

	// 0x10 - 0x1d
	set(2, 1, vm.LT, vm.GT, vm.SLT, vm.SGT, vm.EQ, vm.AND, vm.OR, vm.XOR, vm.BYTE, vm.SHL, vm.SHR, vm.SAR)
	set(1, 1, vm.ISZERO, vm.NOT)

	set(2, 1, vm.KECCAK256)

	// 0x30 - 0x4a
	set(0, 1, vm.ADDRESS, vm.ORIGIN, vm.CALLER, vm.CALLVALUE, vm.CALLDATASIZE, vm.CODESIZE, vm.GASPRICE,
		vm.RETURNDATASIZE, vm.COINBASE, vm.TIMESTAMP, vm.NUMBER, vm.DIFFICULTY, vm.GASLIMIT, vm.CHAINID,
		vm.SELFBALANCE, vm.BASEFEE, vm.BLOBBASEFEE)
	set(1, 1, vm.BALANCE, vm.CALLDATALOAD, vm.EXTCODESIZE, vm.EXTCODEHASH, vm.BLOCKHASH, vm.BLOBHASH)
	set(3, 0, vm.CALLDATACOPY, vm.CODECOPY, vm.RETURNDATACOPY)
	set(4, 0, vm.EXTCODECOPY)

	// 0x50 - 0x5f
	set(1, 0, vm.POP, vm.JUMP)
	set(1, 1, vm.MLOAD, vm.SLOAD, vm.TLOAD)
	set(2, 0, vm.MSTORE, vm.MSTORE8, vm.SSTORE, vm.JUMPI, vm.TSTORE)
	set(0, 1, vm.PC, vm.MSIZE, vm.GAS, vm.PUSH0)
	set(0, 0, vm.JUMPDEST)
	set(3, 0, vm.MCOPY)

	for op := vm.PUSH1; op <= vm.PUSH32; op++ {
		t[op] = arity{pops: 0, pushes: 1, defined: true}
	}

	for i := 0; i < 16; i++ {
		t[vm.DUP1+vm.OpCode(i)] = arity{pops: i + 1, pushes: i + 2, defined: true}
		t[vm.SWAP1+vm.OpCode(i)] = arity{pops: i + 2, pushes: i + 2, defined: true}
	}

	// 0xa0 - 0xa4
	for i := 0; i <= 4; i++ {
		t[vm.LOG0+vm.OpCode(i)] = arity{pops: i + 2, pushes: 0, defined: true}
	}

	// 0xf0 - 0xff
	set(3, 1, vm.CREATE)
	set(4, 1, vm.CREATE2)
	set(7, 1, vm.CALL, vm.CALLCODE)
	set(6, 1, vm.DELEGATECALL, vm.STATICCALL)
	set(2, 0, vm.RETURN, vm.REVERT)
	set(0, 0, vm.INVALID)
	set(1, 0, vm.SELFDESTRUCT)

	return t
}()

// StackArity returns how many items op pops from and pushes onto the stack.
// Undefined opcodes report zero for both.
func StackArity(op vm.OpCode) (pops, pushes int) {
	a := arities[op]

	return a.pops, a.pushes
}

// IsDefined reports whether op is a known opcode.
func IsDefined(op vm.OpCode) bool {
	return arities[op].defined
}

// IsPush reports whether op carries an immediate operand (PUSH1..PUSH32).
func IsPush(op vm.OpCode) bool {
	return op >= vm.PUSH1 && op <= vm.PUSH32
}

// PushSize returns the immediate width of a PUSH opcode, zero otherwise.
func PushSize(op vm.OpCode) int {
	if !IsPush(op) {
		return 0
	}

	return int(op-vm.PUSH1) + 1
}

// IsDup reports whether op is DUP1..DUP16.
func IsDup(op vm.OpCode) bool {
	return op >= vm.DUP1 && op <= vm.DUP16
}

// IsSwap reports whether op is SWAP1..SWAP16.
func IsSwap(op vm.OpCode) bool {
	return op >= vm.SWAP1 && op <= vm.SWAP16
}

// IsJump reports whether op is JUMP or JUMPI.
func IsJump(op vm.OpCode) bool {
	return op == vm.JUMP || op == vm.JUMPI
}

// IsHalt reports whether op stops execution of the current frame.
// Undefined opcodes halt with an exceptional abort.
func IsHalt(op vm.OpCode) bool {
	switch op {
	case vm.STOP, vm.RETURN, vm.REVERT, vm.INVALID, vm.SELFDESTRUCT:
		return true
	}

	return !IsDefined(op)
}

// IsTerminator reports whether op ends a basic block.
func IsTerminator(op vm.OpCode) bool {
	return IsJump(op) || IsHalt(op)
}

// IsCall reports whether op enters a child frame that executes foreign code.
func IsCall(op vm.OpCode) bool {
	switch op {
	case vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL:
		return true
	}

	return false
}

// IsCreate reports whether op deploys a new contract.
func IsCreate(op vm.OpCode) bool {
	return op == vm.CREATE || op == vm.CREATE2
}
