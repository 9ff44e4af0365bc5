package evm

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantPCs   []uint32
		wantOps   []vm.OpCode
		anomalies int
	}{
		{
			name:    "empty code",
			code:    "",
			wantPCs: []uint32{},
			wantOps: []vm.OpCode{},
		},
		{
			name:    "jump to jumpdest",
			code:    "5b6004565b00",
			wantPCs: []uint32{0, 1, 3, 4, 5},
			wantOps: []vm.OpCode{vm.JUMPDEST, vm.PUSH1, vm.JUMP, vm.JUMPDEST, vm.STOP},
		},
		{
			name:    "push32 spans the whole word",
			code:    "7f" + "0000000000000000000000000000000000000000000000000000000000000001" + "00",
			wantPCs: []uint32{0, 33},
			wantOps: []vm.OpCode{vm.PUSH32, vm.STOP},
		},
		{
			name:      "truncated push at the tail",
			code:      "600161ff",
			wantPCs:   []uint32{0, 2},
			wantOps:   []vm.OpCode{vm.PUSH1, vm.PUSH2},
			anomalies: 1,
		},
		{
			name:      "push with no operand bytes",
			code:      "0060",
			wantPCs:   []uint32{0, 1},
			wantOps:   []vm.OpCode{vm.STOP, vm.PUSH1},
			anomalies: 1,
		},
		{
			name:    "undefined opcode decodes as one byte",
			code:    "0c00",
			wantPCs: []uint32{0, 1},
			wantOps: []vm.OpCode{vm.OpCode(0x0c), vm.STOP},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeHex(tt.code)
			require.NoError(t, err)

			pcs := make([]uint32, 0, len(p.Instructions))
			ops := make([]vm.OpCode, 0, len(p.Instructions))

			for _, ins := range p.Instructions {
				pcs = append(pcs, ins.PC)
				ops = append(ops, ins.Op)
			}

			assert.Equal(t, tt.wantPCs, pcs)
			assert.Equal(t, tt.wantOps, ops)
			assert.Len(t, p.Anomalies, tt.anomalies)
		})
	}
}

func TestDecode_CoversEveryByte(t *testing.T) {
	p, err := DecodeHex("6080604052348015600f57600080fd5b50603f80601d6000396000f3fe61")
	require.NoError(t, err)

	var next uint32

	for _, ins := range p.Instructions {
		assert.Equal(t, next, ins.PC)

		next = ins.Next()
	}

	assert.Equal(t, p.Len(), next)
}

func TestDecode_TruncatedPushIsZeroPadded(t *testing.T) {
	p := Decode([]byte{byte(vm.PUSH3), 0xab})

	require.Len(t, p.Instructions, 1)

	ins := p.Instructions[0]
	assert.Equal(t, []byte{0xab, 0x00, 0x00}, ins.Immediate)
	assert.Equal(t, uint32(2), ins.Length)
	assert.True(t, ins.Truncated())
	assert.Equal(t, uint64(0xab0000), ins.Value().Uint64())
	assert.Equal(t, uint32(0), p.Anomalies[0].PC)
}

func TestDecode_JumpDestInsidePushData(t *testing.T) {
	// PUSH1 0x5b hides a JUMPDEST byte in its operand.
	p, err := DecodeHex("605b5b00")
	require.NoError(t, err)

	assert.False(t, p.IsJumpDest(1))
	assert.True(t, p.IsJumpDest(2))
	assert.Equal(t, []uint32{2}, p.JumpDests())

	_, ok := p.At(1)
	assert.False(t, ok)

	ins, ok := p.At(2)
	require.True(t, ok)
	assert.Equal(t, vm.JUMPDEST, ins.Op)
}

func TestDecodeHex_Invalid(t *testing.T) {
	_, err := DecodeHex("0xzz")
	assert.Error(t, err)
}

func TestOpcodeClasses(t *testing.T) {
	assert.True(t, IsTerminator(vm.JUMP))
	assert.True(t, IsTerminator(vm.JUMPI))
	assert.True(t, IsTerminator(vm.REVERT))
	assert.True(t, IsTerminator(vm.OpCode(0x0c)))
	assert.False(t, IsTerminator(vm.JUMPDEST))
	assert.False(t, IsTerminator(vm.PUSH0))

	assert.Equal(t, 0, PushSize(vm.PUSH0))
	assert.Equal(t, 32, PushSize(vm.PUSH32))

	pops, pushes := StackArity(vm.DUP3)
	assert.Equal(t, 3, pops)
	assert.Equal(t, 4, pushes)

	pops, pushes = StackArity(vm.CALL)
	assert.Equal(t, 7, pops)
	assert.Equal(t, 1, pushes)

	assert.True(t, IsCall(vm.DELEGATECALL))
	assert.True(t, IsCreate(vm.CREATE2))
	assert.False(t, IsCall(vm.CREATE))
}
