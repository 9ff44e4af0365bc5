package asm

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-cfg/pkg/evm"
)

func TestAssemble(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "literal operands",
			src:  "JUMPDEST PUSH1 0x04 JUMP JUMPDEST STOP",
			want: "5b6004565b00",
		},
		{
			name: "labels resolve to pcs",
			src: `
				JUMPDEST
				PUSH1 @done ; forward reference
				JUMP
			done:
				JUMPDEST
				STOP`,
			want: "5b6004565b00",
		},
		{
			name: "wide push pads on the left",
			src:  "PUSH2 0x05 PUSH0 push1 7",
			want: "610005" + "5f" + "6007",
		},
		{
			name: "empty listing",
			src:  "; nothing here",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := Assemble(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(code))
		})
	}
}

func TestAssemble_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{name: "unknown mnemonic", src: "PUSH1 0x01 FROB", want: ErrUnknownMnemonic},
		{name: "unknown label", src: "PUSH1 @nowhere JUMP", want: ErrUnknownLabel},
		{name: "duplicate label", src: "a: JUMPDEST a: STOP", want: ErrDuplicateLabel},
		{name: "operand too wide", src: "PUSH1 0x0100", want: ErrBadOperand},
		{name: "missing operand", src: "PUSH1", want: ErrBadOperand},
		{name: "operand on plain opcode", src: "ADD 0x01", want: ErrBadOperand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAssemble_SyntaxError(t *testing.T) {
	_, err := Assemble("PUSH1 0x01\n$$")
	require.Error(t, err)

	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Line)
}

func TestDisassemble(t *testing.T) {
	p := evm.Decode(MustAssemble("JUMPDEST PUSH1 0x04 JUMP JUMPDEST STOP"))

	want := "0000: JUMPDEST\n" +
		"0001: PUSH1 0x04\n" +
		"0003: JUMP\n" +
		"0004: JUMPDEST\n" +
		"0005: STOP\n"

	assert.Equal(t, want, Disassemble(p))
}

func TestDisassemble_TruncatedAndUndefined(t *testing.T) {
	p := evm.Decode([]byte{0x0c, 0x61, 0x01})

	want := "0000: UNDEFINED(0x0c)\n" +
		"0001: PUSH2 0x0100 ; truncated\n"

	assert.Equal(t, want, Disassemble(p))
}
