package testutil

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-cfg/pkg/analyzer"
	"github.com/ethpandaops/execution-cfg/pkg/trace"
)

// JumpProgram is JUMPDEST, PUSH1 0x04, JUMP, JUMPDEST, STOP.
var JumpProgram = common.FromHex("0x5b6004565b00")

// JumpAddress is the account JumpProgram is deployed at in fixtures.
var JumpAddress = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

// StaticCode serves bytecode from a map. Unknown addresses have no code.
type StaticCode map[common.Address][]byte

func (s StaticCode) GetCode(_ context.Context, address common.Address, _ string) ([]byte, error) {
	return s[address], nil
}

// JumpSteps is a trace executing JumpProgram from start to end.
func JumpSteps() []trace.Step {
	return []trace.Step{
		{PC: 0, Op: "JUMPDEST", Depth: 1},
		{PC: 1, Op: "PUSH1", Depth: 1},
		{PC: 3, Op: "JUMP", Depth: 1},
		{PC: 4, Op: "JUMPDEST", Depth: 1},
		{PC: 5, Op: "STOP", Depth: 1},
	}
}

// AnalyseJumpProgram runs the analyzer over JumpSteps without any sinks.
func AnalyseJumpProgram(t *testing.T, txHash string) *analyzer.Result {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	a := analyzer.New(log, analyzer.DefaultConfig(), StaticCode{JumpAddress: JumpProgram}, nil)

	root := JumpAddress

	result, err := a.Analyze(context.Background(), analyzer.Request{TxHash: txHash, Steps: JumpSteps(), Root: &root})
	if err != nil {
		t.Fatalf("failed to analyse fixture: %v", err)
	}

	return result
}
