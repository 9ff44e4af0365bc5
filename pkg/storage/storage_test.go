package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/ch-go/proto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-cfg/internal/testutil"
	"github.com/ethpandaops/execution-cfg/pkg/clickhouse"
)

const txHash = "0x2222222222222222222222222222222222222222222222222222222222222222"

var addr = testutil.JumpAddress


func testConfig() *Config {
	return &Config{
		BlockTable:          "cfg_block",
		EdgeTable:           "cfg_edge",
		CreateTables:        true,
		BufferMaxRows:       1,
		BufferFlushInterval: time.Minute,
	}
}

func TestBlockRows(t *testing.T) {
	now := time.Unix(1700000000, 0)

	rows := BlockRows(testutil.AnalyseJumpProgram(t, txHash), "mainnet", now)
	require.Len(t, rows, 2)

	assert.Equal(t, BlockRow{
		UpdatedDateTime: now,
		TransactionHash: txHash,
		FrameID:         0,
		FramePath:       []uint32{0},
		Address:         strings.ToLower(addr.Hex()),
		BlockStart:      0,
		BlockEnd:        3,
		Instructions:    3,
		Terminator:      "JUMP",
		Tag:             "executed-plain",
		Executed:        true,
		Network:         "mainnet",
	}, rows[0])

	assert.Equal(t, uint32(4), rows[1].BlockStart)
	assert.Equal(t, uint32(5), rows[1].BlockEnd)
	assert.Equal(t, "STOP", rows[1].Terminator)
}

func TestEdgeRows(t *testing.T) {
	now := time.Unix(1700000000, 0)

	rows := EdgeRows(testutil.AnalyseJumpProgram(t, txHash), "mainnet", now)

	assert.Equal(t, []EdgeRow{{
		UpdatedDateTime: now,
		TransactionHash: txHash,
		FromBlock:       0,
		ToBlock:         4,
		Kind:            "direct",
		Executed:        true,
		Network:         "mainnet",
	}}, rows)
}

func TestSink_Write(t *testing.T) {
	client := new(clickhouse.MockClient)
	client.On("SetNetwork", "mainnet").Return()
	client.On("Start").Return(nil)
	client.On("Stop").Return(nil)
	client.On("Execute", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS cfg_")
	})).Return(nil).Twice()

	var (
		mu       sync.Mutex
		inserted = make(map[string]int)
	)

	client.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		input, _ := args.Get(2).(proto.Input)

		mu.Lock()
		inserted[args.String(1)] += input[0].Data.Rows()
		mu.Unlock()
	})

	sink := New(logrus.New(), client, testConfig(), "mainnet")
	assert.Equal(t, SinkName, sink.Name())

	ctx := context.Background()

	require.NoError(t, sink.Start(ctx))
	require.NoError(t, sink.Write(ctx, testutil.AnalyseJumpProgram(t, txHash)))
	require.NoError(t, sink.Stop(ctx))

	client.AssertExpectations(t)
	assert.Equal(t, map[string]int{"cfg_block": 2, "cfg_edge": 1}, inserted)
}

func TestSink_WriteFailure(t *testing.T) {
	errInsert := errors.New("too many parts")

	client := new(clickhouse.MockClient)
	client.On("SetNetwork", "mainnet").Return()
	client.On("Start").Return(nil)
	client.On("Stop").Return(nil)
	client.On("Insert", mock.Anything, "cfg_block", mock.Anything).Return(errInsert)
	client.On("Insert", mock.Anything, "cfg_edge", mock.Anything).Return(nil)

	config := testConfig()
	config.CreateTables = false

	sink := New(logrus.New(), client, config, "mainnet")

	ctx := context.Background()

	require.NoError(t, sink.Start(ctx))

	err := sink.Write(ctx, testutil.AnalyseJumpProgram(t, txHash))
	require.ErrorIs(t, err, errInsert)

	require.NoError(t, sink.Stop(ctx))
	client.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestSink_StartFailure(t *testing.T) {
	client := new(clickhouse.MockClient)
	client.On("SetNetwork", "mainnet").Return()
	client.On("Start").Return(clickhouse.ErrNotStarted)

	sink := New(logrus.New(), client, testConfig(), "mainnet")

	require.ErrorIs(t, sink.Start(context.Background()), clickhouse.ErrNotStarted)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, testConfig().Validate())

	c := testConfig()
	c.BlockTable = ""
	require.Error(t, c.Validate())

	c = testConfig()
	c.EdgeTable = c.BlockTable
	require.Error(t, c.Validate())
}
