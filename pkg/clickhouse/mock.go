package clickhouse

import (
	"context"

	"github.com/ClickHouse/ch-go/proto"
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of ClientInterface for use in tests.
type MockClient struct {
	mock.Mock
}

var _ ClientInterface = (*MockClient)(nil)

func (m *MockClient) Start() error {
	return m.Called().Error(0)
}

func (m *MockClient) Stop() error {
	return m.Called().Error(0)
}

func (m *MockClient) Execute(ctx context.Context, query string) error {
	return m.Called(ctx, query).Error(0)
}

func (m *MockClient) Insert(ctx context.Context, table string, input proto.Input) error {
	return m.Called(ctx, table, input).Error(0)
}

func (m *MockClient) QueryUInt64(ctx context.Context, query string, column string) (*uint64, error) {
	args := m.Called(ctx, query, column)

	v, _ := args.Get(0).(*uint64)

	return v, args.Error(1)
}

func (m *MockClient) SetNetwork(network string) {
	m.Called(network)
}
