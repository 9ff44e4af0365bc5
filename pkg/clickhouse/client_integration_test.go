//go:build integration

package clickhouse

import (
	"testing"

	"github.com/ClickHouse/ch-go/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-cfg/internal/testutil"
)

// Integration tests using testcontainers - run with: go test -tags=integration ./...

func newContainerClient(t *testing.T) *Client {
	t.Helper()

	conn := testutil.NewClickHouseContainer(t)

	client, err := New(&Config{
		Addr:     conn.Addr(),
		Database: conn.Database,
		Username: conn.Username,
		Password: conn.Password,
		Network:  "test",
	})
	require.NoError(t, err)

	require.NoError(t, client.Start())

	t.Cleanup(func() { _ = client.Stop() })

	return client
}

func TestClient_Integration_StartStop(t *testing.T) {
	client := newContainerClient(t)

	// Start is idempotent.
	require.NoError(t, client.Start())
	require.NoError(t, client.Execute(t.Context(), "SELECT 1"))
}

func TestClient_Integration_InsertAndCount(t *testing.T) {
	client := newContainerClient(t)

	require.NoError(t, client.Execute(t.Context(), `
		CREATE TABLE IF NOT EXISTS insert_check (
			id UInt64,
			name String
		) ENGINE = Memory
	`))

	var (
		id   proto.ColUInt64
		name proto.ColStr
	)

	id.Append(1)
	name.Append("a")
	id.Append(2)
	name.Append("b")

	require.NoError(t, client.Insert(t.Context(), "insert_check", proto.Input{
		{Name: "id", Data: &id},
		{Name: "name", Data: &name},
	}))

	count, err := client.QueryUInt64(t.Context(), "SELECT count() AS count FROM insert_check", "count")
	require.NoError(t, err)
	require.NotNil(t, count)
	assert.Equal(t, uint64(2), *count)

	require.NoError(t, client.Execute(t.Context(), "DROP TABLE IF EXISTS insert_check"))
}
