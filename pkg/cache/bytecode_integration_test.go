//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-cfg/internal/testutil"
)

func TestBytecode_Integration_Container(t *testing.T) {
	client, _ := testutil.NewRedisContainer(t)
	c := NewBytecode(logrus.New(), client, "it", time.Minute)

	require.NoError(t, c.Set(context.Background(), 1, addr, "latest", []byte{0x5b, 0x00}))

	code, ok, err := c.Get(context.Background(), 1, addr, "latest")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x5b, 0x00}, code)
}
