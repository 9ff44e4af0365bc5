// Package testutil holds shared test fixtures: in-memory and containerised
// backends, and a small analysed program.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const (
	RedisImage      = "redis:7-alpine"
	ClickHouseImage = "clickhouse/clickhouse-server:24.8"
)

// NewMiniredis starts an in-memory Redis server that stops with the test.
func NewMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	return miniredis.RunT(t)
}

// NewMiniredisClient returns a client of a fresh in-memory Redis server.
func NewMiniredisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	s := NewMiniredis(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})

	t.Cleanup(func() { _ = client.Close() })

	return client, s
}

// NewRedisContainer starts a Redis container and returns a client and the
// redis:// URL of the server.
func NewRedisContainer(t *testing.T) (*redis.Client, string) {
	t.Helper()

	ctx := context.Background()

	c, err := tcredis.Run(ctx, RedisImage)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	testcontainers.CleanupContainer(t, c)

	url, err := c.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("failed to parse redis connection string: %v", err)
	}

	client := redis.NewClient(opts)

	t.Cleanup(func() { _ = client.Close() })

	return client, url
}

// ClickHouseConnection holds the native protocol endpoint of a container.
type ClickHouseConnection struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

func (c ClickHouseConnection) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewClickHouseContainer starts a ClickHouse container that stops with the
// test.
func NewClickHouseContainer(t *testing.T) ClickHouseConnection {
	t.Helper()

	ctx := context.Background()

	conn := ClickHouseConnection{Database: "default", Username: "default"}

	c, err := tcclickhouse.Run(ctx, ClickHouseImage,
		tcclickhouse.WithUsername(conn.Username),
		tcclickhouse.WithPassword(conn.Password),
		tcclickhouse.WithDatabase(conn.Database),
	)
	if err != nil {
		t.Fatalf("failed to start clickhouse container: %v", err)
	}

	testcontainers.CleanupContainer(t, c)

	if conn.Host, err = c.Host(ctx); err != nil {
		t.Fatalf("failed to get clickhouse host: %v", err)
	}

	port, err := c.MappedPort(ctx, "9000/tcp")
	if err != nil {
		t.Fatalf("failed to get clickhouse port: %v", err)
	}

	conn.Port = port.Int()

	return conn
}
