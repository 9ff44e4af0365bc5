// Package cache keeps contract bytecode in redis so repeated analyses of
// the same contracts skip eth_getCode.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	pcommon "github.com/ethpandaops/execution-cfg/pkg/common"
)

// CodeSource returns the deployed bytecode of an address.
type CodeSource interface {
	GetCode(ctx context.Context, address common.Address, block string) ([]byte, error)
}

type Bytecode struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewBytecode(log logrus.FieldLogger, client *redis.Client, prefix string, ttl time.Duration) *Bytecode {
	return &Bytecode{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log.WithField("component", "cache"),
	}
}

func (c *Bytecode) key(chainID int32, address common.Address, block string) string {
	return fmt.Sprintf("%s:code:%d:%s:%s", c.prefix, chainID, block, strings.ToLower(address.Hex()))
}

// Get returns cached code. ok is false on a miss; an address without code is
// a hit with empty code.
func (c *Bytecode) Get(ctx context.Context, chainID int32, address common.Address, block string) (code []byte, ok bool, err error) {
	code, err = c.client.Get(ctx, c.key(chainID, address, block)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read code of %s: %w", address.Hex(), err)
	}

	return code, true, nil
}

func (c *Bytecode) Set(ctx context.Context, chainID int32, address common.Address, block string, code []byte) error {
	if err := c.client.Set(ctx, c.key(chainID, address, block), code, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache code of %s: %w", address.Hex(), err)
	}

	return nil
}

type cachedSource struct {
	cache   *Bytecode
	source  CodeSource
	chainID int32
}

// Wrap returns a CodeSource that consults the cache before source. Cache
// failures are logged and fall through to source.
func (c *Bytecode) Wrap(source CodeSource, chainID int32) CodeSource {
	return &cachedSource{cache: c, source: source, chainID: chainID}
}

func (s *cachedSource) GetCode(ctx context.Context, address common.Address, block string) ([]byte, error) {
	code, ok, err := s.cache.Get(ctx, s.chainID, address, block)

	switch {
	case err != nil:
		pcommon.CacheRequests.WithLabelValues("error").Inc()
		s.cache.log.WithError(err).Warn("Bytecode cache lookup failed")
	case ok:
		pcommon.CacheRequests.WithLabelValues("hit").Inc()

		return code, nil
	default:
		pcommon.CacheRequests.WithLabelValues("miss").Inc()
	}

	code, err = s.source.GetCode(ctx, address, block)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, s.chainID, address, block, code); err != nil {
		s.cache.log.WithError(err).Warn("Failed to store bytecode")
	}

	return code, nil
}
