package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0xsequence/ethkit/ethrpc"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoVersion = errors.New("node version is not available")
	ErrNoChainID = errors.New("chain ID is not available")
)

type MetadataService struct {
	rpc *ethrpc.Provider
	log logrus.FieldLogger

	onReadyCallbacks []func(context.Context) error

	scheduler *gocron.Scheduler

	nodeVersion string
	chainID     int32
	synced      bool

	mu sync.RWMutex
}

func NewMetadataService(log logrus.FieldLogger, rpc *ethrpc.Provider) *MetadataService {
	return &MetadataService{
		rpc:              rpc,
		log:              log.WithField("module", "ethereum/execution/metadata"),
		onReadyCallbacks: []func(context.Context) error{},
	}
}

func (m *MetadataService) Start(ctx context.Context) error {
	m.log.Info("Starting metadata service")

	go func() {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		b.MaxElapsedTime = 2 * time.Minute

		operation := func() error {
			if err := m.RefreshAll(ctx); err != nil {
				m.log.WithError(err).Warn("Failed to refresh metadata, will retry")

				return err
			}

			if err := m.Ready(ctx); err != nil {
				m.log.WithError(err).Warn("Metadata not ready yet, will retry")

				return err
			}

			return nil
		}

		if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
			m.log.WithError(err).Error("Failed to refresh metadata after retries")

			return
		}

		for _, cb := range m.onReadyCallbacks {
			if err := cb(ctx); err != nil {
				m.log.WithError(err).Warn("Failed to execute onReady callback")
			}
		}

		m.log.WithFields(logrus.Fields{
			"node_version": m.ClientVersion(),
			"chain_id":     m.ChainID(),
		}).Info("Metadata service initialization completed")
	}()

	s := gocron.NewScheduler(time.Local)

	if _, err := s.Every("5m").Do(func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := m.RefreshAll(refreshCtx); err != nil {
			m.log.WithError(err).Warn("Failed to refresh metadata")
		}
	}); err != nil {
		return err
	}

	if _, err := s.Every("15s").Do(func() {
		syncCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := m.updateSyncStatus(syncCtx); err != nil {
			m.log.WithError(err).Warn("Failed to update sync status")
		}
	}); err != nil {
		return err
	}

	s.StartAsync()

	m.mu.Lock()
	m.scheduler = s
	m.mu.Unlock()

	return nil
}

func (m *MetadataService) Name() Name {
	return "metadata"
}

func (m *MetadataService) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scheduler != nil {
		m.scheduler.Stop()
		m.scheduler = nil
	}

	return nil
}

func (m *MetadataService) OnReady(_ context.Context, cb func(context.Context) error) {
	m.onReadyCallbacks = append(m.onReadyCallbacks, cb)
}

func (m *MetadataService) Ready(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.nodeVersion == "" {
		return ErrNoVersion
	}

	if m.chainID == 0 {
		return ErrNoChainID
	}

	return nil
}

func (m *MetadataService) web3ClientVersion(ctx context.Context) (string, error) {
	var version string

	call := ethrpc.NewCallBuilder[string]("web3_clientVersion", nil)

	if _, err := m.rpc.Do(ctx, call.Into(&version)); err != nil {
		return "", err
	}

	return version, nil
}

func (m *MetadataService) GetChainID(ctx context.Context) (int32, error) {
	var chainID string

	call := ethrpc.NewCallBuilder[string]("eth_chainId", nil)

	if _, err := m.rpc.Do(ctx, call.Into(&chainID)); err != nil {
		return 0, err
	}

	return parseChainID(chainID)
}

func parseChainID(raw string) (int32, error) {
	parsed, err := strconv.ParseInt(strings.TrimPrefix(raw, "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse chain ID %s: %w", raw, err)
	}

	return int32(parsed), nil
}

func (m *MetadataService) RefreshAll(ctx context.Context) error {
	version, err := m.web3ClientVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get client version: %w", err)
	}

	chainID, err := m.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}

	m.mu.Lock()
	m.nodeVersion = version
	m.chainID = chainID
	m.mu.Unlock()

	return nil
}

func (m *MetadataService) Client() Client {
	return ClientFromString(m.ClientVersion())
}

func (m *MetadataService) ClientVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.nodeVersion
}

func (m *MetadataService) updateSyncStatus(ctx context.Context) error {
	status, err := m.rpc.SyncProgress(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.synced = status == nil
	m.mu.Unlock()

	return nil
}

func (m *MetadataService) IsSynced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.synced
}

func (m *MetadataService) ChainID() int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.chainID
}
