package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/execution-cfg/pkg/analyzer"
	"github.com/ethpandaops/execution-cfg/pkg/api"
	"github.com/ethpandaops/execution-cfg/pkg/cache"
	"github.com/ethpandaops/execution-cfg/pkg/clickhouse"
	"github.com/ethpandaops/execution-cfg/pkg/ethereum"
	"github.com/ethpandaops/execution-cfg/pkg/observability"
	"github.com/ethpandaops/execution-cfg/pkg/output"
	"github.com/ethpandaops/execution-cfg/pkg/queue"
	"github.com/ethpandaops/execution-cfg/pkg/redis"
	"github.com/ethpandaops/execution-cfg/pkg/storage"
)

type Server struct {
	log       logrus.FieldLogger
	config    *Config
	namespace string

	redis    *r.Client
	pool     *ethereum.Pool
	enqueuer *queue.Enqueuer
	handler  *api.Handler
	memory   *MemoryStatsCollector

	mu      sync.Mutex
	worker  *queue.Worker
	storage *storage.Sink

	apiServer    *http.Server
	pprofServer  *http.Server
	healthServer *http.Server
}

func NewServer(ctx context.Context, log logrus.FieldLogger, namespace string, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	redisClient, err := redis.New(config.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	pool := ethereum.NewPool(log, &config.Ethereum)
	enqueuer := queue.NewEnqueuer(log, queue.RedisOpt(redisClient), &config.Queue)

	return &Server{
		config:    config,
		log:       log,
		namespace: namespace,
		redis:     redisClient,
		pool:      pool,
		enqueuer:  enqueuer,
		handler:   api.NewHandler(log, enqueuer, &config.Analyzer.CFG),
		memory:    NewMemoryStatsCollector(log, config.MemoryMonitor),
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return observability.StartMetricsServer(ctx, s.log, s.config.MetricsAddr)
	})

	mux := http.NewServeMux()
	s.handler.RegisterRoutes(mux)

	s.apiServer = &http.Server{
		Addr:              s.config.APIAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	g.Go(func() error {
		return s.listen("api", s.apiServer)
	})

	if s.config.PProfAddr != nil {
		s.pprofServer = &http.Server{
			Addr:              *s.config.PProfAddr,
			ReadHeaderTimeout: 120 * time.Second,
		}

		g.Go(func() error {
			return s.listen("pprof", s.pprofServer)
		})
	}

	if s.config.HealthCheckAddr != nil {
		s.healthServer = &http.Server{
			Addr:              *s.config.HealthCheckAddr,
			Handler:           http.HandlerFunc(s.health),
			ReadHeaderTimeout: 120 * time.Second,
		}

		g.Go(func() error {
			return s.listen("healthcheck", s.healthServer)
		})
	}

	g.Go(func() error {
		s.pool.Start(ctx)

		return nil
	})

	g.Go(func() error {
		return s.startWorker(ctx)
	})

	s.memory.Start(ctx)

	// Wait for shutdown signal
	g.Go(func() error {
		<-ctx.Done()

		return s.stop()
	})

	return g.Wait()
}

func (s *Server) listen(name string, srv *http.Server) error {
	s.log.WithField("addr", srv.Addr).Infof("Starting %s server", name)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}

	return nil
}

// health reports ready once an execution node is healthy.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.pool.HasHealthyExecutionNodes() {
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

// startWorker waits for a healthy node, wires the analyzer to the sinks and
// starts consuming tasks.
func (s *Server) startWorker(ctx context.Context) error {
	node, err := s.pool.WaitForHealthyExecutionNode(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("failed to wait for healthy execution node: %w", err)
	}

	network, err := s.pool.GetNetworkByChainID(node.ChainID())
	if err != nil {
		return fmt.Errorf("failed to get network by chain ID: %w", err)
	}

	log := s.log.WithField("network", network.Name)

	var code analyzer.CodeSource = s.pool

	if s.config.Cache.Enabled {
		code = cache.NewBytecode(log, s.redis, s.config.Redis.Prefix, s.config.Cache.TTL).Wrap(s.pool, network.ID)
	}

	var sinks []analyzer.Sink

	if s.config.Output != nil {
		sinks = append(sinks, output.New(log, s.config.Output))
	}

	if s.config.ClickHouse != nil {
		client, err := clickhouse.New(s.config.ClickHouse)
		if err != nil {
			return fmt.Errorf("failed to create clickhouse client: %w", err)
		}

		sink := storage.New(log, client, &s.config.Storage, network.Name)
		if err := sink.Start(ctx); err != nil {
			return fmt.Errorf("failed to start storage: %w", err)
		}

		s.mu.Lock()
		s.storage = sink
		s.mu.Unlock()

		sinks = append(sinks, sink)
	}

	a := analyzer.New(log, &s.config.Analyzer, code, s.pool, sinks...)
	worker := queue.NewWorker(log, queue.RedisOpt(s.redis), &s.config.Queue, a)

	if ctx.Err() != nil {
		return nil
	}

	if err := worker.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	s.worker = worker
	s.mu.Unlock()

	log.WithField("sinks", len(sinks)).Info("Analysis worker running")

	return nil
}

func (s *Server) stop() error {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	if err := s.apiServer.Shutdown(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to shutdown api server")
	}

	s.mu.Lock()
	worker, sink := s.worker, s.storage
	s.mu.Unlock()

	if worker != nil {
		s.log.Info("Stopping worker...")
		worker.Stop()
	}

	if sink != nil {
		if err := sink.Stop(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to stop storage")
		}
	}

	if err := s.enqueuer.Close(); err != nil {
		s.log.WithError(err).Error("failed to close enqueuer")
	}

	s.memory.Stop()

	if err := s.pool.Stop(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop pool")
	}

	if err := s.redis.Close(); err != nil {
		s.log.WithError(err).Error("failed to close redis")
	}

	for name, srv := range map[string]*http.Server{"pprof": s.pprofServer, "health": s.healthServer} {
		if srv == nil {
			continue
		}

		if err := srv.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Errorf("failed to shutdown %s server", name)
		}
	}

	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}

	s.log.Info("Server stopped gracefully")

	return nil
}
