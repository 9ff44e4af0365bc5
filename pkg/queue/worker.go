package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-cfg/pkg/analyzer"
	pcommon "github.com/ethpandaops/execution-cfg/pkg/common"
)

// Analyzer runs one analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error)
}

// Worker consumes analysis tasks.
type Worker struct {
	log      logrus.FieldLogger
	config   *Config
	analyzer Analyzer
	server   *asynq.Server
}

func NewWorker(log logrus.FieldLogger, opt asynq.RedisConnOpt, config *Config, a Analyzer) *Worker {
	log = log.WithField("component", "worker")

	return &Worker{
		log:      log,
		config:   config,
		analyzer: a,
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: config.Concurrency,
			Queues:      map[string]int{config.Queue: 1},
			LogLevel:    asynq.InfoLevel,
			Logger:      log,
		}),
	}
}

// Mux returns the handlers of every task type the worker consumes.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(AnalyzeTaskType, w.HandleAnalyze)

	return mux
}

// Start begins consuming tasks in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.Mux()); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}

	w.log.WithFields(logrus.Fields{
		"queue":       w.config.Queue,
		"concurrency": w.config.Concurrency,
	}).Info("Worker started")

	return nil
}

// Stop waits for running tasks and shuts the server down.
func (w *Worker) Stop() {
	w.server.Shutdown()
}

// HandleAnalyze runs the analysis a task describes. Malformed payloads are
// not retried.
func (w *Worker) HandleAnalyze(ctx context.Context, task *asynq.Task) error {
	start := time.Now()
	status := "success"

	defer func() {
		pcommon.TaskProcessingDuration.WithLabelValues(w.config.Queue, task.Type()).Observe(time.Since(start).Seconds())
		pcommon.TasksProcessed.WithLabelValues(w.config.Queue, task.Type(), status).Inc()
	}()

	req, err := decode(task.Payload())
	if err != nil {
		status = "invalid"

		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	log := w.log.WithField("tx_hash", req.TxHash)

	if _, err := w.analyzer.Analyze(ctx, req); err != nil {
		status = "failed"

		if errors.Is(err, analyzer.ErrInvalidHash) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		log.WithError(err).Warn("Analysis failed")

		return fmt.Errorf("failed to analyse %s: %w", req.TxHash, err)
	}

	log.WithField("duration", time.Since(start)).Debug("Analysis task completed")

	return nil
}

func decode(data []byte) (analyzer.Request, error) {
	var payload AnalyzePayload
	if err := payload.UnmarshalBinary(data); err != nil {
		return analyzer.Request{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if err := analyzer.ValidateHash(payload.TxHash); err != nil {
		return analyzer.Request{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	req := analyzer.Request{TxHash: payload.TxHash}

	if payload.Root != "" {
		if !common.IsHexAddress(payload.Root) {
			return analyzer.Request{}, fmt.Errorf("%w: root %q is not an address", ErrInvalidPayload, payload.Root)
		}

		root := common.HexToAddress(payload.Root)
		req.Root = &root
	}

	return req, nil
}
