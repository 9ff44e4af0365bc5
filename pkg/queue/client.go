package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-cfg/pkg/common"
)

// RedisOpt builds asynq connection options from an existing client. asynq
// gets its own connections so shutting it down does not close the shared
// client.
func RedisOpt(client *redis.Client) asynq.RedisClientOpt {
	opts := client.Options()

	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}
}

// Enqueuer submits analysis tasks.
type Enqueuer struct {
	log    logrus.FieldLogger
	config *Config
	client *asynq.Client
}

func NewEnqueuer(log logrus.FieldLogger, opt asynq.RedisConnOpt, config *Config) *Enqueuer {
	return &Enqueuer{
		log:    log.WithField("component", "enqueuer"),
		config: config,
		client: asynq.NewClient(opt),
	}
}

// Enqueue schedules an analysis. A task for the same transaction that is
// still queued or retained returns ErrAlreadyQueued.
func (e *Enqueuer) Enqueue(ctx context.Context, payload *AnalyzePayload) (*asynq.TaskInfo, error) {
	task, err := NewAnalyzeTask(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(e.config.Queue),
		asynq.MaxRetry(e.config.MaxRetry),
		asynq.Timeout(e.config.Timeout),
		asynq.Retention(e.config.Retention),
		asynq.TaskID(TaskID(payload)),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, payload.TxHash)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to enqueue analysis of %s: %w", payload.TxHash, err)
	}

	common.TasksEnqueued.WithLabelValues(e.config.Queue, AnalyzeTaskType).Inc()

	e.log.WithFields(logrus.Fields{
		"tx_hash": payload.TxHash,
		"task_id": info.ID,
	}).Debug("Enqueued analysis")

	return info, nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}
