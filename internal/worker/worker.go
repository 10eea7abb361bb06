package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/movieclub/backend/pkg/queue"
)

// ObjectDeleter removes stored objects.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, bucket, key string) error
}

// JobSource hands out jobs and takes failed ones back.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// AvatarCleanupProcessor deletes avatar objects of deleted groups.
type AvatarCleanupProcessor struct {
	objects ObjectDeleter
	queue   JobSource
	logger  *zap.Logger

	pollTimeout time.Duration
	backoff     time.Duration
}

// NewAvatarCleanupProcessor creates an avatar cleanup processor.
func NewAvatarCleanupProcessor(objects ObjectDeleter, q JobSource, logger *zap.Logger) *AvatarCleanupProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvatarCleanupProcessor{
		objects:     objects,
		queue:       q,
		logger:      logger,
		pollTimeout: 5 * time.Second,
		backoff:     queue.RetryBackoff,
	}
}

// Process executes one avatar cleanup job.
func (p *AvatarCleanupProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAvatarCleanup {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.AvatarCleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.Bucket == "" || payload.Key == "" {
		return fmt.Errorf("avatar cleanup job %s: missing bucket or key", job.ID)
	}
	if err := p.objects.DeleteObject(ctx, payload.Bucket, payload.Key); err != nil {
		return err
	}
	p.logger.Info("group avatar deleted",
		zap.Int64("group_id", payload.GroupID),
		zap.String("key", payload.Key),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *AvatarCleanupProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("avatar cleanup worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, p.backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			sleep(ctx, p.backoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
