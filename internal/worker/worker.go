// Package worker runs background jobs: archive upload to S3.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/script-narration/backend/internal/metrics"
	"github.com/script-narration/backend/pkg/queue"
	"github.com/script-narration/backend/pkg/storage"
)

// ArchiveProcessor processes archive upload jobs: read the spooled session
// document, upload to S3, remove the spool file.
type ArchiveProcessor struct {
	s3     *storage.S3
	queue  *queue.Queue
	logger *zap.Logger
}

// NewArchiveProcessor creates an archive upload processor.
func NewArchiveProcessor(s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{s3: s3, queue: q, logger: logger}
}

// Process executes one archive upload job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeArchiveUpload {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ArchiveUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	f, err := os.Open(payload.Path)
	if err != nil {
		return fmt.Errorf("open spool file: %w", err)
	}
	defer f.Close()

	key := storage.ArchiveKey(payload.SessionID, payload.ArchiveID.String())
	if _, err := p.s3.Upload(ctx, key, storage.ContentTypeDocument, f); err != nil {
		metrics.ArchiveUploads.WithLabelValues("error").Inc()
		return fmt.Errorf("s3 upload: %w", err)
	}
	metrics.ArchiveUploads.WithLabelValues("ok").Inc()

	if err := os.Remove(payload.Path); err != nil {
		p.logger.Warn("remove spool file", zap.Error(err), zap.String("path", payload.Path))
	}
	p.logger.Info("archive upload completed",
		zap.String("archive_id", payload.ArchiveID.String()),
		zap.String("s3_key", key),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("archive worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
