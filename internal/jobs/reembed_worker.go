package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of retries for a failed job
	MaxRetries = 3
	// claimBatchSize bounds how many jobs one tick claims
	claimBatchSize = 20
)

// EmbeddingJobRepository defines the interface for embedding job persistence
type EmbeddingJobRepository interface {
	// ClaimPending marks up to limit pending jobs as processing and returns them
	ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error)

	// UpdateStatus updates the status of an embedding job
	UpdateStatus(ctx context.Context, jobID string, status domain.EmbeddingJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// Reembedder replaces fallback embeddings of a document with model embeddings
type Reembedder interface {
	ReembedDocument(ctx context.Context, documentID string) (int, error)
}

// ReembedWorker processes embedding jobs queued by ingestion when the model was unavailable
type ReembedWorker struct {
	repo    EmbeddingJobRepository
	service Reembedder
	logger  *slog.Logger
}

// NewReembedWorker creates a new ReembedWorker instance
func NewReembedWorker(repo EmbeddingJobRepository, service Reembedder, logger *slog.Logger) *ReembedWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReembedWorker{
		repo:    repo,
		service: service,
		logger:  logger.With("component", "reembed_worker"),
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *ReembedWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	w.logger.Info("processing pending embedding jobs", "count", len(jobs))

	ctx, txn := telemetry.StartTransaction(ctx, "ReembedWorker.ProcessJobs", "queue.process")
	defer txn.End()

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error("error processing job", "job_id", job.ID, "error", err)
		}
	}

	return nil
}

func (w *ReembedWorker) processJob(ctx context.Context, job *domain.EmbeddingJob) error {
	if job.DocumentID == "" {
		return fmt.Errorf("job %s has no document_id", job.ID)
	}

	w.logger.Debug("processing job", "job_id", job.ID, "document_id", job.DocumentID)
	telemetry.AddBreadcrumb(ctx, "reembed", job.DocumentID)

	updated, err := w.service.ReembedDocument(ctx, job.DocumentID)
	if err != nil {
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	w.logger.Info("job completed", "job_id", job.ID, "document_id", job.DocumentID, "chunks_updated", updated)
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *ReembedWorker) handleJobFailure(ctx context.Context, job *domain.EmbeddingJob, jobErr error) error {
	w.logger.Warn("job failed", "job_id", job.ID, "error", jobErr)

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		w.logger.Error("job exceeded max retries, marking as failed", "job_id", job.ID, "max_retries", MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		telemetry.CaptureMessage(ctx, fmt.Sprintf("embedding job %s for document %s failed: %v", job.ID, job.DocumentID, jobErr))
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	w.logger.Info("job will be retried", "job_id", job.ID, "attempt", job.Retries+1, "max_retries", MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
