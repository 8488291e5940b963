package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	// IngestionTopic carries article ingest and remove jobs.
	IngestionTopic = "ingestion"

	TaskTypeIngest = "ingest_article"
	TaskTypeRemove = "remove_article"
)

// Ingestor runs the actual pipeline work for a job.
type Ingestor interface {
	IngestArticle(ctx context.Context, articleID int64) error
	RemoveArticle(ctx context.Context, articleID int64) error
}

type JobService struct {
	publisher message.Publisher
	repo      JobRepository
	logger    watermill.LoggerAdapter
	ingestor  Ingestor
}

type JobMessage struct {
	JobID    int             `json:"job_id"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

// ArticlePayload identifies the article a job operates on.
type ArticlePayload struct {
	ArticleID int64 `json:"article_id"`
}

func NewJobService(
	publisher message.Publisher,
	repo JobRepository,
	logger watermill.LoggerAdapter,
	ingestor Ingestor,
) *JobService {
	return &JobService{
		publisher: publisher,
		repo:      repo,
		logger:    logger,
		ingestor:  ingestor,
	}
}

// EnqueueIngest records an ingest job for the article and publishes it.
func (s *JobService) EnqueueIngest(ctx context.Context, articleID int64) (*Job, error) {
	return s.enqueue(ctx, TaskTypeIngest, articleID)
}

// EnqueueRemove records a removal job for the article and publishes it.
func (s *JobService) EnqueueRemove(ctx context.Context, articleID int64) (*Job, error) {
	return s.enqueue(ctx, TaskTypeRemove, articleID)
}

func (s *JobService) enqueue(ctx context.Context, taskType string, articleID int64) (*Job, error) {
	payload, err := json.Marshal(ArticlePayload{ArticleID: articleID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job, err := s.repo.Create(ctx, taskType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	jobMsg := JobMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		Payload:  job.Payload,
	}
	msgPayload, err := json.Marshal(jobMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(IngestionTopic, msg); err != nil {
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	return job, nil
}

// GetJob returns a job by id, nil when it does not exist.
func (s *JobService) GetJob(ctx context.Context, id int) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// ListRecentJobs returns the newest jobs first.
func (s *JobService) ListRecentJobs(ctx context.Context, limit int) ([]Job, error) {
	return s.repo.ListRecent(ctx, limit)
}

// ProcessJobMessage processes a job message from the queue
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	ctx := context.Background()

	job, err := s.repo.Get(ctx, jobMsg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %d", jobMsg.JobID)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusRunning, nil); err != nil {
		return fmt.Errorf("failed to update job status to running: %w", err)
	}

	err = s.processJob(ctx, job)
	if err != nil {
		errStr := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, &errStr); updateErr != nil {
			s.logger.Error("Failed to update job status to failed", updateErr, watermill.LogFields{
				"job_id": job.ID,
			})
		}
		return fmt.Errorf("failed to process job: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	return nil
}

func (s *JobService) processJob(ctx context.Context, job *Job) error {
	var payload ArticlePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload for job %d: %w", job.ID, err)
	}

	switch job.TaskType {
	case TaskTypeIngest:
		return s.ingestor.IngestArticle(ctx, payload.ArticleID)
	case TaskTypeRemove:
		return s.ingestor.RemoveArticle(ctx, payload.ArticleID)
	default:
		return fmt.Errorf("unknown task type: %s", job.TaskType)
	}
}
