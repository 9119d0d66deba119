package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/models"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.PipelineJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.PipelineJob, error) {
	var job models.PipelineJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// LatestJob returns the most recent job row for the (list, stage) pair, or
// nil when no attempt has ever been made. Historical rows from re-runs are
// tolerated; the newest by creation time wins.
func (s *JobStorage) LatestJob(ctx context.Context, listID, stage string) (*models.PipelineJob, error) {
	var jobs []models.PipelineJob
	query := badgerhold.Where("ListID").Eq(listID).Index("ListID").
		And("Stage").Eq(stage).
		SortBy("CreatedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to query latest job: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.PipelineJob, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.ListID != "" {
			query = query.And("ListID").Eq(opts.ListID)
		}
		if opts.Stage != "" {
			query = query.And("Stage").Eq(opts.Stage)
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(models.JobStatus(opts.Status))
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.OrderBy != "" {
			if strings.EqualFold(opts.OrderDir, "desc") {
				query = query.SortBy(opts.OrderBy).Reverse()
			} else {
				query = query.SortBy(opts.OrderBy)
			}
		} else {
			query = query.SortBy("CreatedAt").Reverse()
		}
	} else {
		query = query.SortBy("CreatedAt").Reverse()
	}

	var jobs []models.PipelineJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.PipelineJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.PipelineJob{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *JobStorage) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.PipelineJob{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// GetStaleJobs finds non-terminal rows with no recent update. Pending rows
// are included: a remote function can ack the trigger and crash before its
// first report, and that row would otherwise wait forever.
func (s *JobStorage) GetStaleJobs(ctx context.Context, olderThan time.Duration) ([]*models.PipelineJob, error) {
	threshold := time.Now().Add(-olderThan)
	var jobs []models.PipelineJob
	err := s.db.Store().Find(&jobs,
		badgerhold.Where("Status").In(models.JobStatusPending, models.JobStatusProcessing).
			And("UpdatedAt").Lt(threshold))
	if err != nil {
		return nil, fmt.Errorf("failed to find stale jobs: %w", err)
	}

	result := make([]*models.PipelineJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.PipelineJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return err
	}
	return nil
}

func (s *JobStorage) DeleteJobsByList(ctx context.Context, listID string) error {
	err := s.db.Store().DeleteMatching(&models.PipelineJob{},
		badgerhold.Where("ListID").Eq(listID).Index("ListID"))
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete jobs for list %s: %w", listID, err)
	}
	return nil
}
