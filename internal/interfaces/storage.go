package interfaces

import (
	"context"
	"time"

	"github.com/leadflowhq/leadflow/internal/models"
)

// JobListOptions filters and pages job listings.
type JobListOptions struct {
	ListID   string
	Stage    string
	Status   string
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// JobStorage persists pipeline job rows. Rows are append-mostly: a re-run
// creates a new row, and terminal rows are never updated again.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.PipelineJob) error
	GetJob(ctx context.Context, jobID string) (*models.PipelineJob, error)

	// LatestJob returns the most recent job row for a (list, stage) pair by
	// creation time, or nil when no attempt has ever been made.
	LatestJob(ctx context.Context, listID, stage string) (*models.PipelineJob, error)

	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.PipelineJob, error)
	CountJobs(ctx context.Context) (int, error)
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)

	// GetStaleJobs returns non-terminal jobs (pending or processing) whose
	// last update is older than the threshold. Used by the sweeper to fail
	// abandoned runs.
	GetStaleJobs(ctx context.Context, olderThan time.Duration) ([]*models.PipelineJob, error)

	DeleteJob(ctx context.Context, jobID string) error
	DeleteJobsByList(ctx context.Context, listID string) error
}

// ListListOptions pages lead-list listings.
type ListListOptions struct {
	Limit  int
	Offset int
}

// ListStorage persists lead lists.
type ListStorage interface {
	SaveList(ctx context.Context, list *models.LeadList) error
	GetList(ctx context.Context, listID string) (*models.LeadList, error)
	ListLists(ctx context.Context, opts *ListListOptions) ([]*models.LeadList, error)
	CountLists(ctx context.Context) (int, error)
	DeleteList(ctx context.Context, listID string) error
}

// LeadStorage persists leads owned by lists.
type LeadStorage interface {
	SaveLeads(ctx context.Context, leads []*models.Lead) error
	ListLeads(ctx context.Context, listID string, limit, offset int) ([]*models.Lead, error)
	CountLeads(ctx context.Context, listID string) (int, error)
	DeleteLeadsByList(ctx context.Context, listID string) error
}

// StorageManager composes the storage interfaces over one connection.
type StorageManager interface {
	JobStorage() JobStorage
	ListStorage() ListStorage
	LeadStorage() LeadStorage
	Close() error
}
