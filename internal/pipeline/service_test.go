package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/common"
	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/models"
	"github.com/leadflowhq/leadflow/internal/services/events"
	"github.com/leadflowhq/leadflow/internal/services/invoker"
	"github.com/leadflowhq/leadflow/internal/services/sweeper"
	"github.com/leadflowhq/leadflow/internal/storage/badger"
)

// fakeInvoker records invocations and returns a scripted acknowledgment.
type fakeInvoker struct {
	mu    sync.Mutex
	ack   *invoker.Ack
	err   error
	calls []fakeCall
}

type fakeCall struct {
	stage  string
	listID string
	jobID  string
}

func (f *fakeInvoker) Invoke(ctx context.Context, stage, listID, jobID string) (*invoker.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{stage: stage, listID: listID, jobID: jobID})
	if f.err != nil {
		return nil, f.err
	}
	return f.ack, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setupPipelineTest(t *testing.T) (*Service, *fakeInvoker, interfaces.StorageManager) {
	t.Helper()

	cfg := common.DefaultConfig()
	cfg.Storage.Badger.Path = t.TempDir() + "/db"

	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	inv := &fakeInvoker{ack: &invoker.Ack{Success: true, Message: "accepted"}}
	svc := NewService(manager.JobStorage(), manager.ListStorage(), inv, events.NewService(logger), logger)

	return svc, inv, manager
}

func createTestList(t *testing.T, manager interfaces.StorageManager, leadCount int) *models.LeadList {
	t.Helper()
	list := models.NewLeadList("Q3 Outbound", "", "csv")
	list.LeadCount = leadCount
	require.NoError(t, manager.ListStorage().SaveList(context.Background(), list))
	return list
}

func TestTriggerStage_CreatesPendingJob(t *testing.T) {
	svc, inv, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 25)
	ctx := context.Background()

	job, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, list.ID, job.ListID)

	require.Len(t, inv.calls, 1)
	assert.Equal(t, models.StageValidate, inv.calls[0].stage)
	assert.Equal(t, job.ID, inv.calls[0].jobID)

	stored, err := manager.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
}

func TestTriggerStage_EmptyListUnavailable(t *testing.T) {
	svc, inv, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 0)

	_, err := svc.TriggerStage(context.Background(), list.ID, models.StageValidate)
	assert.ErrorIs(t, err, ErrStageUnavailable)
	assert.Empty(t, inv.calls)
}

func TestTriggerStage_UnknownStage(t *testing.T) {
	svc, _, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)

	_, err := svc.TriggerStage(context.Background(), list.ID, "deduplicate")
	assert.Error(t, err)
}

func TestTriggerStage_PredecessorGate(t *testing.T) {
	svc, _, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	ctx := context.Background()

	_, err := svc.TriggerStage(ctx, list.ID, models.StageCheckSalesforce)
	assert.ErrorIs(t, err, ErrStageUnavailable)

	// Complete validate, gate opens.
	job := models.NewPipelineJob(list.ID, models.StageValidate)
	job.MarkStarted(10)
	job.MarkCompleted(10, 0)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, job))

	triggered, err := svc.TriggerStage(ctx, list.ID, models.StageCheckSalesforce)
	require.NoError(t, err)
	assert.Equal(t, models.StageCheckSalesforce, triggered.Stage)
}

func TestTriggerStage_RejectionLeavesNoRow(t *testing.T) {
	svc, inv, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	inv.ack = &invoker.Ack{Success: false, Message: "No valid leads"}
	ctx := context.Background()

	_, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "No valid leads", rejected.Message)

	// The provisional row is rolled back.
	latest, err := manager.JobStorage().LatestJob(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)
	assert.Nil(t, latest)

	// And the stage is not stuck in progress.
	view, err := svc.View(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, StagePending, view.Stages[0].Status)
}

func TestTriggerStage_TransportErrorLeavesNoRow(t *testing.T) {
	svc, inv, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	inv.err = fmt.Errorf("connection refused")
	ctx := context.Background()

	_, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.Error(t, err)
	assert.False(t, errors.As(err, new(*RejectedError)))

	latest, err := manager.JobStorage().LatestJob(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestTriggerStage_BusyWhileProcessing(t *testing.T) {
	svc, _, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	ctx := context.Background()

	job := models.NewPipelineJob(list.ID, models.StageValidate)
	job.MarkStarted(10)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, job))

	_, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	assert.ErrorIs(t, err, ErrStageBusy)
}

func TestTriggerStage_ConcurrentTriggersCreateOneRun(t *testing.T) {
	svc, inv, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	ctx := context.Background()

	start := make(chan struct{})
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
			results <- err
		}()
	}
	close(start)

	var failed []error
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			failed = append(failed, err)
		}
	}
	require.Len(t, failed, 1, "exactly one trigger wins the slot")
	assert.ErrorIs(t, failed[0], ErrStageBusy)

	jobs, err := manager.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{
		ListID: list.ID,
		Stage:  models.StageValidate,
	})
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "only one row is created")
	assert.Equal(t, 1, inv.callCount(), "only one invocation goes out")
}

func TestTriggerStage_BusyWhileTriggerPending(t *testing.T) {
	svc, _, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	ctx := context.Background()

	_, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)

	// The acked run has not reported yet; a second trigger must wait.
	_, err = svc.TriggerStage(ctx, list.ID, models.StageValidate)
	assert.ErrorIs(t, err, ErrStageBusy)
}

func TestTriggerStage_SweptStaleRunUnblocksStage(t *testing.T) {
	svc, _, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	ctx := context.Background()

	job, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)

	// The function acked and then died: the row sits pending with no
	// reports until the sweeper fails it.
	job.UpdatedAt = time.Now().Add(-24 * time.Hour)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, job))

	logger := arbor.NewLogger()
	sw := sweeper.NewService(manager.JobStorage(), events.NewService(logger), logger, "*/5 * * * *", 15*time.Minute)
	require.NoError(t, sw.Sweep(ctx))

	// A re-trigger succeeds straight away, with no view read or process
	// restart needed to shake the stale in-flight flag loose.
	rerun, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, rerun.ID)
	assert.Equal(t, models.JobStatusPending, rerun.Status)
}

func TestView_SweptStaleRunSettles(t *testing.T) {
	svc, _, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	ctx := context.Background()

	job, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)

	job.UpdatedAt = time.Now().Add(-24 * time.Hour)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, job))

	logger := arbor.NewLogger()
	sw := sweeper.NewService(manager.JobStorage(), events.NewService(logger), logger, "*/5 * * * *", 15*time.Minute)
	require.NoError(t, sw.Sweep(ctx))

	// The view reflects the failure instead of a perpetual in-progress,
	// so the watcher can stop polling.
	view, err := svc.View(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, StageFailed, view.Stages[0].Status)
	assert.True(t, view.Settled())
}

func TestView_NoJobs(t *testing.T) {
	svc, _, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)

	view, err := svc.View(context.Background(), list.ID)
	require.NoError(t, err)
	require.Len(t, view.Stages, 4)

	assert.True(t, view.Stages[0].Available, "first stage opens once leads exist")
	for i, stage := range view.Stages {
		assert.Equal(t, StagePending, stage.Status)
		if i > 0 {
			assert.False(t, stage.Available)
		}
	}
	assert.True(t, view.Settled())
}

func TestView_OptimisticTriggerState(t *testing.T) {
	svc, _, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	ctx := context.Background()

	_, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)

	view, err := svc.View(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, StageInProgress, view.Stages[0].Status)
	assert.False(t, view.Settled())
}

func TestView_RerunKeepsSuccessorAvailable(t *testing.T) {
	svc, _, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	ctx := context.Background()

	done := models.NewPipelineJob(list.ID, models.StageValidate)
	done.MarkStarted(10)
	done.MarkCompleted(10, 0)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, done))

	// Re-run validate; the new row is pending.
	_, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)

	view, err := svc.View(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, StageInProgress, view.Stages[0].Status)
	assert.True(t, view.Stages[1].Available, "a historical completed run keeps the gate open")
}

func TestView_InflightClearsWhenJobProgresses(t *testing.T) {
	svc, _, manager := setupPipelineTest(t)
	list := createTestList(t, manager, 10)
	ctx := context.Background()

	job, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)

	// Remote function reports completion out-of-band.
	job.MarkStarted(10)
	job.MarkCompleted(10, 0)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, job))

	view, err := svc.View(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, view.Stages[0].Status)
	assert.True(t, view.Settled())
}
