package leads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/common"
	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/models"
	"github.com/leadflowhq/leadflow/internal/services/events"
	"github.com/leadflowhq/leadflow/internal/storage/badger"
)

func setupLeadsTest(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()

	cfg := common.DefaultConfig()
	cfg.Storage.Badger.Path = t.TempDir() + "/db"

	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	svc := NewService(
		manager.ListStorage(),
		manager.LeadStorage(),
		manager.JobStorage(),
		events.NewService(logger),
		logger,
	)
	return svc, manager
}

func TestCreateList(t *testing.T) {
	svc, _ := setupLeadsTest(t)

	list, err := svc.CreateList(context.Background(), &CreateListRequest{
		Name:   "Q3 Outbound",
		Source: "csv",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, list.ID)
	assert.Equal(t, 0, list.LeadCount)
}

func TestCreateList_Invalid(t *testing.T) {
	svc, _ := setupLeadsTest(t)

	_, err := svc.CreateList(context.Background(), &CreateListRequest{Name: ""})
	assert.Error(t, err)
}

func TestUpdateList_Partial(t *testing.T) {
	svc, _ := setupLeadsTest(t)
	ctx := context.Background()

	list, err := svc.CreateList(ctx, &CreateListRequest{Name: "Before", Source: "csv"})
	require.NoError(t, err)

	newName := "After"
	updated, err := svc.UpdateList(ctx, list.ID, &UpdateListRequest{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "After", updated.Name)
	assert.Equal(t, "csv", updated.Source, "unset fields stay as they were")
}

func TestImportLeads_UpdatesLeadCount(t *testing.T) {
	svc, manager := setupLeadsTest(t)
	ctx := context.Background()

	list, err := svc.CreateList(ctx, &CreateListRequest{Name: "Imports"})
	require.NoError(t, err)

	imported, err := svc.ImportLeads(ctx, list.ID, []*ImportLeadRequest{
		{Email: "a@example.com", FirstName: "Ada"},
		{Email: "b@example.com", Company: "Globex"},
	})
	require.NoError(t, err)
	assert.Len(t, imported, 2)

	got, err := manager.ListStorage().GetList(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.LeadCount)
}

func TestImportLeads_InvalidEmailRejectsBatch(t *testing.T) {
	svc, manager := setupLeadsTest(t)
	ctx := context.Background()

	list, err := svc.CreateList(ctx, &CreateListRequest{Name: "Imports"})
	require.NoError(t, err)

	_, err = svc.ImportLeads(ctx, list.ID, []*ImportLeadRequest{
		{Email: "ok@example.com"},
		{Email: "not-an-email"},
	})
	require.Error(t, err)

	// Nothing is written when any entry fails validation.
	count, err := manager.LeadStorage().CountLeads(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestImportLeads_EmptyPayload(t *testing.T) {
	svc, _ := setupLeadsTest(t)
	ctx := context.Background()

	list, err := svc.CreateList(ctx, &CreateListRequest{Name: "Imports"})
	require.NoError(t, err)

	_, err = svc.ImportLeads(ctx, list.ID, nil)
	assert.Error(t, err)
}

func TestDeleteList_Cascades(t *testing.T) {
	svc, manager := setupLeadsTest(t)
	ctx := context.Background()

	list, err := svc.CreateList(ctx, &CreateListRequest{Name: "Doomed"})
	require.NoError(t, err)

	_, err = svc.ImportLeads(ctx, list.ID, []*ImportLeadRequest{{Email: "a@example.com"}})
	require.NoError(t, err)

	job := models.NewPipelineJob(list.ID, models.StageValidate)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, job))

	require.NoError(t, svc.DeleteList(ctx, list.ID))

	_, err = manager.ListStorage().GetList(ctx, list.ID)
	assert.Error(t, err)

	count, err := manager.LeadStorage().CountLeads(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	jobs, err := manager.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{ListID: list.ID})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestListLeads_Pagination(t *testing.T) {
	svc, _ := setupLeadsTest(t)
	ctx := context.Background()

	list, err := svc.CreateList(ctx, &CreateListRequest{Name: "Paged"})
	require.NoError(t, err)

	batch := []*ImportLeadRequest{
		{Email: "a@example.com"},
		{Email: "b@example.com"},
		{Email: "c@example.com"},
	}
	_, err = svc.ImportLeads(ctx, list.ID, batch)
	require.NoError(t, err)

	page, total, err := svc.ListLeads(ctx, list.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, 3, total)
}
