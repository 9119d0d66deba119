package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/models"
)

func TestListStorage_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	storage := NewListStorage(db, arbor.NewLogger())
	ctx := context.Background()

	list := models.NewLeadList("Q3 Outbound", "Conference scans", "csv")
	require.NoError(t, storage.SaveList(ctx, list))

	got, err := storage.GetList(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q3 Outbound", got.Name)
	assert.Equal(t, "csv", got.Source)
	assert.Equal(t, 0, got.LeadCount)
}

func TestListStorage_SaveRejectsInvalid(t *testing.T) {
	db := setupTestDB(t)
	storage := NewListStorage(db, arbor.NewLogger())

	list := models.NewLeadList("", "", "")
	assert.Error(t, storage.SaveList(context.Background(), list))
}

func TestListStorage_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	storage := NewListStorage(db, arbor.NewLogger())

	_, err := storage.GetList(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListStorage_ListAndCount(t *testing.T) {
	db := setupTestDB(t)
	storage := NewListStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for i, name := range []string{"first", "second", "third"} {
		list := models.NewLeadList(name, "", "csv")
		list.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, storage.SaveList(ctx, list))
	}

	lists, err := storage.ListLists(ctx, &interfaces.ListListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "third", lists[0].Name, "newest first")

	count, err := storage.CountLists(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestListStorage_Delete(t *testing.T) {
	db := setupTestDB(t)
	storage := NewListStorage(db, arbor.NewLogger())
	ctx := context.Background()

	list := models.NewLeadList("gone", "", "")
	require.NoError(t, storage.SaveList(ctx, list))
	require.NoError(t, storage.DeleteList(ctx, list.ID))

	_, err := storage.GetList(ctx, list.ID)
	assert.Error(t, err)

	assert.NoError(t, storage.DeleteList(ctx, "nope"))
}

func TestLeadStorage_SaveListCount(t *testing.T) {
	db := setupTestDB(t)
	storage := NewLeadStorage(db, arbor.NewLogger())
	ctx := context.Background()

	leads := []*models.Lead{
		models.NewLead("list-1", "a@example.com"),
		models.NewLead("list-1", "b@example.com"),
		models.NewLead("list-2", "c@example.com"),
	}
	require.NoError(t, storage.SaveLeads(ctx, leads))

	got, err := storage.ListLeads(ctx, "list-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	count, err := storage.CountLeads(ctx, "list-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, storage.DeleteLeadsByList(ctx, "list-1"))
	count, err = storage.CountLeads(ctx, "list-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Other lists untouched.
	count, err = storage.CountLeads(ctx, "list-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
