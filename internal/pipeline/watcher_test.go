package pipeline

import (
	"context"
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
	"github.com/leadflowhq/leadflow/internal/storage/badger"
)

func setupWatcherTest(t *testing.T) (*Watcher, *Service, *models.LeadList, chan *View) {
	t.Helper()

	cfg := common.DefaultConfig()
	cfg.Storage.Badger.Path = t.TempDir() + "/db"

	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	eventService := events.NewService(logger)
	inv := &fakeInvoker{ack: &invoker.Ack{Success: true}}
	svc := NewService(manager.JobStorage(), manager.ListStorage(), inv, eventService, logger)
	watcher := NewWatcher(svc, eventService, logger, 20*time.Millisecond)
	t.Cleanup(watcher.Stop)

	list := models.NewLeadList("Watched", "", "csv")
	list.LeadCount = 5
	require.NoError(t, manager.ListStorage().SaveList(context.Background(), list))

	updates := make(chan *View, 32)
	eventService.Subscribe(interfaces.EventPipelineUpdated, func(ctx context.Context, event interfaces.Event) error {
		if view, ok := event.Payload.(*View); ok {
			updates <- view
		}
		return nil
	})

	return watcher, svc, list, updates
}

func waitForView(t *testing.T, updates chan *View, match func(*View) bool) *View {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case view := <-updates:
			if match(view) {
				return view
			}
		case <-deadline:
			t.Fatal("timed out waiting for pipeline view update")
			return nil
		}
	}
}

func TestWatcher_PublishesChanges(t *testing.T) {
	watcher, svc, list, updates := setupWatcherTest(t)
	ctx := context.Background()

	job, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)

	watcher.Watch(list.ID)

	// First snapshot shows the optimistic in-progress state.
	waitForView(t, updates, func(v *View) bool {
		return v.Stages[0].Status == StageInProgress
	})

	// Remote function completes the job; the watcher picks it up.
	job.MarkStarted(5)
	job.MarkCompleted(5, 0)
	require.NoError(t, svc.jobs.SaveJob(ctx, job))

	view := waitForView(t, updates, func(v *View) bool {
		return v.Stages[0].Status == StageCompleted
	})
	assert.True(t, view.Settled())
}

func TestWatcher_StopsWhenSettled(t *testing.T) {
	watcher, _, list, _ := setupWatcherTest(t)

	watcher.Watch(list.ID)

	// Nothing is running, so the watch should retire itself.
	require.Eventually(t, func() bool {
		watcher.mu.Lock()
		defer watcher.mu.Unlock()
		_, running := watcher.watches[list.ID]
		return !running
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcher_RetiringWatchKeepsSuccessor(t *testing.T) {
	watcher, svc, list, _ := setupWatcherTest(t)
	ctx := context.Background()

	_, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)

	watcher.Watch(list.ID)
	watcher.mu.Lock()
	first := watcher.watches[list.ID]
	watcher.mu.Unlock()
	require.NotNil(t, first)

	// Restart the watch, then run the retired goroutine's cleanup against
	// the old entry. The successor must survive it.
	watcher.Unwatch(list.ID)
	watcher.Watch(list.ID)
	watcher.release(list.ID, first)

	watcher.mu.Lock()
	current := watcher.watches[list.ID]
	watcher.mu.Unlock()
	require.NotNil(t, current)
	assert.NotSame(t, first, current)
}

func TestWatcher_WatchIsIdempotent(t *testing.T) {
	watcher, svc, list, _ := setupWatcherTest(t)
	ctx := context.Background()

	_, err := svc.TriggerStage(ctx, list.ID, models.StageValidate)
	require.NoError(t, err)

	watcher.Watch(list.ID)
	watcher.Watch(list.ID)

	watcher.mu.Lock()
	count := len(watcher.watches)
	watcher.mu.Unlock()
	assert.Equal(t, 1, count)
}
