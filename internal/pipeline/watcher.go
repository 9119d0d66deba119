package pipeline

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/common"
	"github.com/leadflowhq/leadflow/internal/interfaces"
)

// Watcher polls the pipeline view for lists with activity and publishes a
// pipeline-updated event whenever the view changes. Each watched list gets
// its own goroutine; a watch stops itself once the view settles, so the
// steady state with no running jobs is zero polling.
type Watcher struct {
	service  *Service
	events   interfaces.EventService
	logger   arbor.ILogger
	interval time.Duration

	mu      sync.Mutex
	watches map[string]*watch
	wg      sync.WaitGroup
}

// watch identifies one poll goroutine. Retiring goroutines compare entries
// by identity so a watch restarted for the same list is never torn down by
// its predecessor's cleanup.
type watch struct {
	cancel context.CancelFunc
}

// NewWatcher creates a watcher polling at the given interval.
func NewWatcher(service *Service, events interfaces.EventService, logger arbor.ILogger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Watcher{
		service:  service,
		events:   events,
		logger:   logger,
		interval: interval,
		watches:  make(map[string]*watch),
	}
}

// Watch starts polling the list's pipeline view. Calling Watch for a list
// already being watched is a no-op, so triggers and ingest updates can both
// call it unconditionally.
func (w *Watcher) Watch(listID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, running := w.watches[listID]; running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &watch{cancel: cancel}
	w.watches[listID] = entry
	w.wg.Add(1)

	go w.run(ctx, listID, entry)

	w.logger.Debug().Str("list_id", listID).Msg("Pipeline watch started")
}

// Unwatch stops polling the list, if it is being watched.
func (w *Watcher) Unwatch(listID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if entry, ok := w.watches[listID]; ok {
		entry.cancel()
		delete(w.watches, listID)
	}
}

// Stop cancels all watches and waits for the poll goroutines to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for listID, entry := range w.watches {
		entry.cancel()
		delete(w.watches, listID)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context, listID string, entry *watch) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("list_id", listID).
				Str("stack", common.GetStackTrace()).
				Msgf("Pipeline watch panicked: %v", r)
		}
		w.release(listID, entry)
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last *View

	// Poll immediately so the first change lands before one full interval.
	// The settled check is deferred to the ticker: a watch started by a
	// trigger may briefly observe the pre-trigger view.
	last, ok := w.poll(ctx, listID, nil)
	if !ok {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last, ok = w.poll(ctx, listID, last)
			if !ok {
				return
			}
			if last != nil && last.Settled() {
				w.logger.Debug().Str("list_id", listID).Msg("Pipeline settled, watch stopping")
				return
			}
		}
	}
}

// release retires a goroutine's own watch entry. A successor watch started
// for the same list after an Unwatch or Stop has its own entry and is left
// untouched.
func (w *Watcher) release(listID string, entry *watch) {
	entry.cancel()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watches[listID] == entry {
		delete(w.watches, listID)
	}
}

// poll reads the current view, publishes an update event when it differs
// from the previous snapshot, and returns the snapshot to compare against
// next tick. On a transient read error the previous snapshot is retained so
// no spurious change is emitted; a deleted list ends the watch (ok=false).
func (w *Watcher) poll(ctx context.Context, listID string, last *View) (*View, bool) {
	view, err := w.service.View(ctx, listID)
	if err != nil {
		if ctx.Err() != nil {
			return last, false
		}
		if strings.Contains(err.Error(), "not found") {
			w.logger.Debug().Str("list_id", listID).Msg("List gone, watch stopping")
			return last, false
		}
		w.logger.Warn().Err(err).Str("list_id", listID).Msg("Pipeline poll failed")
		return last, true
	}

	if last == nil || !reflect.DeepEqual(view, last) {
		w.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventPipelineUpdated,
			Payload: view,
		})
	}

	return view, true
}
