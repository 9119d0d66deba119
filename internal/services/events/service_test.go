package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/interfaces"
)

func TestSubscribeAndPublishSync(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	ctx := context.Background()

	var received []interfaces.Event
	err := svc.Subscribe(interfaces.EventJobCreated, func(ctx context.Context, event interfaces.Event) error {
		received = append(received, event)
		return nil
	})
	require.NoError(t, err)

	err = svc.PublishSync(ctx, interfaces.Event{Type: interfaces.EventJobCreated, Payload: "job-1"})
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, "job-1", received[0].Payload)
}

func TestSubscribeNilHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.Error(t, svc.Subscribe(interfaces.EventJobCreated, nil))
}

func TestPublishAsync(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	handler := func(ctx context.Context, event interfaces.Event) error {
		wg.Done()
		return nil
	}

	require.NoError(t, svc.Subscribe(interfaces.EventJobUpdated, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventJobUpdated, handler))

	require.NoError(t, svc.Publish(ctx, interfaces.Event{Type: interfaces.EventJobUpdated}))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handlers were not invoked")
	}
}

func TestPublishSyncCollectsErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, svc.Subscribe(interfaces.EventJobFailed, func(ctx context.Context, event interfaces.Event) error {
		return fmt.Errorf("boom")
	}))

	err := svc.PublishSync(ctx, interfaces.Event{Type: interfaces.EventJobFailed})
	assert.Error(t, err)
}

func TestPublishNoSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventListChanged}))
}

func TestClose(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	require.NoError(t, svc.Subscribe(interfaces.EventJobCreated, func(ctx context.Context, event interfaces.Event) error {
		t.Fatal("handler must not run after Close")
		return nil
	}))
	require.NoError(t, svc.Close())

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobCreated}))
}
