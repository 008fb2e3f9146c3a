package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToStoreSubscribers(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("store-1")
	defer cancel()

	hub.Emit("store-1", "SYNC_STARTED", "sync started", nil)
	hub.Emit("store-2", "SYNC_STARTED", "other store", nil)

	select {
	case event := <-ch:
		assert.Equal(t, "store-1", event.StoreID)
		assert.Equal(t, "SYNC_STARTED", event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an event for store-1")
	}

	select {
	case event := <-ch:
		t.Fatalf("unexpected cross-store event: %+v", event)
	default:
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("store-1")
	cancel()

	hub.Emit("store-1", "SYNC_PROGRESS", "tick", nil)

	select {
	case _, ok := <-ch:
		require.False(t, ok, "no event should arrive after unsubscribe")
	default:
	}
}

func TestHubNeverBlocksWithoutSubscribers(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Emit("store-1", "SYNC_PROGRESS", "tick", map[string]any{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked without subscribers")
	}
}

func TestFanoutForwardsToAllEmitters(t *testing.T) {
	hub1 := NewHub()
	hub2 := NewHub()
	ch1, cancel1 := hub1.Subscribe("store-1")
	defer cancel1()
	ch2, cancel2 := hub2.Subscribe("store-1")
	defer cancel2()

	Fanout{hub1, hub2}.Emit("store-1", "SYNC_COMPLETED", "done", nil)

	select {
	case event := <-ch1:
		assert.Equal(t, "SYNC_COMPLETED", event.Type)
	case <-time.After(time.Second):
		t.Fatal("first emitter missed the event")
	}
	select {
	case event := <-ch2:
		assert.Equal(t, "SYNC_COMPLETED", event.Type)
	case <-time.After(time.Second):
		t.Fatal("second emitter missed the event")
	}
}
