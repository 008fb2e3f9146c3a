package models

import "time"

// Progress event types
const (
	EventTypeSyncStarted   = "SYNC_STARTED"
	EventTypeSyncProgress  = "SYNC_PROGRESS"
	EventTypeItemRepriced  = "ITEM_REPRICED"
	EventTypeItemFailed    = "ITEM_FAILED"
	EventTypeSyncCompleted = "SYNC_COMPLETED"
	EventTypeSyncFailed    = "SYNC_FAILED"
)

// SyncEvent is one fire-and-forget progress notification for a store.
// Observers (dashboard stream, kafka consumers) render Message and may
// inspect Data for counts or item details.
type SyncEvent struct {
	EventID   string         `json:"event_id"`
	StoreID   string         `json:"store_id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
