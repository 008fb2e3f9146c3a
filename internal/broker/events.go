package broker

import (
	"context"
	"time"

	"pricesync-service/internal/models"
	"pricesync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher broadcasts sync progress events to the kafka stream.
// Emission is fire-and-forget: publish failures are logged and swallowed so
// a broker outage never fails a sync.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		logger:   util.GetLogger(),
	}
}

// Emit publishes one progress event for a store.
func (ep *EventPublisher) Emit(storeID, eventType, message string, data map[string]any) {
	event := models.SyncEvent{
		EventID:   uuid.New().String(),
		StoreID:   storeID,
		Type:      eventType,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ep.producer.PublishEvent(ctx, "store-"+storeID, event); err != nil {
		ep.logger.Error("Failed to publish sync event",
			zap.String("store_id", storeID),
			zap.String("type", eventType),
			zap.Error(err))
	}
}
