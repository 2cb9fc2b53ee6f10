package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"

	"github.com/segmentio/kafka-go"
)

// NotificationPublisher publishes notification events
type NotificationPublisher struct {
	producer *Producer
}

// NewNotificationPublisher creates a new notification publisher
func NewNotificationPublisher(producer *Producer) *NotificationPublisher {
	return &NotificationPublisher{producer: producer}
}

// PublishNotification publishes a notification event keyed by user so a
// user's notifications stay ordered within a partition.
func (np *NotificationPublisher) PublishNotification(ctx context.Context, event *models.NotificationEvent) error {
	key := fmt.Sprintf("user-%d", event.UserID)
	return np.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes consumed broker messages to typed handlers
type EventHandler struct {
	onNotification func(context.Context, *models.NotificationEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnNotification registers a handler for notification events
func (eh *EventHandler) OnNotification(handler func(context.Context, *models.NotificationEvent) error) {
	eh.onNotification = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeNotification:
		if eh.onNotification != nil {
			var event models.NotificationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal notification event: %w", err)
			}
			return eh.onNotification(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
