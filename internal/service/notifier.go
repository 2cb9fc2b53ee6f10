package service

import (
	"context"
	"time"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/broker"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier publishes user notifications fire-and-forget. A publish failure
// is logged and swallowed; it never affects the financial transaction that
// triggered it.
type Notifier struct {
	publisher *broker.NotificationPublisher
	logger    *zap.Logger
}

// NewNotifier creates a new notifier
func NewNotifier(publisher *broker.NotificationPublisher) *Notifier {
	return &Notifier{
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Notify publishes a notification event for the user
func (n *Notifier) Notify(ctx context.Context, userID, eventID int64, kind, body string, paymentID int64) {
	if n.publisher == nil {
		return
	}

	event := &models.NotificationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeNotification,
			Timestamp: time.Now(),
		},
		UserID:    userID,
		EventRef:  eventID,
		Kind:      kind,
		Body:      body,
		PaymentID: paymentID,
	}

	if err := n.publisher.PublishNotification(ctx, event); err != nil {
		n.logger.Error("Failed to publish notification",
			zap.Int64("user_id", userID),
			zap.Int64("event_id", eventID),
			zap.String("kind", kind),
			zap.Error(err))
	}
}
