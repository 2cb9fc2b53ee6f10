package worker

import (
	"context"
	"log"
	"time"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/broker"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/store"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes notification events and persists them. The
// publishing side is fire-and-forget, so delivery lag or failure here never
// touches a payment.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, st *store.Store) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		store:    st,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnNotification(w.handleNotification)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleNotification(ctx context.Context, event *models.NotificationEvent) error {
	notification := &models.Notification{
		UserID:  event.UserID,
		EventID: event.EventRef,
		Kind:    event.Kind,
		Body:    event.Body,
	}

	if err := w.store.CreateNotification(ctx, notification); err != nil {
		w.logger.Error("Failed to persist notification",
			zap.Int64("user_id", event.UserID),
			zap.String("kind", event.Kind),
			zap.Error(err))
		return err
	}

	w.logger.Info("Notification delivered",
		zap.Int64("notification_id", notification.ID),
		zap.Int64("user_id", event.UserID),
		zap.String("kind", event.Kind))
	return nil
}

// ExpiryWorker periodically fails pending payments that outlived the
// checkout window. A late gateway verdict for an expired payment finds a
// terminal row and no-ops.
type ExpiryWorker struct {
	store    *store.Store
	maxAge   time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(st *store.Store, maxAge, interval time.Duration) *ExpiryWorker {
	return &ExpiryWorker{
		store:    st,
		maxAge:   maxAge,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled
func (w *ExpiryWorker) Start(ctx context.Context) error {
	log.Printf("Starting payment expiry worker: maxAge=%s, interval=%s", w.maxAge, w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Expiry worker context cancelled, stopping...")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	expired, err := w.store.ExpirePendingPayments(ctx, w.maxAge)
	if err != nil {
		w.logger.Error("Pending payment sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		util.PaymentsExpiredTotal.Add(float64(expired))
		w.logger.Info("Expired stale pending payments", zap.Int64("count", expired))
	}
}
