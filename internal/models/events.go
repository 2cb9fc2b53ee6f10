package models

import "time"

// Notification kinds
const (
	NotificationTicketConfirmed = "ticket_confirmation"
	NotificationPaymentFailed   = "payment_failed"
	NotificationRSVPConfirmed   = "rsvp_confirmation"
)

// BaseEvent contains common fields for all broker events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Broker event types
const (
	EventTypeNotification = "NOTIFICATION"
)

// NotificationEvent is published when the core wants a user notified.
// Delivery is fire-and-forget; the worker persists and dispatches it.
type NotificationEvent struct {
	BaseEvent
	UserID    int64  `json:"user_id"`
	EventRef  int64  `json:"event_ref"`
	Kind      string `json:"kind"`
	Body      string `json:"body"`
	PaymentID int64  `json:"payment_id,omitempty"`
}
