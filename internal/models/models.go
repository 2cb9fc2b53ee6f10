package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Event represents a campus event with ticket inventory
type Event struct {
	ID               int64     `db:"id" json:"id"`
	OwnerID          int64     `db:"owner_id" json:"owner_id"`
	Title            string    `db:"title" json:"title"`
	Status           string    `db:"status" json:"status"`
	TotalTickets     int       `db:"total_tickets" json:"total_tickets"`
	AvailableTickets int       `db:"available_tickets" json:"available_tickets"`
	TicketPrice      int64     `db:"ticket_price" json:"ticket_price"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Ticketed reports whether the event tracks a finite inventory.
// total_tickets == 0 means unlimited admission.
func (e *Event) Ticketed() bool {
	return e.TotalTickets > 0
}

// Free reports whether attending requires no payment.
func (e *Event) Free() bool {
	return e.TicketPrice == 0
}

// Payment represents a mobile-money checkout attempt
type Payment struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	EventID       int64     `db:"event_id" json:"event_id"`
	Amount        int64     `db:"amount" json:"amount"`
	Quantity      int       `db:"quantity" json:"quantity"`
	Status        string    `db:"status" json:"status"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	Receipt       string    `db:"receipt" json:"receipt,omitempty"`
	Phone         string    `db:"phone" json:"phone,omitempty"`
	ResultDesc    string    `db:"result_desc" json:"result_desc,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Ticket represents a single admission unit issued by a completed payment
type Ticket struct {
	ID           int64     `db:"id" json:"id"`
	EventID      int64     `db:"event_id" json:"event_id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	Code         string    `db:"code" json:"code"`
	Status       string    `db:"status" json:"status"`
	PurchaseDate time.Time `db:"purchase_date" json:"purchase_date"`
}

// PaymentTicket links issued tickets back to the payment that produced them.
// The link is for reporting; the ticket itself is owned by the user.
type PaymentTicket struct {
	PaymentID int64 `db:"payment_id" json:"payment_id"`
	TicketID  int64 `db:"ticket_id" json:"ticket_id"`
}

// Attendee is the RSVP record, exactly one row per (event, user)
type Attendee struct {
	EventID   int64     `db:"event_id" json:"event_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Status    string    `db:"status" json:"status"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Notification is a persisted user notification written by the worker
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	EventID   int64     `db:"event_id" json:"event_id"`
	Kind      string    `db:"kind" json:"kind"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Event statuses
const (
	EventStatusDraft     = "draft"
	EventStatusUpcoming  = "upcoming"
	EventStatusOngoing   = "ongoing"
	EventStatusCompleted = "completed"
	EventStatusCancelled = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Ticket statuses
const (
	TicketStatusActive    = "active"
	TicketStatusUsed      = "used"
	TicketStatusCancelled = "cancelled"
)

// Attendee statuses
const (
	AttendeeStatusGoing      = "going"
	AttendeeStatusInterested = "interested"
)

// paymentTransitions is the exhaustive payment state machine. Terminal
// states have no outgoing edges; anything not listed here is rejected.
var paymentTransitions = map[string][]string{
	PaymentStatusPending: {PaymentStatusCompleted, PaymentStatusFailed},
}

// PaymentTerminal reports whether a payment status permits no further change.
func PaymentTerminal(status string) bool {
	return len(paymentTransitions[status]) == 0
}

// CanTransitionPayment reports whether from -> to is a legal payment transition.
func CanTransitionPayment(from, to string) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IntentReferencePrefix marks placeholder transaction ids assigned at intent
// creation, before the gateway issues a real checkout request id.
const IntentReferencePrefix = "INTENT-"

// NewTicketCode generates a ticket code from a millisecond timestamp and a
// random suffix. Global uniqueness is enforced by the store's unique index;
// callers retry on conflict.
func NewTicketCode() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to time
		return fmt.Sprintf("TKT-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("TKT-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}
