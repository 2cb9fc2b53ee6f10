package service

import "errors"

// Error taxonomy of the payment/RSVP core. Validation and inventory
// conflicts are rejected synchronously with no partial effects; gateway
// errors are retryable and leave the payment pending.
var (
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrInsufficientInventory = errors.New("not enough tickets available")
	ErrSoldOut               = errors.New("event is sold out")
	ErrEventClosed           = errors.New("event is not open for registration")

	// ErrPaymentRequired is a redirect signal, not a failure: the event is
	// paid and the caller must use the checkout flow instead of free RSVP.
	ErrPaymentRequired = errors.New("event requires a paid ticket")
	// ErrPaymentNotRequired is the mirror signal: the event is free and the
	// caller should RSVP instead of opening a checkout.
	ErrPaymentNotRequired = errors.New("event does not require payment")

	ErrNotFound       = errors.New("not found")
	ErrPaymentSettled = errors.New("payment already settled")
	ErrUnknownAction  = errors.New("unknown rsvp action")
)
