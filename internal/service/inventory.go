package service

import (
	"context"
	"fmt"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/redisclient"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/store"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Inventory is the single writer of events.available_tickets and the
// attendee roster. The payment and RSVP paths both mutate inventory through
// these primitives so the counter invariant holds regardless of entry point.
type Inventory struct {
	store  *store.Store
	cache  *redisclient.Client
	logger *zap.Logger
}

// NewInventory creates a new inventory adjuster
func NewInventory(st *store.Store, cache *redisclient.Client) *Inventory {
	return &Inventory{
		store:  st,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ApplyTicketIssuance consumes inventory for issued tickets and moves the
// buyer's attendee row to going, adding to any quantity already held.
// Runs inside the caller's reconciliation transaction.
func (inv *Inventory) ApplyTicketIssuance(ctx context.Context, tx *sqlx.Tx, eventID, userID int64, quantity int) error {
	if err := inv.store.DecrementAvailable(ctx, tx, eventID, quantity); err != nil {
		return err
	}
	if err := inv.store.UpsertAttendee(ctx, tx, eventID, userID, models.AttendeeStatusGoing, quantity); err != nil {
		return err
	}
	return nil
}

// ReleaseTickets returns quantity units to the event's counter. Applies
// only to ticketed events; the store guard ignores unlimited ones.
func (inv *Inventory) ReleaseTickets(ctx context.Context, tx *sqlx.Tx, eventID int64, quantity int) error {
	return inv.store.RestoreAvailable(ctx, tx, eventID, quantity)
}

// UpsertAttendee merges the (event, user) RSVP row additively
func (inv *Inventory) UpsertAttendee(ctx context.Context, tx *sqlx.Tx, eventID, userID int64, status string, quantityDelta int) error {
	return inv.store.UpsertAttendee(ctx, tx, eventID, userID, status, quantityDelta)
}

// SetAttendee overwrites the status and held quantity of an existing row
func (inv *Inventory) SetAttendee(ctx context.Context, tx *sqlx.Tx, eventID, userID int64, status string, quantity int) error {
	return inv.store.SetAttendee(ctx, tx, eventID, userID, status, quantity)
}

// DecrementAvailable consumes quantity units of a ticketed event's counter
func (inv *Inventory) DecrementAvailable(ctx context.Context, tx *sqlx.Tx, eventID int64, quantity int) error {
	return inv.store.DecrementAvailable(ctx, tx, eventID, quantity)
}

// InvalidateCache drops the cached availability after a committed
// inventory write. Best-effort: a miss just means a DB read.
func (inv *Inventory) InvalidateCache(ctx context.Context, eventID int64) {
	if inv.cache == nil {
		return
	}
	if err := inv.cache.InvalidateAvailability(ctx, eventID); err != nil {
		inv.logger.Warn("Failed to invalidate availability cache",
			zap.Int64("event_id", eventID),
			zap.Error(err))
	}
}

// Availability reads event availability through the cache, falling back to
// the authoritative counters in the store on a miss.
func (inv *Inventory) Availability(ctx context.Context, eventID int64) (total, available int, err error) {
	if inv.cache != nil {
		if ctotal, cavail, found, cerr := inv.cache.GetAvailability(ctx, eventID); cerr == nil && found {
			return ctotal, cavail, nil
		}
	}

	total, available, err = inv.store.GetAvailability(ctx, eventID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read availability: %w", err)
	}

	if inv.cache != nil {
		if cerr := inv.cache.SetAvailability(ctx, eventID, total, available); cerr != nil {
			inv.logger.Warn("Failed to cache availability",
				zap.Int64("event_id", eventID),
				zap.Error(cerr))
		}
	}

	return total, available, nil
}
