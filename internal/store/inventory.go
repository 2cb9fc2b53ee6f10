package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"

	"github.com/jmoiron/sqlx"
)

// This file holds the only SQL that writes events.available_tickets or
// event_attendees. Services reach it through the Inventory adjuster, never
// directly from handlers.

// DecrementAvailable consumes quantity units of inventory, floored at zero.
// Events with no finite inventory (total_tickets = 0) are untouched.
func (s *Store) DecrementAvailable(ctx context.Context, tx *sqlx.Tx, eventID int64, quantity int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE events
		SET available_tickets = GREATEST(0, available_tickets - $1), updated_at = NOW()
		WHERE id = $2 AND total_tickets > 0`,
		quantity, eventID)
	if err != nil {
		return fmt.Errorf("failed to decrement availability: %w", err)
	}
	return nil
}

// RestoreAvailable returns quantity units of inventory, capped at the
// event's total. Only ticketed events have a counter to restore.
func (s *Store) RestoreAvailable(ctx context.Context, tx *sqlx.Tx, eventID int64, quantity int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE events
		SET available_tickets = LEAST(total_tickets, available_tickets + $1), updated_at = NOW()
		WHERE id = $2 AND total_tickets > 0`,
		quantity, eventID)
	if err != nil {
		return fmt.Errorf("failed to restore availability: %w", err)
	}
	return nil
}

// GetAttendee retrieves the RSVP row for (event, user), nil when absent
func (s *Store) GetAttendee(ctx context.Context, tx *sqlx.Tx, eventID, userID int64) (*models.Attendee, error) {
	var attendee models.Attendee
	err := tx.GetContext(ctx, &attendee,
		"SELECT * FROM event_attendees WHERE event_id = $1 AND user_id = $2", eventID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attendee, nil
}

// UpsertAttendee merges an RSVP row keyed on (event, user): inserts with the
// initial quantity, or sets the status and adds quantityDelta to the held
// quantity. The payment path issues additional tickets incrementally.
func (s *Store) UpsertAttendee(ctx context.Context, tx *sqlx.Tx, eventID, userID int64, status string, quantityDelta int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO event_attendees (event_id, user_id, status, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, user_id)
		DO UPDATE SET status = EXCLUDED.status,
		              quantity = event_attendees.quantity + EXCLUDED.quantity,
		              updated_at = NOW()`,
		eventID, userID, status, quantityDelta)
	if err != nil {
		return fmt.Errorf("failed to upsert attendee: %w", err)
	}
	return nil
}

// SetAttendee overwrites the status and held quantity of an existing row.
// Used by RSVP downgrades (going -> interested releases the held seats).
func (s *Store) SetAttendee(ctx context.Context, tx *sqlx.Tx, eventID, userID int64, status string, quantity int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE event_attendees
		SET status = $1, quantity = $2, updated_at = NOW()
		WHERE event_id = $3 AND user_id = $4`,
		status, quantity, eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to update attendee: %w", err)
	}
	return nil
}

// DeleteAttendee removes the RSVP row for (event, user)
func (s *Store) DeleteAttendee(ctx context.Context, tx *sqlx.Tx, eventID, userID int64) error {
	_, err := tx.ExecContext(ctx,
		"DELETE FROM event_attendees WHERE event_id = $1 AND user_id = $2", eventID, userID)
	return err
}

// DeleteFeedback removes any feedback the user left for the event. RSVP and
// feedback share a lifecycle: unattending withdraws the feedback too.
func (s *Store) DeleteFeedback(ctx context.Context, tx *sqlx.Tx, eventID, userID int64) error {
	_, err := tx.ExecContext(ctx,
		"DELETE FROM feedback WHERE event_id = $1 AND user_id = $2", eventID, userID)
	return err
}
