package service

import (
	"context"
	"fmt"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/store"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Action is an RSVP operation on the free path
type Action string

const (
	ActionAttend     Action = "attend"
	ActionInterested Action = "interested"
	ActionUnattend   Action = "unattend"
)

// RSVPService handles the free RSVP path. It shares the Inventory adjuster
// with the payment path so the counter invariant holds regardless of entry
// point.
type RSVPService struct {
	store     *store.Store
	inventory *Inventory
	notifier  *Notifier
	logger    *zap.Logger
}

// NewRSVPService creates a new RSVP service
func NewRSVPService(st *store.Store, inv *Inventory, notifier *Notifier) *RSVPService {
	return &RSVPService{
		store:     st,
		inventory: inv,
		notifier:  notifier,
		logger:    util.GetLogger(),
	}
}

// rsvpActions is the dispatch table; unknown actions never reach a handler
var rsvpActions = map[Action]func(*RSVPService, context.Context, int64, int64) (*models.Attendee, error){
	ActionAttend:     (*RSVPService).attend,
	ActionInterested: (*RSVPService).interested,
	ActionUnattend:   (*RSVPService).unattend,
}

// Dispatch routes a validated RSVP action to its handler
func (s *RSVPService) Dispatch(ctx context.Context, userID, eventID int64, action Action) (*models.Attendee, error) {
	ctx, span := util.StartSpan(ctx, "RSVPService.Dispatch")
	defer span.End()

	handler, ok := rsvpActions[action]
	if !ok {
		return nil, ErrUnknownAction
	}

	attendee, err := handler(s, ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	util.RSVPActionsTotal.WithLabelValues(string(action)).Inc()
	return attendee, nil
}

// attend moves the user to going, holding one seat on ticketed events.
// Paid events reject with ErrPaymentRequired: the purchase flow is the only
// way to a paid seat.
func (s *RSVPService) attend(ctx context.Context, userID, eventID int64) (*models.Attendee, error) {
	var attendee *models.Attendee

	err := s.store.Transact(ctx, func(tx *sqlx.Tx) error {
		event, err := s.store.GetEventForUpdate(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if !event.Free() {
			return ErrPaymentRequired
		}

		current, err := s.store.GetAttendee(ctx, tx, eventID, userID)
		if err != nil {
			return err
		}
		if current != nil && current.Status == models.AttendeeStatusGoing {
			attendee = current
			return nil
		}

		if event.Ticketed() {
			if event.AvailableTickets <= 0 {
				return ErrSoldOut
			}
			if err := s.inventory.DecrementAvailable(ctx, tx, eventID, 1); err != nil {
				return err
			}
		}

		if err := s.inventory.UpsertAttendee(ctx, tx, eventID, userID, models.AttendeeStatusGoing, 1); err != nil {
			return err
		}

		attendee, err = s.store.GetAttendee(ctx, tx, eventID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.inventory.InvalidateCache(ctx, eventID)
	s.logger.Info("RSVP attend",
		zap.Int64("event_id", eventID),
		zap.Int64("user_id", userID))
	s.notifier.Notify(ctx, userID, eventID, models.NotificationRSVPConfirmed,
		"You are going to this event.", 0)

	return attendee, nil
}

// interested marks interest without holding a seat. Downgrading from going
// releases the held seats on free ticketed events.
func (s *RSVPService) interested(ctx context.Context, userID, eventID int64) (*models.Attendee, error) {
	var attendee *models.Attendee

	err := s.store.Transact(ctx, func(tx *sqlx.Tx) error {
		event, err := s.store.GetEventForUpdate(ctx, tx, eventID)
		if err != nil {
			return err
		}

		current, err := s.store.GetAttendee(ctx, tx, eventID, userID)
		if err != nil {
			return err
		}

		switch {
		case current == nil:
			if err := s.inventory.UpsertAttendee(ctx, tx, eventID, userID, models.AttendeeStatusInterested, 0); err != nil {
				return err
			}
		case current.Status == models.AttendeeStatusInterested:
			attendee = current
			return nil
		case current.Status == models.AttendeeStatusGoing:
			if event.Free() && event.Ticketed() && current.Quantity > 0 {
				if err := s.inventory.ReleaseTickets(ctx, tx, eventID, current.Quantity); err != nil {
					return err
				}
			}
			if err := s.inventory.SetAttendee(ctx, tx, eventID, userID, models.AttendeeStatusInterested, 0); err != nil {
				return err
			}
		}

		attendee, err = s.store.GetAttendee(ctx, tx, eventID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.inventory.InvalidateCache(ctx, eventID)
	s.logger.Info("RSVP interested",
		zap.Int64("event_id", eventID),
		zap.Int64("user_id", userID))

	return attendee, nil
}

// unattend removes the RSVP row, restoring held seats on free ticketed
// events, and withdraws any feedback the user left for the event.
func (s *RSVPService) unattend(ctx context.Context, userID, eventID int64) (*models.Attendee, error) {
	err := s.store.Transact(ctx, func(tx *sqlx.Tx) error {
		event, err := s.store.GetEventForUpdate(ctx, tx, eventID)
		if err != nil {
			return err
		}

		current, err := s.store.GetAttendee(ctx, tx, eventID, userID)
		if err != nil {
			return err
		}

		if current != nil && current.Status == models.AttendeeStatusGoing &&
			event.Free() && event.Ticketed() && current.Quantity > 0 {
			if err := s.inventory.ReleaseTickets(ctx, tx, eventID, current.Quantity); err != nil {
				return err
			}
		}

		if err := s.store.DeleteAttendee(ctx, tx, eventID, userID); err != nil {
			return fmt.Errorf("failed to delete attendee: %w", err)
		}
		if err := s.store.DeleteFeedback(ctx, tx, eventID, userID); err != nil {
			return fmt.Errorf("failed to delete feedback: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.inventory.InvalidateCache(ctx, eventID)
	s.logger.Info("RSVP unattend",
		zap.Int64("event_id", eventID),
		zap.Int64("user_id", userID))

	return nil, nil
}
