package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFeedback(t *testing.T, st *store.Store, eventID, userID int64) {
	t.Helper()
	_, err := st.GetDB().Exec(`
		INSERT INTO feedback (event_id, user_id, rating, comment)
		VALUES ($1, $2, 5, 'great event')`, eventID, userID)
	require.NoError(t, err)
}

func fetchAttendee(t *testing.T, st *store.Store, eventID, userID int64) *models.Attendee {
	t.Helper()
	var attendee models.Attendee
	err := st.GetDB().Get(&attendee,
		"SELECT * FROM event_attendees WHERE event_id = $1 AND user_id = $2", eventID, userID)
	if err == sql.ErrNoRows {
		return nil
	}
	require.NoError(t, err)
	return &attendee
}

func countFeedback(t *testing.T, st *store.Store, eventID, userID int64) int {
	t.Helper()
	var n int
	err := st.GetDB().Get(&n,
		"SELECT COUNT(*) FROM feedback WHERE event_id = $1 AND user_id = $2", eventID, userID)
	require.NoError(t, err)
	return n
}

func TestAttendFreeTicketedEvent(t *testing.T) {
	st := newTestStore(t)
	_, _, rsvp := newServices(st)
	ctx := context.Background()

	eventID := seedEvent(t, st, 5, 5, 0)

	attendee, err := rsvp.Dispatch(ctx, 7, eventID, ActionAttend)
	require.NoError(t, err)
	assert.Equal(t, models.AttendeeStatusGoing, attendee.Status)
	assert.Equal(t, 1, attendee.Quantity)

	_, available, err := st.GetAvailability(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 4, available)
}

func TestAttendIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	_, _, rsvp := newServices(st)
	ctx := context.Background()

	eventID := seedEvent(t, st, 5, 5, 0)

	_, err := rsvp.Dispatch(ctx, 7, eventID, ActionAttend)
	require.NoError(t, err)
	_, err = rsvp.Dispatch(ctx, 7, eventID, ActionAttend)
	require.NoError(t, err)

	// the second attend must not consume another seat
	_, available, err := st.GetAvailability(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 4, available)

	attendee := fetchAttendee(t, st, eventID, 7)
	require.NotNil(t, attendee)
	assert.Equal(t, 1, attendee.Quantity)
}

func TestAttendPaidEventRedirects(t *testing.T) {
	st := newTestStore(t)
	_, _, rsvp := newServices(st)

	eventID := seedEvent(t, st, 5, 5, 500)

	_, err := rsvp.Dispatch(context.Background(), 7, eventID, ActionAttend)
	assert.ErrorIs(t, err, ErrPaymentRequired)
	assert.Nil(t, fetchAttendee(t, st, eventID, 7))
}

func TestAttendSoldOut(t *testing.T) {
	st := newTestStore(t)
	_, _, rsvp := newServices(st)
	ctx := context.Background()

	eventID := seedEvent(t, st, 5, 0, 0)

	_, err := rsvp.Dispatch(ctx, 7, eventID, ActionAttend)
	assert.ErrorIs(t, err, ErrSoldOut)

	// interest is still allowed when sold out
	attendee, err := rsvp.Dispatch(ctx, 7, eventID, ActionInterested)
	require.NoError(t, err)
	assert.Equal(t, models.AttendeeStatusInterested, attendee.Status)
}

func TestInterestedHoldsNoSeat(t *testing.T) {
	st := newTestStore(t)
	_, _, rsvp := newServices(st)
	ctx := context.Background()

	eventID := seedEvent(t, st, 5, 5, 0)

	attendee, err := rsvp.Dispatch(ctx, 7, eventID, ActionInterested)
	require.NoError(t, err)
	assert.Equal(t, models.AttendeeStatusInterested, attendee.Status)
	assert.Zero(t, attendee.Quantity)

	_, available, err := st.GetAvailability(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestDowngradeToInterestedReleasesSeat(t *testing.T) {
	st := newTestStore(t)
	_, _, rsvp := newServices(st)
	ctx := context.Background()

	eventID := seedEvent(t, st, 5, 5, 0)

	_, err := rsvp.Dispatch(ctx, 7, eventID, ActionAttend)
	require.NoError(t, err)

	attendee, err := rsvp.Dispatch(ctx, 7, eventID, ActionInterested)
	require.NoError(t, err)
	assert.Equal(t, models.AttendeeStatusInterested, attendee.Status)
	assert.Zero(t, attendee.Quantity)

	_, available, err := st.GetAvailability(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestUnattendRestoresInventoryAndFeedback(t *testing.T) {
	st := newTestStore(t)
	_, _, rsvp := newServices(st)
	ctx := context.Background()

	eventID := seedEvent(t, st, 5, 5, 0)

	_, err := rsvp.Dispatch(ctx, 7, eventID, ActionAttend)
	require.NoError(t, err)
	seedFeedback(t, st, eventID, 7)

	_, available, err := st.GetAvailability(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 4, available)

	_, err = rsvp.Dispatch(ctx, 7, eventID, ActionUnattend)
	require.NoError(t, err)

	_, available, err = st.GetAvailability(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 5, available)
	assert.Nil(t, fetchAttendee(t, st, eventID, 7))
	assert.Zero(t, countFeedback(t, st, eventID, 7))
}

func TestUnattendWithoutRSVPIsNoOp(t *testing.T) {
	st := newTestStore(t)
	_, _, rsvp := newServices(st)
	ctx := context.Background()

	eventID := seedEvent(t, st, 5, 5, 0)

	_, err := rsvp.Dispatch(ctx, 7, eventID, ActionUnattend)
	require.NoError(t, err)

	_, available, err := st.GetAvailability(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestPurchaseAddsToExistingRSVP(t *testing.T) {
	st := newTestStore(t)
	intents, reconciler, rsvp := newServices(st)
	ctx := context.Background()

	// paid event: RSVP interest first, then buy two tickets
	eventID := seedEvent(t, st, 10, 10, 500)

	_, err := rsvp.Dispatch(ctx, 7, eventID, ActionInterested)
	require.NoError(t, err)

	payment, err := intents.CreateIntent(ctx, &CreateIntentRequest{
		UserID: 7, EventID: eventID, Quantity: 2, Phone: "254708374149",
	})
	require.NoError(t, err)

	_, err = reconciler.Reconcile(ctx, Target{PaymentID: payment.ID}, successResult(payment.TransactionID))
	require.NoError(t, err)

	attendee := fetchAttendee(t, st, eventID, 7)
	require.NotNil(t, attendee)
	assert.Equal(t, models.AttendeeStatusGoing, attendee.Status)
	assert.Equal(t, 2, attendee.Quantity)

	// a second purchase adds to the held quantity rather than replacing it
	payment, err = intents.CreateIntent(ctx, &CreateIntentRequest{
		UserID: 7, EventID: eventID, Quantity: 1, Phone: "254708374149",
	})
	require.NoError(t, err)
	_, err = reconciler.Reconcile(ctx, Target{PaymentID: payment.ID}, successResult(payment.TransactionID))
	require.NoError(t, err)

	attendee = fetchAttendee(t, st, eventID, 7)
	require.NotNil(t, attendee)
	assert.Equal(t, 3, attendee.Quantity)

	_, available, err := st.GetAvailability(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 7, available)
}

func TestUnknownActionRejected(t *testing.T) {
	// dispatch rejects before touching storage, no database needed
	rsvp := NewRSVPService(nil, nil, nil)

	_, err := rsvp.Dispatch(context.Background(), 7, 1, Action("maybe"))
	assert.ErrorIs(t, err, ErrUnknownAction)
}
