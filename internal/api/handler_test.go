package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/gateway"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCheckout struct {
	intentErr error
	pushErr   error
	payment   *models.Payment
}

func (s *stubCheckout) CreateIntent(ctx context.Context, req *service.CreateIntentRequest) (*models.Payment, error) {
	if s.intentErr != nil {
		return nil, s.intentErr
	}
	return s.payment, nil
}

func (s *stubCheckout) InitiatePush(ctx context.Context, userID, paymentID int64) (*models.Payment, error) {
	if s.pushErr != nil {
		return nil, s.pushErr
	}
	return s.payment, nil
}

type stubReconciler struct {
	outcome *service.Outcome
	err     error
	calls   int
	lastRef string
}

func (s *stubReconciler) Reconcile(ctx context.Context, target service.Target, result *gateway.Result) (*service.Outcome, error) {
	s.calls++
	s.lastRef = target.CheckoutRequestID
	return s.outcome, s.err
}

func (s *stubReconciler) PollStatus(ctx context.Context, userID, paymentID int64) (*service.Outcome, error) {
	return s.outcome, s.err
}

type stubRSVP struct {
	attendee *models.Attendee
	err      error
}

func (s *stubRSVP) Dispatch(ctx context.Context, userID, eventID int64, action service.Action) (*models.Attendee, error) {
	return s.attendee, s.err
}

type stubAvailability struct {
	total, available int
	err              error
}

func (s *stubAvailability) Availability(ctx context.Context, eventID int64) (int, int, error) {
	return s.total, s.available, s.err
}

func testRouter(checkout CheckoutService, rec Reconciler, rsvp RSVPDispatcher, avail AvailabilityReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(checkout, rec, rsvp, avail).SetupRoutes(router)
	return router
}

const validCallback = `{
	"Body": {
		"stkCallback": {
			"CheckoutRequestID": "ws_CO_1",
			"ResultCode": 0,
			"ResultDesc": "ok",
			"CallbackMetadata": {"Item": [{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"}]}
		}
	}
}`

func TestCallbackAlwaysAcknowledges(t *testing.T) {
	tests := []struct {
		name string
		body string
		rec  *stubReconciler
	}{
		{
			name: "reconciled",
			body: validCallback,
			rec:  &stubReconciler{outcome: &service.Outcome{Disposition: service.DispositionCompleted, Payment: &models.Payment{ID: 1}}},
		},
		{
			name: "reconciliation error",
			body: validCallback,
			rec:  &stubReconciler{err: assert.AnError},
		},
		{
			name: "unknown reference",
			body: validCallback,
			rec:  &stubReconciler{outcome: &service.Outcome{Disposition: service.DispositionIgnored}},
		},
		{
			name: "unparseable body",
			body: `{{{`,
			rec:  &stubReconciler{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(&stubCheckout{}, tt.rec, &stubRSVP{}, &stubAvailability{})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", bytes.NewBufferString(tt.body))
			router.ServeHTTP(w, req)

			// at-least-once delivery: anything but 200 triggers a retry storm
			assert.Equal(t, http.StatusOK, w.Code)

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, float64(0), resp["ResultCode"])
		})
	}
}

func TestCallbackResolvesByReference(t *testing.T) {
	rec := &stubReconciler{outcome: &service.Outcome{Disposition: service.DispositionCompleted, Payment: &models.Payment{ID: 1}}}
	router := testRouter(&stubCheckout{}, rec, &stubRSVP{}, &stubAvailability{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", bytes.NewBufferString(validCallback))
	router.ServeHTTP(w, req)

	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "ws_CO_1", rec.lastRef)
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	router := testRouter(&stubCheckout{}, &stubReconciler{}, &stubRSVP{}, &stubAvailability{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/1/checkout",
		bytes.NewBufferString(`{"quantity":1,"phone":"254700000000"}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"insufficient inventory", service.ErrInsufficientInventory, http.StatusConflict},
		{"invalid quantity", service.ErrInvalidQuantity, http.StatusBadRequest},
		{"free event", service.ErrPaymentNotRequired, http.StatusBadRequest},
		{"event closed", service.ErrEventClosed, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(&stubCheckout{intentErr: tt.err}, &stubReconciler{}, &stubRSVP{}, &stubAvailability{})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events/1/checkout",
				bytes.NewBufferString(`{"quantity":1,"phone":"254700000000"}`))
			req.Header.Set("X-User-ID", "7")
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestCheckoutGatewayOutageKeepsIntent(t *testing.T) {
	checkout := &stubCheckout{
		payment: &models.Payment{ID: 42, Status: models.PaymentStatusPending, Amount: 1000},
		pushErr: gateway.ErrUnavailable,
	}
	router := testRouter(checkout, &stubReconciler{}, &stubRSVP{}, &stubAvailability{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/1/checkout",
		bytes.NewBufferString(`{"quantity":2,"phone":"254700000000"}`))
	req.Header.Set("X-User-ID", "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["payment_id"])
	assert.Equal(t, true, resp["retryable"])
}

func TestRSVPErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"sold out", service.ErrSoldOut, http.StatusConflict},
		{"payment required", service.ErrPaymentRequired, http.StatusPaymentRequired},
		{"unknown action", service.ErrUnknownAction, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(&stubCheckout{}, &stubReconciler{}, &stubRSVP{err: tt.err}, &stubAvailability{})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events/1/rsvp",
				bytes.NewBufferString(`{"action":"attend"}`))
			req.Header.Set("X-User-ID", "7")
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestPaymentStatusStillProcessing(t *testing.T) {
	rec := &stubReconciler{outcome: &service.Outcome{
		Disposition: service.DispositionPending,
		Payment:     &models.Payment{ID: 9, Status: models.PaymentStatusPending},
	}}
	router := testRouter(&stubCheckout{}, rec, &stubRSVP{}, &stubAvailability{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/9/status", nil)
	req.Header.Set("X-User-ID", "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.PaymentStatusPending, resp["status"])
}

func TestEventAvailability(t *testing.T) {
	router := testRouter(&stubCheckout{}, &stubReconciler{}, &stubRSVP{}, &stubAvailability{total: 10, available: 0})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/3/availability", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(10), resp["total_tickets"])
	assert.Equal(t, true, resp["sold_out"])
}
