package service

import (
	"context"
	"fmt"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/gateway"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/store"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IntentService creates pending payments and drives push initiation
type IntentService struct {
	store   *store.Store
	gateway *gateway.Client
	logger  *zap.Logger
}

// NewIntentService creates a new intent service
func NewIntentService(st *store.Store, gw *gateway.Client) *IntentService {
	return &IntentService{
		store:   st,
		gateway: gw,
		logger:  util.GetLogger(),
	}
}

// CreateIntentRequest represents a request to open a paid checkout
type CreateIntentRequest struct {
	UserID   int64
	EventID  int64
	Quantity int
	Phone    string
}

// CreateIntent validates availability against the live event row, computes
// the amount server-side and inserts a pending payment. Inventory is not
// reserved here; it is consumed only when the payment completes, so an
// abandoned checkout never starves sellable seats.
func (s *IntentService) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "IntentService.CreateIntent")
	defer span.End()

	if req.Quantity < 1 {
		util.PaymentIntentsRejected.WithLabelValues("invalid_quantity").Inc()
		return nil, ErrInvalidQuantity
	}

	event, err := s.store.GetEventByID(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}

	switch event.Status {
	case models.EventStatusCancelled, models.EventStatusCompleted, models.EventStatusDraft:
		util.PaymentIntentsRejected.WithLabelValues("event_closed").Inc()
		return nil, ErrEventClosed
	}

	if event.Free() {
		return nil, ErrPaymentNotRequired
	}

	if event.Ticketed() && event.AvailableTickets < req.Quantity {
		util.PaymentIntentsRejected.WithLabelValues("insufficient_inventory").Inc()
		return nil, ErrInsufficientInventory
	}

	payment := &models.Payment{
		UserID:        req.UserID,
		EventID:       req.EventID,
		Amount:        event.TicketPrice * int64(req.Quantity),
		Quantity:      req.Quantity,
		Status:        models.PaymentStatusPending,
		TransactionID: models.IntentReferencePrefix + uuid.New().String(),
		Phone:         req.Phone,
	}

	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	util.PaymentIntentsTotal.Inc()
	s.logger.Info("Payment intent created",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("event_id", req.EventID),
		zap.Int64("user_id", req.UserID),
		zap.Int("quantity", req.Quantity),
		zap.Int64("amount", payment.Amount))

	return payment, nil
}

// InitiatePush asks the gateway to prompt the customer's phone and stores
// the returned checkout request id on the payment. A gateway failure leaves
// the payment pending so the caller can retry the push.
func (s *IntentService) InitiatePush(ctx context.Context, userID, paymentID int64) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "IntentService.InitiatePush")
	defer span.End()

	payment, err := s.store.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment == nil || payment.UserID != userID {
		return nil, ErrNotFound
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, ErrPaymentSettled
	}

	push, err := s.gateway.STKPush(ctx, gateway.PushRequest{
		Amount:      payment.Amount,
		Phone:       payment.Phone,
		Reference:   fmt.Sprintf("EVT-%d-PAY-%d", payment.EventID, payment.ID),
		Description: "Event ticket purchase",
	})
	if err != nil {
		util.GatewayRequestsFailed.WithLabelValues("stk_push").Inc()
		s.logger.Warn("STK push initiation failed",
			zap.Int64("payment_id", payment.ID),
			zap.Error(err))
		return nil, err
	}

	if err := s.store.SetPaymentTransactionID(ctx, payment.ID, push.CheckoutRequestID); err != nil {
		return nil, fmt.Errorf("failed to store checkout request id: %w", err)
	}

	payment.TransactionID = push.CheckoutRequestID
	s.logger.Info("STK push initiated",
		zap.Int64("payment_id", payment.ID),
		zap.String("checkout_request_id", push.CheckoutRequestID))

	return payment, nil
}
