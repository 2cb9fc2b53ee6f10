package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/gateway"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/store"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ticketCodeAttempts bounds code regeneration on collisions
const ticketCodeAttempts = 3

// Disposition is the observable outcome of one reconciliation pass
type Disposition string

const (
	DispositionCompleted      Disposition = "completed"
	DispositionFailed         Disposition = "failed"
	DispositionPending        Disposition = "pending"
	DispositionAlreadySettled Disposition = "already_settled"
	DispositionIgnored        Disposition = "ignored"
)

// Outcome reports what a reconciliation pass did
type Outcome struct {
	Disposition Disposition
	Payment     *models.Payment
}

// Target selects the payment to reconcile, by explicit id or by the
// gateway's checkout request id.
type Target struct {
	PaymentID         int64
	CheckoutRequestID string
}

// ReconcileService is the payment state machine. The webhook and the
// client poll both funnel into Reconcile, which is idempotent and runs in a
// single row-locked transaction: running it N times concurrently for the
// same payment produces the same end state as running it once.
type ReconcileService struct {
	store     *store.Store
	inventory *Inventory
	notifier  *Notifier
	gateway   *gateway.Client
	logger    *zap.Logger
}

// NewReconcileService creates a new reconciliation service
func NewReconcileService(st *store.Store, inv *Inventory, notifier *Notifier, gw *gateway.Client) *ReconcileService {
	return &ReconcileService{
		store:     st,
		inventory: inv,
		notifier:  notifier,
		gateway:   gw,
		logger:    util.GetLogger(),
	}
}

// Reconcile applies a gateway verdict to a payment. Unresolvable targets
// are acknowledged and discarded so the gateway stops retrying. Terminal
// payments are never touched again; a duplicate callback observes the
// settled row and no-ops.
func (s *ReconcileService) Reconcile(ctx context.Context, target Target, result *gateway.Result) (*Outcome, error) {
	ctx, span := util.StartSpan(ctx, "ReconcileService.Reconcile")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconcileLatency.Observe(time.Since(start).Seconds())
	}()

	payment, err := s.resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		util.CallbacksIgnoredTotal.Inc()
		s.logger.Warn("Reconciliation target matched no payment",
			zap.Int64("payment_id", target.PaymentID),
			zap.String("checkout_request_id", target.CheckoutRequestID))
		return &Outcome{Disposition: DispositionIgnored}, nil
	}

	if result.Outcome == gateway.OutcomePending {
		// inconclusive verdict; the payment stays pending for a later
		// callback or poll
		return &Outcome{Disposition: DispositionPending, Payment: payment}, nil
	}

	outcome := &Outcome{Payment: payment}
	err = s.store.Transact(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.store.GetPaymentForUpdate(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			outcome.Disposition = DispositionIgnored
			outcome.Payment = nil
			return nil
		}
		outcome.Payment = locked

		if models.PaymentTerminal(locked.Status) {
			util.DuplicateCallbacksTotal.Inc()
			outcome.Disposition = DispositionAlreadySettled
			return nil
		}

		switch result.Outcome {
		case gateway.OutcomeFailure:
			return s.applyFailure(ctx, tx, locked, result, outcome)
		case gateway.OutcomeSuccess:
			return s.applySuccess(ctx, tx, locked, result, outcome)
		default:
			outcome.Disposition = DispositionPending
			return nil
		}
	})
	if err != nil {
		s.logger.Error("Reconciliation failed, transaction rolled back",
			zap.Int64("payment_id", payment.ID),
			zap.Error(err))
		return nil, err
	}

	s.afterCommit(ctx, outcome, result)
	return outcome, nil
}

// resolve finds the target payment, nil when nothing matches
func (s *ReconcileService) resolve(ctx context.Context, target Target) (*models.Payment, error) {
	if target.PaymentID != 0 {
		return s.store.GetPaymentByID(ctx, target.PaymentID)
	}
	if target.CheckoutRequestID != "" {
		return s.store.GetPaymentByTransactionID(ctx, target.CheckoutRequestID)
	}
	return nil, nil
}

func (s *ReconcileService) applyFailure(ctx context.Context, tx *sqlx.Tx, payment *models.Payment, result *gateway.Result, outcome *Outcome) error {
	if !models.CanTransitionPayment(payment.Status, models.PaymentStatusFailed) {
		return fmt.Errorf("illegal payment transition %s -> %s", payment.Status, models.PaymentStatusFailed)
	}

	if err := s.store.MarkPaymentFailed(ctx, tx, payment.ID, result.Desc); err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}

	payment.Status = models.PaymentStatusFailed
	payment.ResultDesc = result.Desc
	outcome.Disposition = DispositionFailed
	return nil
}

// applySuccess completes the payment: ticket issuance, inventory decrement
// and attendee upsert all commit or roll back together.
func (s *ReconcileService) applySuccess(ctx context.Context, tx *sqlx.Tx, payment *models.Payment, result *gateway.Result, outcome *Outcome) error {
	if !models.CanTransitionPayment(payment.Status, models.PaymentStatusCompleted) {
		return fmt.Errorf("illegal payment transition %s -> %s", payment.Status, models.PaymentStatusCompleted)
	}

	// the canonical amount was fixed at intent creation; callback amounts
	// are advisory and never overwrite it
	if err := s.store.MarkPaymentCompleted(ctx, tx, payment.ID, result.Receipt, result.Phone, result.Desc); err != nil {
		return fmt.Errorf("failed to mark payment completed: %w", err)
	}

	for i := 0; i < payment.Quantity; i++ {
		ticket, err := s.issueTicket(ctx, tx, payment)
		if err != nil {
			return err
		}
		if err := s.store.LinkTicketToPayment(ctx, tx, payment.ID, ticket.ID); err != nil {
			return fmt.Errorf("failed to link ticket: %w", err)
		}
	}

	if err := s.inventory.ApplyTicketIssuance(ctx, tx, payment.EventID, payment.UserID, payment.Quantity); err != nil {
		return err
	}

	// abandoned duplicate checkouts for the same (user, event) are dead now
	removed, err := s.store.DeleteOtherPendingPayments(ctx, tx, payment.UserID, payment.EventID, payment.ID)
	if err != nil {
		return fmt.Errorf("failed to clean up pending payments: %w", err)
	}
	if removed > 0 {
		s.logger.Info("Removed abandoned pending payments",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("removed", removed))
	}

	payment.Status = models.PaymentStatusCompleted
	payment.Receipt = result.Receipt
	outcome.Disposition = DispositionCompleted
	return nil
}

// issueTicket creates one ticket row, regenerating the code on a collision
func (s *ReconcileService) issueTicket(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) (*models.Ticket, error) {
	for attempt := 0; attempt < ticketCodeAttempts; attempt++ {
		ticket := &models.Ticket{
			EventID: payment.EventID,
			UserID:  payment.UserID,
			Code:    models.NewTicketCode(),
			Status:  models.TicketStatusActive,
		}
		err := s.store.CreateTicket(ctx, tx, ticket)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, store.ErrTicketCodeTaken) {
			return nil, fmt.Errorf("failed to create ticket: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to create ticket after %d attempts: %w", ticketCodeAttempts, store.ErrTicketCodeTaken)
}

// afterCommit runs the fire-and-forget side effects of a committed pass
func (s *ReconcileService) afterCommit(ctx context.Context, outcome *Outcome, result *gateway.Result) {
	payment := outcome.Payment

	switch outcome.Disposition {
	case DispositionCompleted:
		util.PaymentsCompletedTotal.Inc()
		util.TicketsIssuedTotal.Add(float64(payment.Quantity))
		s.inventory.InvalidateCache(ctx, payment.EventID)
		s.logger.Info("Payment completed",
			zap.Int64("payment_id", payment.ID),
			zap.Int("quantity", payment.Quantity),
			zap.String("receipt", result.Receipt))
		s.notifier.Notify(ctx, payment.UserID, payment.EventID,
			models.NotificationTicketConfirmed,
			fmt.Sprintf("Your %d ticket(s) are confirmed. Receipt %s.", payment.Quantity, result.Receipt),
			payment.ID)

	case DispositionFailed:
		util.PaymentsFailedTotal.Inc()
		s.logger.Info("Payment failed",
			zap.Int64("payment_id", payment.ID),
			zap.String("result_desc", result.Desc))
		s.notifier.Notify(ctx, payment.UserID, payment.EventID,
			models.NotificationPaymentFailed,
			fmt.Sprintf("Your payment could not be completed: %s", result.Desc),
			payment.ID)
	}
}

// PollStatus drives poll-side reconciliation: it queries the gateway for
// the payment's verdict and feeds it into the same routine the webhook
// uses. An inconclusive or failed query leaves the payment pending.
func (s *ReconcileService) PollStatus(ctx context.Context, userID, paymentID int64) (*Outcome, error) {
	ctx, span := util.StartSpan(ctx, "ReconcileService.PollStatus")
	defer span.End()

	payment, err := s.store.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment == nil || payment.UserID != userID {
		return nil, ErrNotFound
	}

	if models.PaymentTerminal(payment.Status) {
		if payment.Status == models.PaymentStatusCompleted {
			return &Outcome{Disposition: DispositionCompleted, Payment: payment}, nil
		}
		return &Outcome{Disposition: DispositionFailed, Payment: payment}, nil
	}

	// the push was never acknowledged by the gateway; nothing to query yet
	if strings.HasPrefix(payment.TransactionID, models.IntentReferencePrefix) {
		return &Outcome{Disposition: DispositionPending, Payment: payment}, nil
	}

	result, err := s.gateway.QueryStatus(ctx, payment.TransactionID)
	if err != nil {
		util.GatewayRequestsFailed.WithLabelValues("status_query").Inc()
		s.logger.Warn("Gateway status query failed",
			zap.Int64("payment_id", payment.ID),
			zap.Error(err))
		// the payment may still complete via a later callback
		return &Outcome{Disposition: DispositionPending, Payment: payment}, nil
	}

	outcome, err := s.Reconcile(ctx, Target{PaymentID: payment.ID}, result)
	if err != nil {
		// a rolled-back pass surfaces as "still processing" to the poller
		return &Outcome{Disposition: DispositionPending, Payment: payment}, nil
	}
	return outcome, nil
}
