package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreatePayment creates a new pending payment
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (user_id, event_id, amount, quantity, status, transaction_id, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, payment, query,
		payment.UserID, payment.EventID, payment.Amount, payment.Quantity,
		payment.Status, payment.TransactionID, payment.Phone)
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByTransactionID resolves a payment from the gateway's
// checkout request id
func (s *Store) GetPaymentByTransactionID(ctx context.Context, txID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE transaction_id = $1", txID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentForUpdate locks the payment row for the duration of the
// transaction. Reconciliation must hold this lock before inspecting status.
func (s *Store) GetPaymentForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := tx.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}
	return &payment, nil
}

// SetPaymentTransactionID stores the gateway checkout request id on a
// still-pending payment, replacing the intent placeholder.
func (s *Store) SetPaymentTransactionID(ctx context.Context, paymentID int64, txID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET transaction_id = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		txID, paymentID, models.PaymentStatusPending)
	return err
}

// MarkPaymentCompleted transitions a payment to completed, storing the
// receipt and merging in a phone number without overwriting a known one.
func (s *Store) MarkPaymentCompleted(ctx context.Context, tx *sqlx.Tx, paymentID int64, receipt, phone, resultDesc string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
		    receipt = $2,
		    phone = CASE WHEN phone = '' THEN $3 ELSE phone END,
		    result_desc = $4,
		    updated_at = NOW()
		WHERE id = $5`,
		models.PaymentStatusCompleted, receipt, phone, resultDesc, paymentID)
	return err
}

// MarkPaymentFailed transitions a payment to failed
func (s *Store) MarkPaymentFailed(ctx context.Context, tx *sqlx.Tx, paymentID int64, resultDesc string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = $1, result_desc = $2, updated_at = NOW() WHERE id = $3",
		models.PaymentStatusFailed, resultDesc, paymentID)
	return err
}

// DeleteOtherPendingPayments removes abandoned pending checkouts for the
// same (user, event) pair, keeping the one that just completed.
func (s *Store) DeleteOtherPendingPayments(ctx context.Context, tx *sqlx.Tx, userID, eventID, keepID int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"DELETE FROM payments WHERE user_id = $1 AND event_id = $2 AND status = $3 AND id <> $4",
		userID, eventID, models.PaymentStatusPending, keepID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpirePendingPayments fails pending payments older than the cutoff.
// The guarded UPDATE serializes against a reconciliation holding the row
// lock: whichever commits first wins and the other sees a terminal row.
func (s *Store) ExpirePendingPayments(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, result_desc = 'Payment request expired', updated_at = NOW()
		WHERE status = $2 AND created_at < NOW() - $3::interval`,
		models.PaymentStatusFailed, models.PaymentStatusPending,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ErrTicketCodeTaken signals a ticket-code collision; the caller retries
// with a fresh code.
var ErrTicketCodeTaken = errors.New("ticket code already taken")

// CreateTicket inserts a ticket row. ON CONFLICT DO NOTHING keeps the
// enclosing transaction alive on a code collision so the caller can retry
// without a savepoint.
func (s *Store) CreateTicket(ctx context.Context, tx *sqlx.Tx, ticket *models.Ticket) error {
	query := `
		INSERT INTO tickets (event_id, user_id, code, status, purchase_date)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (code) DO NOTHING
		RETURNING id, purchase_date`

	err := tx.GetContext(ctx, ticket, query,
		ticket.EventID, ticket.UserID, ticket.Code, ticket.Status)
	if err == sql.ErrNoRows {
		return ErrTicketCodeTaken
	}
	return err
}

// LinkTicketToPayment records the payment that issued a ticket
func (s *Store) LinkTicketToPayment(ctx context.Context, tx *sqlx.Tx, paymentID, ticketID int64) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO payment_tickets (payment_id, ticket_id) VALUES ($1, $2)",
		paymentID, ticketID)
	return err
}

// CountTicketsForPayment returns the number of tickets linked to a payment
func (s *Store) CountTicketsForPayment(ctx context.Context, paymentID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM payment_tickets WHERE payment_id = $1", paymentID)
	return count, err
}

// GetTicketsByUserAndEvent lists a user's tickets for an event
func (s *Store) GetTicketsByUserAndEvent(ctx context.Context, userID, eventID int64) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.SelectContext(ctx, &tickets,
		"SELECT * FROM tickets WHERE user_id = $1 AND event_id = $2 ORDER BY id", userID, eventID)
	return tickets, err
}
