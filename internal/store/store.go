package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Transact runs fn inside a transaction, rolling back on error or panic.
func (s *Store) Transact(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// GetEventByID retrieves an event by ID
func (s *Store) GetEventByID(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	err := s.db.GetContext(ctx, &event, "SELECT * FROM events WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetEventForUpdate locks the event row for the duration of the transaction.
// RSVP transitions check-then-mutate the counter and must hold this lock.
func (s *Store) GetEventForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Event, error) {
	var event models.Event
	err := tx.GetContext(ctx, &event, "SELECT * FROM events WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}
	return &event, nil
}

// GetAvailability reads the live availability counters for an event.
func (s *Store) GetAvailability(ctx context.Context, eventID int64) (total, available int, err error) {
	row := struct {
		Total     int `db:"total_tickets"`
		Available int `db:"available_tickets"`
	}{}
	err = s.db.GetContext(ctx, &row,
		"SELECT total_tickets, available_tickets FROM events WHERE id = $1", eventID)
	if err == sql.ErrNoRows {
		return 0, 0, fmt.Errorf("event not found: %d", eventID)
	}
	if err != nil {
		return 0, 0, err
	}
	return row.Total, row.Available, nil
}

// CreateNotification persists a notification row
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, event_id, kind, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, n, query, n.UserID, n.EventID, n.Kind, n.Body)
}
