package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/melbournemould/leadboard/internal/models"
)

// NotificationAttemptRepository defines the interface for notification attempt persistence
type NotificationAttemptRepository interface {
	// CreateNotificationAttempt creates a new notification attempt record
	CreateNotificationAttempt(ctx context.Context, attempt *models.NotificationAttempt) error

	// GetNotificationAttemptsByLeadID retrieves all notification attempts for a lead
	GetNotificationAttemptsByLeadID(ctx context.Context, leadID string) ([]models.NotificationAttempt, error)

	// GetLatestNotificationAttempt retrieves the most recent attempt for a status change
	GetLatestNotificationAttempt(ctx context.Context, changeID int64) (*models.NotificationAttempt, error)

	// CountNotificationAttempts returns the number of attempts made for a status change
	CountNotificationAttempts(ctx context.Context, changeID int64) (int, error)
}

// notificationAttemptRepository is the concrete implementation of NotificationAttemptRepository
type notificationAttemptRepository struct {
	db *sql.DB
}

// NewNotificationAttemptRepository creates a new NotificationAttemptRepository instance
func NewNotificationAttemptRepository(db *sql.DB) NotificationAttemptRepository {
	return &notificationAttemptRepository{
		db: db,
	}
}

const attemptColumns = `
	id, lead_id, change_id, attempt_no, requested_at, response_status,
	response_body, error_message, success, created_at`

func scanAttempt(row rowScanner) (*models.NotificationAttempt, error) {
	attempt := &models.NotificationAttempt{}
	err := row.Scan(
		&attempt.ID,
		&attempt.LeadID,
		&attempt.ChangeID,
		&attempt.AttemptNo,
		&attempt.RequestedAt,
		&attempt.ResponseStatus,
		&attempt.ResponseBody,
		&attempt.ErrorMessage,
		&attempt.Success,
		&attempt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// CreateNotificationAttempt creates a new notification attempt record
func (r *notificationAttemptRepository) CreateNotificationAttempt(ctx context.Context, attempt *models.NotificationAttempt) error {
	query := `
		INSERT INTO notification_attempt (
			lead_id, change_id, attempt_no, requested_at, response_status,
			response_body, error_message, success, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	if attempt.RequestedAt.IsZero() {
		attempt.RequestedAt = now
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = now
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		attempt.LeadID,
		attempt.ChangeID,
		attempt.AttemptNo,
		attempt.RequestedAt,
		attempt.ResponseStatus,
		attempt.ResponseBody,
		attempt.ErrorMessage,
		attempt.Success,
		attempt.CreatedAt,
	).Scan(&attempt.ID)

	if err != nil {
		return fmt.Errorf("failed to create notification attempt: %w", err)
	}

	return nil
}

// GetNotificationAttemptsByLeadID retrieves all notification attempts for a lead
func (r *notificationAttemptRepository) GetNotificationAttemptsByLeadID(ctx context.Context, leadID string) ([]models.NotificationAttempt, error) {
	query := `SELECT` + attemptColumns + `
		FROM notification_attempt
		WHERE lead_id = $1
		ORDER BY change_id ASC, attempt_no ASC`

	rows, err := r.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]models.NotificationAttempt, 0)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification attempt: %w", err)
		}
		attempts = append(attempts, *attempt)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification attempts: %w", err)
	}

	return attempts, nil
}

// GetLatestNotificationAttempt retrieves the most recent attempt for a status change
func (r *notificationAttemptRepository) GetLatestNotificationAttempt(ctx context.Context, changeID int64) (*models.NotificationAttempt, error) {
	query := `SELECT` + attemptColumns + `
		FROM notification_attempt
		WHERE change_id = $1
		ORDER BY attempt_no DESC
		LIMIT 1`

	attempt, err := scanAttempt(r.db.QueryRowContext(ctx, query, changeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no notification attempts found for change: %d", changeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest notification attempt: %w", err)
	}

	return attempt, nil
}

// CountNotificationAttempts returns the number of attempts made for a status change
func (r *notificationAttemptRepository) CountNotificationAttempts(ctx context.Context, changeID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notification_attempt
		WHERE change_id = $1
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, changeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notification attempts: %w", err)
	}

	return count, nil
}
