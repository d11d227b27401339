package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maheshrc27/pinscheduler/internal/models"
)

type PinAttemptRepository interface {
	Create(ctx context.Context, a *models.PinAttempt) (int64, error)
	ListByPinID(ctx context.Context, pinID string) ([]*models.PinAttempt, error)
}

type pinAttemptRepository struct {
	db *sql.DB
}

func NewPinAttemptRepository(db *sql.DB) PinAttemptRepository {
	return &pinAttemptRepository{db: db}
}

func (r *pinAttemptRepository) Create(ctx context.Context, a *models.PinAttempt) (int64, error) {
	query := `
		INSERT INTO pin_attempts (pin_id, attempt, external_pin_id, error_message)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, a.PinID, a.Attempt, a.ExternalPinID, a.ErrorMessage).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert attempt for pin %s: %w", a.PinID, err)
	}
	return id, nil
}

func (r *pinAttemptRepository) ListByPinID(ctx context.Context, pinID string) ([]*models.PinAttempt, error) {
	query := `SELECT id, pin_id, attempt, external_pin_id, error_message, created_at
		FROM pin_attempts WHERE pin_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, pinID)
	if err != nil {
		return nil, fmt.Errorf("list attempts for pin %s: %w", pinID, err)
	}
	defer rows.Close()

	var attempts []*models.PinAttempt
	for rows.Next() {
		var a models.PinAttempt
		if err := rows.Scan(&a.ID, &a.PinID, &a.Attempt, &a.ExternalPinID, &a.ErrorMessage, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
