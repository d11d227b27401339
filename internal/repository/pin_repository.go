package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/maheshrc27/pinscheduler/internal/transfer"
)

// PinRepository stores pins. Every lookup except GetByID hides soft-deleted
// rows. Single row lookups return nil, nil when nothing matches.
type PinRepository interface {
	Create(ctx context.Context, pin *models.Pin) error
	GetByID(ctx context.Context, id string) (*models.Pin, error)
	GetByUserID(ctx context.Context, id, userID string) (*models.Pin, error)
	List(ctx context.Context, userID string, filter transfer.PinFilter) ([]*models.Pin, error)
	UpdateSchedule(ctx context.Context, id string, scheduledAt time.Time) (bool, error)
	UpdateDetails(ctx context.Context, id string, u *transfer.PinUpdate) (bool, error)
	Transition(ctx context.Context, id, from, to string, change StatusChange) (bool, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
}

// StatusChange carries the columns written alongside a status transition.
type StatusChange struct {
	ExternalPinID string
	LastError     string
}

type pinRepository struct {
	db *sql.DB
}

func NewPinRepository(db *sql.DB) PinRepository {
	return &pinRepository{db: db}
}

const pinColumns = `id, user_id, pinterest_account_id, board_id, title, media_type, image_url, video_url,
	description, link, rich_pin_type, price, availability, scheduled_at, status, external_pin_id,
	last_error, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPin(row rowScanner) (*models.Pin, error) {
	var pin models.Pin
	err := row.Scan(&pin.ID, &pin.UserID, &pin.PinterestAccountID, &pin.BoardID, &pin.Title, &pin.MediaType,
		&pin.ImageURL, &pin.VideoURL, &pin.Description, &pin.Link, &pin.RichPinType, &pin.Price,
		&pin.Availability, &pin.ScheduledAt, &pin.Status, &pin.ExternalPinID, &pin.LastError,
		&pin.CreatedAt, &pin.UpdatedAt, &pin.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &pin, nil
}

func (r *pinRepository) Create(ctx context.Context, pin *models.Pin) error {
	query := `
		INSERT INTO pins (id, user_id, pinterest_account_id, board_id, title, media_type, image_url, video_url,
			description, link, rich_pin_type, price, availability, scheduled_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		pin.ID,
		pin.UserID,
		pin.PinterestAccountID,
		pin.BoardID,
		pin.Title,
		pin.MediaType,
		pin.ImageURL,
		pin.VideoURL,
		pin.Description,
		pin.Link,
		pin.RichPinType,
		pin.Price,
		pin.Availability,
		pin.ScheduledAt,
		pin.Status,
	).Scan(&pin.CreatedAt, &pin.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert pin %s: %w", pin.ID, err)
	}
	return nil
}

func (r *pinRepository) GetByID(ctx context.Context, id string) (*models.Pin, error) {
	query := `SELECT ` + pinColumns + ` FROM pins WHERE id = $1`

	pin, err := scanPin(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pin %s: %w", id, err)
	}
	return pin, nil
}

func (r *pinRepository) GetByUserID(ctx context.Context, id, userID string) (*models.Pin, error) {
	query := `SELECT ` + pinColumns + ` FROM pins WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	pin, err := scanPin(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pin %s: %w", id, err)
	}
	return pin, nil
}

func (r *pinRepository) List(ctx context.Context, userID string, filter transfer.PinFilter) ([]*models.Pin, error) {
	conditions := []string{"user_id = $1", "deleted_at IS NULL"}
	args := []any{userID}

	if filter.BoardID != "" {
		args = append(args, filter.BoardID)
		conditions = append(conditions, fmt.Sprintf("board_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + pinColumns + ` FROM pins WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}
	defer rows.Close()

	var pins []*models.Pin
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pin: %w", err)
		}
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}
	return pins, nil
}

func (r *pinRepository) UpdateSchedule(ctx context.Context, id string, scheduledAt time.Time) (bool, error) {
	query := `
		UPDATE pins
		SET scheduled_at = $1,
			updated_at = $2
		WHERE id = $3 AND status = $4 AND deleted_at IS NULL
	`
	return r.exec(ctx, query, scheduledAt, time.Now(), id, models.PinStatusScheduled)
}

func (r *pinRepository) UpdateDetails(ctx context.Context, id string, u *transfer.PinUpdate) (bool, error) {
	query := `
		UPDATE pins
		SET title = COALESCE($1, title),
			description = COALESCE($2, description),
			link = COALESCE($3, link),
			updated_at = $4
		WHERE id = $5 AND deleted_at IS NULL
	`
	return r.exec(ctx, query, u.Title, u.Description, u.Link, time.Now(), id)
}

// Transition moves a pin from one status to another. It reports false when
// the pin was no longer in the from status or was deleted.
func (r *pinRepository) Transition(ctx context.Context, id, from, to string, change StatusChange) (bool, error) {
	query := `
		UPDATE pins
		SET status = $1,
			external_pin_id = COALESCE(NULLIF($2, ''), external_pin_id),
			last_error = $3,
			updated_at = $4
		WHERE id = $5 AND status = $6 AND deleted_at IS NULL
	`
	return r.exec(ctx, query, to, change.ExternalPinID, change.LastError, time.Now(), id, from)
}

func (r *pinRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	query := `UPDATE pins SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	return r.exec(ctx, query, time.Now(), id)
}

func (r *pinRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
