package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/pinscheduler/internal/models"
)

type PinterestAccountRepository interface {
	Upsert(ctx context.Context, acc *models.PinterestAccount) (string, error)
	GetByID(ctx context.Context, id string) (*models.PinterestAccount, error)
	GetByPinterestID(ctx context.Context, pinterestID string) (*models.PinterestAccount, error)
	GetFirstByUserID(ctx context.Context, userID string) (*models.PinterestAccount, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.PinterestAccount, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.PinterestAccount, error)
	SetToken(ctx context.Context, pinterestID, accessToken, refreshToken string, expiresAt time.Time) error
}

type pinterestAccountRepository struct {
	db *sql.DB
}

func NewPinterestAccountRepository(db *sql.DB) PinterestAccountRepository {
	return &pinterestAccountRepository{db: db}
}

const accountColumns = `id, user_id, pinterest_id, username, profile_image, access_token, refresh_token,
	token_expires_at, created_at, updated_at`

func scanAccount(row rowScanner) (*models.PinterestAccount, error) {
	var acc models.PinterestAccount
	err := row.Scan(&acc.ID, &acc.UserID, &acc.PinterestID, &acc.Username, &acc.ProfileImage,
		&acc.AccessToken, &acc.RefreshToken, &acc.TokenExpiresAt, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Upsert links the account to acc.UserID, replacing the tokens of an
// already linked Pinterest account. It returns the row id.
func (r *pinterestAccountRepository) Upsert(ctx context.Context, acc *models.PinterestAccount) (string, error) {
	query := `
		INSERT INTO pinterest_accounts(
			id,
			user_id,
			pinterest_id,
			username,
			profile_image,
			access_token,
			refresh_token,
			token_expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (pinterest_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			username = EXCLUDED.username,
			profile_image = EXCLUDED.profile_image,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		acc.ID,
		acc.UserID,
		acc.PinterestID,
		acc.Username,
		acc.ProfileImage,
		acc.AccessToken,
		acc.RefreshToken,
		acc.TokenExpiresAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert pinterest account %s: %w", acc.PinterestID, err)
	}
	return id, nil
}

func (r *pinterestAccountRepository) GetByID(ctx context.Context, id string) (*models.PinterestAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM pinterest_accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *pinterestAccountRepository) GetByPinterestID(ctx context.Context, pinterestID string) (*models.PinterestAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM pinterest_accounts WHERE pinterest_id = $1`
	return r.getOne(ctx, query, pinterestID)
}

func (r *pinterestAccountRepository) GetFirstByUserID(ctx context.Context, userID string) (*models.PinterestAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM pinterest_accounts WHERE user_id = $1 ORDER BY created_at LIMIT 1`
	return r.getOne(ctx, query, userID)
}

func (r *pinterestAccountRepository) getOne(ctx context.Context, query string, arg string) (*models.PinterestAccount, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pinterest account: %w", err)
	}
	return acc, nil
}

func (r *pinterestAccountRepository) ListByUserID(ctx context.Context, userID string) ([]*models.PinterestAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM pinterest_accounts WHERE user_id = $1 ORDER BY created_at`
	return r.list(ctx, query, userID)
}

// ListExpiring returns refreshable accounts whose access token expires
// before the given time, including already expired ones.
func (r *pinterestAccountRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.PinterestAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM pinterest_accounts
		WHERE token_expires_at < $1 AND refresh_token <> ''`
	return r.list(ctx, query, before)
}

func (r *pinterestAccountRepository) list(ctx context.Context, query string, args ...any) ([]*models.PinterestAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pinterest accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.PinterestAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pinterest account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pinterest accounts: %w", err)
	}
	return accounts, nil
}

// SetToken stores a refreshed token pair. An empty refresh token keeps the
// stored one.
func (r *pinterestAccountRepository) SetToken(ctx context.Context, pinterestID, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE pinterest_accounts
		SET
			access_token = $2,
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expires_at = $4,
			updated_at = CURRENT_TIMESTAMP
		WHERE pinterest_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, pinterestID, accessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("set token for %s: %w", pinterestID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("set token for %s: %w", pinterestID, sql.ErrNoRows)
	}
	return nil
}
