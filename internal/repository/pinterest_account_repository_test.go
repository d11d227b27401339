package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinterestAccountRepositoryUpsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPinterestAccountRepository(db)

	expires := time.Now().Add(30 * 24 * time.Hour)
	acc := &models.PinterestAccount{
		ID: "new-row", UserID: "user-1", PinterestID: "p-1", Username: "baker",
		AccessToken: "enc-a", RefreshToken: "enc-r", TokenExpiresAt: expires,
	}

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (pinterest_id) DO UPDATE")).
		WithArgs("new-row", "user-1", "p-1", "baker", "", "enc-a", "enc-r", expires).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing-row"))

	id, err := repo.Upsert(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, "existing-row", id)
}

func TestPinterestAccountRepositorySetTokenMissingAccount(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPinterestAccountRepository(db)

	expires := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pinterest_accounts")).
		WithArgs("p-404", "a", "", expires).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetToken(context.Background(), "p-404", "a", "", expires)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPinterestAccountRepositoryGetFirstByUserIDEmpty(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPinterestAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 ORDER BY created_at LIMIT 1")).
		WithArgs("user-1").
		WillReturnError(sql.ErrNoRows)

	acc, err := repo.GetFirstByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestPinterestAccountRepositoryListExpiring(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPinterestAccountRepository(db)

	before := time.Now().Add(30 * time.Minute)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE token_expires_at < $1 AND refresh_token <> ''")).
		WithArgs(before).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "pinterest_id", "username", "profile_image",
			"access_token", "refresh_token", "token_expires_at", "created_at", "updated_at"}).
			AddRow("row-1", "user-1", "p-1", "baker", "", "a", "r", now, now, now))

	accounts, err := repo.ListExpiring(context.Background(), before)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "p-1", accounts[0].PinterestID)
}
