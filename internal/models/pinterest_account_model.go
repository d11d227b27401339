package models

import (
	"time"
)

type PinterestAccount struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	PinterestID    string    `db:"pinterest_id" json:"pinterest_id"`
	Username       string    `db:"username" json:"username"`
	ProfileImage   string    `db:"profile_image" json:"profile_image"`
	AccessToken    string    `db:"access_token" json:"-"`
	RefreshToken   string    `db:"refresh_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
