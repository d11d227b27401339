package models

import "time"

// ApiKey lets a caller act as UserID without a session token.
type ApiKey struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ApiKey    string    `db:"api_key" json:"api_key"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Masked returns a copy that only shows the last four characters of the key.
func (k *ApiKey) Masked() *ApiKey {
	c := *k
	if n := len(c.ApiKey); n > 4 {
		c.ApiKey = "****" + c.ApiKey[n-4:]
	}
	return &c
}
