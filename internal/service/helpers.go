package service

import (
	"time"

	"golang.org/x/oauth2"
)

// Pinterest does not always report expires_in; its tokens last 30 days.
const defaultTokenLifetime = 30 * 24 * time.Hour

func GetExpiresAt(token *oauth2.Token) time.Time {
	if token.Expiry.IsZero() {
		return time.Now().Add(defaultTokenLifetime)
	}
	return token.Expiry
}
