package realdebrid

import (
	"context"
	"net/http"
)

// User represents the authenticated Real-Debrid account.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Points   int    `json:"points"`
	Locale   string `json:"locale"`
	Avatar   string `json:"avatar"`
	// Type is "premium" or "free".
	Type string `json:"type"`
	// Premium is the number of premium seconds left.
	Premium    int64  `json:"premium"`
	Expiration string `json:"expiration"`
}

// IsPremium returns true if the account has premium time left
func (u *User) IsPremium() bool {
	return u.Type == "premium" && u.Premium > 0
}

// User returns the current account.
func (c *Client) User(ctx context.Context) (*User, error) {
	var user User
	if _, err := c.doJSON(ctx, call{method: http.MethodGet, path: "user", errs: authErrs}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
