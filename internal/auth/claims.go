// Package auth verifies Firebase ID tokens and exposes the caller's identity
// to gin handlers.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of a Firebase ID token the service reads. The
// Firebase uid is the subject.
type Claims struct {
	jwt.RegisteredClaims
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// Identity is the verified caller.
type Identity struct {
	UserID  string `json:"uid"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

func (c *Claims) identity() Identity {
	uid := c.Subject
	if uid == "" {
		uid = c.UserID
	}
	return Identity{
		UserID:  uid,
		Email:   c.Email,
		Name:    c.Name,
		Picture: c.Picture,
	}
}
