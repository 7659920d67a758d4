// Package auth turns bearer tokens into explicit sessions. A Session is
// passed into every downstream call rather than living in ambient state; its
// lifecycle is bounded by the request that validated it.
package auth

import (
	"context"
	"time"
)

// Session is the authenticated identity for one request.
type Session struct {
	UserID   string
	Email    string
	IssuedAt time.Time
}

// Provider validates a bearer token and produces a session.
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*Session, error)
}
