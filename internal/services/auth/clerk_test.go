package auth

import (
	"testing"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestSessionFromClaims(t *testing.T) {
	issued := time.Now().Add(-time.Minute).Unix()
	claims := &clerk.SessionClaims{
		RegisteredClaims: clerk.RegisteredClaims{
			Subject:  "user_abc",
			IssuedAt: clerk.Int64(issued),
		},
		Custom: &sessionTokenClaims{Email: "user@example.com"},
	}

	session := sessionFromClaims(claims)

	assert.Equal(t, "user_abc", session.UserID)
	assert.Equal(t, "user@example.com", session.Email)
	assert.Equal(t, time.Unix(issued, 0), session.IssuedAt)
}

func TestSessionFromClaimsWithoutCustomClaims(t *testing.T) {
	claims := &clerk.SessionClaims{
		RegisteredClaims: clerk.RegisteredClaims{Subject: "user_abc"},
	}

	session := sessionFromClaims(claims)

	assert.Equal(t, "user_abc", session.UserID)
	assert.Empty(t, session.Email)
	assert.WithinDuration(t, time.Now(), session.IssuedAt, 5*time.Second)
}
