package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
)

// ClerkProvider verifies Clerk session JWTs.
type ClerkProvider struct {
	secretKey string
}

// sessionTokenClaims holds the custom claims configured on Clerk session
// tokens. Email is optional; older tokens may not carry it.
type sessionTokenClaims struct {
	Email string `json:"email"`
}

func NewClerkProvider(secretKey string) *ClerkProvider {
	clerk.SetKey(secretKey)

	return &ClerkProvider{secretKey: secretKey}
}

func (p *ClerkProvider) ValidateToken(ctx context.Context, token string) (*Session, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{
		Token: token,
		CustomClaimsConstructor: func(context.Context) any {
			return &sessionTokenClaims{}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return sessionFromClaims(claims), nil
}

func sessionFromClaims(claims *clerk.SessionClaims) *Session {
	session := &Session{
		UserID:   claims.Subject,
		IssuedAt: time.Now(),
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = time.Unix(*claims.IssuedAt, 0)
	}
	if custom, ok := claims.Custom.(*sessionTokenClaims); ok {
		session.Email = custom.Email
	}

	return session
}
