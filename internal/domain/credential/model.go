package credential

import (
	"context"
	"time"
)

// Token is the stored OAuth grant for one (provider, user) pair.
type Token struct {
	AccessToken  string `json:"access_token" dynamodbav:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty" dynamodbav:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty" dynamodbav:"expires_at,omitempty"` // unix seconds
	Scope        string `json:"scope,omitempty" dynamodbav:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty" dynamodbav:"token_type,omitempty"`
}

// Expired reports whether the token is past its expiry with the given leeway.
// Tokens without an expiry never expire.
func (t Token) Expired(now time.Time, leeway time.Duration) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return now.Add(leeway).Unix() >= t.ExpiresAt
}

// Store persists tokens. Get returns (nil, nil) when nothing is stored.
type Store interface {
	Get(ctx context.Context, provider, userID string) (*Token, error)
	Put(ctx context.Context, provider, userID string, token Token) error
}

// DocumentID is the flat key used by document-style backends.
func DocumentID(provider, userID string) string {
	return provider + "_" + userID
}
