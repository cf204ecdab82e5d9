package tokencache

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

// expiryMargin is subtracted from a token's own expiry so a token is never used right at its end.
const expiryMargin = 30 * time.Second

// TokenGetter defines a function type for retrieving new tokens.
type TokenGetter interface {
	GetToken(ctx context.Context, key string) (string, error)
}

// Cache provides API token caching functionality. Tokens live only in process memory.
type Cache struct {
	cache       *cache.Cache
	tokenGetter TokenGetter
	ttl         time.Duration
}

// New creates a new token cache instance. ttl is used for tokens that do not carry their own
// expiry.
func New(ttl, cleanupInterval time.Duration, tokenGetter TokenGetter) *Cache {
	return &Cache{
		cache:       cache.New(ttl, cleanupInterval),
		tokenGetter: tokenGetter,
		ttl:         ttl,
	}
}

// extractExpirationFromToken parses the token as a JWT and extracts its expiration time.
func extractExpirationFromToken(tokenString string) (time.Time, error) {
	// Parse the token without verifying the signature
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse JWT token: %w", err)
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("JWT token does not contain an expiration claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("JWT token does not contain an expiration claim")
	}

	return exp.Time, nil
}

// GetToken retrieves the token stored under key.
// If the token is not in the cache or has expired, it will fetch a new one.
func (c *Cache) GetToken(ctx context.Context, key string) (string, error) {
	if token, found := c.cache.Get(key); found {
		return token.(string), nil
	}

	token, err := c.tokenGetter.GetToken(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get new token: %w", err)
	}

	// Opaque tokens fall back to the configured lifetime.
	expiryDuration := c.ttl
	if expiry, err := extractExpirationFromToken(token); err == nil {
		expiryDuration = time.Until(expiry) - expiryMargin
		if expiryDuration <= 0 {
			// Already expired: hand it out once but do not cache it.
			return token, nil
		}
	}

	c.cache.Set(key, token, expiryDuration)

	return token, nil
}

// Invalidate drops the token stored under key so the next GetToken fetches a fresh one.
func (c *Cache) Invalidate(key string) {
	c.cache.Delete(key)
}

// AccountTokenKey returns a key for the specified API account.
func AccountTokenKey(username string) string {
	return fmt.Sprintf("account:%s", username)
}
