package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const noncePrefix = "ledger:nonce:"

// NonceStore remembers the nonces of signed mutations until their signature
// window has passed, so a captured request cannot be replayed.
type NonceStore struct {
	client *goredis.Client
}

func NewNonceStore(client *goredis.Client) *NonceStore {
	return &NonceStore{client: client}
}

// CheckAndSet claims nonce for identityID. It returns false when the nonce
// was already claimed within ttl.
func (s *NonceStore) CheckAndSet(ctx context.Context, identityID string, nonce string, ttl time.Duration) (bool, error) {
	claimed, err := s.client.SetNX(ctx, nonceKey(identityID, nonce), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis nonce claim: %w", err)
	}
	return claimed, nil
}

func nonceKey(identityID, nonce string) string {
	return noncePrefix + identityID + ":" + nonce
}
