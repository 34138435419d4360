package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/casper-member-portal/interfaces"
)

const revokedTokenKeyPrefix = "portal:trl:jti:"

// RedisRevocationList is a token revocation list shared by all instances.
// Entries expire after ttl, which should cover the token lifetime.
type RedisRevocationList struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRevocationList creates a revocation list on client.
func NewRedisRevocationList(client *redis.Client, ttl time.Duration) *RedisRevocationList {
	return &RedisRevocationList{client: client, ttl: ttl}
}

// Revoke marks tokenID as revoked.
func (r *RedisRevocationList) Revoke(ctx context.Context, accountID interfaces.AccountID, tokenID string) error {
	if tokenID == "" {
		return nil
	}
	return r.client.Set(ctx, revokedTokenKeyPrefix+tokenID, accountID.String(), r.ttl).Err()
}

// IsRevoked reports whether tokenID was revoked and has not yet expired.
func (r *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	_, err := r.client.Get(ctx, revokedTokenKeyPrefix+tokenID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryRevocationList is an in-process revocation list.
type MemoryRevocationList struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     interfaces.Clock
	revoked map[string]time.Time
}

// NewMemoryRevocationList creates an empty list whose entries expire after ttl.
func NewMemoryRevocationList(ttl time.Duration) *MemoryRevocationList {
	return &MemoryRevocationList{
		ttl:     ttl,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

// Revoke marks tokenID as revoked.
func (m *MemoryRevocationList) Revoke(ctx context.Context, accountID interfaces.AccountID, tokenID string) error {
	if tokenID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.revoked {
		if now.After(exp) {
			delete(m.revoked, id)
		}
	}
	m.revoked[tokenID] = now.Add(m.ttl)
	return nil
}

// IsRevoked reports whether tokenID was revoked and has not yet expired.
func (m *MemoryRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.revoked[tokenID]
	return ok && !m.now().After(exp), nil
}
