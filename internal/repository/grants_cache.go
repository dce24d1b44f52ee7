package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/internal/models"
)

// GrantsCache fronts the role repository with a short-TTL Redis snapshot so
// every request does not re-join roles and permissions. A nil client
// degrades to pass-through.
type GrantsCache struct {
	client *redis.Client
	repo   *RoleRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewGrantsCache constructs the cached grants loader.
func NewGrantsCache(client *redis.Client, repo *RoleRepository, ttl time.Duration, logger *zap.Logger) *GrantsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &GrantsCache{client: client, repo: repo, ttl: ttl, logger: logger}
}

func grantsKey(userID, guard string) string {
	return fmt.Sprintf("grants:%s:%s", guard, userID)
}

// GrantsForUser returns the cached snapshot when fresh, loading and
// caching it otherwise.
func (c *GrantsCache) GrantsForUser(ctx context.Context, userID, guard string) (*models.Grants, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, grantsKey(userID, guard)).Bytes()
		if err == nil {
			var grants models.Grants
			if err := json.Unmarshal(raw, &grants); err == nil {
				return &grants, nil
			}
			c.logger.Warn("discarding malformed grants cache entry", zap.String("user_id", userID))
		} else if err != redis.Nil {
			c.logger.Warn("grants cache read failed", zap.Error(err))
		}
	}

	grants, err := c.repo.GrantsForUser(ctx, userID, guard)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		if payload, err := json.Marshal(grants); err == nil {
			if err := c.client.Set(ctx, grantsKey(userID, guard), payload, c.ttl).Err(); err != nil {
				c.logger.Warn("grants cache write failed", zap.Error(err))
			}
		}
	}
	return grants, nil
}

// Invalidate drops the cached snapshot after role or permission changes.
func (c *GrantsCache) Invalidate(ctx context.Context, userID, guard string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, grantsKey(userID, guard)).Err(); err != nil {
		c.logger.Warn("grants cache invalidation failed", zap.Error(err))
	}
}
