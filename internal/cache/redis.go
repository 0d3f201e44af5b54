package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// balanceTTL keeps cached balances short-lived. The ledger is the source
// of truth; the cache only absorbs repeated balance reads between writes.
const balanceTTL = 30 * time.Second

type Cache struct {
	client *redis.Client
	ctx    context.Context
}

func New(redisAddr string, db int) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   db,
	})

	return &Cache{
		client: client,
		ctx:    context.Background(),
	}
}

// Set stores a key-value pair with an expiration time
func (c *Cache) Set(key string, value string, expiration time.Duration) error {
	return c.client.Set(c.ctx, key, value, expiration).Err()
}

// Get retrieves a value by key
func (c *Cache) Get(key string) (string, error) {
	return c.client.Get(c.ctx, key).Result()
}

// Delete removes a key from the cache
func (c *Cache) Delete(key string) error {
	return c.client.Del(c.ctx, key).Err()
}

// SetBalance caches a wallet balance snapshot, keyed by the owning user.
func (c *Cache) SetBalance(userID string, balance decimal.Decimal) error {
	return c.Set(balanceKey(userID), balance.StringFixed(2), balanceTTL)
}

// GetBalance returns the cached balance for a wallet. The boolean reports
// whether a usable entry was found; a miss or a corrupt entry is not an error.
func (c *Cache) GetBalance(userID string) (decimal.Decimal, bool, error) {
	value, err := c.Get(balanceKey(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}

	balance, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false, nil
	}

	return balance, true, nil
}

// InvalidateBalance drops the cached balance after a wallet mutation.
func (c *Cache) InvalidateBalance(userID string) error {
	return c.Delete(balanceKey(userID))
}

func balanceKey(userID string) string {
	return "wallet:balance:" + userID
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
