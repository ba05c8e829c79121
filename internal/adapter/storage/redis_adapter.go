package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brickparty/brick-party/internal/core/domain"
)

const (
	inventoryKeyPrefix = "inventory:"
	ownedKeyPrefix     = "owned:"
	ownedAtKeyPrefix   = "owned-at:"
	idempotencyKeyTTL  = 24 * time.Hour
)

// KEYS[1] holds quantities, KEYS[2] the changed-at of each field in unix
// microseconds. Older changes lose, so workers may finish out of order.
var mirrorOwnedScript = redis.NewScript(`
local field = ARGV[1]
local quantity = ARGV[2]
local changedAt = tonumber(ARGV[3])

local seen = tonumber(redis.call('HGET', KEYS[2], field) or '0')
if changedAt < seen then
	return 0
end
redis.call('HSET', KEYS[2], field, ARGV[3])

local current = redis.call('HGET', KEYS[1], field)
if current == quantity then
	return 0
end

redis.call('HSET', KEYS[1], field, quantity)
return 1
`)

type RedisAdapter struct {
	client       *redis.Client
	inventoryTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, inventoryTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, inventoryTTL: inventoryTTL}
}

func (r *RedisAdapter) CachedInventory(ctx context.Context, setNumber string) ([]domain.InventoryRow, bool, error) {
	data, err := r.client.Get(ctx, inventoryKeyPrefix+setNumber).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rows []domain.InventoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("decode cached inventory: %w", err)
	}
	return rows, true, nil
}

func (r *RedisAdapter) CacheInventory(ctx context.Context, setNumber string, rows []domain.InventoryRow) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}
	return r.client.Set(ctx, inventoryKeyPrefix+setNumber, data, r.inventoryTTL).Err()
}

func (r *RedisAdapter) MirrorOwned(ctx context.Context, change domain.OwnedChange) (bool, error) {
	keys := []string{
		ownedHashKey(change.UserID, change.SetNumber),
		ownedAtKeyPrefix + change.UserID + ":" + change.SetNumber,
	}
	result, err := mirrorOwnedScript.Run(ctx, r.client, keys,
		change.Key, strconv.Itoa(change.Quantity), strconv.FormatInt(change.CreatedAt.UnixMicro(), 10)).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

func (r *RedisAdapter) MirroredOwned(ctx context.Context, userID, setNumber string) (map[string]int, bool, error) {
	fields, err := r.client.HGetAll(ctx, ownedHashKey(userID, setNumber)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	owned := make(map[string]int, len(fields))
	for k, v := range fields {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, false, fmt.Errorf("owned %s: %w", k, err)
		}
		owned[k] = n
	}
	return owned, true, nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func ownedHashKey(userID, setNumber string) string {
	return ownedKeyPrefix + userID + ":" + setNumber
}
