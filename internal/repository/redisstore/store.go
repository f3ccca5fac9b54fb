// Package redisstore keeps refresh grants in Redis. Rotation is decided by a Lua
// compare-and-set so concurrent refreshes of one token see a single winner.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"go-auth-service/internal/model"
)

const revokeScript = `
local revoked = redis.call("HGET", KEYS[1], "revoked")
if revoked ~= "0" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`

var revokeLua = redis.NewScript(revokeScript)

const revokeAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local count = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local revoked = redis.call("HGET", key, "revoked")
  if revoked == "0" then
    redis.call("HSET", key, "revoked", "1")
    count = count + 1
  elseif not revoked then
    redis.call("SREM", KEYS[1], id)
  end
end
return count
`

var revokeAllLua = redis.NewScript(revokeAllScript)

type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewStore(client redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if prefix == "" {
		prefix = "auth"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{redis: client, prefix: prefix, now: now}
}

// NewClient builds a client from a redis:// URL and checks connectivity.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *Store) recordPrefix() string {
	return s.prefix + ":rt:"
}

func (s *Store) recordKey(id string) string {
	return s.recordPrefix() + id
}

func (s *Store) hashKey(tokenHash string) string {
	return s.prefix + ":rth:" + tokenHash
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":rtu:" + userID
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, model.ErrPersistenceUnavailable, err)
}

// Create stores the record with a native expiry at expiresAt, so expired grants
// disappear without a purge.
func (s *Store) Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (string, error) {
	id := uuid.NewString()
	recordKey := s.recordKey(id)

	hashKey := s.hashKey(tokenHash)
	ttl := max(expiresAt.Sub(s.now()), time.Millisecond)

	created, err := s.redis.SetNX(ctx, hashKey, id, ttl).Result()
	if err != nil {
		return "", unavailable("store refresh token", err)
	}
	if !created {
		return "", fmt.Errorf("store refresh token: %w", model.ErrInvalidInput)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordKey, map[string]any{
			"user_id":    userID,
			"token_hash": tokenHash,
			"expires_at": expiresAt.UTC().UnixMilli(),
			"revoked":    "0",
			"created_at": s.now().UTC().UnixMilli(),
		})
		pipe.PExpireAt(ctx, recordKey, expiresAt)
		pipe.PExpireAt(ctx, hashKey, expiresAt)
		pipe.SAdd(ctx, s.userKey(userID), id)
		return nil
	})
	if err != nil {
		// release the hash so a retry with the same token is not rejected as a duplicate
		_ = s.redis.Del(context.WithoutCancel(ctx), hashKey, recordKey).Err()
		return "", unavailable("store refresh token", err)
	}
	return id, nil
}

func (s *Store) FindActiveByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	id, err := s.redis.Get(ctx, s.hashKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshToken{}, unavailable("find refresh token", err)
	}

	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return model.RefreshToken{}, unavailable("find refresh token", err)
	}
	if len(fields) == 0 {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}

	record, err := decodeRecord(id, fields)
	if err != nil {
		return model.RefreshToken{}, err
	}
	if !record.Active(s.now()) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	return record, nil
}

func (s *Store) Revoke(ctx context.Context, id string) (bool, error) {
	n, err := revokeLua.Run(ctx, s.redis, []string{s.recordKey(id)}).Int64()
	if err != nil {
		return false, unavailable("revoke refresh token", err)
	}
	return n == 1, nil
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := revokeAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.recordPrefix()).Int64()
	if err != nil {
		return 0, unavailable("revoke all refresh tokens", err)
	}
	return n, nil
}

// PurgeExpired prunes user index entries whose record has already expired. The
// records themselves are removed by Redis at their expiry.
func (s *Store) PurgeExpired(ctx context.Context, _ time.Time) (int64, error) {
	var pruned int64

	iter := s.redis.Scan(ctx, 0, s.prefix+":rtu:*", 100).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()

		ids, err := s.redis.SMembers(ctx, userKey).Result()
		if err != nil {
			return pruned, unavailable("purge expired tokens", err)
		}
		for _, id := range ids {
			exists, err := s.redis.Exists(ctx, s.recordKey(id)).Result()
			if err != nil {
				return pruned, unavailable("purge expired tokens", err)
			}
			if exists == 0 {
				if err := s.redis.SRem(ctx, userKey, id).Err(); err != nil {
					return pruned, unavailable("purge expired tokens", err)
				}
				pruned++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, unavailable("purge expired tokens", err)
	}
	return pruned, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func decodeRecord(id string, fields map[string]string) (model.RefreshToken, error) {
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("decode refresh token %s: %w", id, err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("decode refresh token %s: %w", id, err)
	}

	return model.RefreshToken{
		ID:        id,
		UserID:    fields["user_id"],
		TokenHash: fields["token_hash"],
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
		IsRevoked: fields["revoked"] != "0",
		CreatedAt: time.UnixMilli(createdAt).UTC(),
	}, nil
}
