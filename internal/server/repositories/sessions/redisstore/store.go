// Package redisstore keeps session records in Redis.
//
// Layout, for prefix p:
//
//	p:acct:<id>     hash {token, expires_at, created_at}, times in unix ms
//	p:tok:<token>   account id
//	p:expiry        sorted set of account ids scored by expires_at
//
// Keys carry no TTL; expired records go away through DeleteExpired.
// The scripts touch keys they derive at run time, so the store needs a
// single Redis node (or every key hashed to one slot).
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const putScript = `
local old = redis.call("HGET", KEYS[1], "token")
if old then
  redis.call("DEL", ARGV[5] .. old)
end
redis.call("HSET", KEYS[1], "token", ARGV[1], "expires_at", ARGV[2], "created_at", ARGV[3])
redis.call("SET", KEYS[2], ARGV[4])
redis.call("ZADD", KEYS[3], ARGV[2], ARGV[4])
return 1
`

var putLua = redis.NewScript(putScript)

const deleteScript = `
local old = redis.call("HGET", KEYS[1], "token")
redis.call("ZREM", KEYS[2], ARGV[1])
if not old then
  return 0
end
redis.call("DEL", ARGV[2] .. old)
redis.call("DEL", KEYS[1])
return 1
`

var deleteLua = redis.NewScript(deleteScript)

// deleteExpiredScript removes one account's record only if it is still
// expired, so a Put racing the sweep survives.
const deleteExpiredScript = `
local exp = redis.call("HGET", KEYS[1], "expires_at")
if not exp then
  redis.call("ZREM", KEYS[2], ARGV[1])
  return 0
end
if tonumber(exp) > tonumber(ARGV[3]) then
  return 0
end
local old = redis.call("HGET", KEYS[1], "token")
if old then
  redis.call("DEL", ARGV[2] .. old)
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return 1
`

var deleteExpiredLua = redis.NewScript(deleteExpiredScript)

type Store struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore returns a store writing under prefix. A nil now means time.Now.
func NewStore(rdb redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{rdb: rdb, prefix: prefix, now: now}
}

func (s *Store) accountKey(accountID int64) string {
	return s.prefix + ":acct:" + strconv.FormatInt(accountID, 10)
}

func (s *Store) tokenPrefix() string {
	return s.prefix + ":tok:"
}

func (s *Store) tokenKey(token string) string {
	return s.tokenPrefix() + token
}

func (s *Store) expiryKey() string {
	return s.prefix + ":expiry"
}

func (s *Store) Put(ctx context.Context, accountID int64, token string, expiresAt time.Time) error {
	id := strconv.FormatInt(accountID, 10)

	err := putLua.Run(ctx, s.rdb,
		[]string{s.accountKey(accountID), s.tokenKey(token), s.expiryKey()},
		token, expiresAt.UnixMilli(), s.now().UnixMilli(), id, s.tokenPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, accountID int64) (*models.SessionRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if len(fields) == 0 {
		return nil, common.ErrorNotFound
	}

	expMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("db error: corrupt expires_at for account %d: %w", accountID, err)
	}
	createdMs, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("db error: corrupt created_at for account %d: %w", accountID, err)
	}

	return &models.SessionRecord{
		AccountID: accountID,
		Token:     fields["token"],
		ExpiresAt: time.UnixMilli(expMs).UTC(),
		CreatedAt: time.UnixMilli(createdMs).UTC(),
	}, nil
}

func (s *Store) FindByToken(ctx context.Context, token string) (*models.SessionRecord, error) {
	id, err := s.rdb.Get(ctx, s.tokenKey(token)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	// replaced between the two reads
	if rec.Token != token {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}

func (s *Store) FindByAccount(ctx context.Context, accountID int64) (*models.SessionRecord, error) {
	return s.load(ctx, accountID)
}

func (s *Store) DeleteByAccount(ctx context.Context, accountID int64) error {
	err := deleteLua.Run(ctx, s.rdb,
		[]string{s.accountKey(accountID), s.expiryKey()},
		strconv.FormatInt(accountID, 10), s.tokenPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, asOf time.Time) (int64, error) {
	cutoff := asOf.UnixMilli()

	ids, err := s.rdb.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	var removed int64
	for _, id := range ids {
		accountID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		n, err := deleteExpiredLua.Run(ctx, s.rdb,
			[]string{s.accountKey(accountID), s.expiryKey()},
			id, s.tokenPrefix(), cutoff,
		).Int64()
		if err != nil {
			return removed, fmt.Errorf("db error: %w", err)
		}
		removed += n
	}

	return removed, nil
}
