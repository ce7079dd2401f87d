package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "accounts:"

// The email index key is claimed with SETNX inside each script, so uniqueness
// holds without WATCH/MULTI retries.
var (
	insertScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], 'id', ARGV[1], 'name', ARGV[2], 'email', ARGV[3],
  'password_hash', ARGV[4], 'created_at', ARGV[5], 'updated_at', ARGV[5])
redis.call('ZADD', KEYS[3], ARGV[6], ARGV[1])
return 1
`)

	updateScript = redis.NewScript(`
local email = redis.call('HGET', KEYS[1], 'email')
if not email then
  return -1
end
if ARGV[2] ~= '' and ARGV[2] ~= email then
  if redis.call('SETNX', KEYS[2], ARGV[5]) == 0 then
    return 0
  end
  redis.call('DEL', ARGV[1] .. email)
  redis.call('HSET', KEYS[1], 'email', ARGV[2])
end
if ARGV[3] ~= '' then
  redis.call('HSET', KEYS[1], 'name', ARGV[3])
end
if ARGV[4] ~= '' then
  redis.call('HSET', KEYS[1], 'password_hash', ARGV[4])
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[6])
return redis.call('HGETALL', KEYS[1])
`)

	deleteScript = redis.NewScript(`
local email = redis.call('HGET', KEYS[1], 'email')
if not email then
  return 0
end
redis.call('DEL', KEYS[1], ARGV[1] .. email)
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)
)

// RedisRepository stores each account as a hash, with a string key per email
// pointing at the owning id and a sorted set ordering ids by creation time.
// The update and delete scripts derive the old email key from the stored
// hash, so they need a single-node client; Redis Cluster is not supported.
type RedisRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRepository constructs a repository on top of an existing client.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{
		client: client,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func idKey(id string) string       { return redisKeyPrefix + "id:" + id }
func emailKey(email string) string { return redisKeyPrefix + "email:" + email }
func indexKey() string             { return redisKeyPrefix + "index" }

// FindByEmail fetches an account by its login email.
func (r *RedisRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	id, err := r.client.Get(ctx, emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: lookup email: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID fetches an account by id.
func (r *RedisRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	fields, err := r.client.HGetAll(ctx, idKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("users: load account: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeAccount(fields)
}

// Insert stores a new account if its email is free.
func (r *RedisRepository) Insert(ctx context.Context, candidate Candidate) (*Account, error) {
	now := r.now()
	account := &Account{
		ID:           uuid.NewString(),
		Name:         candidate.Name,
		Email:        candidate.Email,
		PasswordHash: candidate.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	keys := []string{emailKey(account.Email), idKey(account.ID), indexKey()}
	stored, err := insertScript.Run(ctx, r.client, keys,
		account.ID, account.Name, account.Email, account.PasswordHash,
		formatTime(now), strconv.FormatInt(now.UnixMicro(), 10),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("users: insert account: %w", err)
	}
	if stored == 0 {
		return nil, ErrAlreadyExists
	}
	return account, nil
}

// Update overwrites the non-empty fields of patch.
func (r *RedisRepository) Update(ctx context.Context, id string, patch Patch) (*Account, error) {
	keys := []string{idKey(id), emailKey(patch.Email)}
	res, err := updateScript.Run(ctx, r.client, keys,
		redisKeyPrefix+"email:", patch.Email, patch.Name, patch.PasswordHash,
		id, formatTime(r.now()),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("users: update account: %w", err)
	}
	switch v := res.(type) {
	case int64:
		if v == -1 {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyExists
	case []any:
		return decodeAccount(pairsToMap(v))
	default:
		return nil, fmt.Errorf("users: update account: unexpected reply %T", res)
	}
}

// Delete removes an account together with its email claim.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	removed, err := deleteScript.Run(ctx, r.client, []string{idKey(id), indexKey()},
		redisKeyPrefix+"email:", id,
	).Int()
	if err != nil {
		return fmt.Errorf("users: delete account: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all accounts in creation order.
func (r *RedisRepository) List(ctx context.Context, withSecrets bool) ([]Account, error) {
	ids, err := r.client.ZRange(ctx, indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("users: list accounts: %w", err)
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, idKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("users: list accounts: %w", err)
		}
	}

	accounts := make([]Account, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// deleted between ZRANGE and HGETALL
			continue
		}
		account, err := decodeAccount(fields)
		if err != nil {
			return nil, err
		}
		if !withSecrets {
			account.PasswordHash = ""
		}
		accounts = append(accounts, *account)
	}
	sortAccounts(accounts)
	return accounts, nil
}

func decodeAccount(fields map[string]string) (*Account, error) {
	created, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("users: decode created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("users: decode updated_at: %w", err)
	}
	return &Account{
		ID:           fields["id"],
		Name:         fields["name"],
		Email:        fields["email"],
		PasswordHash: fields["password_hash"],
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

func pairsToMap(pairs []any) map[string]string {
	out := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		out[k] = v
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var _ Repository = (*RedisRepository)(nil)
