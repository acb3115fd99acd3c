package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("token not found")
	// ErrBlacklisted is returned by Consume when the matching row is blacklisted.
	ErrBlacklisted = errors.New("token blacklisted")
	// ErrStoreUnavailable wraps every backend failure.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrUnsupportedType is returned when inserting a type that is never persisted.
	ErrUnsupportedType = errors.New("token type is not persisted")
	// ErrAlreadyExpired is returned when inserting a row whose expiry has passed.
	ErrAlreadyExpired = errors.New("token already expired")
	// ErrCorruptRow is returned when a stored row cannot be decoded.
	ErrCorruptRow = errors.New("token row corrupt")
)

const (
	consumeStatusNotFound    int64 = 0
	consumeStatusConsumed    int64 = 1
	consumeStatusBlacklisted int64 = 2
	consumeStatusInvalidRow  int64 = 4
)

const consumeScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
if string.byte(data, 1) ~= 1 then
  return {4}
end
if string.sub(data, 3, 3) ~= ARGV[2] then
  return {0}
end
local subject_len = string.byte(data, 4)
if not subject_len or string.sub(data, 5, 4 + subject_len) ~= ARGV[3] then
  return {0}
end
if string.byte(data, 2) == 1 then
  return {2, data}
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return {1, data}
`

var consumeLua = redis.NewScript(consumeScript)

const blacklistScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("SETRANGE", KEYS[1], 1, "\1")
return 1
`

var blacklistLua = redis.NewScript(blacklistScript)

const deleteScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local subject_len = string.byte(data, 4) or 0
local subject = string.sub(data, 5, 4 + subject_len)
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. subject, ARGV[2])
return 1
`

var deleteLua = redis.NewScript(deleteScript)

const deleteSubjectScript = `
local members = redis.call("SMEMBERS", KEYS[1])
local deleted = 0
for _, h in ipairs(members) do
  local key = ARGV[1] .. h
  local data = redis.call("GET", key)
  if not data then
    redis.call("SREM", KEYS[1], h)
  else
    local code = string.sub(data, 3, 3)
    local keep = string.byte(data, 2) == 1
    if not keep and (ARGV[2] == "" or string.find(ARGV[2], code, 1, true)) then
      redis.call("DEL", key)
      redis.call("SREM", KEYS[1], h)
      deleted = deleted + 1
    end
  end
end
return deleted
`

var deleteSubjectLua = redis.NewScript(deleteSubjectScript)

// RedisStore persists token rows in Redis. Each row lives under a key derived
// from the SHA-256 of the token value and expires with the token; a per-subject
// set indexes the row keys for bulk invalidation.
//
// RedisStore is safe for concurrent use. Consume is a single Lua script, so two
// callers racing on the same value observe exactly one successful consume.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store using prefix as the key namespace.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tok"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
	}
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func (s *RedisStore) rowPrefix() string {
	return s.prefix + ":t:"
}

func (s *RedisStore) subjectPrefix() string {
	return s.prefix + ":s:"
}

func (s *RedisStore) rowKey(hash string) string {
	return s.rowPrefix() + hash
}

func (s *RedisStore) subjectKey(subjectID string) string {
	return s.subjectPrefix() + subjectID
}

// Insert stores t, assigning a new ID when t.ID is empty. A row with the same
// value is overwritten.
func (s *RedisStore) Insert(ctx context.Context, t *Token) (string, error) {
	if t == nil || !t.Type.Persisted() {
		return "", ErrUnsupportedType
	}
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return "", ErrAlreadyExpired
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	data, err := encodeRow(t)
	if err != nil {
		return "", err
	}

	hash := hashValue(t.Value)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.rowKey(hash), data, ttl)
		pipe.SAdd(ctx, s.subjectKey(t.SubjectID), hash)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return t.ID, nil
}

// FindActive returns the row matching value, type and subject. Blacklisted
// rows are returned as-is; interpreting them is left to the caller.
func (s *RedisStore) FindActive(ctx context.Context, value string, typ Type, subjectID string) (*Token, error) {
	data, err := s.redis.Get(ctx, s.rowKey(hashValue(value))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	row, err := decodeRow(data)
	if err != nil {
		return nil, errors.Join(ErrCorruptRow, err)
	}
	if row.Type != typ || row.SubjectID != subjectID {
		return nil, ErrNotFound
	}
	row.Value = value

	return row, nil
}

// Consume atomically deletes and returns the row matching value, type and
// subject, provided it is not blacklisted. A blacklisted row is left in place
// and returned together with ErrBlacklisted.
func (s *RedisStore) Consume(ctx context.Context, value string, typ Type, subjectID string) (*Token, error) {
	code, ok := typeCode(typ)
	if !ok {
		return nil, ErrUnsupportedType
	}

	hash := hashValue(value)
	result, err := consumeLua.Run(
		ctx,
		s.redis,
		[]string{s.rowKey(hash), s.subjectKey(subjectID)},
		hash,
		string([]byte{code}),
		subjectID,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid consume script response", ErrStoreUnavailable)
	}
	status, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid consume script status", ErrStoreUnavailable)
	}

	switch status {
	case consumeStatusNotFound:
		return nil, ErrNotFound
	case consumeStatusInvalidRow:
		return nil, ErrCorruptRow
	case consumeStatusConsumed, consumeStatusBlacklisted:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing consumed row", ErrStoreUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid consumed row payload", ErrStoreUnavailable)
		}
		row, decErr := decodeRow(blob)
		if decErr != nil {
			return nil, errors.Join(ErrCorruptRow, decErr)
		}
		row.Value = value
		if status == consumeStatusBlacklisted {
			return row, ErrBlacklisted
		}
		return row, nil
	default:
		return nil, fmt.Errorf("%w: unknown consume script status", ErrStoreUnavailable)
	}
}

// DeleteAllForSubject removes the subject's rows of the given types, or of
// every type when none are given, and returns how many were removed.
// Blacklisted rows are kept until they expire.
func (s *RedisStore) DeleteAllForSubject(ctx context.Context, subjectID string, types ...Type) (int, error) {
	filter := make([]byte, 0, len(types))
	for _, t := range types {
		code, ok := typeCode(t)
		if !ok {
			return 0, ErrUnsupportedType
		}
		filter = append(filter, code)
	}

	n, err := deleteSubjectLua.Run(
		ctx,
		s.redis,
		[]string{s.subjectKey(subjectID)},
		s.rowPrefix(),
		string(filter),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// MarkBlacklisted flags the row for value. Missing rows are ignored and the
// row's expiry is preserved.
func (s *RedisStore) MarkBlacklisted(ctx context.Context, value string) error {
	if err := blacklistLua.Run(ctx, s.redis, []string{s.rowKey(hashValue(value))}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes the row for value and reports whether one existed.
func (s *RedisStore) Delete(ctx context.Context, value string) (bool, error) {
	hash := hashValue(value)
	n, err := deleteLua.Run(
		ctx,
		s.redis,
		[]string{s.rowKey(hash)},
		s.subjectPrefix(),
		hash,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
