package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS: meta hash, turns list, token-cost list.
// ARGV: user id, turn json, turn tokens, max turns, max tokens, ttl ms, now ms.
var appendScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'user_id')
if owner and owner ~= ARGV[1] then
  return {'forbidden'}
end
if not owner then
  redis.call('DEL', KEYS[2], KEYS[3])
  redis.call('HSET', KEYS[1], 'user_id', ARGV[1])
end
redis.call('HSET', KEYS[1], 'last_accessed_at', ARGV[7])
redis.call('RPUSH', KEYS[2], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[3])

local n = redis.call('LLEN', KEYS[2])
local maxTurns = tonumber(ARGV[4])
if maxTurns > 0 then
  while n > maxTurns do
    redis.call('LPOP', KEYS[2])
    redis.call('LPOP', KEYS[3])
    n = n - 1
  end
end

local maxTokens = tonumber(ARGV[5])
if maxTokens > 0 then
  local costs = redis.call('LRANGE', KEYS[3], 0, -1)
  local total = 0
  for _, c in ipairs(costs) do
    total = total + tonumber(c)
  end
  local i = 1
  while total > maxTokens and n > 1 do
    redis.call('LPOP', KEYS[2])
    redis.call('LPOP', KEYS[3])
    total = total - tonumber(costs[i])
    i = i + 1
    n = n - 1
  end
end

local ttl = tonumber(ARGV[6])
redis.call('PEXPIRE', KEYS[1], ttl)
redis.call('PEXPIRE', KEYS[2], ttl)
redis.call('PEXPIRE', KEYS[3], ttl)

local res = {'ok'}
for _, item in ipairs(redis.call('LRANGE', KEYS[2], 0, -1)) do
  table.insert(res, item)
end
return res
`)

// KEYS: meta hash, turns list, token-cost list.
// ARGV: user id, ttl ms, now ms.
var readScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'user_id')
if not owner then
  return {'missing'}
end
if owner ~= ARGV[1] then
  return {'forbidden'}
end
redis.call('HSET', KEYS[1], 'last_accessed_at', ARGV[3])
local ttl = tonumber(ARGV[2])
redis.call('PEXPIRE', KEYS[1], ttl)
redis.call('PEXPIRE', KEYS[2], ttl)
redis.call('PEXPIRE', KEYS[3], ttl)

local res = {'ok'}
for _, item in ipairs(redis.call('LRANGE', KEYS[2], 0, -1)) do
  table.insert(res, item)
end
return res
`)

// RedisStore shares histories across replicas. Every append is one script
// run, so ordering and retention are enforced by Redis itself.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	opts   Options
}

func NewRedisStore(rdb redis.UniversalClient, prefix string, opts Options) *RedisStore {
	if prefix == "" {
		prefix = "docqa:conv:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, opts: opts.withDefaults()}
}

// keys share a hash tag so a cluster keeps one conversation on one slot.
func (s *RedisStore) keys(conversationID string) []string {
	base := s.prefix + "{" + conversationID + "}:"
	return []string{base + "meta", base + "turns", base + "tokens"}
}

func (s *RedisStore) Append(ctx context.Context, conversationID, userID string, turn Turn) (*State, error) {
	if err := validateIDs(conversationID, userID); err != nil {
		return nil, err
	}
	if err := turn.Validate(); err != nil {
		return nil, err
	}

	now := s.opts.Clock()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	raw, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("encode turn: %w", err)
	}

	res, err := appendScript.Run(ctx, s.rdb, s.keys(conversationID),
		userID,
		string(raw),
		turn.Tokens(),
		s.opts.Retention.MaxTurns,
		s.opts.Retention.MaxTokens,
		s.opts.TTL.Milliseconds(),
		now.UnixMilli(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}
	return s.decode(conversationID, userID, now, res)
}

func (s *RedisStore) Read(ctx context.Context, conversationID, userID string, limits Limits) (*State, error) {
	if err := validateIDs(conversationID, userID); err != nil {
		return nil, err
	}

	now := s.opts.Clock()
	res, err := readScript.Run(ctx, s.rdb, s.keys(conversationID),
		userID,
		s.opts.TTL.Milliseconds(),
		now.UnixMilli(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}

	state, err := s.decode(conversationID, userID, now, res)
	if err != nil || state == nil {
		return nil, err
	}
	state.Turns = Trim(state.Turns, limits)
	return state, nil
}

func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	return s.rdb.Del(ctx, s.keys(conversationID)...).Err()
}

func (s *RedisStore) decode(conversationID, userID string, now time.Time, res []interface{}) (*State, error) {
	if len(res) == 0 {
		return nil, fmt.Errorf("empty script reply")
	}
	switch status, _ := res[0].(string); status {
	case "missing":
		return nil, nil
	case "forbidden":
		return nil, forbidden(conversationID)
	case "ok":
	default:
		return nil, fmt.Errorf("unexpected script reply %v", res[0])
	}

	state := &State{
		ConversationID: conversationID,
		UserID:         userID,
		Turns:          make([]Turn, 0, len(res)-1),
		LastAccessedAt: now,
	}
	for _, item := range res[1:] {
		raw, _ := item.(string)
		var t Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		state.Turns = append(state.Turns, t)
	}
	return state, nil
}
