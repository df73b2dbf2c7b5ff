package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares entries between replicas. Each tag is a Redis set of the
// keys carrying it; the set expires with the newest member.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "docqa:cache:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) entryKey(key string) string { return s.prefix + "e:" + key }
func (s *RedisStore) tagKey(tag string) string   { return s.prefix + "t:" + tag }

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.rdb.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.Key, err)
	}

	ttl := entry.TTL()
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(entry.Key), raw, ttl)
		for _, tag := range entry.Tags {
			pipe.SAdd(ctx, s.tagKey(tag), entry.Key)
			pipe.Expire(ctx, s.tagKey(tag), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", entry.Key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.entryKey(k)
	}
	return s.rdb.Del(ctx, full...).Err()
}

func (s *RedisStore) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	removed := 0
	for _, tag := range tags {
		members, err := s.rdb.SMembers(ctx, s.tagKey(tag)).Result()
		if err != nil {
			return removed, fmt.Errorf("redis smembers %s: %w", tag, err)
		}

		full := make([]string, 0, len(members)+1)
		for _, m := range members {
			full = append(full, s.entryKey(m))
		}
		full = append(full, s.tagKey(tag))

		n, err := s.rdb.Del(ctx, full...).Result()
		if err != nil {
			return removed, fmt.Errorf("redis del tag %s: %w", tag, err)
		}
		// The tag set itself was one of the deleted keys when it existed.
		if n > 0 && len(members) > 0 {
			n--
		}
		removed += int(n)
	}
	return removed, nil
}
