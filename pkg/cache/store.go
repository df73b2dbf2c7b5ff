package cache

import (
	"context"
	"time"
)

// Store is a cache backend. Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, keys ...string) error
	// InvalidateTags removes every entry carrying any of the tags and
	// returns how many keys were dropped.
	InvalidateTags(ctx context.Context, tags ...string) (int, error)
}

// Clock lets tests move time without sleeping.
type Clock func() time.Time
