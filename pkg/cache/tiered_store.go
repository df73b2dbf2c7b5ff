package cache

import (
	"context"
	"errors"
)

// TieredStore reads L1 first and falls back to L2, copying L2 hits into L1.
// Writes and invalidations go to both tiers.
type TieredStore struct {
	l1 Store
	l2 Store
}

func NewTieredStore(l1, l2 Store) *TieredStore {
	return &TieredStore{l1: l1, l2: l2}
}

func (s *TieredStore) Get(ctx context.Context, key string) (*Entry, error) {
	if e, err := s.l1.Get(ctx, key); err == nil && e != nil {
		return e, nil
	}

	e, err := s.l2.Get(ctx, key)
	if err != nil || e == nil {
		return nil, err
	}
	_ = s.l1.Set(ctx, e)
	return e, nil
}

func (s *TieredStore) Set(ctx context.Context, entry *Entry) error {
	return errors.Join(s.l1.Set(ctx, entry), s.l2.Set(ctx, entry))
}

func (s *TieredStore) Delete(ctx context.Context, keys ...string) error {
	return errors.Join(s.l1.Delete(ctx, keys...), s.l2.Delete(ctx, keys...))
}

// InvalidateTags reports the larger of the two tier counts.
func (s *TieredStore) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	n1, err1 := s.l1.InvalidateTags(ctx, tags...)
	n2, err2 := s.l2.InvalidateTags(ctx, tags...)
	return max(n1, n2), errors.Join(err1, err2)
}
