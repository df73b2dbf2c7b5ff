package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps entries in process. go-cache's janitor physically drops
// entries after their TTL; the tag index is cleaned through OnEvicted.
type MemoryStore struct {
	items *gocache.Cache

	mu      sync.Mutex
	tagKeys map[string]map[string]struct{}
	keyTags map[string][]string
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	s := &MemoryStore{
		items:   gocache.New(gocache.NoExpiration, cleanupInterval),
		tagKeys: make(map[string]map[string]struct{}),
		keyTags: make(map[string][]string),
	}
	s.items.OnEvicted(s.evicted)
	return s
}

// evicted runs after go-cache has released its own lock, so a Set for the
// same key may already have landed. That newer entry keeps its tags.
func (s *MemoryStore) evicted(key string, _ interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, live := s.items.Get(key); live {
		return
	}
	s.untagLocked(key)
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	if x, found := s.items.Get(key); found {
		return x.(*Entry).clone(), nil
	}
	return nil, nil
}

func (s *MemoryStore) Set(_ context.Context, entry *Entry) error {
	stored := entry.clone()

	s.mu.Lock()
	s.untagLocked(stored.Key)
	for _, tag := range stored.Tags {
		keys, ok := s.tagKeys[tag]
		if !ok {
			keys = make(map[string]struct{})
			s.tagKeys[tag] = keys
		}
		keys[stored.Key] = struct{}{}
	}
	if len(stored.Tags) > 0 {
		s.keyTags[stored.Key] = stored.Tags
	}
	// go-cache's Set never fires OnEvicted, so it is safe under s.mu.
	s.items.Set(stored.Key, stored, stored.TTL())
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.items.Delete(k)
	}
	return nil
}

func (s *MemoryStore) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	// Collect first: Delete fires OnEvicted, which takes s.mu.
	s.mu.Lock()
	seen := make(map[string]struct{})
	var keys []string
	for _, tag := range tags {
		for k := range s.tagKeys[tag] {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
		delete(s.tagKeys, tag)
	}
	s.mu.Unlock()

	removed := 0
	for _, k := range keys {
		if _, found := s.items.Get(k); found {
			removed++
		}
	}
	return removed, s.Delete(ctx, keys...)
}

// Len reports the number of entries physically held, expired or not.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}

func (s *MemoryStore) untagLocked(key string) {
	for _, tag := range s.keyTags[key] {
		if keys, ok := s.tagKeys[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.tagKeys, tag)
			}
		}
	}
	delete(s.keyTags, key)
}
