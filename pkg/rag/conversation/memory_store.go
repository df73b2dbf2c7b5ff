package conversation

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps histories in process. Appends and reads for one
// conversation are serialized; different conversations never contend.
type MemoryStore struct {
	items *gocache.Cache
	locks keyedMutex
	opts  Options
}

func NewMemoryStore(opts Options) *MemoryStore {
	opts = opts.withDefaults()
	return &MemoryStore{
		// The janitor frees idle histories; logical expiry is checked on access.
		items: gocache.New(opts.TTL, 10*time.Minute),
		opts:  opts,
	}
}

func (s *MemoryStore) Append(_ context.Context, conversationID, userID string, turn Turn) (*State, error) {
	if err := validateIDs(conversationID, userID); err != nil {
		return nil, err
	}
	if err := turn.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	now := s.opts.Clock()
	state := s.load(conversationID, now)
	if state == nil {
		state = &State{ConversationID: conversationID, UserID: userID}
	} else if state.UserID != userID {
		return nil, forbidden(conversationID)
	}

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	state.Turns = retain(append(state.Turns, turn), s.opts.Retention)
	state.LastAccessedAt = now
	s.items.Set(conversationID, state, s.opts.TTL)

	return state.clone(), nil
}

func (s *MemoryStore) Read(_ context.Context, conversationID, userID string, limits Limits) (*State, error) {
	if err := validateIDs(conversationID, userID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	now := s.opts.Clock()
	state := s.load(conversationID, now)
	if state == nil {
		return nil, nil
	}
	if state.UserID != userID {
		return nil, forbidden(conversationID)
	}

	state.LastAccessedAt = now
	s.items.Set(conversationID, state, s.opts.TTL)

	out := state.clone()
	out.Turns = Trim(out.Turns, limits)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, conversationID string) error {
	s.items.Delete(conversationID)
	return nil
}

// load returns the stored state, or nil if absent or idle past the TTL.
// Callers hold the conversation lock.
func (s *MemoryStore) load(conversationID string, now time.Time) *State {
	x, found := s.items.Get(conversationID)
	if !found {
		return nil
	}
	state := x.(*State)
	if !now.Before(state.LastAccessedAt.Add(s.opts.TTL)) {
		s.items.Delete(conversationID)
		return nil
	}
	return state
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
