package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(key string, tags ...string) *Entry {
	return &Entry{
		Key:        key,
		Value:      json.RawMessage(`"value"`),
		CreatedAt:  time.Now(),
		TTLSeconds: 60,
		Tags:       tags,
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  What is   RAG? ", "what is rag?"},
		{"what\tis\nrag?", "what is rag?"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
	assert.Equal(t, HashKey("m", Normalize(" Hello  World")), HashKey("m", Normalize("hello world")))
	assert.NotEqual(t, HashKey("ab", "c"), HashKey("a", "bc"))
}

func TestEntryReadable(t *testing.T) {
	e := testEntry("k")
	assert.True(t, e.Readable(e.CreatedAt.Add(59*time.Second)))
	assert.False(t, e.Readable(e.CreatedAt.Add(60*time.Second)))
}

func TestMemoryStoreTagIndexFollowsOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	require.NoError(t, s.Set(ctx, testEntry("k", "owner:a")))
	require.NoError(t, s.Set(ctx, testEntry("k", "owner:b")))

	n, err := s.InvalidateTags(ctx, "owner:a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.InvalidateTags(ctx, "owner:b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestMemoryStoreLateEvictionKeepsNewerTags(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	stale := testEntry("k", "owner:a")
	require.NoError(t, s.Set(ctx, stale))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Set(ctx, testEntry("k", "owner:a")))

	// the janitor reports the old entry after the rewrite landed
	s.evicted("k", stale)

	n, err := s.InvalidateTags(ctx, "owner:a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTieredStorePromotesL2Hits(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryStore(time.Minute)
	l2 := NewMemoryStore(time.Minute)
	s := NewTieredStore(l1, l2)

	require.NoError(t, l2.Set(ctx, testEntry("k", "owner:a")))

	e, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, l1.Len())

	n, err := s.InvalidateTags(ctx, "owner:a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, l1.Len())
	assert.Equal(t, 0, l2.Len())
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping integration test: REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	s := NewRedisStore(rdb, "docqa:test:"+uuid.NewString()+":")

	require.NoError(t, s.Set(ctx, testEntry("a", "owner:u1")))
	require.NoError(t, s.Set(ctx, testEntry("b", "owner:u1")))
	require.NoError(t, s.Set(ctx, testEntry("c", "owner:u2")))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `"value"`, string(got.Value))
	assert.Equal(t, []string{"owner:u1"}, got.Tags)

	n, err := s.InvalidateTags(ctx, "owner:u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.Get(ctx, "c")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
