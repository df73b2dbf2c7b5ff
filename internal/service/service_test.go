package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"docqa-be/internal/dto"
	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/apperror"
	"docqa-be/pkg/cache"
	"docqa-be/pkg/embedding"
	"docqa-be/pkg/events"
	"docqa-be/pkg/llm"
	"docqa-be/pkg/rag/assembler"
	"docqa-be/pkg/rag/conversation"
	"docqa-be/pkg/rag/rank"
	"docqa-be/pkg/rag/search"
	"docqa-be/pkg/rag/window"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Model() string { return "fixed" }

func (fixedEmbedder) Generate(_ context.Context, _ string, _ string) (*embedding.EmbeddingResponse, error) {
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{1, 0, 0}}}, nil
}

type fakeLLM struct {
	reply string
	delay time.Duration
	got   []llm.Message
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	f.got = history
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, nil
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

type fakeSearcher struct {
	candidates []rank.CandidatePassage
}

func (s fakeSearcher) Search(context.Context, search.Request) (*search.Result, error) {
	return &search.Result{Candidates: s.candidates, Elapsed: 3 * time.Millisecond}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DocumentChanged
}

func (p *recordingPublisher) PublishDocumentChanged(_ context.Context, evt events.DocumentChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func newChatService(t *testing.T, model *fakeLLM, timeout time.Duration) IChatService {
	t.Helper()
	asm := assembler.NewAssembler(
		conversation.NewMemoryStore(conversation.Options{}),
		nil,
		fakeSearcher{candidates: []rank.CandidatePassage{
			{ChunkID: "c1", DocumentID: "doc-1", Filename: "guide.md", Content: "pgvector stores embeddings in postgres", CombinedScore: 0.8},
		}},
		window.NewFitter(logger.NewNopLogger(), window.Options{}),
		assembler.Config{BudgetTokens: 1000, ReserveTokens: 200, History: conversation.Limits{MaxTurns: 10}},
		logger.NewNopLogger(),
	)
	return NewChatService(asm, model, timeout, logger.NewNopLogger())
}

func TestSendChatRecordsBothTurns(t *testing.T) {
	ctx := context.Background()
	model := &fakeLLM{reply: "It stores them in a vector column [1]."}
	svc := newChatService(t, model, time.Second)

	res, err := svc.SendChat(ctx, "u1", &dto.SendChatRequest{Question: "where are embeddings stored?"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ConversationId)
	assert.Equal(t, "assistant", res.Reply.Role)
	assert.Equal(t, model.reply, res.Reply.Content)
	assert.Equal(t, 1, res.Context.Results)
	assert.Equal(t, 1, res.Context.Used)
	assert.Equal(t, []dto.SourceDTO{{DocumentId: "doc-1", Filename: "guide.md", Score: 0.8}}, res.Context.Sources)
	assert.Positive(t, res.Context.TokenUsage)
	assert.Greater(t, res.Reply.TokenUsage, res.Context.TokenUsage)

	require.Len(t, model.got, 2)
	assert.Contains(t, model.got[0].Content, "pgvector stores embeddings")

	history, err := svc.GetHistory(ctx, "u1", res.ConversationId)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)

	_, err = svc.GetHistory(ctx, "u2", res.ConversationId)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestSendChatCompletionTimeout(t *testing.T) {
	svc := newChatService(t, &fakeLLM{reply: "late", delay: time.Second}, 20*time.Millisecond)

	_, err := svc.SendChat(context.Background(), "u1", &dto.SendChatRequest{Question: "q"})
	assert.ErrorIs(t, err, apperror.ErrUpstreamTimeout)
}

func TestDocumentServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	index, err := search.NewChromemIndex("", nil)
	require.NoError(t, err)
	pub := &recordingPublisher{}
	svc := NewDocumentService(index, fixedEmbedder{}, pub, logger.NewNopLogger())

	content := strings.Repeat("vector search over private documents ", 120)
	res, err := svc.Index(ctx, "u1", &dto.IndexDocumentRequest{Filename: "notes.txt", Content: content})
	require.NoError(t, err)
	assert.Greater(t, res.Chunks, 1)
	assert.Equal(t, res.Chunks, index.Count())

	_, err = svc.Index(ctx, "u1", &dto.IndexDocumentRequest{DocumentId: res.DocumentId, Filename: "notes.txt", Content: "short replacement"})
	require.NoError(t, err)
	assert.Equal(t, 1, index.Count(), "re-indexing replaces the old chunks")

	require.NoError(t, svc.Delete(ctx, "u1", res.DocumentId))
	assert.Equal(t, 0, index.Count())

	require.Len(t, pub.events, 3)
	assert.Equal(t, events.DocumentIndexed, pub.events[0].Action)
	assert.Equal(t, events.DocumentUpdated, pub.events[1].Action)
	assert.Equal(t, events.DocumentDeleted, pub.events[2].Action)
	for _, e := range pub.events {
		assert.Equal(t, "u1", e.UserID)
		assert.Equal(t, res.DocumentId, e.DocumentID)
	}
}

func seedSearch(t *testing.T, results *search.ResultCache, f search.Filter) (computed func() bool) {
	t.Helper()
	key := search.Key("query", 10, 0.3, f)
	compute := func() bool {
		called := false
		_, err := results.GetOrCompute(context.Background(), key, f, func(context.Context) ([]rank.CandidatePassage, error) {
			called = true
			return []rank.CandidatePassage{}, nil
		})
		require.NoError(t, err)
		return called
	}
	require.True(t, compute())
	require.False(t, compute())
	return compute
}

func TestDocumentEventsInvalidateSearchCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.NewNopLogger()
	results := search.NewResultCache(cache.NewMemoryStore(time.Minute), log, cache.Options{})
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger.NewWatermillAdapter(log))
	defer pubSub.Close()

	consumer := NewConsumerService(pubSub, events.TypeDocumentChanged, results, log)
	require.NoError(t, consumer.Consume(ctx))
	publisher := NewPublisherService(events.TypeDocumentChanged, pubSub, nil, log)

	u1 := seedSearch(t, results, search.Filter{UserID: "u1"})
	u2 := seedSearch(t, results, search.Filter{UserID: "u2"})

	require.NoError(t, publisher.PublishDocumentChanged(ctx, events.DocumentChanged{
		DocumentID: "d1", UserID: "u1", Action: events.DocumentIndexed, OccurredAt: time.Now(),
	}))

	assert.Eventually(t, u1, time.Second, 10*time.Millisecond)
	assert.False(t, u2(), "other owners keep their cache")
}

func TestHandleEventFromNats(t *testing.T) {
	log := logger.NewNopLogger()
	results := search.NewResultCache(cache.NewMemoryStore(time.Minute), log, cache.Options{})
	consumer := NewConsumerService(nil, events.TypeDocumentChanged, results, log)
	scoped := seedSearch(t, results, search.Filter{UserID: "u1", CollectionID: "c1"})

	evt := events.DocumentChanged{DocumentID: "d1", UserID: "u1", CollectionID: "c1", Action: events.DocumentDeleted}
	require.NoError(t, consumer.HandleEvent(context.Background(), events.Envelope{Type: events.TypeDocumentChanged, Data: evt.Payload()}))
	assert.True(t, scoped())

	// malformed events are acknowledged, not retried
	assert.NoError(t, consumer.HandleEvent(context.Background(), events.Envelope{Data: map[string]interface{}{}}))
}
