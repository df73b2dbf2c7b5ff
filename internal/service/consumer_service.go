package service

import (
	"context"
	"encoding/json"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/events"
	"docqa-be/pkg/rag/search"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	// Consume drains the in-process topic until ctx is done.
	Consume(ctx context.Context) error
	// HandleEvent is the NATS entry point for changes made on other replicas.
	HandleEvent(ctx context.Context, event events.Event) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	results    *search.ResultCache
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	results *search.ResultCache,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		results:    results,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var evt events.DocumentChanged
	if err := json.Unmarshal(msg.Payload, &evt); err != nil || evt.UserID == "" {
		cs.logger.Error("ConsumerService", "dropping malformed document event", map[string]interface{}{
			"message_id": msg.UUID,
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	cs.invalidate(ctx, evt)
	msg.Ack()
}

func (cs *consumerService) HandleEvent(ctx context.Context, event events.Event) error {
	evt, err := events.DocumentChangedFrom(event)
	if err != nil {
		cs.logger.Error("ConsumerService", "dropping malformed document event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
		return nil
	}

	cs.invalidate(ctx, evt)
	return nil
}

// invalidate drops every cached search that could include the document.
// Owner-wide searches span all collections, so the owner tag always goes.
func (cs *consumerService) invalidate(ctx context.Context, evt events.DocumentChanged) {
	dropped := cs.results.InvalidateOwner(ctx, evt.UserID)
	if evt.CollectionID != "" {
		dropped += cs.results.InvalidateCollection(ctx, evt.CollectionID)
	}

	cs.logger.Info("ConsumerService", "search cache invalidated", map[string]interface{}{
		"document_id":   evt.DocumentID,
		"user_id":       evt.UserID,
		"collection_id": evt.CollectionID,
		"action":        string(evt.Action),
		"dropped":       dropped,
	})
}
