package service

import (
	"context"
	"encoding/json"
	"fmt"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/events"
	pktNats "docqa-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

type IPublisherService interface {
	PublishDocumentChanged(ctx context.Context, evt events.DocumentChanged) error
}

type publisherService struct {
	topicName string
	publisher message.Publisher
	// natsPub is nil on single-instance deployments.
	natsPub *pktNats.Publisher
	logger  logger.ILogger
}

func NewPublisherService(topicName string, publisher message.Publisher, natsPub *pktNats.Publisher, log logger.ILogger) IPublisherService {
	return &publisherService{
		topicName: topicName,
		publisher: publisher,
		natsPub:   natsPub,
		logger:    log,
	}
}

// PublishDocumentChanged notifies this process over the in-memory bus and
// other replicas over NATS. A NATS failure only delays their invalidation
// until the cache TTL runs out, so it is logged rather than returned.
func (ps *publisherService) PublishDocumentChanged(ctx context.Context, evt events.DocumentChanged) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal document event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := ps.publisher.Publish(ps.topicName, msg); err != nil {
		return fmt.Errorf("failed to publish document event: %w", err)
	}

	if ps.natsPub != nil {
		if err := ps.natsPub.Publish(ctx, evt); err != nil {
			ps.logger.Warn("PublisherService", "failed to mirror document event to NATS", map[string]interface{}{
				"document_id": evt.DocumentID,
				"error":       err.Error(),
			})
		}
	}
	return nil
}
