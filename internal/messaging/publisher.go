package messaging

import (
	"context"

	"github.com/bardlex/gominer/pkg/errors"
	"github.com/bardlex/gominer/pkg/log"
)

// EventPublisher sends block events to their topics, keyed by block hash
type EventPublisher struct {
	client *KafkaClient
	topics Topics
}

// NewEventPublisher creates a publisher over brokers with topics derived from prefix
func NewEventPublisher(brokers []string, prefix string, logger *log.Logger) *EventPublisher {
	return &EventPublisher{
		client: NewKafkaClient(brokers, logger),
		topics: NewTopics(prefix),
	}
}

// Topics returns the topic names in use
func (p *EventPublisher) Topics() Topics {
	return p.topics
}

// PublishBlockFound publishes a found block
func (p *EventPublisher) PublishBlockFound(ctx context.Context, event *BlockFoundEvent) error {
	msg, err := event.ToProto()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "encode_block_found",
			"failed to encode block found event").
			With("block_hash", event.BlockHash)
	}
	return p.client.PublishProto(ctx, p.topics.BlockFound, event.BlockHash, msg)
}

// PublishSubmissionResult publishes the node's verdict on a block
func (p *EventPublisher) PublishSubmissionResult(ctx context.Context, result *BlockSubmissionResult) error {
	msg, err := result.ToProto()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "encode_submission_result",
			"failed to encode submission result").
			With("block_hash", result.BlockHash)
	}
	return p.client.PublishProto(ctx, p.topics.BlockResults, result.BlockHash, msg)
}

// Close closes the underlying producers
func (p *EventPublisher) Close() error {
	return p.client.Close()
}
