package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/tierboard/internal/config"
	"github.com/tierboard/internal/domain"
)

// EventProducer publishes committed placements keyed by player id
type EventProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewEventProducer connects a synchronous producer to the events topic
func NewEventProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*EventProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Retry.Max = cfg.RetryAttempts

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return NewEventProducerFromSyncProducer(producer, cfg.EventsTopic, logger), nil
}

// NewEventProducerFromSyncProducer wraps an existing producer
func NewEventProducerFromSyncProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *EventProducer {
	return &EventProducer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// PublishPlacementCommitted sends event to the events topic
func (p *EventProducer) PublishPlacementCommitted(ctx context.Context, event domain.PlacementCommitted) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.PlayerID),
		Value: sarama.ByteEncoder(data),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("sending event: %w", err)
	}
	p.logger.Debug("placement event published",
		"player_id", event.PlayerID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close closes the underlying producer
func (p *EventProducer) Close() error {
	return p.producer.Close()
}
