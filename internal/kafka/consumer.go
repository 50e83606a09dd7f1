// Package kafka ingests placement submissions from a topic and publishes
// committed placements to another.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/tierboard/internal/config"
	"github.com/tierboard/internal/domain"
)

// PlacementHandler applies placement batches
type PlacementHandler interface {
	SubmitBatch(ctx context.Context, batch domain.BatchPlacementSubmission) (*domain.BatchResult, error)
}

// Consumer consumes placement messages from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       PlacementHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler PlacementHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// decodeSubmission parses one message. Shape problems are reported here;
// content validation is left to the batch pipeline so it can attribute
// failures per line.
func decodeSubmission(value []byte) (domain.PlacementSubmission, error) {
	var submission domain.PlacementSubmission
	if err := json.Unmarshal(value, &submission); err != nil {
		return submission, fmt.Errorf("unmarshaling submission: %w", err)
	}
	if submission.IGN == "" || submission.Gamemode == "" || submission.Tier == "" {
		return submission, domain.ErrInvalidRequest
	}
	return submission, nil
}

// processBatch hands batch to the engine, retrying whole-batch failures
func (c *Consumer) processBatch(ctx context.Context, batch []domain.PlacementSubmission) {
	if len(batch) == 0 {
		return
	}
	submission := domain.BatchPlacementSubmission{Entries: batch}

	attempts := c.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var result *domain.BatchResult
		result, err = c.handler.SubmitBatch(ctx, submission)
		if err == nil {
			for _, msg := range result.Messages() {
				c.logger.Warn("placement rejected", "reason", msg)
			}
			c.logger.Debug("processed batch",
				"batch_size", len(batch),
				"succeeded", result.SuccessCount,
				"failed", result.FailureCount,
			)
			return
		}
		if errors.Is(err, domain.ErrBatchTooLarge) || attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			c.logger.Error("failed to process batch", "error", err, "batch_size", len(batch))
			return
		case <-time.After(c.config.RetryDelay):
		}
		c.logger.Warn("retrying batch", "attempt", attempt, "error", err)
	}
	c.logger.Error("failed to process batch", "error", err, "batch_size", len(batch))
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim batches messages from a topic partition by size or timeout
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]domain.PlacementSubmission, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		h.consumer.processBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			// Process remaining batch before exit
			flush()
			return nil

		case <-batchTimer.C:
			flush()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}

			submission, err := decodeSubmission(message.Value)
			if err != nil {
				h.consumer.logger.Warn("skipping malformed placement message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			batch = append(batch, submission)
			session.MarkMessage(message, "")

			if len(batch) >= cfg.BatchSize {
				flush()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
