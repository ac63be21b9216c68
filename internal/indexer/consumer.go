package indexer

import (
	"context"
	"log/slog"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/internal/job"
	"github.com/shopforge/catalogsearch/pkg/kafka"
)

// ConsumerGroup identifies the index writer's consumer group. The task topic
// has a single partition, so one group member processes tasks strictly in
// order.
const ConsumerGroup = "catalogsearch-indexer"

// TaskHandler adapts the indexer to the event consumer contract. A payload
// that fails to decode is returned as an error so the retry and dead-letter
// machinery deals with it; it is never committed as handled.
func TaskHandler(ix *Indexer) kafka.Handler {
	return func(ctx context.Context, event *kafka.Event) error {
		task, err := domain.DecodeTask(event.Data)
		if err != nil {
			return err
		}
		return ix.Process(ctx, task)
	}
}

// NewTaskConsumer builds the Kafka consumer for the maintenance task topic.
func NewTaskConsumer(brokers []string, ix *Indexer, dlq *kafka.DLQProducer, logger *slog.Logger) *kafka.Consumer {
	c := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: brokers,
		GroupID: ConsumerGroup,
		Topic:   job.TaskTopic,
	}, TaskHandler(ix), logger)
	if dlq != nil {
		c = c.WithDLQ(dlq)
	}
	return c
}
