package job

import (
	"context"
	"fmt"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/pkg/kafka"
)

// TaskTopic is the Kafka topic carrying index maintenance tasks.
const TaskTopic = "catalog.search.index-tasks"

// queueKey is the partition key every task is published under. A single key
// pins the whole queue to one partition, which is what gives tasks strict
// sequential execution.
const queueKey = "update-search-index"

const taskEventType = "search.index.task"

// Publisher is the producer surface the queue needs.
type Publisher interface {
	PublishKeyed(ctx context.Context, topic, key string, event *kafka.Event) error
}

// Queue publishes maintenance tasks onto the ordered task topic. It is the
// buffer's dispatcher in the default wiring.
type Queue struct {
	producer Publisher
}

func NewQueue(producer Publisher) *Queue {
	return &Queue{producer: producer}
}

// Enqueue publishes one task.
func (q *Queue) Enqueue(ctx context.Context, task domain.Task) error {
	if !task.Type.Valid() {
		return fmt.Errorf("enqueue task: unknown task type %q", task.Type)
	}
	event, err := kafka.NewEvent(taskEventType, string(task.Type), "index-task", "catalogsearch", task)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	if err := q.producer.PublishKeyed(ctx, TaskTopic, queueKey, event); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.Type, err)
	}
	return nil
}

// Dispatch publishes a reduced batch in order.
func (q *Queue) Dispatch(ctx context.Context, tasks []domain.Task) error {
	for _, t := range tasks {
		if err := q.Enqueue(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
