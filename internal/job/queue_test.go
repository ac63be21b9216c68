package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/pkg/kafka"
)

type capturingPublisher struct {
	topics []string
	keys   []string
	events []*kafka.Event
}

func (p *capturingPublisher) PublishKeyed(_ context.Context, topic, key string, event *kafka.Event) error {
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return nil
}

func TestQueue_PublishesOnSharedKey(t *testing.T) {
	pub := &capturingPublisher{}
	q := NewQueue(pub)

	tasks := []domain.Task{
		{Type: domain.TaskDeleteProduct, Ctx: "tok", ProductID: "p-1"},
		{Type: domain.TaskUpdateVariantsByID, Ctx: "tok", IDs: []string{"v-1"}},
	}
	require.NoError(t, q.Dispatch(context.Background(), tasks))

	require.Len(t, pub.events, 2)
	for i := range pub.events {
		assert.Equal(t, TaskTopic, pub.topics[i])
		assert.Equal(t, queueKey, pub.keys[i], "all tasks share one partition key")
	}

	var decoded domain.Task
	require.NoError(t, pub.events[0].UnmarshalData(&decoded))
	assert.Equal(t, domain.TaskDeleteProduct, decoded.Type)
	assert.Equal(t, "p-1", decoded.ProductID)
}

func TestQueue_RejectsUnknownTaskType(t *testing.T) {
	pub := &capturingPublisher{}
	q := NewQueue(pub)

	err := q.Enqueue(context.Background(), domain.Task{Type: "defragment-index"})
	require.Error(t, err)
	assert.Empty(t, pub.events)
}
