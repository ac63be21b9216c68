package kafka

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStore_AddAndContains(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	seen, err := store.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "e-1"))

	seen, err = store.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryIdempotencyStore_ExpiredEntriesAreForgotten(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Nanosecond)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "e-1"))
	time.Sleep(time.Millisecond)

	seen, err := store.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 0, store.Len())
}

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	calls := 0
	handler := IdempotentHandler(store, func(_ context.Context, _ *Event) error {
		calls++
		return nil
	}, slog.New(slog.DiscardHandler))

	event, err := NewEvent("product.updated", "p-1", "product", "catalog", nil)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), event))
	require.NoError(t, handler(context.Background(), event))
	assert.Equal(t, 1, calls)
}

func TestIdempotentHandler_FailedHandlingIsNotRecorded(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	calls := 0
	handler := IdempotentHandler(store, func(_ context.Context, _ *Event) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, slog.New(slog.DiscardHandler))

	event, err := NewEvent("product.updated", "p-1", "product", "catalog", nil)
	require.NoError(t, err)

	require.Error(t, handler(context.Background(), event))
	require.NoError(t, handler(context.Background(), event))
	assert.Equal(t, 2, calls)
}

func TestIdempotentHandler_MissingEventIDAlwaysHandled(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	calls := 0
	handler := IdempotentHandler(store, func(_ context.Context, _ *Event) error {
		calls++
		return nil
	}, slog.New(slog.DiscardHandler))

	event := &Event{EventType: "product.updated"}
	require.NoError(t, handler(context.Background(), event))
	require.NoError(t, handler(context.Background(), event))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, store.Len())
}
