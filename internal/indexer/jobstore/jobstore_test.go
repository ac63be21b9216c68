package jobstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shopforge/catalogsearch/pkg/errors"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		completed int
		want      int
	}{
		{"nothing to do reports done", 0, 0, 100},
		{"zero of some", 10, 0, 0},
		{"rounds up", 3, 1, 34},
		{"halfway", 200, 100, 50},
		{"exact", 4, 3, 75},
		{"done", 10, 10, 100},
		{"overshoot clamps", 10, 12, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := Job{Total: tt.total, Completed: tt.completed}
			assert.Equal(t, tt.want, j.Progress())
		})
	}
}

func TestJob_MarshalIncludesProgress(t *testing.T) {
	raw, err := json.Marshal(&Job{ID: "job-1", Kind: "reindex", State: StateRunning, Total: 200, Completed: 37})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(19), decoded["progress"])
	assert.Equal(t, "job-1", decoded["id"])
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Create(ctx, &Job{ID: "job-1", Kind: "reindex"}))

	j, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatePending, j.State)
	assert.False(t, j.CreatedAt.IsZero())

	require.NoError(t, s.SetRunning(ctx, "job-1", 40))
	require.NoError(t, s.Advance(ctx, "job-1", 10))

	j, err = s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, j.State)
	assert.Equal(t, 25, j.Progress())

	require.NoError(t, s.Complete(ctx, "job-1"))
	j, err = s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, j.State)
	assert.Equal(t, 100, j.Progress())
}

func TestMemoryStore_AdvanceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, &Job{ID: "job-1"}))
	require.NoError(t, s.SetRunning(ctx, "job-1", 100))

	require.NoError(t, s.Advance(ctx, "job-1", 30))
	require.NoError(t, s.Advance(ctx, "job-1", 20))

	j, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 30, j.Completed, "progress never moves backwards")
}

func TestMemoryStore_FailKeepsCause(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, &Job{ID: "job-1"}))
	require.NoError(t, s.Fail(ctx, "job-1", "catalog unreachable"))

	j, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, j.State)
	assert.Equal(t, "catalog unreachable", j.Error)
}

func TestMemoryStore_UnknownJob(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.Advance(ctx, "missing", 1), apperrors.ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, &Job{ID: "job-1"}))

	j, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	j.Completed = 999

	again, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Zero(t, again.Completed)
}
