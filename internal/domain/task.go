package domain

import (
	"encoding/json"
	"fmt"
)

// TaskType discriminates the index maintenance task union.
type TaskType string

const (
	TaskReindex                  TaskType = "reindex"
	TaskUpdateProduct            TaskType = "update-product"
	TaskUpdateVariants           TaskType = "update-variants"
	TaskDeleteProduct            TaskType = "delete-product"
	TaskDeleteVariant            TaskType = "delete-variant"
	TaskUpdateVariantsByID       TaskType = "update-variants-by-id"
	TaskUpdateAsset              TaskType = "update-asset"
	TaskDeleteAsset              TaskType = "delete-asset"
	TaskAssignProductToChannel   TaskType = "assign-product-to-channel"
	TaskRemoveProductFromChannel TaskType = "remove-product-from-channel"
	TaskAssignVariantToChannel   TaskType = "assign-variant-to-channel"
	TaskRemoveVariantFromChannel TaskType = "remove-variant-from-channel"
)

// AssetSnapshot is the minimal asset state carried by asset tasks. The full
// asset entity stays in the catalog service.
type AssetSnapshot struct {
	ID      string `json:"id"`
	Preview string `json:"preview"`
}

// Task is one unit of index maintenance work. Tasks carry identifiers plus a
// serialized session context, never full catalog entities, so queued payloads
// stay small and stable across deployments.
type Task struct {
	Type TaskType `json:"type"`

	// Ctx is the signed session token needed to re-authorize the write
	// (channel, language, actor, permissions).
	Ctx string `json:"ctx"`

	// JobID links long-running tasks (reindex, bulk variant updates) to
	// their progress record.
	JobID string `json:"job_id,omitempty"`

	ProductID        string         `json:"product_id,omitempty"`
	ProductVariantID string         `json:"product_variant_id,omitempty"`
	VariantIDs       []string       `json:"variant_ids,omitempty"`
	IDs              []string       `json:"ids,omitempty"`
	Asset            *AssetSnapshot `json:"asset,omitempty"`
	ChannelID        string         `json:"channel_id,omitempty"`
}

// knownTaskTypes is the closed set of valid task tags.
var knownTaskTypes = map[TaskType]struct{}{
	TaskReindex:                  {},
	TaskUpdateProduct:            {},
	TaskUpdateVariants:           {},
	TaskDeleteProduct:            {},
	TaskDeleteVariant:            {},
	TaskUpdateVariantsByID:       {},
	TaskUpdateAsset:              {},
	TaskDeleteAsset:              {},
	TaskAssignProductToChannel:   {},
	TaskRemoveProductFromChannel: {},
	TaskAssignVariantToChannel:   {},
	TaskRemoveVariantFromChannel: {},
}

// Valid reports whether t is a member of the task union.
func (t TaskType) Valid() bool {
	_, ok := knownTaskTypes[t]
	return ok
}

// EncodeTask serializes a task for the queue.
func EncodeTask(t *Task) ([]byte, error) {
	if !t.Type.Valid() {
		return nil, fmt.Errorf("encode task: unknown task type %q", t.Type)
	}
	return json.Marshal(t)
}

// DecodeTask deserializes a queued task. An unknown tag is a fatal decode
// error, never silently skipped: a consumer that does not recognize a task
// must not commit it as handled.
func DecodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	if !t.Type.Valid() {
		return nil, fmt.Errorf("decode task: unknown task type %q", t.Type)
	}
	return &t, nil
}
