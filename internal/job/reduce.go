// Package job provides the maintenance task pipeline between event ingestion
// and the index writer: a pure coalescing reducer, a debounce buffer that
// applies it, and a Kafka-backed queue with strict per-queue ordering.
package job

import "github.com/shopforge/catalogsearch/internal/domain"

// Reduce collapses a batch of buffered tasks into the list actually
// dispatched. All variant-update tasks merge into a single
// update-variants-by-id task carrying the deduplicated union of their
// variant ids and the first merged task's session token; it is emitted at
// the position of the first merged task. Every other task passes through
// unchanged, in order.
//
// Reduce is pure and idempotent: reducing an already reduced batch returns
// it unchanged.
func Reduce(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	mergedAt := -1
	var variantIDs []string
	seen := make(map[string]struct{})

	for _, t := range tasks {
		switch t.Type {
		case domain.TaskUpdateVariants, domain.TaskUpdateVariantsByID:
			ids := t.VariantIDs
			if len(ids) == 0 {
				ids = t.IDs
			}
			if mergedAt == -1 {
				mergedAt = len(out)
				merged := domain.Task{
					Type:  domain.TaskUpdateVariantsByID,
					Ctx:   t.Ctx,
					JobID: t.JobID,
				}
				out = append(out, merged)
			}
			for _, id := range ids {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				variantIDs = append(variantIDs, id)
			}
		default:
			out = append(out, t)
		}
	}

	if mergedAt >= 0 {
		out[mergedAt].IDs = variantIDs
	}
	return out
}
