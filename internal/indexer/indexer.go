// Package indexer is the index writer: it consumes maintenance tasks from
// the ordered queue and applies them to the index row store, reporting
// progress for long-running jobs.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopforge/catalogsearch/internal/catalog"
	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/internal/indexer/jobstore"
	"github.com/shopforge/catalogsearch/internal/store"
	apperrors "github.com/shopforge/catalogsearch/pkg/errors"
)

// defaultBatchSize bounds how many products a rebuild fetches per page and
// how many variant ids a bulk update processes per chunk.
const defaultBatchSize = 50

// CatalogReader is the slice of the catalog client the indexer needs.
type CatalogReader interface {
	Product(ctx context.Context, productID string) (*catalog.ProductSnapshot, error)
	Variants(ctx context.Context, variantIDs []string) ([]catalog.VariantSnapshot, error)
	Products(ctx context.Context, page, pageSize int) (*catalog.ProductPage, error)
}

type Indexer struct {
	engine    store.Engine
	catalog   CatalogReader
	jobs      jobstore.Store
	secret    []byte
	logger    *slog.Logger
	batchSize int
}

func New(engine store.Engine, reader CatalogReader, jobs jobstore.Store, sessionSecret []byte, logger *slog.Logger) *Indexer {
	return &Indexer{
		engine:    engine,
		catalog:   reader,
		jobs:      jobs,
		secret:    sessionSecret,
		logger:    logger,
		batchSize: defaultBatchSize,
	}
}

// Process executes one maintenance task. The switch is total over the task
// union; DecodeTask already rejects unknown tags, and the default arm keeps
// a decode/dispatch mismatch loud instead of silently dropped.
func (ix *Indexer) Process(ctx context.Context, task *domain.Task) error {
	start := time.Now()
	sc, err := domain.VerifySession(ix.secret, task.Ctx)
	if err != nil {
		tasksProcessed.WithLabelValues(string(task.Type), "rejected").Inc()
		return fmt.Errorf("task %s: %w", task.Type, err)
	}

	log := ix.logger.With(
		"task_type", string(task.Type),
		"channel_id", sc.ChannelID,
	)

	switch task.Type {
	case domain.TaskReindex:
		err = ix.reindex(ctx, log, sc, task)
	case domain.TaskUpdateProduct:
		err = ix.updateProduct(ctx, sc, sc.ChannelID, task.ProductID)
	case domain.TaskUpdateVariants:
		err = ix.updateVariantsByID(ctx, log, sc, task.JobID, task.VariantIDs)
	case domain.TaskUpdateVariantsByID:
		err = ix.updateVariantsByID(ctx, log, sc, task.JobID, task.IDs)
	case domain.TaskDeleteProduct:
		err = ix.engine.DeleteByProductID(ctx, sc.ChannelID, task.ProductID)
	case domain.TaskDeleteVariant:
		err = ix.deleteVariant(ctx, sc, sc.ChannelID, task.ProductID, task.ProductVariantID)
	case domain.TaskUpdateAsset:
		if task.Asset == nil {
			err = fmt.Errorf("update-asset task without asset payload")
		} else {
			err = ix.engine.UpdateAsset(ctx, task.Asset)
		}
	case domain.TaskDeleteAsset:
		if task.Asset == nil {
			err = fmt.Errorf("delete-asset task without asset payload")
		} else {
			err = ix.engine.RemoveAsset(ctx, task.Asset.ID)
		}
	case domain.TaskAssignProductToChannel:
		err = ix.updateProduct(ctx, sc, task.ChannelID, task.ProductID)
	case domain.TaskRemoveProductFromChannel:
		err = ix.engine.DeleteByProductID(ctx, task.ChannelID, task.ProductID)
	case domain.TaskAssignVariantToChannel:
		err = ix.updateProduct(ctx, sc, task.ChannelID, task.ProductID)
	case domain.TaskRemoveVariantFromChannel:
		err = ix.deleteVariant(ctx, sc, task.ChannelID, task.ProductID, task.ProductVariantID)
	default:
		err = fmt.Errorf("unhandled task type %q", task.Type)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	tasksProcessed.WithLabelValues(string(task.Type), status).Inc()
	taskDuration.WithLabelValues(string(task.Type)).Observe(time.Since(start).Seconds())
	return err
}

// updateProduct regenerates every index row of one product in one channel.
// A product gone from the catalog has its rows removed instead.
func (ix *Indexer) updateProduct(ctx context.Context, sc *domain.SessionContext, channelID, productID string) error {
	p, err := ix.catalog.Product(ctx, productID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return ix.engine.DeleteByProductID(ctx, channelID, productID)
	}
	if err != nil {
		return err
	}
	return ix.writeProduct(ctx, sc, channelID, p, time.Now())
}

func (ix *Indexer) writeProduct(ctx context.Context, sc *domain.SessionContext, channelID string, p *catalog.ProductSnapshot, now time.Time) error {
	rows := buildProductRows(p, channelID, languagesOf(p, sc.LanguageCode), now)
	if err := ix.engine.Upsert(ctx, rows); err != nil {
		return err
	}
	rowsUpserted.Add(float64(len(rows)))

	// A real variant row obsoletes the placeholder.
	hasVariantRows := false
	for i := range rows {
		if !rows[i].Synthetic {
			hasVariantRows = true
			break
		}
	}
	if hasVariantRows {
		return ix.engine.DeleteSyntheticRows(ctx, channelID, p.ID)
	}
	return nil
}

// deleteVariant removes one variant's rows and restores the product's
// placeholder row if that was its last variant in the channel.
func (ix *Indexer) deleteVariant(ctx context.Context, sc *domain.SessionContext, channelID, productID, variantID string) error {
	if err := ix.engine.DeleteByVariantIDs(ctx, channelID, []string{variantID}); err != nil {
		return err
	}
	if productID == "" {
		return nil
	}
	remaining, err := ix.engine.VariantRowCount(ctx, channelID, productID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}

	p, err := ix.catalog.Product(ctx, productID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	now := time.Now()
	var rows []domain.IndexRow
	for _, lang := range languagesOf(p, sc.LanguageCode) {
		rows = append(rows, syntheticRow(p, p.TranslationFor(lang), channelID, lang, now))
	}
	if err := ix.engine.Upsert(ctx, rows); err != nil {
		return err
	}
	rowsUpserted.Add(float64(len(rows)))
	return nil
}

// updateVariantsByID regenerates rows for the products owning the given
// variants, in chunks. A failing chunk is logged and skipped so one bad
// product cannot stall the rest of a bulk update; progress only ever moves
// forward.
func (ix *Indexer) updateVariantsByID(ctx context.Context, log *slog.Logger, sc *domain.SessionContext, jobID string, variantIDs []string) error {
	total := len(variantIDs)
	if jobID != "" {
		if err := ix.jobs.SetRunning(ctx, jobID, total); err != nil {
			log.Warn("job progress unavailable", "job_id", jobID, "error", err)
			jobID = ""
		}
	}

	completed := 0
	var failedChunks int
	for start := 0; start < total; start += ix.batchSize {
		end := start + ix.batchSize
		if end > total {
			end = total
		}
		chunk := variantIDs[start:end]

		if err := ix.updateVariantChunk(ctx, sc, chunk); err != nil {
			failedChunks++
			log.Error("variant chunk failed", "error", err, "chunk_start", start, "chunk_size", len(chunk))
		}
		completed += len(chunk)
		if jobID != "" {
			if err := ix.jobs.Advance(ctx, jobID, completed); err != nil {
				log.Warn("advance job progress", "job_id", jobID, "error", err)
			}
		}
	}

	if jobID != "" {
		if failedChunks > 0 {
			return ix.jobs.Fail(ctx, jobID, fmt.Sprintf("%d of %d chunks failed", failedChunks, (total+ix.batchSize-1)/ix.batchSize))
		}
		return ix.jobs.Complete(ctx, jobID)
	}
	if failedChunks > 0 {
		return fmt.Errorf("update variants: %d chunks failed", failedChunks)
	}
	return nil
}

func (ix *Indexer) updateVariantChunk(ctx context.Context, sc *domain.SessionContext, variantIDs []string) error {
	variants, err := ix.catalog.Variants(ctx, variantIDs)
	if err != nil {
		return err
	}

	// Variants absent from the catalog were deleted since the event fired.
	present := make(map[string]string, len(variants))
	for i := range variants {
		present[variants[i].ID] = variants[i].ProductID
	}
	var gone []string
	for _, id := range variantIDs {
		if _, ok := present[id]; !ok {
			gone = append(gone, id)
		}
	}
	if len(gone) > 0 {
		if err := ix.engine.DeleteByVariantIDs(ctx, sc.ChannelID, gone); err != nil {
			return err
		}
	}

	productIDs := make([]string, 0, len(present))
	seen := make(map[string]struct{}, len(present))
	for _, pid := range present {
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		productIDs = append(productIDs, pid)
	}

	now := time.Now()
	for _, pid := range productIDs {
		p, err := ix.catalog.Product(ctx, pid)
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ix.engine.DeleteByProductID(ctx, sc.ChannelID, pid); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := ix.writeProduct(ctx, sc, sc.ChannelID, p, now); err != nil {
			return err
		}
	}
	return nil
}

// reindex rebuilds the whole channel from the catalog and then drops every
// row the rebuild did not touch. Stale-row deletion keys off the rebuild's
// start time so rows written concurrently by other tasks survive.
func (ix *Indexer) reindex(ctx context.Context, log *slog.Logger, sc *domain.SessionContext, task *domain.Task) error {
	startedAt := time.Now()
	jobID := task.JobID

	fail := func(err error) error {
		if jobID != "" {
			if jerr := ix.jobs.Fail(ctx, jobID, err.Error()); jerr != nil {
				log.Warn("record job failure", "job_id", jobID, "error", jerr)
			}
		}
		return err
	}

	processed := 0
	failedProducts := 0
	for page := 1; ; page++ {
		batch, err := ix.catalog.Products(ctx, page, ix.batchSize)
		if err != nil {
			return fail(fmt.Errorf("list products page %d: %w", page, err))
		}
		if page == 1 && jobID != "" {
			if err := ix.jobs.SetRunning(ctx, jobID, batch.TotalItems); err != nil {
				log.Warn("job progress unavailable", "job_id", jobID, "error", err)
				jobID = ""
			}
		}
		if len(batch.Items) == 0 {
			break
		}

		for i := range batch.Items {
			p := &batch.Items[i]
			if err := ix.writeProduct(ctx, sc, sc.ChannelID, p, time.Now()); err != nil {
				failedProducts++
				log.Error("reindex product failed", "product_id", p.ID, "error", err)
			}
			processed++
		}
		if jobID != "" {
			if err := ix.jobs.Advance(ctx, jobID, processed); err != nil {
				log.Warn("advance job progress", "job_id", jobID, "error", err)
			}
		}
		if processed >= batch.TotalItems {
			break
		}
	}

	removed, err := ix.engine.DeleteStale(ctx, sc.ChannelID, "", startedAt)
	if err != nil {
		return fail(fmt.Errorf("drop stale rows: %w", err))
	}
	log.Info("reindex complete",
		"products", processed,
		"failed_products", failedProducts,
		"stale_rows_removed", removed,
		"took", time.Since(startedAt).String(),
	)

	if jobID != "" {
		if failedProducts > 0 {
			return ix.jobs.Fail(ctx, jobID, fmt.Sprintf("%d of %d products failed", failedProducts, processed))
		}
		return ix.jobs.Complete(ctx, jobID)
	}
	return nil
}
