// Package service holds the search facade: it composes the dialect strategy,
// the catalog resolver, and the job machinery into the operations the HTTP
// layer exposes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/internal/indexer/jobstore"
	"github.com/shopforge/catalogsearch/internal/store"
)

// Resolver turns raw identifier counts into display entities.
type Resolver interface {
	FacetValues(ctx context.Context, ids []string) ([]domain.FacetValue, error)
	Collections(ctx context.Context, ids []string) ([]domain.Collection, error)
}

// Enqueuer publishes maintenance tasks onto the ordered queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task domain.Task) error
}

type SearchService struct {
	strategy store.SearchStrategy
	resolver Resolver
	queue    Enqueuer
	jobs     jobstore.Store
	secret   []byte
	logger   *slog.Logger
}

func NewSearchService(strategy store.SearchStrategy, resolver Resolver, queue Enqueuer, jobs jobstore.Store, sessionSecret []byte, logger *slog.Logger) *SearchService {
	return &SearchService{
		strategy: strategy,
		resolver: resolver,
		queue:    queue,
		jobs:     jobs,
		secret:   sessionSecret,
		logger:   logger,
	}
}

// scope pins the query to the session's channel and language. Callers never
// control these directly.
func scope(sc *domain.SessionContext, q *domain.SearchQuery) *domain.SearchQuery {
	scoped := *q
	scoped.ChannelID = sc.ChannelID
	scoped.LanguageCode = sc.LanguageCode
	return &scoped
}

// Search runs a query and returns the paginated items with the unpaginated
// total. publicView restricts results to enabled rows; the privileged path
// sees everything.
func (s *SearchService) Search(ctx context.Context, sc *domain.SessionContext, q *domain.SearchQuery, publicView bool) (*domain.SearchResponse, error) {
	scoped := scope(sc, q)

	items, err := s.strategy.SearchResults(ctx, scoped, publicView)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	total, err := s.strategy.TotalCount(ctx, scoped, publicView)
	if err != nil {
		return nil, fmt.Errorf("search total: %w", err)
	}
	return &domain.SearchResponse{Items: items, TotalItems: total}, nil
}

// FacetValues returns the facet values occurring in a query's full result
// set with their counts. On the public view, values of private facets are
// omitted entirely rather than shown with a zero count.
func (s *SearchService) FacetValues(ctx context.Context, sc *domain.SessionContext, q *domain.SearchQuery, publicView bool) ([]domain.FacetValueCount, error) {
	scoped := scope(sc, q)

	counts, err := s.strategy.FacetValueIDs(ctx, scoped, publicView)
	if err != nil {
		return nil, fmt.Errorf("facet value counts: %w", err)
	}
	if len(counts) == 0 {
		return []domain.FacetValueCount{}, nil
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	values, err := s.resolver.FacetValues(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve facet values: %w", err)
	}

	out := make([]domain.FacetValueCount, 0, len(values))
	for _, v := range values {
		if publicView && v.FacetPrivate {
			continue
		}
		out = append(out, domain.FacetValueCount{FacetValue: v, Count: counts[v.ID]})
	}
	sortFacetCounts(out)
	return out, nil
}

// Collections returns the collections occurring in a query's full result set
// with their counts.
func (s *SearchService) Collections(ctx context.Context, sc *domain.SessionContext, q *domain.SearchQuery, publicView bool) ([]domain.CollectionCount, error) {
	scoped := scope(sc, q)

	counts, err := s.strategy.CollectionIDs(ctx, scoped, publicView)
	if err != nil {
		return nil, fmt.Errorf("collection counts: %w", err)
	}
	if len(counts) == 0 {
		return []domain.CollectionCount{}, nil
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	collections, err := s.resolver.Collections(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve collections: %w", err)
	}

	out := make([]domain.CollectionCount, 0, len(collections))
	for _, c := range collections {
		out = append(out, domain.CollectionCount{Collection: c, Count: counts[c.ID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Collection.ID < out[j].Collection.ID
	})
	return out, nil
}

func sortFacetCounts(counts []domain.FacetValueCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].FacetValue.ID < counts[j].FacetValue.ID
	})
}

// Reindex creates a progress record and enqueues a full rebuild of the
// session's channel. It returns immediately; clients poll the job.
func (s *SearchService) Reindex(ctx context.Context, sc *domain.SessionContext) (*jobstore.Job, error) {
	job := &jobstore.Job{
		ID:    uuid.New().String(),
		Kind:  string(domain.TaskReindex),
		State: jobstore.StatePending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create reindex job: %w", err)
	}

	token, err := domain.SignSession(s.secret, sc)
	if err != nil {
		return nil, err
	}
	task := domain.Task{
		Type:  domain.TaskReindex,
		Ctx:   token,
		JobID: job.ID,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		if ferr := s.jobs.Fail(ctx, job.ID, "enqueue failed"); ferr != nil {
			s.logger.Warn("mark job failed", "job_id", job.ID, "error", ferr)
		}
		return nil, fmt.Errorf("enqueue reindex: %w", err)
	}

	s.logger.Info("reindex enqueued", "job_id", job.ID, "channel_id", sc.ChannelID, "actor_id", sc.ActorID)
	return s.jobs.Get(ctx, job.ID)
}

// Job returns the progress record of a long-running index job.
func (s *SearchService) Job(ctx context.Context, id string) (*jobstore.Job, error) {
	return s.jobs.Get(ctx, id)
}
