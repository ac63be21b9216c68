// Package event ingests catalog domain events and turns them into index
// maintenance tasks. Tasks flow through the debounce buffer, so bursts of
// variant churn collapse before they reach the queue.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/pkg/kafka"
)

// Topics returns every catalog topic the ingester subscribes to.
func Topics() []string {
	return []string{
		kafka.Topic("product", "modified"),
		kafka.Topic("variant", "modified"),
		kafka.Topic("asset", "modified"),
		kafka.Topic("collection", "modified"),
		kafka.Topic("channel", "modified"),
		kafka.Topic("taxrate", "updated"),
	}
}

// TaskSink receives the tasks derived from events. The debounce buffer is
// the production sink.
type TaskSink interface {
	Add(task domain.Task)
}

// scopePayload is the channel and language scope every catalog event
// carries.
type scopePayload struct {
	ChannelID    string `json:"channel_id"`
	LanguageCode string `json:"language_code"`
}

type productPayload struct {
	scopePayload
	ProductID string `json:"product_id"`
}

type variantPayload struct {
	scopePayload
	ProductID  string   `json:"product_id"`
	VariantID  string   `json:"variant_id,omitempty"`
	VariantIDs []string `json:"variant_ids,omitempty"`
}

type assetPayload struct {
	scopePayload
	AssetID string `json:"asset_id"`
	Preview string `json:"preview,omitempty"`
}

type channelPayload struct {
	scopePayload
	ProductID       string `json:"product_id,omitempty"`
	VariantID       string `json:"variant_id,omitempty"`
	TargetChannelID string `json:"target_channel_id"`
}

type collectionPayload struct {
	scopePayload
	CollectionID string   `json:"collection_id"`
	VariantIDs   []string `json:"variant_ids"`
}

type taxRatePayload struct {
	scopePayload
	TaxRateID  string   `json:"tax_rate_id"`
	VariantIDs []string `json:"variant_ids"`
}

// Ingester maps catalog events to maintenance tasks.
type Ingester struct {
	sink            TaskSink
	secret          []byte
	defaultChannel  string
	defaultLanguage string
	logger          *slog.Logger
}

func NewIngester(sink TaskSink, sessionSecret []byte, defaultChannel, defaultLanguage string, logger *slog.Logger) *Ingester {
	return &Ingester{
		sink:            sink,
		secret:          sessionSecret,
		defaultChannel:  defaultChannel,
		defaultLanguage: defaultLanguage,
		logger:          logger,
	}
}

// session builds and signs the system session a derived task runs under.
func (in *Ingester) session(scope scopePayload) (string, error) {
	sc := domain.SessionContext{
		ChannelID:    scope.ChannelID,
		LanguageCode: scope.LanguageCode,
		ActorID:      "system",
	}
	if sc.ChannelID == "" {
		sc.ChannelID = in.defaultChannel
	}
	if sc.LanguageCode == "" {
		sc.LanguageCode = in.defaultLanguage
	}
	return domain.SignSession(in.secret, &sc)
}

// Handler returns the consumer handler. Events of a kind the ingester does
// not index (for example review events sharing a catalog topic) are skipped
// with a debug log; malformed payloads of known kinds are errors so the
// retry and dead-letter machinery sees them.
func (in *Ingester) Handler() kafka.Handler {
	return func(_ context.Context, event *kafka.Event) error {
		return in.handle(event)
	}
}

func (in *Ingester) handle(event *kafka.Event) error {
	task, err := in.taskFor(event)
	if err != nil {
		return fmt.Errorf("event %s (%s): %w", event.EventType, event.EventID, err)
	}
	if task == nil {
		in.logger.Debug("event skipped", "event_type", event.EventType)
		return nil
	}
	in.sink.Add(*task)
	return nil
}

// taskFor maps one event to its maintenance task, or nil when the event is
// not index-relevant.
func (in *Ingester) taskFor(event *kafka.Event) (*domain.Task, error) {
	switch event.EventType {
	case "product.created", "product.updated":
		var p productPayload
		if err := event.UnmarshalData(&p); err != nil {
			return nil, err
		}
		return in.buildTask(domain.TaskUpdateProduct, p.scopePayload, func(t *domain.Task) {
			t.ProductID = p.ProductID
		})

	case "product.deleted":
		var p productPayload
		if err := event.UnmarshalData(&p); err != nil {
			return nil, err
		}
		return in.buildTask(domain.TaskDeleteProduct, p.scopePayload, func(t *domain.Task) {
			t.ProductID = p.ProductID
		})

	case "variant.created", "variant.updated":
		var p variantPayload
		if err := event.UnmarshalData(&p); err != nil {
			return nil, err
		}
		ids := p.VariantIDs
		if len(ids) == 0 && p.VariantID != "" {
			ids = []string{p.VariantID}
		}
		return in.buildTask(domain.TaskUpdateVariants, p.scopePayload, func(t *domain.Task) {
			t.ProductID = p.ProductID
			t.VariantIDs = ids
		})

	case "variant.deleted":
		var p variantPayload
		if err := event.UnmarshalData(&p); err != nil {
			return nil, err
		}
		return in.buildTask(domain.TaskDeleteVariant, p.scopePayload, func(t *domain.Task) {
			t.ProductID = p.ProductID
			t.ProductVariantID = p.VariantID
		})

	case "asset.updated":
		var p assetPayload
		if err := event.UnmarshalData(&p); err != nil {
			return nil, err
		}
		return in.buildTask(domain.TaskUpdateAsset, p.scopePayload, func(t *domain.Task) {
			t.Asset = &domain.AssetSnapshot{ID: p.AssetID, Preview: p.Preview}
		})

	case "asset.deleted":
		var p assetPayload
		if err := event.UnmarshalData(&p); err != nil {
			return nil, err
		}
		return in.buildTask(domain.TaskDeleteAsset, p.scopePayload, func(t *domain.Task) {
			t.Asset = &domain.AssetSnapshot{ID: p.AssetID}
		})

	case "product.channel.assigned", "product.channel.removed":
		var p channelPayload
		if err := event.UnmarshalData(&p); err != nil {
			return nil, err
		}
		kind := domain.TaskAssignProductToChannel
		if event.EventType == "product.channel.removed" {
			kind = domain.TaskRemoveProductFromChannel
		}
		return in.buildTask(kind, p.scopePayload, func(t *domain.Task) {
			t.ProductID = p.ProductID
			t.ChannelID = p.TargetChannelID
		})

	case "variant.channel.assigned", "variant.channel.removed":
		var p channelPayload
		if err := event.UnmarshalData(&p); err != nil {
			return nil, err
		}
		kind := domain.TaskAssignVariantToChannel
		if event.EventType == "variant.channel.removed" {
			kind = domain.TaskRemoveVariantFromChannel
		}
		return in.buildTask(kind, p.scopePayload, func(t *domain.Task) {
			t.ProductID = p.ProductID
			t.ProductVariantID = p.VariantID
			t.ChannelID = p.TargetChannelID
		})

	case "collection.modified":
		var p collectionPayload
		if err := event.UnmarshalData(&p); err != nil {
			return nil, err
		}
		return in.buildTask(domain.TaskUpdateVariants, p.scopePayload, func(t *domain.Task) {
			t.VariantIDs = p.VariantIDs
		})

	case "taxrate.updated":
		var p taxRatePayload
		if err := event.UnmarshalData(&p); err != nil {
			return nil, err
		}
		return in.buildTask(domain.TaskUpdateVariants, p.scopePayload, func(t *domain.Task) {
			t.VariantIDs = p.VariantIDs
		})

	default:
		return nil, nil
	}
}

func (in *Ingester) buildTask(kind domain.TaskType, scope scopePayload, fill func(*domain.Task)) (*domain.Task, error) {
	token, err := in.session(scope)
	if err != nil {
		return nil, err
	}
	t := &domain.Task{Type: kind, Ctx: token}
	fill(t)
	return t, nil
}
