// Package engine is the public surface of the keyword filtering and
// synchronization machinery. UI and report collaborators call it; nothing
// outside this package reaches into the stores directly.
package engine

import (
	"context"
	"fmt"

	"github.com/promodesk/slovolov/internal/database"
	"github.com/promodesk/slovolov/internal/ingest"
	"github.com/promodesk/slovolov/internal/logging"
	"github.com/promodesk/slovolov/internal/pipeline"
	"github.com/promodesk/slovolov/internal/reconcile"
	"github.com/promodesk/slovolov/internal/registry"
	"github.com/promodesk/slovolov/internal/remote"
)

// Engine wires the registry, reconciler, sync engine and result pipeline
// over one local store and one remote mirror.
type Engine struct {
	db  *database.DB
	reg *registry.Registry
	rec *reconcile.Reconciler
	syn *ingest.Syncer
}

// New creates an Engine. Pass remote.Noop{} when no mirror is configured.
func New(db *database.DB, store remote.Store, log *logging.Logger) *Engine {
	rec := reconcile.New(db, store, log)
	return &Engine{
		db:  db,
		reg: registry.New(db),
		rec: rec,
		syn: ingest.New(db, db, rec, log),
	}
}

// ViewOptions are the ephemeral view settings for GetFilteredResult.
type ViewOptions struct {
	SearchText string
	Category   pipeline.Category
}

// GetFilteredResult runs the result pipeline for one subcluster using its
// reconciled configuration. Dangling filter ids in the configuration
// contribute no exclusion words.
func (e *Engine) GetFilteredResult(subclusterID string, opts ViewOptions) (*pipeline.Result, error) {
	cfg, err := e.rec.LoadAndRepair(subclusterID)
	if err != nil {
		return nil, err
	}
	records, err := e.db.GetKeywords(subclusterID)
	if err != nil {
		return nil, err
	}

	var selected []database.Filter
	for _, id := range cfg.Filters {
		f, err := e.db.GetFilter(id)
		if err != nil {
			return nil, err
		}
		if f != nil {
			selected = append(selected, *f)
		}
	}

	return pipeline.Run(records, cfg, pipeline.ExclusionUnion(selected), pipeline.Options{
		Category:   opts.Category,
		SearchText: opts.SearchText,
	}), nil
}

// GetCorpus returns a subcluster's corpus with directory metadata.
func (e *Engine) GetCorpus(subclusterID string) (*database.SubclusterCorpus, error) {
	return e.db.GetCorpus(subclusterID)
}

// FilterSummary is the list shape of a filter.
type FilterSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ItemCount int    `json:"itemCount"`
}

// ListFilters returns summaries of all filters.
func (e *Engine) ListFilters() ([]FilterSummary, error) {
	filters, err := e.reg.List()
	if err != nil {
		return nil, err
	}
	summaries := make([]FilterSummary, len(filters))
	for i, f := range filters {
		summaries[i] = FilterSummary{ID: f.ID, Name: f.Name, ItemCount: len(f.Items)}
	}
	return summaries, nil
}

// GetFilter returns one filter with its items.
func (e *Engine) GetFilter(id string) (*database.Filter, error) {
	return e.reg.Get(id)
}

// CreateFilter adds an empty minus-word list.
func (e *Engine) CreateFilter(name string) (*database.Filter, error) {
	return e.reg.Create(name)
}

// RenameFilter renames a filter and, when the derived id changes, migrates
// every binding configuration referencing the old id in the same step.
func (e *Engine) RenameFilter(ctx context.Context, id, newName string) (*database.Filter, error) {
	f, err := e.reg.Rename(id, newName)
	if err != nil {
		return nil, err
	}
	if f.ID != id {
		if err := e.rec.MigrateFilterID(ctx, id, f.ID); err != nil {
			return nil, fmt.Errorf("migrating bindings after rename: %w", err)
		}
	}
	return f, nil
}

// SetFilterItems replaces a filter's items.
func (e *Engine) SetFilterItems(id string, items []string) (*database.Filter, error) {
	return e.reg.SetItems(id, items)
}

// DeleteFilter removes a filter. Configurations still referencing the id
// keep working; the dangling reference simply excludes nothing.
func (e *Engine) DeleteFilter(id string) error {
	return e.reg.Delete(id)
}

// GetConfig returns the reconciled configuration for a subcluster.
func (e *Engine) GetConfig(subclusterID string) (database.BindingConfig, error) {
	return e.rec.LoadAndRepair(subclusterID)
}

// UpdateConfig merges a partial update into a subcluster's configuration.
func (e *Engine) UpdateConfig(ctx context.Context, subclusterID string, patch reconcile.Patch) (database.BindingConfig, error) {
	return e.rec.Save(ctx, subclusterID, patch)
}

// ToggleFilterBinding selects or deselects a filter on a subcluster.
func (e *Engine) ToggleFilterBinding(ctx context.Context, subclusterID, filterID string) (database.BindingConfig, error) {
	return e.rec.ToggleFilter(ctx, subclusterID, filterID)
}

// BindModel links a model to a subcluster.
func (e *Engine) BindModel(ctx context.Context, subclusterID, modelID string) (database.BindingConfig, error) {
	return e.rec.BindModel(ctx, subclusterID, modelID)
}

// UnbindModel removes a model link from a subcluster.
func (e *Engine) UnbindModel(ctx context.Context, subclusterID, modelID string) (database.BindingConfig, error) {
	return e.rec.UnbindModel(ctx, subclusterID, modelID)
}

// RunModelSync pushes a model's fresh corpus into every bound subcluster.
// Invoked by the search-execution collaborator once results exist.
func (e *Engine) RunModelSync(ctx context.Context, modelID string, records []database.KeywordRecord) (*ingest.Report, error) {
	return e.syn.RunModelSync(ctx, modelID, records)
}

// AddMinusWord attributes a selected piece of query text to a filter as a
// new minus-word. Idempotent on the filter; as a side effect the filter is
// selected on the subcluster and filtering is activated.
func (e *Engine) AddMinusWord(ctx context.Context, subclusterID, filterID, text string) (*database.Filter, error) {
	token := registry.NormalizeItem(text)
	if token == "" {
		return nil, &registry.ValidationError{Msg: "selection is empty after normalization"}
	}

	f, err := e.reg.Get(filterID)
	if err != nil {
		return nil, err
	}

	present := false
	for _, item := range f.Items {
		if item == token {
			present = true
			break
		}
	}
	if !present {
		f, err = e.reg.SetItems(filterID, append(f.Items, token))
		if err != nil {
			return nil, err
		}
	}

	if _, err := e.rec.EnsureFilter(ctx, subclusterID, filterID); err != nil {
		return nil, err
	}
	return f, nil
}
