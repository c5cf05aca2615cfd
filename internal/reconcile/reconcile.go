// Package reconcile owns the per-subcluster binding configuration: the
// local cache is authoritative for the session, the remote store is a
// best-effort mirror pushed after every mutation. No other component
// touches the configs table, so the repair invariant is enforced in one
// place.
package reconcile

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/promodesk/slovolov/internal/database"
	"github.com/promodesk/slovolov/internal/logging"
	"github.com/promodesk/slovolov/internal/remote"
)

// Reconciler loads, repairs and persists binding configurations.
type Reconciler struct {
	db     *database.DB
	remote remote.Store
	log    *logging.Logger
}

// New creates a Reconciler. The remote store may be remote.Noop{}.
func New(db *database.DB, store remote.Store, log *logging.Logger) *Reconciler {
	return &Reconciler{db: db, remote: store, log: log}
}

// Patch is a partial configuration update. Nil fields are left untouched;
// the merge is shallow, per field.
type Patch struct {
	Models       *[]string
	Filters      *[]string
	ApplyFilters *bool
	MinFrequency *int
}

func defaultConfig() database.BindingConfig {
	return database.BindingConfig{
		Models:  []string{},
		Filters: []string{},
	}
}

// LoadAndRepair returns the cached configuration for a subcluster, falling
// back to the default when the cache has no entry or the entry does not
// decode. Loading repairs the invariant that a non-empty filter selection
// is active: when the repair fires, the corrected value is written back to
// the local cache before returning, so a subsequent load sees it.
func (r *Reconciler) LoadAndRepair(subclusterID string) (database.BindingConfig, error) {
	cfg, repaired, err := r.loadRaw(subclusterID)
	if err != nil {
		return cfg, err
	}
	if repaired {
		doc, err := json.Marshal(cfg)
		if err != nil {
			return cfg, err
		}
		if err := r.db.PutConfigDoc(subclusterID, doc); err != nil {
			return cfg, err
		}
		r.log.Info("repaired binding config", "subcluster", subclusterID)
	}
	return cfg, nil
}

func (r *Reconciler) loadRaw(subclusterID string) (cfg database.BindingConfig, repaired bool, err error) {
	cfg = defaultConfig()

	doc, ok, err := r.db.GetConfigDoc(subclusterID)
	if err != nil {
		return cfg, false, err
	}
	if !ok {
		return cfg, false, nil
	}

	if err := json.Unmarshal(doc, &cfg); err != nil {
		// Malformed cache entries are treated as absent, never surfaced.
		r.log.Warn("malformed cached config, using defaults", "subcluster", subclusterID, "error", err)
		return defaultConfig(), false, nil
	}
	if cfg.Models == nil {
		cfg.Models = []string{}
	}
	if cfg.Filters == nil {
		cfg.Filters = []string{}
	}

	return repair(cfg)
}

// repair enforces: filters selected implies filters active. There is no
// inverse path; a populated selection with applyFilters false is always
// corrected, never preserved.
func repair(cfg database.BindingConfig) (database.BindingConfig, bool, error) {
	if len(cfg.Filters) > 0 && !cfg.ApplyFilters {
		cfg.ApplyFilters = true
		return cfg, true, nil
	}
	return cfg, false, nil
}

// Save merges the patch into the current configuration and persists it:
// local cache first (guaranteed), then the whole config map to the remote
// mirror (best effort, failure logged only).
func (r *Reconciler) Save(ctx context.Context, subclusterID string, patch Patch) (database.BindingConfig, error) {
	cfg, err := r.LoadAndRepair(subclusterID)
	if err != nil {
		return cfg, err
	}

	if patch.Models != nil {
		cfg.Models = append([]string{}, (*patch.Models)...)
	}
	if patch.Filters != nil {
		cfg.Filters = append([]string{}, (*patch.Filters)...)
	}
	if patch.ApplyFilters != nil {
		cfg.ApplyFilters = *patch.ApplyFilters
	}
	if patch.MinFrequency != nil {
		cfg.MinFrequency = *patch.MinFrequency
	}
	cfg, _, _ = repair(cfg)

	if err := r.persist(ctx, subclusterID, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ToggleFilter removes the filter id if selected, appends it otherwise.
// Selecting into a previously empty set activates filtering as a side
// effect; deselecting never deactivates it.
func (r *Reconciler) ToggleFilter(ctx context.Context, subclusterID, filterID string) (database.BindingConfig, error) {
	cfg, err := r.LoadAndRepair(subclusterID)
	if err != nil {
		return cfg, err
	}

	if idx := indexOf(cfg.Filters, filterID); idx >= 0 {
		cfg.Filters = append(cfg.Filters[:idx], cfg.Filters[idx+1:]...)
	} else {
		cfg.Filters = append(cfg.Filters, filterID)
	}
	if len(cfg.Filters) > 0 {
		cfg.ApplyFilters = true
	}

	if err := r.persist(ctx, subclusterID, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFilter adds the filter id if absent and forces filtering active.
// Used by minus-word attribution; idempotent.
func (r *Reconciler) EnsureFilter(ctx context.Context, subclusterID, filterID string) (database.BindingConfig, error) {
	cfg, err := r.LoadAndRepair(subclusterID)
	if err != nil {
		return cfg, err
	}

	changed := false
	if indexOf(cfg.Filters, filterID) < 0 {
		cfg.Filters = append(cfg.Filters, filterID)
		changed = true
	}
	if !cfg.ApplyFilters {
		cfg.ApplyFilters = true
		changed = true
	}
	if !changed {
		return cfg, nil
	}

	if err := r.persist(ctx, subclusterID, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// BindModel adds a model id to the subcluster's binding, set semantics.
func (r *Reconciler) BindModel(ctx context.Context, subclusterID, modelID string) (database.BindingConfig, error) {
	cfg, err := r.LoadAndRepair(subclusterID)
	if err != nil {
		return cfg, err
	}
	if indexOf(cfg.Models, modelID) >= 0 {
		return cfg, nil
	}
	cfg.Models = append(cfg.Models, modelID)

	if err := r.persist(ctx, subclusterID, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// UnbindModel removes a model id from the subcluster's binding.
func (r *Reconciler) UnbindModel(ctx context.Context, subclusterID, modelID string) (database.BindingConfig, error) {
	cfg, err := r.LoadAndRepair(subclusterID)
	if err != nil {
		return cfg, err
	}
	idx := indexOf(cfg.Models, modelID)
	if idx < 0 {
		return cfg, nil
	}
	cfg.Models = append(cfg.Models[:idx], cfg.Models[idx+1:]...)

	if err := r.persist(ctx, subclusterID, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LinkedSubclusters returns the ids of every subcluster whose binding
// contains the model, sorted for deterministic fan-out.
func (r *Reconciler) LinkedSubclusters(modelID string) ([]string, error) {
	configs, err := r.AllConfigs()
	if err != nil {
		return nil, err
	}

	var linked []string
	for id, cfg := range configs {
		if indexOf(cfg.Models, modelID) >= 0 {
			linked = append(linked, id)
		}
	}
	sort.Strings(linked)
	return linked, nil
}

// AllConfigs decodes every cached configuration. Malformed entries are
// skipped with a warning, matching the treat-as-absent policy.
func (r *Reconciler) AllConfigs() (map[string]database.BindingConfig, error) {
	docs, err := r.db.AllConfigDocs()
	if err != nil {
		return nil, err
	}

	configs := make(map[string]database.BindingConfig, len(docs))
	for id, doc := range docs {
		var cfg database.BindingConfig
		if err := json.Unmarshal(doc, &cfg); err != nil {
			r.log.Warn("skipping malformed cached config", "subcluster", id, "error", err)
			continue
		}
		cfg, _, _ = repair(cfg)
		configs[id] = cfg
	}
	return configs, nil
}

// MigrateFilterID rewrites every binding that references oldID to newID.
// Called after a filter rename so no orphaned references remain. One
// remote push at the end covers all rewritten bindings.
func (r *Reconciler) MigrateFilterID(ctx context.Context, oldID, newID string) error {
	configs, err := r.AllConfigs()
	if err != nil {
		return err
	}

	changed := false
	for subclusterID, cfg := range configs {
		idx := indexOf(cfg.Filters, oldID)
		if idx < 0 {
			continue
		}
		cfg.Filters[idx] = newID

		doc, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		if err := r.db.PutConfigDoc(subclusterID, doc); err != nil {
			return err
		}
		changed = true
	}

	if changed {
		r.pushRemote(ctx)
	}
	return nil
}

// persist writes the local cache, then pushes the entire config map to the
// remote mirror. The local write completes before the push is attempted;
// a push failure never rolls it back.
func (r *Reconciler) persist(ctx context.Context, subclusterID string, cfg database.BindingConfig) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := r.db.PutConfigDoc(subclusterID, doc); err != nil {
		return err
	}

	r.pushRemote(ctx)
	return nil
}

func (r *Reconciler) pushRemote(ctx context.Context) {
	configs, err := r.AllConfigs()
	if err != nil {
		r.log.Warn("remote push skipped, cannot read local configs", "error", err)
		return
	}
	if err := r.remote.PutAll(ctx, configs); err != nil {
		r.log.Warn("remote push failed", "error", err)
	}
}

func indexOf(s []string, v string) int {
	for i, item := range s {
		if item == v {
			return i
		}
	}
	return -1
}
