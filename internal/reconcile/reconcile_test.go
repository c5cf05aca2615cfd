package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/promodesk/slovolov/internal/database"
	"github.com/promodesk/slovolov/internal/logging"
	"github.com/promodesk/slovolov/internal/remote"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestReconciler(t *testing.T) (*Reconciler, *database.DB, *remote.Memory) {
	t.Helper()
	db := openTestDB(t)
	mirror := remote.NewMemory()
	return New(db, mirror, logging.Nop()), db, mirror
}

// failingStore rejects every push.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (database.BindingConfig, bool, error) {
	return database.BindingConfig{}, false, nil
}

func (failingStore) PutAll(context.Context, map[string]database.BindingConfig) error {
	return errors.New("connection refused")
}

func TestLoadDefault(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	cfg, err := r.LoadAndRepair("sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Models) != 0 || len(cfg.Filters) != 0 || cfg.ApplyFilters || cfg.MinFrequency != 0 {
		t.Errorf("expected default config, got %+v", cfg)
	}
}

func TestLoadRepairsAndPersists(t *testing.T) {
	r, db, _ := newTestReconciler(t)
	db.PutConfigDoc("sub-1", []byte(`{"models":[],"filters":["garbage"],"applyFilters":false,"minFrequency":0}`))

	cfg, err := r.LoadAndRepair("sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.ApplyFilters {
		t.Error("expected applyFilters forced true on load")
	}

	// The repaired value must be what the cache now holds (no flapping).
	doc, ok, _ := db.GetConfigDoc("sub-1")
	if !ok {
		t.Fatal("expected cached doc")
	}
	var stored database.BindingConfig
	if err := json.Unmarshal(doc, &stored); err != nil {
		t.Fatalf("stored doc does not decode: %v", err)
	}
	if !stored.ApplyFilters {
		t.Error("expected repaired value persisted to cache")
	}

	again, _ := r.LoadAndRepair("sub-1")
	if !again.ApplyFilters {
		t.Error("expected repair to be stable across loads")
	}
}

func TestLoadMalformedCacheFallsBack(t *testing.T) {
	r, db, _ := newTestReconciler(t)
	db.PutConfigDoc("sub-1", []byte(`{"models": not json`))

	cfg, err := r.LoadAndRepair("sub-1")
	if err != nil {
		t.Fatalf("malformed cache must not error: %v", err)
	}
	if len(cfg.Filters) != 0 || cfg.ApplyFilters {
		t.Errorf("expected default config, got %+v", cfg)
	}
}

func TestSaveShallowMerge(t *testing.T) {
	r, _, mirror := newTestReconciler(t)
	ctx := context.Background()

	minFreq := 500
	if _, err := r.Save(ctx, "sub-1", Patch{MinFrequency: &minFreq}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	filters := []string{"garbage"}
	cfg, err := r.Save(ctx, "sub-1", Patch{Filters: &filters})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinFrequency != 500 {
		t.Errorf("expected earlier field to survive merge, got %+v", cfg)
	}
	if len(cfg.Filters) != 1 {
		t.Errorf("expected filters patched, got %+v", cfg)
	}
	if !cfg.ApplyFilters {
		t.Error("expected non-empty filters to force applyFilters on save")
	}

	// Every save pushes the whole map to the mirror.
	if mirror.Puts() != 2 {
		t.Errorf("expected 2 remote pushes, got %d", mirror.Puts())
	}
	got, ok, _ := mirror.Get(ctx, "sub-1")
	if !ok || got.MinFrequency != 500 {
		t.Errorf("expected mirrored config, got %+v (ok=%v)", got, ok)
	}
}

func TestSaveRemoteFailureIsNonFatal(t *testing.T) {
	db := openTestDB(t)
	r := New(db, failingStore{}, logging.Nop())

	minFreq := 100
	cfg, err := r.Save(context.Background(), "sub-1", Patch{MinFrequency: &minFreq})
	if err != nil {
		t.Fatalf("remote failure must not surface: %v", err)
	}
	if cfg.MinFrequency != 100 {
		t.Errorf("expected local write to stick, got %+v", cfg)
	}

	reloaded, _ := r.LoadAndRepair("sub-1")
	if reloaded.MinFrequency != 100 {
		t.Error("local cache must be authoritative after failed push")
	}
}

func TestToggleFilterOnOff(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	ctx := context.Background()

	cfg, err := r.ToggleFilter(ctx, "sub-1", "garbage")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Filters) != 1 || cfg.Filters[0] != "garbage" {
		t.Errorf("expected filter selected, got %+v", cfg)
	}
	if !cfg.ApplyFilters {
		t.Error("expected applyFilters flipped on first selection")
	}

	cfg, err = r.ToggleFilter(ctx, "sub-1", "garbage")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Filters) != 0 {
		t.Errorf("expected filter deselected, got %+v", cfg)
	}
	// The activation side effect is not reverted by the second toggle.
	if !cfg.ApplyFilters {
		t.Error("expected applyFilters to stay true after toggling off")
	}
}

func TestEnsureFilterIdempotent(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	ctx := context.Background()

	cfg, _ := r.EnsureFilter(ctx, "sub-1", "garbage")
	if len(cfg.Filters) != 1 || !cfg.ApplyFilters {
		t.Errorf("expected filter ensured and active, got %+v", cfg)
	}

	cfg, _ = r.EnsureFilter(ctx, "sub-1", "garbage")
	if len(cfg.Filters) != 1 {
		t.Errorf("expected no duplicate, got %+v", cfg)
	}
}

func TestBindUnbindModel(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	ctx := context.Background()

	r.BindModel(ctx, "sub-1", "model-a")
	cfg, _ := r.BindModel(ctx, "sub-1", "model-a")
	if len(cfg.Models) != 1 {
		t.Errorf("expected set semantics, got %+v", cfg.Models)
	}

	cfg, _ = r.UnbindModel(ctx, "sub-1", "model-a")
	if len(cfg.Models) != 0 {
		t.Errorf("expected model unbound, got %+v", cfg.Models)
	}
	cfg, _ = r.UnbindModel(ctx, "sub-1", "model-a")
	if len(cfg.Models) != 0 {
		t.Errorf("expected unbind of absent model to be a no-op, got %+v", cfg.Models)
	}
}

func TestLinkedSubclusters(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	ctx := context.Background()

	r.BindModel(ctx, "sub-b", "model-a")
	r.BindModel(ctx, "sub-a", "model-a")
	r.BindModel(ctx, "sub-c", "model-other")

	linked, err := r.LinkedSubclusters("model-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(linked) != 2 || linked[0] != "sub-a" || linked[1] != "sub-b" {
		t.Errorf("expected sorted [sub-a sub-b], got %v", linked)
	}

	linked, _ = r.LinkedSubclusters("model-unknown")
	if len(linked) != 0 {
		t.Errorf("expected no links, got %v", linked)
	}
}

func TestMigrateFilterID(t *testing.T) {
	r, _, mirror := newTestReconciler(t)
	ctx := context.Background()

	r.ToggleFilter(ctx, "sub-1", "garbage")
	r.ToggleFilter(ctx, "sub-2", "garbage")
	r.ToggleFilter(ctx, "sub-2", "other")
	r.ToggleFilter(ctx, "sub-3", "other")

	if err := r.MigrateFilterID(ctx, "garbage", "trash"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, _ := r.LoadAndRepair("sub-1")
	if len(cfg.Filters) != 1 || cfg.Filters[0] != "trash" {
		t.Errorf("expected migrated filter id, got %+v", cfg.Filters)
	}
	cfg, _ = r.LoadAndRepair("sub-2")
	if cfg.Filters[0] != "trash" || cfg.Filters[1] != "other" {
		t.Errorf("expected order preserved with migrated id, got %+v", cfg.Filters)
	}
	cfg, _ = r.LoadAndRepair("sub-3")
	if cfg.Filters[0] != "other" {
		t.Errorf("expected untouched config, got %+v", cfg.Filters)
	}

	mirrored, ok, _ := mirror.Get(ctx, "sub-1")
	if !ok || mirrored.Filters[0] != "trash" {
		t.Errorf("expected migration pushed to mirror, got %+v", mirrored)
	}
}
