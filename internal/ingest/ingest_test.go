package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/promodesk/slovolov/internal/database"
	"github.com/promodesk/slovolov/internal/logging"
	"github.com/promodesk/slovolov/internal/reconcile"
	"github.com/promodesk/slovolov/internal/remote"
)

func newTestSyncer(t *testing.T) (*Syncer, *database.DB, *reconcile.Reconciler) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rec := reconcile.New(db, remote.NewMemory(), logging.Nop())
	return New(db, db, rec, logging.Nop()), db, rec
}

func freshCorpus(n int) []database.KeywordRecord {
	records := make([]database.KeywordRecord, n)
	for i := range records {
		records[i] = database.KeywordRecord{Query: fmt.Sprintf("запрос %d", i), Count: (i + 1) * 100}
	}
	return records
}

func TestRunModelSyncNoBindings(t *testing.T) {
	s, _, _ := newTestSyncer(t)
	report, err := s.RunModelSync(context.Background(), "model-a", freshCorpus(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Targets) != 0 {
		t.Errorf("expected silent no-op, got %+v", report.Targets)
	}
}

func TestRunModelSyncTwoTargetsWithOverlap(t *testing.T) {
	s, db, rec := newTestSyncer(t)
	ctx := context.Background()

	db.InsertCluster("tours", "Туры")
	db.InsertSubcluster("sub-1", "tours", "Турция")
	db.InsertSubcluster("sub-2", "tours", "Египет")
	rec.BindModel(ctx, "sub-1", "model-a")
	rec.BindModel(ctx, "sub-2", "model-a")

	// sub-2 already holds 5 of the 10 queries from an earlier run.
	old, _, _ := db.UpsertKeywords("sub-2", freshCorpus(5))
	if old != 5 {
		t.Fatalf("setup: expected 5 inserted, got %d", old)
	}

	report, err := s.RunModelSync(ctx, "model-a", freshCorpus(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(report.Targets))
	}
	for _, target := range report.Targets {
		if target.Err != nil {
			t.Errorf("unexpected target error: %v", target.Err)
		}
		if target.ClusterName != "Туры" {
			t.Errorf("expected resolved cluster name, got %+v", target)
		}

		records, _ := db.GetKeywords(target.SubclusterID)
		if len(records) != 10 {
			t.Errorf("%s: expected 10 records without duplication, got %d", target.SubclusterID, len(records))
		}
		updatedAt, _ := db.GetCorpusUpdatedAt(target.SubclusterID)
		if updatedAt == "" {
			t.Errorf("%s: expected updated_at stamped", target.SubclusterID)
		}
	}

	// Targets are sorted by subcluster id; sub-2 merged 5 and added 5.
	if report.Targets[0].New != 10 || report.Targets[0].Updated != 0 {
		t.Errorf("sub-1: expected 10 new, got %+v", report.Targets[0])
	}
	if report.Targets[1].New != 5 || report.Targets[1].Updated != 5 {
		t.Errorf("sub-2: expected 5 new / 5 updated, got %+v", report.Targets[1])
	}
}

// blockingStore fails pushes for one subcluster id.
type blockingStore struct {
	inner  CorpusStore
	broken string
}

func (b *blockingStore) UpsertKeywords(subclusterID string, records []database.KeywordRecord) (int, int, error) {
	if subclusterID == b.broken {
		return 0, 0, errors.New("disk full")
	}
	return b.inner.UpsertKeywords(subclusterID, records)
}

func TestRunModelSyncIsolatesFailures(t *testing.T) {
	s, db, rec := newTestSyncer(t)
	ctx := context.Background()

	db.InsertCluster("tours", "Туры")
	db.InsertSubcluster("sub-1", "tours", "Турция")
	db.InsertSubcluster("sub-2", "tours", "Египет")
	rec.BindModel(ctx, "sub-1", "model-a")
	rec.BindModel(ctx, "sub-2", "model-a")

	s.store = &blockingStore{inner: db, broken: "sub-1"}

	report, err := s.RunModelSync(ctx, "model-a", freshCorpus(4))
	if err != nil {
		t.Fatalf("partial failures must not fail the call: %v", err)
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].SubclusterID != "sub-1" {
		t.Errorf("expected sub-1 to fail, got %+v", failed)
	}

	records, _ := db.GetKeywords("sub-2")
	if len(records) != 4 {
		t.Errorf("expected healthy target to receive records, got %d", len(records))
	}
}

func TestRunModelSyncUnknownDirectoryEntry(t *testing.T) {
	s, db, rec := newTestSyncer(t)
	ctx := context.Background()

	// Bound but not present in the directory: push proceeds, names stay blank.
	rec.BindModel(ctx, "sub-x", "model-a")

	report, err := s.RunModelSync(ctx, "model-a", freshCorpus(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Targets[0].Err != nil {
		t.Errorf("missing directory entry must not fail the push: %v", report.Targets[0].Err)
	}
	if report.Targets[0].ClusterName != "" {
		t.Errorf("expected blank metadata, got %+v", report.Targets[0])
	}

	records, _ := db.GetKeywords("sub-x")
	if len(records) != 2 {
		t.Errorf("expected records pushed, got %d", len(records))
	}
}
