// Package ingest propagates a model's fresh result corpus into every
// subcluster bound to that model. Targets are pushed independently; one
// failing subcluster never aborts the rest, and the caller gets a
// per-target report instead of an error.
package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/promodesk/slovolov/internal/database"
	"github.com/promodesk/slovolov/internal/logging"
	"github.com/promodesk/slovolov/internal/reconcile"
)

// Directory resolves display metadata for a subcluster. Backed by the
// local cluster directory here; the portal supplies its own.
type Directory interface {
	GetSubclusterMeta(subclusterID string) (*database.SubclusterMeta, error)
}

// CorpusStore receives merged keyword records. *database.DB implements it.
type CorpusStore interface {
	UpsertKeywords(subclusterID string, records []database.KeywordRecord) (inserted, updated int, err error)
}

// Target is the outcome of the push into one bound subcluster.
type Target struct {
	SubclusterID   string `json:"subclusterId"`
	ClusterName    string `json:"clusterName,omitempty"`
	SubclusterName string `json:"subclusterName,omitempty"`
	New            int    `json:"new"`
	Updated        int    `json:"updated"`
	Err            error  `json:"-"`
}

// Report is the outcome of one model sync across all bound subclusters.
type Report struct {
	ModelID string
	Targets []Target
}

// Failed returns the targets whose push failed.
func (r *Report) Failed() []Target {
	var failed []Target
	for _, t := range r.Targets {
		if t.Err != nil {
			failed = append(failed, t)
		}
	}
	return failed
}

// Syncer fans a model's corpus out to its bound subclusters.
type Syncer struct {
	store CorpusStore
	dir   Directory
	rec   *reconcile.Reconciler
	log   *logging.Logger
}

// New creates a Syncer.
func New(store CorpusStore, dir Directory, rec *reconcile.Reconciler, log *logging.Logger) *Syncer {
	return &Syncer{store: store, dir: dir, rec: rec, log: log}
}

// RunModelSync merges records into every subcluster bound to the model.
// A model with no bound subclusters is a valid, silent outcome. The
// returned error covers binding resolution only; per-target push failures
// land in the report.
func (s *Syncer) RunModelSync(ctx context.Context, modelID string, records []database.KeywordRecord) (*Report, error) {
	linked, err := s.rec.LinkedSubclusters(modelID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ModelID: modelID,
		Targets: make([]Target, len(linked)),
	}
	if len(linked) == 0 {
		s.log.Debug("model has no bound subclusters", "model", modelID)
		return report, nil
	}

	g, _ := errgroup.WithContext(ctx)
	for i, subclusterID := range linked {
		target := &report.Targets[i]
		target.SubclusterID = subclusterID
		g.Go(func() error {
			s.syncOne(target, records)
			return nil
		})
	}
	// Workers never return errors; failures land in their target slot.
	_ = g.Wait()

	for _, t := range report.Targets {
		if t.Err != nil {
			s.log.Warn("subcluster push failed", "model", modelID, "subcluster", t.SubclusterID, "error", t.Err)
		} else {
			s.log.Info("subcluster updated", "model", modelID, "subcluster", t.SubclusterID, "new", t.New, "updated", t.Updated)
		}
	}
	return report, nil
}

func (s *Syncer) syncOne(target *Target, records []database.KeywordRecord) {
	meta, err := s.dir.GetSubclusterMeta(target.SubclusterID)
	if err != nil {
		target.Err = err
		return
	}
	if meta != nil {
		target.ClusterName = meta.ClusterName
		target.SubclusterName = meta.SubclusterName
	}

	inserted, updated, err := s.store.UpsertKeywords(target.SubclusterID, records)
	if err != nil {
		target.Err = err
		return
	}
	target.New = inserted
	target.Updated = updated
}
