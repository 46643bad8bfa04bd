package daemon

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/tagflow/internal/paperless"
	"github.com/jackzampolin/tagflow/internal/tagstate"
)

// Lister is the subset of the store client the fetcher needs.
type Lister interface {
	ListDocumentsByTag(ctx context.Context, tagID int) ([]paperless.Document, error)
	ApplyDelta(ctx context.Context, id int, delta tagstate.Delta) error
}

// NewFetcher returns a Fetch function that lists documents queued for a
// stage and filters out ineligible ones:
//
//   - Documents already carrying the stage's post tag are stale; their
//     queue tag is removed so they stop reappearing, and they are skipped.
//   - Documents carrying the processing tag are claimed by another worker
//     and skipped until the claim clears.
func NewFetcher(store Lister, stage tagstate.Stage, logger *slog.Logger) func(ctx context.Context) ([]int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) ([]int, error) {
		docs, err := store.ListDocumentsByTag(ctx, stage.Pre)
		if err != nil {
			return nil, err
		}

		ids := make([]int, 0, len(docs))
		for _, doc := range docs {
			if decision, delta := tagstate.Evaluate(doc.Tags, stage); decision == tagstate.SkipStale {
				if err := store.ApplyDelta(ctx, doc.ID, delta); err != nil {
					logger.Warn("failed to remove stale queue tag",
						"doc_id", doc.ID, "error", err)
				} else {
					logger.Info("removed stale queue tag from processed document",
						"doc_id", doc.ID)
				}
				continue
			}
			if stage.Processing != 0 && doc.HasTag(stage.Processing) {
				continue
			}
			ids = append(ids, doc.ID)
		}
		return ids, nil
	}
}
