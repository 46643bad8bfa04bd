package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/tagflow/internal/assemble"
	"github.com/jackzampolin/tagflow/internal/pagesource"
	"github.com/jackzampolin/tagflow/internal/paperless"
	"github.com/jackzampolin/tagflow/internal/providers"
	"github.com/jackzampolin/tagflow/internal/tagstate"
)

// Store is the subset of the document store client the processor needs.
type Store interface {
	GetDocument(ctx context.Context, id int) (*paperless.Document, error)
	DownloadContent(ctx context.Context, id int) ([]byte, string, error)
	UpdateContent(ctx context.Context, id int, content string, tags []int) error
	ApplyDelta(ctx context.Context, id int, delta tagstate.Delta) error
}

// Config holds the processor's dependencies and knobs.
type Config struct {
	Store       Store
	Splitter    pagesource.Splitter
	Transcriber *providers.Transcriber
	Stage       tagstate.Stage

	// PageWorkers bounds concurrent page transcriptions per document.
	PageWorkers int

	// IncludePageModels appends the producing model to each page header.
	IncludePageModels bool

	Logger *slog.Logger
}

// Processor transcribes one document end to end: claim, download, split
// into pages, transcribe each page, assemble, write back, transition tags.
type Processor struct {
	store       Store
	splitter    pagesource.Splitter
	transcriber *providers.Transcriber
	stage       tagstate.Stage
	pageWorkers int
	pageModels  bool
	logger      *slog.Logger
}

// NewProcessor creates a Processor from cfg, applying defaults.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	workers := cfg.PageWorkers
	if workers < 1 {
		workers = 8
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:       cfg.Store,
		splitter:    cfg.Splitter,
		transcriber: cfg.Transcriber,
		stage:       cfg.Stage,
		pageWorkers: workers,
		pageModels:  cfg.IncludePageModels,
		logger:      logger,
	}, nil
}

// Process runs the full transcription flow for a single document ID. It
// returns an error only for store-level failures that the caller may want
// to surface; model refusals and empty documents are recorded in the
// document's tags, not returned.
func (p *Processor) Process(ctx context.Context, docID int) error {
	runID := uuid.New().String()[:8]
	logger := p.logger.With("run_id", runID, "doc_id", docID)
	start := time.Now()

	// Refresh to see the current tag state; the document may have been
	// handled since it was listed.
	doc, err := p.store.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("refreshing document %d: %w", docID, err)
	}

	decision, delta := tagstate.Evaluate(doc.Tags, p.stage)
	switch decision {
	case tagstate.SkipError:
		logger.Info("skipping errored document", "title", doc.Title)
		return p.applySkip(ctx, docID, delta)
	case tagstate.SkipStale:
		logger.Info("repairing stale tags on processed document", "title", doc.Title)
		return p.applySkip(ctx, docID, delta)
	}

	// Claim is best-effort: a failed claim means another worker may race
	// us, which the post-tag check above makes harmless.
	if claim := tagstate.Claim(p.stage); !claim.Empty() {
		if err := p.store.ApplyDelta(ctx, docID, claim); err != nil {
			logger.Warn("failed to claim document, proceeding anyway", "error", err)
		} else if !doc.HasTag(p.stage.Processing) {
			doc.Tags = append(doc.Tags, p.stage.Processing)
		}
	}

	outcome, content, models := p.transcribe(ctx, logger, doc)

	transition := tagstate.Transition(doc.Tags, p.stage, outcome, nil)
	if outcome == tagstate.OutcomeSuccess || content != "" {
		// Refused pages still produce a document body so the operator
		// can see which pages need attention.
		if err := p.store.UpdateContent(ctx, docID, content, nil); err != nil {
			logger.Error("failed to write transcription", "error", err)
			transition = tagstate.Transition(doc.Tags, p.stage, tagstate.OutcomeFailure, nil)
		}
	}
	if err := p.store.ApplyDelta(ctx, docID, transition); err != nil {
		return fmt.Errorf("updating tags for document %d: %w", docID, err)
	}

	logger.Info("document processed",
		"title", doc.Title,
		"outcome", outcome,
		"models", models,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// transcribe downloads, splits, and transcribes the document, returning
// the outcome, the assembled content, and the models that contributed.
func (p *Processor) transcribe(ctx context.Context, logger *slog.Logger, doc *paperless.Document) (tagstate.Outcome, string, []string) {
	data, contentType, err := p.store.DownloadContent(ctx, doc.ID)
	if err != nil {
		logger.Error("failed to download document", "error", err)
		return tagstate.OutcomeFailure, "", nil
	}

	pages, err := p.splitter.Split(ctx, data, contentType)
	if err != nil {
		logger.Error("failed to split document into pages", "error", err)
		return tagstate.OutcomeFailure, "", nil
	}
	if len(pages) == 0 {
		logger.Warn("document produced no pages")
		return tagstate.OutcomeEmpty, "", nil
	}
	logger.Info("transcribing pages", "pages", len(pages))

	results := p.transcribePages(ctx, pages)

	text, models := assemble.Assemble(results, assemble.Options{
		IncludePageModels: p.pageModels,
	})
	if strings.TrimSpace(text) == "" {
		return tagstate.OutcomeEmpty, "", nil
	}
	for _, r := range results {
		if r.Refused {
			return tagstate.OutcomeFailure, text, models
		}
	}
	return tagstate.OutcomeSuccess, text, models
}

// transcribePages fans out page transcription across a bounded worker
// pool and returns results ordered by page index.
func (p *Processor) transcribePages(ctx context.Context, pages []pagesource.Page) []assemble.PageResult {
	results := make([]assemble.PageResult, len(pages))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.pageWorkers)
	for i, page := range pages {
		g.Go(func() error {
			res := p.transcriber.TranscribePage(gctx, page)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; refusals are carried in the results.
	_ = g.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	return results
}

func (p *Processor) applySkip(ctx context.Context, docID int, delta tagstate.Delta) error {
	if delta.Empty() {
		return nil
	}
	if err := p.store.ApplyDelta(ctx, docID, delta); err != nil {
		return fmt.Errorf("cleaning tags for document %d: %w", docID, err)
	}
	return nil
}
