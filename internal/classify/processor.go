package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/tagflow/internal/assemble"
	"github.com/jackzampolin/tagflow/internal/paperless"
	"github.com/jackzampolin/tagflow/internal/providers"
	"github.com/jackzampolin/tagflow/internal/tagstate"
)

// Store is the subset of the store client the processor needs.
type Store interface {
	GetDocument(ctx context.Context, id int) (*paperless.Document, error)
	UpdateMetadata(ctx context.Context, id int, patch paperless.MetadataPatch) error
	ApplyDelta(ctx context.Context, id int, delta tagstate.Delta) error
}

// Config holds the processor's dependencies and knobs.
type Config struct {
	Store      Store
	Classifier *providers.Classifier
	Taxonomy   *TaxonomyCache
	Stage      tagstate.Stage

	// RequeueTag is the transcription queue tag; documents with no
	// content are sent back there.
	RequeueTag int

	// PersonField is the custom field ID that receives the document
	// subject's name; zero disables it.
	PersonField       int
	DefaultCountryTag string

	TagLimit      int
	TaxonomyLimit int

	// Truncation limits for classifier input.
	MaxPages            int
	TailPages           int
	HeaderlessCharLimit int
	MaxChars            int

	Logger *slog.Logger
}

// Processor classifies one transcribed document: extract metadata via the
// model, enrich tags, resolve taxonomy IDs, and patch the document.
type Processor struct {
	cfg    Config
	logger *slog.Logger
}

// NewProcessor creates a Processor from cfg.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.Taxonomy == nil {
		return nil, fmt.Errorf("taxonomy cache is required")
	}
	if cfg.TagLimit == 0 {
		cfg.TagLimit = 5
	}
	if cfg.TaxonomyLimit == 0 {
		cfg.TaxonomyLimit = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{cfg: cfg, logger: logger}, nil
}

// Process runs the classification flow for a single document ID.
func (p *Processor) Process(ctx context.Context, docID int) error {
	runID := uuid.New().String()[:8]
	logger := p.logger.With("run_id", runID, "doc_id", docID)
	start := time.Now()

	doc, err := p.cfg.Store.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("refreshing document %d: %w", docID, err)
	}

	decision, delta := tagstate.Evaluate(doc.Tags, p.cfg.Stage)
	switch decision {
	case tagstate.SkipError:
		logger.Info("skipping errored document", "title", doc.Title)
		return p.apply(ctx, docID, delta)
	case tagstate.SkipStale:
		logger.Info("repairing stale tags on classified document", "title", doc.Title)
		return p.apply(ctx, docID, delta)
	}

	if claim := tagstate.Claim(p.cfg.Stage); !claim.Empty() {
		if err := p.cfg.Store.ApplyDelta(ctx, docID, claim); err != nil {
			logger.Warn("failed to claim document, proceeding anyway", "error", err)
		} else if !doc.HasTag(p.cfg.Stage.Processing) {
			doc.Tags = append(doc.Tags, p.cfg.Stage.Processing)
		}
	}

	content := doc.Content
	if strings.TrimSpace(content) == "" {
		logger.Warn("document has no transcription, requeueing", "title", doc.Title)
		return p.apply(ctx, docID, tagstate.Requeue(doc.Tags, p.cfg.Stage, p.cfg.RequeueTag))
	}

	// Refusal markers in the transcription mean the text is not worth
	// classifying.
	if NeedsErrorTag(content) {
		logger.Warn("transcription contains refusal markers", "title", doc.Title)
		return p.apply(ctx, docID, tagstate.Transition(doc.Tags, p.cfg.Stage, tagstate.OutcomeFailure, nil))
	}

	input, notes := p.truncate(logger, content)

	result, model := p.cfg.Classifier.Classify(ctx, input, p.cfg.Taxonomy.Context(p.cfg.TaxonomyLimit), notes)
	if result == nil || result.IsEmpty() {
		logger.Warn("classification produced no usable result", "title", doc.Title)
		return p.apply(ctx, docID, tagstate.Transition(doc.Tags, p.cfg.Stage, tagstate.OutcomeFailure, nil))
	}
	if IsGenericDocumentType(result.DocumentType) {
		logger.Warn("classification returned generic document type",
			"title", doc.Title, "document_type", result.DocumentType)
		return p.apply(ctx, docID, tagstate.Transition(doc.Tags, p.cfg.Stage, tagstate.OutcomeFailure, nil))
	}

	if err := p.applyResult(ctx, logger, doc, content, result); err != nil {
		return err
	}

	logger.Info("document classified",
		"title", doc.Title,
		"model", model,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// truncate applies page-window and max-char truncation, returning the
// classifier input and a combined note describing what was cut.
func (p *Processor) truncate(logger *slog.Logger, content string) (string, string) {
	input := content
	var notes []string

	if p.cfg.MaxPages > 0 {
		truncated, note := assemble.TruncateByPages(content, p.cfg.MaxPages, p.cfg.TailPages, p.cfg.HeaderlessCharLimit)
		if truncated != content {
			input = truncated
			if note != "" {
				notes = append(notes, note)
			}
			logger.Info("truncated transcription for classification",
				"max_pages", p.cfg.MaxPages, "tail_pages", p.cfg.TailPages)
		}
	}

	if p.cfg.MaxChars > 0 && len(input) > p.cfg.MaxChars {
		input = assemble.TruncateByChars(input, p.cfg.MaxChars)
		notes = append(notes, assemble.MaxCharsNote(p.cfg.MaxChars))
		logger.Info("truncated transcription for classification", "max_chars", p.cfg.MaxChars)
	}

	return input, strings.Join(notes, "\n")
}

// applyResult resolves taxonomy IDs for the classifier output and patches
// the document's metadata in a single update.
func (p *Processor) applyResult(ctx context.Context, logger *slog.Logger, doc *paperless.Document, content string, result *providers.ClassificationResult) error {
	parsedDate := ParseDocumentDate(result.DocumentDate)
	dateForTags := ResolveDateForTags(parsedDate, doc.Created)

	baseTags := FilterBlacklistedTags(result.Tags)
	baseTags = FilterRedundantTags(baseTags, result.Correspondent, result.DocumentType, result.Person)
	tags := EnrichTags(baseTags, content, dateForTags, p.cfg.DefaultCountryTag, p.cfg.TagLimit)

	// The error state is carried by the configured error tag, not a
	// free-form "error" label.
	if p.cfg.Stage.Error != 0 {
		filtered := tags[:0]
		for _, tag := range tags {
			if strings.ToLower(strings.TrimSpace(tag)) != "error" {
				filtered = append(filtered, tag)
			}
		}
		tags = filtered
	}

	tagIDs := make([]int, 0, len(tags))
	for _, tag := range tags {
		id, err := p.cfg.Taxonomy.TagID(ctx, tag)
		if err != nil {
			logger.Warn("failed to resolve tag", "tag", tag, "error", err)
			continue
		}
		tagIDs = append(tagIDs, id)
	}

	patch := paperless.MetadataPatch{}
	if title := strings.TrimSpace(result.Title); title != "" {
		patch.Title = &title
	}
	if result.Correspondent != "" {
		if id, err := p.cfg.Taxonomy.CorrespondentID(ctx, result.Correspondent); err != nil {
			logger.Warn("failed to resolve correspondent", "name", result.Correspondent, "error", err)
		} else {
			patch.Correspondent = &id
		}
	}
	if result.DocumentType != "" {
		if id, err := p.cfg.Taxonomy.DocumentTypeID(ctx, result.DocumentType); err != nil {
			logger.Warn("failed to resolve document type", "name", result.DocumentType, "error", err)
		} else {
			patch.DocumentType = &id
		}
	}
	if parsedDate != "" {
		patch.Created = &parsedDate
	}
	if lang := NormalizeLanguage(result.Language); lang != "" {
		patch.Language = &lang
	}
	if p.cfg.PersonField != 0 && result.Person != "" {
		patch.CustomFields = UpsertCustomField(doc.CustomFields, p.cfg.PersonField, result.Person)
	}

	transition := tagstate.Transition(doc.Tags, p.cfg.Stage, tagstate.OutcomeSuccess, tagIDs)
	patch.Tags = mergeTags(doc.Tags, transition)

	if err := p.cfg.Store.UpdateMetadata(ctx, doc.ID, patch); err != nil {
		return fmt.Errorf("updating metadata for document %d: %w", doc.ID, err)
	}
	logger.Info("classification applied", "tags_added", len(tagIDs))
	return nil
}

func (p *Processor) apply(ctx context.Context, docID int, delta tagstate.Delta) error {
	if delta.Empty() {
		return nil
	}
	if err := p.cfg.Store.ApplyDelta(ctx, docID, delta); err != nil {
		return fmt.Errorf("updating tags for document %d: %w", docID, err)
	}
	return nil
}

// mergeTags applies a delta to a tag snapshot, preserving order.
func mergeTags(current []int, delta tagstate.Delta) []int {
	remove := make(map[int]bool, len(delta.Remove))
	for _, id := range delta.Remove {
		remove[id] = true
	}
	out := make([]int, 0, len(current)+len(delta.Add))
	seen := make(map[int]bool, len(current))
	for _, id := range current {
		if remove[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range delta.Add {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
