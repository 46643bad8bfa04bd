package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jackzampolin/tagflow/internal/paperless"
	"github.com/jackzampolin/tagflow/internal/providers"
)

// TaxonomyStore is the subset of the store client the cache needs.
type TaxonomyStore interface {
	ListTags(ctx context.Context) ([]paperless.Tag, error)
	ListCorrespondents(ctx context.Context) ([]paperless.Correspondent, error)
	ListDocumentTypes(ctx context.Context) ([]paperless.DocumentType, error)
	CreateTag(ctx context.Context, name string, matchingAlgorithm any) (*paperless.Tag, error)
	CreateCorrespondent(ctx context.Context, name string) (*paperless.Correspondent, error)
	CreateDocumentType(ctx context.Context, name string) (*paperless.DocumentType, error)
}

// TaxonomyCache holds the store's tags, correspondents and document types
// in memory so classification does not re-list them per document. It is
// refreshed once per poll batch and safe for concurrent use.
type TaxonomyCache struct {
	store  TaxonomyStore
	logger *slog.Logger

	// Tags and document types are keyed by their whitespace-collapsed
	// lowercase form; correspondents by the suffix-stripped organisation
	// form, so "Acme Energy Ltd." and "Acme Energy" share one entry.
	mu             sync.RWMutex
	tags           map[string]int // normalized name -> id
	correspondents map[string]int
	documentTypes  map[string]int
	tagCounts      map[string]int // normalized name -> document count
	corrCounts     map[string]int
	typeCounts     map[string]int
	tagNames       map[string]string // normalized name -> display name
	corrNames      map[string]string
	typeNames      map[string]string
}

// NewTaxonomyCache creates an empty cache; call Refresh before use.
func NewTaxonomyCache(store TaxonomyStore, logger *slog.Logger) *TaxonomyCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaxonomyCache{
		store:          store,
		logger:         logger.With("component", "taxonomy"),
		tags:           map[string]int{},
		correspondents: map[string]int{},
		documentTypes:  map[string]int{},
		tagCounts:      map[string]int{},
		corrCounts:     map[string]int{},
		typeCounts:     map[string]int{},
		tagNames:       map[string]string{},
		corrNames:      map[string]string{},
		typeNames:      map[string]string{},
	}
}

// Refresh reloads all three vocabularies from the store.
func (tc *TaxonomyCache) Refresh(ctx context.Context) error {
	tags, err := tc.store.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("listing tags: %w", err)
	}
	correspondents, err := tc.store.ListCorrespondents(ctx)
	if err != nil {
		return fmt.Errorf("listing correspondents: %w", err)
	}
	types, err := tc.store.ListDocumentTypes(ctx)
	if err != nil {
		return fmt.Errorf("listing document types: %w", err)
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tags = make(map[string]int, len(tags))
	tc.tagCounts = make(map[string]int, len(tags))
	tc.tagNames = make(map[string]string, len(tags))
	for _, t := range tags {
		key := normalizeSimple(t.Name)
		tc.tags[key] = t.ID
		tc.tagCounts[key] = t.DocumentCount
		tc.tagNames[key] = t.Name
	}
	tc.correspondents = make(map[string]int, len(correspondents))
	tc.corrCounts = make(map[string]int, len(correspondents))
	tc.corrNames = make(map[string]string, len(correspondents))
	for _, c := range correspondents {
		key := normalizeName(c.Name)
		tc.correspondents[key] = c.ID
		tc.corrCounts[key] = c.DocumentCount
		tc.corrNames[key] = c.Name
	}
	tc.documentTypes = make(map[string]int, len(types))
	tc.typeCounts = make(map[string]int, len(types))
	tc.typeNames = make(map[string]string, len(types))
	for _, dt := range types {
		key := normalizeSimple(dt.Name)
		tc.documentTypes[key] = dt.ID
		tc.typeCounts[key] = dt.DocumentCount
		tc.typeNames[key] = dt.Name
	}
	return nil
}

// Context returns the vocabulary lists handed to the classifier, each
// limited to the most-used limit entries.
func (tc *TaxonomyCache) Context(limit int) providers.Taxonomy {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return providers.Taxonomy{
		Correspondents: topNames(tc.corrNames, tc.corrCounts, limit),
		DocumentTypes:  topNames(tc.typeNames, tc.typeCounts, limit),
		Tags:           topNames(tc.tagNames, tc.tagCounts, limit),
	}
}

// topNames returns up to limit display names ordered by document count
// descending, name ascending for ties.
func topNames(names map[string]string, counts map[string]int, limit int) []string {
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if counts[keys[a]] != counts[keys[b]] {
			return counts[keys[a]] > counts[keys[b]]
		}
		return keys[a] < keys[b]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = names[k]
	}
	return out
}

// TagID resolves a tag name to its ID, creating the tag if it does not
// exist. Creation races with other workers; a conflict is resolved by
// refreshing and retrying the lookup once.
func (tc *TaxonomyCache) TagID(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty tag name")
	}
	key := normalizeSimple(name)

	tc.mu.RLock()
	id, ok := tc.tags[key]
	tc.mu.RUnlock()
	if ok && key != "" {
		return id, nil
	}

	// Tags created by the daemon never auto-match; the pipeline assigns
	// them explicitly.
	created, err := tc.store.CreateTag(ctx, name, "none")
	if err == nil {
		key = normalizeSimple(created.Name)
		tc.mu.Lock()
		tc.tags[key] = created.ID
		tc.tagNames[key] = created.Name
		tc.mu.Unlock()
		return created.ID, nil
	}

	tc.logger.Debug("tag create failed, refreshing cache", "tag", name, "error", err)
	if rerr := tc.Refresh(ctx); rerr != nil {
		return 0, fmt.Errorf("creating tag %q: %w", name, err)
	}
	tc.mu.RLock()
	id, ok = tc.tags[key]
	tc.mu.RUnlock()
	if ok && key != "" {
		return id, nil
	}
	return 0, fmt.Errorf("creating tag %q: %w", name, err)
}

// CorrespondentID resolves a correspondent name to its ID, creating it if
// missing. Matching is fuzzy: names are compared in suffix-stripped form
// and one containing the other counts as the same organisation.
func (tc *TaxonomyCache) CorrespondentID(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty correspondent name")
	}
	key := normalizeName(name)

	if id, ok := tc.matchCorrespondent(key); ok {
		return id, nil
	}

	created, err := tc.store.CreateCorrespondent(ctx, name)
	if err == nil {
		key = normalizeName(created.Name)
		tc.mu.Lock()
		tc.correspondents[key] = created.ID
		tc.corrNames[key] = created.Name
		tc.mu.Unlock()
		return created.ID, nil
	}

	if rerr := tc.Refresh(ctx); rerr != nil {
		return 0, fmt.Errorf("creating correspondent %q: %w", name, err)
	}
	if id, ok := tc.matchCorrespondent(key); ok {
		return id, nil
	}
	return 0, fmt.Errorf("creating correspondent %q: %w", name, err)
}

// matchCorrespondent looks up a normalized correspondent name, falling
// back to a substring scan.
func (tc *TaxonomyCache) matchCorrespondent(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	if id, ok := tc.correspondents[key]; ok {
		return id, true
	}
	for existing, id := range tc.correspondents {
		if existing == "" {
			continue
		}
		if strings.Contains(existing, key) || strings.Contains(key, existing) {
			return id, true
		}
	}
	return 0, false
}

// DocumentTypeID resolves a document-type name to its ID, creating it if
// missing.
func (tc *TaxonomyCache) DocumentTypeID(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty document type name")
	}
	key := normalizeSimple(name)

	tc.mu.RLock()
	id, ok := tc.documentTypes[key]
	tc.mu.RUnlock()
	if ok && key != "" {
		return id, nil
	}

	created, err := tc.store.CreateDocumentType(ctx, name)
	if err == nil {
		key = normalizeSimple(created.Name)
		tc.mu.Lock()
		tc.documentTypes[key] = created.ID
		tc.typeNames[key] = created.Name
		tc.mu.Unlock()
		return created.ID, nil
	}

	if rerr := tc.Refresh(ctx); rerr != nil {
		return 0, fmt.Errorf("creating document type %q: %w", name, err)
	}
	tc.mu.RLock()
	id, ok = tc.documentTypes[key]
	tc.mu.RUnlock()
	if ok && key != "" {
		return id, nil
	}
	return 0, fmt.Errorf("creating document type %q: %w", name, err)
}
