package classify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/tagflow/internal/paperless"
	"github.com/jackzampolin/tagflow/internal/providers"
	"github.com/jackzampolin/tagflow/internal/retry"
	"github.com/jackzampolin/tagflow/internal/tagstate"
)

var classifyStage = tagstate.Stage{Pre: 444, Post: 600, Processing: 601, Error: 552}

// fakeDocStore is an in-memory classify.Store.
type fakeDocStore struct {
	mu    sync.Mutex
	doc   paperless.Document
	patch *paperless.MetadataPatch
}

func (s *fakeDocStore) GetDocument(ctx context.Context, id int) (*paperless.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc
	doc.Tags = append([]int(nil), s.doc.Tags...)
	return &doc, nil
}

func (s *fakeDocStore) UpdateMetadata(ctx context.Context, id int, patch paperless.MetadataPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patch = &patch
	if patch.Tags != nil {
		s.doc.Tags = append([]int(nil), patch.Tags...)
	}
	return nil
}

func (s *fakeDocStore) ApplyDelta(ctx context.Context, id int, delta tagstate.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	remove := make(map[int]bool)
	for _, t := range delta.Remove {
		remove[t] = true
	}
	var tags []int
	for _, t := range s.doc.Tags {
		if !remove[t] {
			tags = append(tags, t)
		}
	}
	for _, id := range delta.Add {
		found := false
		for _, have := range tags {
			if have == id {
				found = true
			}
		}
		if !found {
			tags = append(tags, id)
		}
	}
	s.doc.Tags = tags
	return nil
}

func (s *fakeDocStore) tags() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.doc.Tags...)
}

func newClassifyProcessor(t *testing.T, store *fakeDocStore, taxonomyStore *fakeTaxonomyStore, response string) *Processor {
	t.Helper()
	backend := &providers.MockBackend{Responses: map[string]string{"m": response}}
	classifier := providers.NewClassifier(providers.ClassifierConfig{
		Backend: backend,
		Models:  []string{"m"},
		Retry: retry.New(retry.Config{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
		}),
	})

	cache := NewTaxonomyCache(taxonomyStore, nil)
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	p, err := NewProcessor(Config{
		Store:             store,
		Classifier:        classifier,
		Taxonomy:          cache,
		Stage:             classifyStage,
		RequeueTag:        443,
		PersonField:       12,
		DefaultCountryTag: "germany",
		TagLimit:          5,
		TaxonomyLimit:     100,
		MaxPages:          3,
		TailPages:         2,
	})
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	return p
}

func hasTag(tags []int, want int) bool {
	for _, id := range tags {
		if id == want {
			return true
		}
	}
	return false
}

const validResponse = `{
	"title": "Electricity Invoice March 2024",
	"correspondent": "Acme Energy Ltd",
	"tags": ["electricity", "utilities"],
	"document_date": "2024-03-15",
	"document_type": "Invoice",
	"language": "en-GB",
	"person": "Jane Doe"
}`

func TestClassifyProcessSuccess(t *testing.T) {
	store := &fakeDocStore{doc: paperless.Document{
		ID:      7,
		Title:   "scan_001",
		Content: "Invoice text\n\nTranscribed by model: gpt-5-mini",
		Tags:    []int{444, 9},
		Created: "2024-03-01",
	}}
	p := newClassifyProcessor(t, store, newFakeTaxonomyStore(), validResponse)

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if store.patch == nil {
		t.Fatal("no metadata patch applied")
	}
	patch := store.patch

	if patch.Title == nil || *patch.Title != "Electricity Invoice March 2024" {
		t.Errorf("Title = %v, want classifier title", patch.Title)
	}
	if patch.Correspondent == nil {
		t.Error("Correspondent = nil, want created ID")
	}
	if patch.DocumentType == nil {
		t.Error("DocumentType = nil, want created ID")
	}
	if patch.Created == nil || *patch.Created != "2024-03-15" {
		t.Errorf("Created = %v, want 2024-03-15", patch.Created)
	}
	if patch.Language == nil || *patch.Language != "en" {
		t.Errorf("Language = %v, want en", patch.Language)
	}
	if len(patch.CustomFields) != 1 || patch.CustomFields[0].Field != 12 || patch.CustomFields[0].Value != "Jane Doe" {
		t.Errorf("CustomFields = %v, want person field 12", patch.CustomFields)
	}

	tags := store.tags()
	if !hasTag(tags, 600) {
		t.Errorf("tags = %v, want post tag 600", tags)
	}
	if hasTag(tags, 444) || hasTag(tags, 601) {
		t.Errorf("tags = %v, want pre and processing drained", tags)
	}
	if !hasTag(tags, 9) {
		t.Errorf("tags = %v, want unrelated tag preserved", tags)
	}
}

func TestClassifyProcessWithoutPostTag(t *testing.T) {
	store := &fakeDocStore{doc: paperless.Document{
		ID:      7,
		Title:   "scan_001",
		Content: "Invoice text",
		Tags:    []int{444, 9},
	}}
	backend := &providers.MockBackend{Responses: map[string]string{"m": validResponse}}
	classifier := providers.NewClassifier(providers.ClassifierConfig{
		Backend: backend,
		Models:  []string{"m"},
		Retry: retry.New(retry.Config{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
		}),
	})
	cache := NewTaxonomyCache(newFakeTaxonomyStore(), nil)
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	p, err := NewProcessor(Config{
		Store:         store,
		Classifier:    classifier,
		Taxonomy:      cache,
		Stage:         tagstate.Stage{Pre: 444, Processing: 601, Error: 552},
		RequeueTag:    443,
		TagLimit:      5,
		TaxonomyLimit: 100,
	})
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if store.patch == nil {
		t.Fatal("no metadata patch applied")
	}
	if hasTag(store.patch.Tags, 0) {
		t.Errorf("patch tags = %v, zero tag must never be written", store.patch.Tags)
	}
	tags := store.tags()
	if hasTag(tags, 444) || hasTag(tags, 601) {
		t.Errorf("tags = %v, want pre and processing drained", tags)
	}
	if !hasTag(tags, 9) {
		t.Errorf("tags = %v, want unrelated tag preserved", tags)
	}
}

func TestClassifyProcessEmptyContentRequeues(t *testing.T) {
	store := &fakeDocStore{doc: paperless.Document{ID: 7, Content: "   ", Tags: []int{444, 9}}}
	p := newClassifyProcessor(t, store, newFakeTaxonomyStore(), validResponse)

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	tags := store.tags()
	if !hasTag(tags, 443) {
		t.Errorf("tags = %v, want requeued with OCR tag 443", tags)
	}
	if hasTag(tags, 444) || hasTag(tags, 601) {
		t.Errorf("tags = %v, want classify tags drained", tags)
	}
	if store.patch != nil {
		t.Error("metadata patch applied, want none for requeue")
	}
}

func TestClassifyProcessRefusalContentFails(t *testing.T) {
	store := &fakeDocStore{doc: paperless.Document{
		ID:      7,
		Content: "CHATGPT REFUSED TO TRANSCRIBE",
		Tags:    []int{444, 9},
	}}
	p := newClassifyProcessor(t, store, newFakeTaxonomyStore(), validResponse)

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	tags := store.tags()
	if !hasTag(tags, 552) {
		t.Errorf("tags = %v, want error tag", tags)
	}
	if hasTag(tags, 600) || hasTag(tags, 444) {
		t.Errorf("tags = %v, want no post tag and queue drained", tags)
	}
	if !hasTag(tags, 9) {
		t.Errorf("tags = %v, want unrelated tag preserved", tags)
	}
}

func TestClassifyProcessGenericTypeFails(t *testing.T) {
	generic := `{"title": "Something", "tags": ["misc"], "document_type": "Document"}`
	store := &fakeDocStore{doc: paperless.Document{ID: 7, Content: "text", Tags: []int{444}}}
	p := newClassifyProcessor(t, store, newFakeTaxonomyStore(), generic)

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !hasTag(store.tags(), 552) {
		t.Errorf("tags = %v, want error tag for generic type", store.tags())
	}
}

func TestClassifyProcessModelFailureFails(t *testing.T) {
	store := &fakeDocStore{doc: paperless.Document{ID: 7, Content: "text", Tags: []int{444}}}

	backend := &providers.MockBackend{Errors: map[string]error{"m": errors.New("down")}}
	classifier := providers.NewClassifier(providers.ClassifierConfig{
		Backend: backend,
		Models:  []string{"m"},
		Retry: retry.New(retry.Config{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
		}),
	})
	cache := NewTaxonomyCache(newFakeTaxonomyStore(), nil)
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	p, err := NewProcessor(Config{
		Store:      store,
		Classifier: classifier,
		Taxonomy:   cache,
		Stage:      classifyStage,
		RequeueTag: 443,
	})
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !hasTag(store.tags(), 552) {
		t.Errorf("tags = %v, want error tag when all models fail", store.tags())
	}
}

func TestClassifyProcessSkipsErroredDocument(t *testing.T) {
	store := &fakeDocStore{doc: paperless.Document{ID: 7, Content: "text", Tags: []int{444, 552, 9}}}
	p := newClassifyProcessor(t, store, newFakeTaxonomyStore(), validResponse)

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	tags := store.tags()
	if hasTag(tags, 444) {
		t.Errorf("tags = %v, want queue tag drained", tags)
	}
	if !hasTag(tags, 552) || !hasTag(tags, 9) {
		t.Errorf("tags = %v, want error and unrelated tags kept", tags)
	}
	if store.patch != nil && store.patch.Title != nil {
		t.Error("metadata patched for errored document")
	}
}

func TestClassifyProcessEnrichedTags(t *testing.T) {
	taxonomyStore := newFakeTaxonomyStore()
	store := &fakeDocStore{doc: paperless.Document{
		ID:      7,
		Content: "Invoice text\n\nTranscribed by model: gpt-5-mini",
		Tags:    []int{444},
		Created: "2024-03-01",
	}}
	p := newClassifyProcessor(t, store, taxonomyStore, validResponse)

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	created := map[string]bool{}
	taxonomyStore.mu.Lock()
	for _, tag := range taxonomyStore.tags {
		created[tag.Name] = true
	}
	taxonomyStore.mu.Unlock()

	for _, want := range []string{"gpt-5-mini", "2024", "germany", "electricity", "utilities"} {
		if !created[want] {
			t.Errorf("tag %q not created; have %v", want, created)
		}
	}
}
