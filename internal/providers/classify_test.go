package providers

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseClassification(t *testing.T) {
	t.Run("clean JSON", func(t *testing.T) {
		result, err := ParseClassification(`{
			"title": " Invoice 42 ",
			"correspondent": "Acme",
			"tags": ["invoice", " ", "2024"],
			"document_date": "2024-03-01",
			"document_type": "Invoice",
			"language": "en",
			"person": "Jane Doe"
		}`)
		if err != nil {
			t.Fatalf("ParseClassification() error = %v", err)
		}
		if result.Title != "Invoice 42" {
			t.Errorf("Title = %q, want trimmed", result.Title)
		}
		if !reflect.DeepEqual(result.Tags, []string{"invoice", "2024"}) {
			t.Errorf("Tags = %v, want blanks dropped", result.Tags)
		}
	})

	t.Run("JSON wrapped in prose", func(t *testing.T) {
		result, err := ParseClassification("Here is the result:\n```json\n" +
			`{"title": "Payslip March", "tags": ["payslip"]}` + "\n```\nDone.")
		if err != nil {
			t.Fatalf("ParseClassification() error = %v", err)
		}
		if result.Title != "Payslip March" {
			t.Errorf("Title = %q, want Payslip March", result.Title)
		}
	})

	t.Run("missing fields are tolerated", func(t *testing.T) {
		result, err := ParseClassification(`{"title": "Letter"}`)
		if err != nil {
			t.Fatalf("ParseClassification() error = %v", err)
		}
		if len(result.Tags) != 0 {
			t.Errorf("Tags = %v, want empty", result.Tags)
		}
	})

	t.Run("wrong field type is rejected", func(t *testing.T) {
		if _, err := ParseClassification(`{"title": "x", "tags": "not-a-list"}`); err == nil {
			t.Error("ParseClassification() error = nil, want schema violation")
		}
	})

	t.Run("no JSON at all", func(t *testing.T) {
		if _, err := ParseClassification("I could not classify this document."); err == nil {
			t.Error("ParseClassification() error = nil, want failure")
		}
	})

	t.Run("empty response", func(t *testing.T) {
		if _, err := ParseClassification("   \n"); err == nil {
			t.Error("ParseClassification() error = nil, want failure")
		}
	})
}

func TestClassificationResultIsEmpty(t *testing.T) {
	if !(&ClassificationResult{Tags: []string{"  "}}).IsEmpty() {
		t.Error("blank-only result should be empty")
	}
	if (&ClassificationResult{Title: "x"}).IsEmpty() {
		t.Error("result with a title should not be empty")
	}
	if (&ClassificationResult{Tags: []string{"invoice"}}).IsEmpty() {
		t.Error("result with a tag should not be empty")
	}
}

func TestClassify(t *testing.T) {
	valid := `{"title": "Invoice 7", "tags": ["invoice"], "document_type": "Invoice"}`

	t.Run("first model wins", func(t *testing.T) {
		mock := &MockBackend{Responses: map[string]string{"primary": valid}}
		c := NewClassifier(ClassifierConfig{
			Backend: mock,
			Models:  []string{"primary", "fallback"},
			Retry:   fastRetry(),
		})

		result, model := c.Classify(context.Background(), "some text", Taxonomy{}, "")
		if result == nil {
			t.Fatal("result = nil, want parsed result")
		}
		if model != "primary" {
			t.Errorf("model = %q, want primary", model)
		}
		if result.Title != "Invoice 7" {
			t.Errorf("Title = %q, want Invoice 7", result.Title)
		}
	})

	t.Run("falls back past errors and bad output", func(t *testing.T) {
		mock := &MockBackend{
			Errors:    map[string]error{"a": errors.New("down")},
			Responses: map[string]string{"b": "garbage", "c": valid},
		}
		c := NewClassifier(ClassifierConfig{
			Backend: mock,
			Models:  []string{"a", "b", "c"},
			Retry:   fastRetry(),
		})

		result, model := c.Classify(context.Background(), "some text", Taxonomy{}, "")
		if result == nil {
			t.Fatal("result = nil, want parsed result")
		}
		if model != "c" {
			t.Errorf("model = %q, want c", model)
		}
	})

	t.Run("empty input short-circuits", func(t *testing.T) {
		mock := &MockBackend{}
		c := NewClassifier(ClassifierConfig{
			Backend: mock,
			Models:  []string{"m"},
			Retry:   fastRetry(),
		})
		if result, _ := c.Classify(context.Background(), "  \n", Taxonomy{}, ""); result != nil {
			t.Errorf("result = %+v, want nil for empty input", result)
		}
		if mock.CallCount() != 0 {
			t.Errorf("backend calls = %d, want 0", mock.CallCount())
		}
	})

	t.Run("all models fail", func(t *testing.T) {
		mock := &MockBackend{Errors: map[string]error{"m": errors.New("down")}}
		c := NewClassifier(ClassifierConfig{
			Backend: mock,
			Models:  []string{"m"},
			Retry:   fastRetry(),
		})
		if result, _ := c.Classify(context.Background(), "text", Taxonomy{}, ""); result != nil {
			t.Errorf("result = %+v, want nil", result)
		}
	})

	t.Run("prompt carries taxonomy and truncation note", func(t *testing.T) {
		mock := &MockBackend{Responses: map[string]string{"m": valid}}
		c := NewClassifier(ClassifierConfig{
			Backend: mock,
			Models:  []string{"m"},
			Retry:   fastRetry(),
		})
		taxonomy := Taxonomy{
			Correspondents: []string{"Acme"},
			DocumentTypes:  []string{"Invoice"},
			Tags:           []string{"finance"},
		}
		c.Classify(context.Background(), "doc text", taxonomy, "NOTE: truncated")

		req := mock.Calls[0]
		for _, want := range []string{`["Acme"]`, `["Invoice"]`, `["finance"]`, "NOTE: truncated", "doc text"} {
			if !strings.Contains(req.UserText, want) {
				t.Errorf("UserText missing %q", want)
			}
		}
		if !req.HasTemp {
			t.Error("HasTemp = false, want temperature set")
		}
	})
}
