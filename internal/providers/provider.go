// Package providers abstracts the AI model backends used for transcription
// and classification. A Backend is an OpenAI-compatible chat completion
// endpoint; exactly two variants exist (cloud-hosted and self-hosted).
// Refusals and model failures are data outcomes carried in results, not
// errors: they trigger fallback to the next configured model and, once the
// list is exhausted, a refusal marker the tag-state machine can react to.
package providers

import (
	"context"
	"strings"
)

// RefusalMark is inserted as page text when every configured model refused
// or failed to transcribe a page.
const RefusalMark = "CHATGPT REFUSED TO TRANSCRIBE"

// DefaultRefusalMarkers are the phrases matched (case-insensitively)
// against responses to detect a content-policy refusal.
var DefaultRefusalMarkers = []string{
	"i can't assist",
	"i cannot assist",
	"i can't help with transcrib",
	"i cannot help with transcrib",
	RefusalMark,
}

// CompletionRequest is one chat completion call. ImageData, when set, is
// attached to the user message as a data URL for vision models.
type CompletionRequest struct {
	Model       string
	System      string
	UserText    string
	ImageData   []byte
	ImageMIME   string
	Temperature float64
	HasTemp     bool
}

// Backend is an OpenAI-compatible chat completion endpoint. The two
// implementations are CloudBackend and LocalBackend; orchestration code
// only ever sees this contract.
type Backend interface {
	// Name identifies the backend variant ("openai", "ollama").
	Name() string

	// Complete performs one chat completion and returns the response text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Taxonomy is the existing vocabulary offered to the classifier as context.
type Taxonomy struct {
	Correspondents []string
	DocumentTypes  []string
	Tags           []string
}

// ClassificationResult is the parsed classifier output.
type ClassificationResult struct {
	Title         string   `json:"title"`
	Correspondent string   `json:"correspondent"`
	Tags          []string `json:"tags"`
	DocumentDate  string   `json:"document_date"`
	DocumentType  string   `json:"document_type"`
	Language      string   `json:"language"`
	Person        string   `json:"person"`
}

// IsEmpty reports whether the result contains no usable fields.
func (r *ClassificationResult) IsEmpty() bool {
	for _, tag := range r.Tags {
		if strings.TrimSpace(tag) != "" {
			return false
		}
	}
	for _, field := range []string{r.Title, r.Correspondent, r.DocumentDate, r.DocumentType, r.Language, r.Person} {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// RefusalMatcher detects content-policy refusals via configured marker
// phrases.
type RefusalMatcher struct {
	markers []string
}

// NewRefusalMatcher builds a matcher from marker phrases. An empty list
// falls back to DefaultRefusalMarkers.
func NewRefusalMatcher(markers []string) *RefusalMatcher {
	if len(markers) == 0 {
		markers = DefaultRefusalMarkers
	}
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			lowered = append(lowered, m)
		}
	}
	return &RefusalMatcher{markers: lowered}
}

// Match reports whether text contains any refusal marker.
func (m *RefusalMatcher) Match(text string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range m.markers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
