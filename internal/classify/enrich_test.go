package classify

import (
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/tagflow/internal/paperless"
)

func TestDedupeTags(t *testing.T) {
	got := DedupeTags([]string{"Invoice", " ", "invoice", "Tax", "", "INVOICE", "tax"})
	want := []string{"Invoice", "Tax"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DedupeTags() = %v, want %v", got, want)
	}
}

func TestFilterBlacklistedTags(t *testing.T) {
	got := FilterBlacklistedTags([]string{"invoice", "New", "AI", "Error", "indexed", "finance"})
	want := []string{"invoice", "finance"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FilterBlacklistedTags() = %v, want %v", got, want)
	}
}

func TestFilterRedundantTags(t *testing.T) {
	tests := []struct {
		name          string
		tags          []string
		correspondent string
		documentType  string
		person        string
		want          []string
	}{
		{
			name:          "drops correspondent echo with suffix",
			tags:          []string{"Acme Ltd", "invoice"},
			correspondent: "Acme",
			want:          []string{"invoice"},
		},
		{
			name:         "drops document type echo",
			tags:         []string{"Invoice", "2024"},
			documentType: "invoice",
			want:         []string{"2024"},
		},
		{
			name:   "drops person echo",
			tags:   []string{"Jane Doe", "medical"},
			person: "jane doe",
			want:   []string{"medical"},
		},
		{
			name: "keeps everything when nothing matches",
			tags: []string{"a", "b"},
			want: []string{"a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterRedundantTags(tt.tags, tt.correspondent, tt.documentType, tt.person)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterRedundantTags() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDateHelpers(t *testing.T) {
	if got := ExtractYear("2023-07-14"); got != "2023" {
		t.Errorf("ExtractYear() = %q, want 2023", got)
	}
	if got := ExtractYear("2023-07-14T10:00:00Z"); got != "2023" {
		t.Errorf("ExtractYear(timestamp) = %q, want 2023", got)
	}
	if got := ExtractYear("not-a-date"); got != "" {
		t.Errorf("ExtractYear(invalid) = %q, want empty", got)
	}

	if got := ParseDocumentDate(" 2024-01-05 "); got != "2024-01-05" {
		t.Errorf("ParseDocumentDate() = %q, want 2024-01-05", got)
	}
	if got := ParseDocumentDate("05/01/2024"); got != "" {
		t.Errorf("ParseDocumentDate(invalid) = %q, want empty", got)
	}

	if got := ResolveDateForTags("", "2020-02-02T08:00:00Z"); got != "2020-02-02" {
		t.Errorf("ResolveDateForTags() = %q, want existing date", got)
	}
	if got := ResolveDateForTags("2021-03-03", "2020-02-02"); got != "2021-03-03" {
		t.Errorf("ResolveDateForTags() = %q, want result date", got)
	}
	today := time.Now().Format("2006-01-02")
	if got := ResolveDateForTags("bad", "also bad"); got != today {
		t.Errorf("ResolveDateForTags(fallback) = %q, want %q", got, today)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{" DE ", "de"},
		{"und", "und"},
		{"en-GB", "en"},
		{"pt_BR", "pt"},
		{"english", "und"},
		{"x", "und"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeLanguage(tt.in); got != tt.want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsGenericDocumentType(t *testing.T) {
	for _, generic := range []string{"", "  ", "Document", "OTHER", "misc", "n/a"} {
		if !IsGenericDocumentType(generic) {
			t.Errorf("IsGenericDocumentType(%q) = false, want true", generic)
		}
	}
	for _, specific := range []string{"Invoice", "Bank Statement", "Payslip"} {
		if IsGenericDocumentType(specific) {
			t.Errorf("IsGenericDocumentType(%q) = true, want false", specific)
		}
	}
}

func TestNeedsErrorTag(t *testing.T) {
	if !NeedsErrorTag("prefix CHATGPT REFUSED TO TRANSCRIBE suffix") {
		t.Error("refusal mark not detected")
	}
	if NeedsErrorTag("a perfectly ordinary letter") {
		t.Error("false positive on clean text")
	}
}

func TestExtractModelTags(t *testing.T) {
	text := "body\n\nTranscribed by model: gpt-5-mini, o4-mini\ntrailing"
	got := ExtractModelTags(text)
	want := []string{"gpt-5-mini", "o4-mini"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractModelTags() = %v, want %v", got, want)
	}
	if got := ExtractModelTags("no marker"); got != nil {
		t.Errorf("ExtractModelTags(no marker) = %v, want nil", got)
	}
}

func TestEnrichTags(t *testing.T) {
	text := "content\n\nTranscribed by model: test-model"

	t.Run("required tags are exempt from the limit", func(t *testing.T) {
		suggested := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta"}
		got := EnrichTags(suggested, text, "2024-06-01", "germany", 5)

		for _, required := range []string{"test-model", "2024", "germany"} {
			if !contains(got, required) {
				t.Errorf("required tag %q missing from %v", required, got)
			}
		}
		nonRequired := 0
		for _, tag := range got {
			if tag != "test-model" && tag != "2024" && tag != "germany" {
				nonRequired++
			}
		}
		if nonRequired != 5 {
			t.Errorf("non-required tags = %d, want 5", nonRequired)
		}
	})

	t.Run("refusal text adds error tag", func(t *testing.T) {
		got := EnrichTags(nil, "CHATGPT REFUSED TO TRANSCRIBE", "2024-06-01", "", 5)
		if !contains(got, "error") {
			t.Errorf("tags = %v, want error tag", got)
		}
	})

	t.Run("missing date falls back to current year", func(t *testing.T) {
		got := EnrichTags(nil, "plain text", "", "", 5)
		if !contains(got, strconv.Itoa(time.Now().Year())) {
			t.Errorf("tags = %v, want current year", got)
		}
	})

	t.Run("result is lowercased", func(t *testing.T) {
		got := EnrichTags([]string{"Finance"}, "plain", "2024-06-01", "Germany", 5)
		for _, tag := range got {
			if tag != strings.ToLower(tag) {
				t.Errorf("tag %q is not lowercase", tag)
			}
		}
	})

	t.Run("zero limit keeps only required tags", func(t *testing.T) {
		got := EnrichTags([]string{"alpha"}, "plain", "2024-06-01", "", 0)
		if contains(got, "alpha") {
			t.Errorf("tags = %v, want alpha trimmed", got)
		}
		if !contains(got, "2024") {
			t.Errorf("tags = %v, want year kept", got)
		}
	})
}

func TestUpsertCustomField(t *testing.T) {
	existing := []paperless.CustomFieldValue{{Field: 1, Value: "keep"}, {Field: 2, Value: "old"}}

	updated := UpsertCustomField(existing, 2, "new")
	want := []paperless.CustomFieldValue{{Field: 1, Value: "keep"}, {Field: 2, Value: "new"}}
	if !reflect.DeepEqual(updated, want) {
		t.Errorf("UpsertCustomField(replace) = %v, want %v", updated, want)
	}

	appended := UpsertCustomField(existing, 3, "added")
	if len(appended) != 3 || appended[2] != (paperless.CustomFieldValue{Field: 3, Value: "added"}) {
		t.Errorf("UpsertCustomField(append) = %v, want appended field 3", appended)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
