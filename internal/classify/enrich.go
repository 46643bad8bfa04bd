package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/jackzampolin/tagflow/internal/paperless"
)

// errorPhrases mark transcriptions that contain model refusals; content
// matching any of these gets the ERROR tag instead of classification
// output.
var errorPhrases = []string{
	"i'm sorry, i can't assist with that.",
	"i can't assist with that",
	"chatgpt refused to transcribe",
	"[redacted]",
}

// companySuffixes are stripped when comparing organisation names.
var companySuffixes = map[string]bool{
	"ltd": true, "limited": true, "inc": true, "incorporated": true,
	"gmbh": true, "llc": true, "plc": true, "corp": true,
	"corporation": true, "co": true, "company": true, "sa": true,
	"spa": true, "sarl": true, "bv": true, "oy": true, "ab": true,
	"as": true,
}

// genericDocumentTypes are placeholder labels that indicate the model
// failed to classify the document.
var genericDocumentTypes = map[string]bool{
	"document": true, "documents": true, "other": true, "misc": true,
	"miscellaneous": true, "unknown": true, "general": true,
	"unspecified": true, "n/a": true, "na": true, "none": true,
}

// blacklistedTags are never applied from model suggestions.
var blacklistedTags = map[string]bool{
	"new": true, "ai": true, "error": true, "indexed": true,
}

var (
	nonAlnumRE    = regexp.MustCompile(`[^a-z0-9\s]`)
	modelFooterRE = regexp.MustCompile(`(?i)transcribed by model:\s*(.+)`)
	langSplitRE   = regexp.MustCompile(`[-_]`)
)

// normalizeSimple collapses whitespace and lowercases.
func normalizeSimple(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

// normalizeName normalizes organisation names, stripping punctuation and
// trailing company suffixes.
func normalizeName(value string) string {
	cleaned := nonAlnumRE.ReplaceAllString(strings.ToLower(value), "")
	parts := strings.Fields(cleaned)
	for len(parts) > 0 && companySuffixes[parts[len(parts)-1]] {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, " ")
}

// DedupeTags deduplicates tags case-insensitively, preserving order and
// dropping blanks.
func DedupeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

// FilterBlacklistedTags removes tags that are explicitly blacklisted.
func FilterBlacklistedTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range DedupeTags(tags) {
		if blacklistedTags[normalizeSimple(tag)] {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// FilterRedundantTags removes tags that duplicate the correspondent,
// document type, or person name.
func FilterRedundantTags(tags []string, correspondent, documentType, person string) []string {
	var correspondentKey, documentTypeKey, personKey string
	if correspondent != "" {
		correspondentKey = normalizeName(correspondent)
	}
	if documentType != "" {
		documentTypeKey = normalizeSimple(documentType)
	}
	if person != "" {
		personKey = normalizeSimple(person)
	}

	out := make([]string, 0, len(tags))
	for _, tag := range DedupeTags(tags) {
		tagSimple := normalizeSimple(tag)
		tagName := normalizeName(tag)
		if correspondentKey != "" && (tagSimple == correspondentKey || tagName == correspondentKey) {
			continue
		}
		if documentTypeKey != "" && tagSimple == documentTypeKey {
			continue
		}
		if personKey != "" && tagSimple == personKey {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// ExtractYear extracts a YYYY year from an ISO-8601 date string, or ""
// if the value does not parse.
func ExtractYear(value string) string {
	d := parseISODate(value)
	if d.IsZero() {
		return ""
	}
	return d.Format("2006")
}

// ParseDocumentDate validates and normalizes a YYYY-MM-DD date string.
func ParseDocumentDate(value string) string {
	d := parseISODate(value)
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// ResolveDateForTags picks the best available date for year-tag
// derivation, falling back to today.
func ResolveDateForTags(resultDate, existingDate string) string {
	for _, value := range []string{resultDate, existingDate} {
		if d := parseISODate(value); !d.IsZero() {
			return d.Format("2006-01-02")
		}
	}
	return time.Now().Format("2006-01-02")
}

func parseISODate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if i := strings.IndexByte(value, 'T'); i >= 0 {
		value = value[:i]
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}
	}
	return d
}

// NormalizeLanguage normalizes language codes to ISO-639-1 or "und";
// empty input stays empty.
func NormalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return ""
	}
	if language == "und" {
		return language
	}
	if isAlpha2(language) {
		return language
	}
	if strings.ContainsAny(language, "-_") {
		prefix := langSplitRE.Split(language, 2)[0]
		if isAlpha2(prefix) {
			return prefix
		}
	}
	return "und"
}

func isAlpha2(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// IsGenericDocumentType reports whether the document type is a generic
// placeholder (or empty).
func IsGenericDocumentType(value string) bool {
	if strings.TrimSpace(value) == "" {
		return true
	}
	return genericDocumentTypes[normalizeSimple(value)]
}

// NeedsErrorTag reports whether the transcription contains refusal
// markers.
func NeedsErrorTag(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range errorPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ExtractModelTags extracts model names from "Transcribed by model:"
// markers in the text.
func ExtractModelTags(text string) []string {
	matches := modelFooterRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	var tags []string
	for _, m := range matches {
		value := m[1]
		if i := strings.IndexByte(value, '\n'); i >= 0 {
			value = value[:i]
		}
		for _, token := range strings.Split(value, ",") {
			if tag := strings.TrimSpace(token); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return DedupeTags(tags)
}

// EnrichTags combines model-suggested tags with required tags. Required
// tags (refusal marker, model names, year, country) are always included
// and do not count toward tagLimit. The result is lowercased.
func EnrichTags(tags []string, text, documentDate, defaultCountryTag string, tagLimit int) []string {
	if tagLimit < 0 {
		tagLimit = 0
	}

	baseTags := DedupeTags(tags)
	var required []string

	if NeedsErrorTag(text) {
		required = append(required, "ERROR")
	}
	required = append(required, ExtractModelTags(text)...)

	yearTag := ExtractYear(documentDate)
	if yearTag == "" {
		yearTag = time.Now().Format("2006")
	}
	required = append(required, yearTag)

	if defaultCountryTag != "" {
		required = append(required, defaultCountryTag)
	}

	required = DedupeTags(required)
	requiredSet := make(map[string]bool, len(required))
	for _, tag := range required {
		requiredSet[strings.ToLower(tag)] = true
	}

	nonRequired := make([]string, 0, len(baseTags))
	for _, tag := range baseTags {
		if !requiredSet[strings.ToLower(tag)] {
			nonRequired = append(nonRequired, tag)
		}
	}
	if len(nonRequired) > tagLimit {
		nonRequired = nonRequired[:tagLimit]
	}

	combined := DedupeTags(append(required, nonRequired...))
	for i, tag := range combined {
		combined[i] = strings.ToLower(tag)
	}
	return combined
}

// UpsertCustomField sets field to value in a custom-field list, replacing
// an existing assignment or appending a new one.
func UpsertCustomField(existing []paperless.CustomFieldValue, fieldID int, value string) []paperless.CustomFieldValue {
	updated := make([]paperless.CustomFieldValue, 0, len(existing)+1)
	found := false
	for _, item := range existing {
		if item.Field == fieldID {
			updated = append(updated, paperless.CustomFieldValue{Field: fieldID, Value: value})
			found = true
		} else {
			updated = append(updated, item)
		}
	}
	if !found {
		updated = append(updated, paperless.CustomFieldValue{Field: fieldID, Value: value})
	}
	return updated
}
