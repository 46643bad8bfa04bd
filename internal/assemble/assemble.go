// Package assemble turns per-page transcription results into one
// document-level text blob and applies the deterministic truncation rules
// used to bound classification input. Pure transformations only.
package assemble

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PageResult is the outcome of transcribing a single page.
type PageResult struct {
	// Index is the 0-based page index.
	Index int

	// Text is the transcription. Blank text marks a page with no content.
	Text string

	// Model identifies the backend model that produced the text.
	Model string

	// Refused is set when every configured model declined or failed the
	// page. Text then carries the refusal mark.
	Refused bool
}

// Options controls document text assembly.
type Options struct {
	// IncludePageModels appends the producing model to each page header.
	IncludePageModels bool
}

const footerPrefix = "Transcribed by model: "

var (
	pageHeaderRe = regexp.MustCompile(`(?m)^--- Page (\d+)(?: \[[^\]]*\])? ---$`)
	footerRe     = regexp.MustCompile(`(?i)transcribed by model:\s*(.+)`)
)

// Assemble concatenates page results in page-index order. Non-blank pages
// get a "--- Page N ---" header (suppressed for single-page documents);
// blank pages are omitted but still counted for numbering. A footer lists
// the distinct models used, in first-seen order.
//
// Returns the assembled text and the models used.
func Assemble(pages []PageResult, opts Options) (string, []string) {
	var sections []string
	var models []string
	seen := make(map[string]bool)

	for _, page := range pages {
		text := strings.TrimRight(page.Text, "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		header := ""
		if len(pages) > 1 {
			header = PageHeader(page.Index+1, page.Model, opts) + "\n"
		}
		sections = append(sections, header+text)
		if page.Model != "" && !seen[page.Model] {
			seen[page.Model] = true
			models = append(models, page.Model)
		}
	}

	text := strings.Join(sections, "\n\n")
	if len(models) > 0 {
		footer := footerPrefix + strings.Join(models, ", ")
		if text == "" {
			text = footer
		} else {
			text = text + "\n\n" + footer
		}
	}
	return text, models
}

// PageHeader renders the header for a 1-based page number.
func PageHeader(pageNum int, model string, opts Options) string {
	if opts.IncludePageModels && model != "" {
		return fmt.Sprintf("--- Page %d [%s] ---", pageNum, model)
	}
	return fmt.Sprintf("--- Page %d ---", pageNum)
}

// ModelsFromFooter extracts model identifiers from any
// "Transcribed by model:" footers present in text, deduplicated in
// first-seen order.
func ModelsFromFooter(text string) []string {
	matches := footerRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	var models []string
	seen := make(map[string]bool)
	for _, m := range matches {
		value := m[1]
		if idx := strings.IndexByte(value, '\n'); idx >= 0 {
			value = value[:idx]
		}
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			key := strings.ToLower(token)
			if seen[key] {
				continue
			}
			seen[key] = true
			models = append(models, token)
		}
	}
	return models
}

// splitFooter separates the trailing model footer so truncation never drops
// it.
func splitFooter(content string) (body, footer string) {
	marker := "\n\n" + footerPrefix
	idx := strings.LastIndex(content, marker)
	if idx == -1 {
		return content, ""
	}
	return content[:idx], content[idx:]
}

// TruncateByChars truncates content to max characters, preserving the model
// footer. A non-positive max disables truncation.
func TruncateByChars(content string, max int) string {
	if max <= 0 || len(content) <= max {
		return content
	}
	body, footer := splitFooter(content)
	if len(body) <= max {
		return body + footer
	}
	return body[:max] + footer
}

// TruncateByPages keeps the first maxPages and last tailPages page segments,
// dropping the middle. When the content has no page headers it falls back
// to a flat character cap of headerlessLimit. The returned note, when
// non-empty, describes what was dropped so the classifier prompt can say
// so. A non-positive maxPages disables truncation.
func TruncateByPages(content string, maxPages, tailPages, headerlessLimit int) (string, string) {
	if maxPages <= 0 {
		return content, ""
	}

	body, footer := splitFooter(content)
	locs := pageHeaderRe.FindAllStringSubmatchIndex(body, -1)
	if len(locs) == 0 {
		truncated := TruncateByChars(content, headerlessLimit)
		if truncated == content {
			return content, ""
		}
		note := fmt.Sprintf(
			"NOTE: The document transcription below was truncated because page headers were not found. Included the first %d characters.",
			headerlessLimit,
		)
		return truncated, note
	}

	total := len(locs)
	if total <= maxPages {
		return body + footer, ""
	}

	// Slice the body into per-page segments. The first segment starts at
	// offset 0 so any preamble before the first header survives.
	segments := make([]string, total)
	numbers := make([]int, total)
	for i, loc := range locs {
		start := 0
		if i > 0 {
			start = loc[0]
		}
		end := len(body)
		if i+1 < total {
			end = locs[i+1][0]
		}
		segments[i] = body[start:end]
		if n, err := strconv.Atoi(body[loc[2]:loc[3]]); err == nil {
			numbers[i] = n
		} else {
			numbers[i] = i + 1
		}
	}

	include := make(map[int]bool, maxPages+tailPages)
	for i := 0; i < maxPages && i < total; i++ {
		include[i] = true
	}
	if tailPages > 0 {
		start := total - tailPages
		if start < 0 {
			start = 0
		}
		for i := start; i < total; i++ {
			include[i] = true
		}
	}
	if len(include) >= total {
		return body + footer, ""
	}

	var kept strings.Builder
	var keptPages []int
	for i := 0; i < total; i++ {
		if include[i] {
			kept.WriteString(segments[i])
			keptPages = append(keptPages, numbers[i])
		}
	}

	note := fmt.Sprintf(
		"NOTE: The document transcription below was truncated to reduce cost. Included pages (from OCR headers): %s. Total pages with OCR headers: %d.",
		formatPageRanges(keptPages), total,
	)
	return kept.String() + footer, note
}

// MaxCharsNote describes a further flat-cap truncation.
func MaxCharsNote(limit int) string {
	return fmt.Sprintf(
		"NOTE: The document transcription below was further truncated to the first %d characters due to the max character limit.",
		limit,
	)
}

// formatPageRanges renders sorted page numbers as compact ranges
// ("1-3, 9-10").
func formatPageRanges(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	ordered := make([]int, 0, len(pages))
	seen := make(map[int]bool)
	for _, n := range pages {
		if !seen[n] {
			seen[n] = true
			ordered = append(ordered, n)
		}
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j-1] > ordered[j]; j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}

	var parts []string
	start, prev := ordered[0], ordered[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, n := range ordered[1:] {
		if n == prev+1 {
			prev = n
			continue
		}
		flush()
		start, prev = n, n
	}
	flush()
	return strings.Join(parts, ", ")
}
