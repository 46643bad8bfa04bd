package paperless

// Document is a snapshot of a document as stored in Paperless. The daemon
// only reads snapshots and issues incremental updates; it never deletes
// documents.
type Document struct {
	ID            int                `json:"id"`
	Title         string             `json:"title"`
	Content       string             `json:"content"`
	Tags          []int              `json:"tags"`
	Created       string             `json:"created"`
	Correspondent *int               `json:"correspondent,omitempty"`
	DocumentType  *int               `json:"document_type,omitempty"`
	CustomFields  []CustomFieldValue `json:"custom_fields,omitempty"`
}

// HasTag reports whether the document carries the given tag.
func (d *Document) HasTag(id int) bool {
	for _, t := range d.Tags {
		if t == id {
			return true
		}
	}
	return false
}

// CustomFieldValue is one custom-field assignment on a document.
type CustomFieldValue struct {
	Field int    `json:"field"`
	Value string `json:"value"`
}

// Tag is a Paperless tag.
type Tag struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	MatchingAlgorithm any    `json:"matching_algorithm,omitempty"`
	DocumentCount     int    `json:"document_count"`
}

// Correspondent is a Paperless correspondent.
type Correspondent struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	DocumentCount int    `json:"document_count"`
}

// DocumentType is a Paperless document type.
type DocumentType struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	DocumentCount int    `json:"document_count"`
}

// MetadataPatch carries the optional metadata updates applied after
// classification. Nil fields are left untouched.
type MetadataPatch struct {
	Title         *string
	Correspondent *int
	DocumentType  *int
	Created       *string
	Language      *string
	Tags          []int
	CustomFields  []CustomFieldValue
}

// listPage is one page of a paginated Paperless list response.
type listPage[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}
