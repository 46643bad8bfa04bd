package paperless

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jackzampolin/tagflow/internal/retry"
)

// ListTags returns every tag in the store.
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	u := fmt.Sprintf("%s/api/tags/?page_size=%d", c.baseURL, listPageSize)
	return listAll[Tag](ctx, c, u)
}

// ListCorrespondents returns every correspondent in the store.
func (c *Client) ListCorrespondents(ctx context.Context) ([]Correspondent, error) {
	u := fmt.Sprintf("%s/api/correspondents/?page_size=%d", c.baseURL, listPageSize)
	return listAll[Correspondent](ctx, c, u)
}

// ListDocumentTypes returns every document type in the store.
func (c *Client) ListDocumentTypes(ctx context.Context) ([]DocumentType, error) {
	u := fmt.Sprintf("%s/api/document_types/?page_size=%d", c.baseURL, listPageSize)
	return listAll[DocumentType](ctx, c, u)
}

// CreateTag creates a tag. The matching algorithm mirrors whatever the
// store already uses so new tags behave like existing ones.
func (c *Client) CreateTag(ctx context.Context, name string, matchingAlgorithm any) (*Tag, error) {
	payload := map[string]any{"name": name}
	if matchingAlgorithm != nil {
		payload["matching_algorithm"] = matchingAlgorithm
	}
	var tag Tag
	if err := c.postJSON(ctx, c.baseURL+"/api/tags/", payload, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// CreateCorrespondent creates a correspondent.
func (c *Client) CreateCorrespondent(ctx context.Context, name string) (*Correspondent, error) {
	var corr Correspondent
	payload := map[string]any{"name": name}
	if err := c.postJSON(ctx, c.baseURL+"/api/correspondents/", payload, &corr); err != nil {
		return nil, err
	}
	return &corr, nil
}

// CreateDocumentType creates a document type.
func (c *Client) CreateDocumentType(ctx context.Context, name string) (*DocumentType, error) {
	var dt DocumentType
	payload := map[string]any{"name": name}
	if err := c.postJSON(ctx, c.baseURL+"/api/document_types/", payload, &dt); err != nil {
		return nil, err
	}
	return &dt, nil
}

func (c *Client) postJSON(ctx context.Context, rawURL string, payload, out any) error {
	data, _, err := c.do(ctx, http.MethodPost, rawURL, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
