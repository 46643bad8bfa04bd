// Package paperless is a client for the Paperless-ngx REST API. It covers
// the operations the pipeline needs: tag-filtered listing, content download,
// content/metadata updates and taxonomy management. Every request runs
// through the retry executor.
package paperless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackzampolin/tagflow/internal/retry"
	"github.com/jackzampolin/tagflow/internal/tagstate"
)

const listPageSize = 100

// Config configures a new Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retry   *retry.Executor
	Logger  *slog.Logger

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// Client talks to a Paperless-ngx instance.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	retry   *retry.Executor
	logger  *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("paperless base URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("paperless API token is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.New(retry.Config{Logger: cfg.Logger})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  httpClient,
		retry:   cfg.Retry,
		logger:  logger.With("component", "paperless"),
	}, nil
}

// do performs one retried request and returns the response body.
func (c *Client) do(ctx context.Context, method, rawURL string, payload any) ([]byte, http.Header, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, nil, retry.Permanent(fmt.Errorf("failed to marshal request: %w", err))
		}
	}

	name := fmt.Sprintf("%s %s", method, requestPath(rawURL))
	type response struct {
		data   []byte
		header http.Header
	}
	resp, err := retry.DoWithData(ctx, c.retry, name, func() (response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return response{}, retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Token "+c.token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		httpResp, err := c.client.Do(req)
		if err != nil {
			return response{}, err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return response{}, err
		}
		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			statusErr := &retry.StatusError{Status: httpResp.StatusCode, Body: truncateBody(data)}
			return response{}, retry.ClassifyHTTPStatus(httpResp.StatusCode, statusErr)
		}
		return response{data: data, header: httpResp.Header}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return resp.data, resp.header, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	data, _, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// listAll follows Paperless pagination and collects every result.
func listAll[T any](ctx context.Context, c *Client, rawURL string) ([]T, error) {
	var results []T
	for rawURL != "" {
		var page listPage[T]
		if err := c.getJSON(ctx, rawURL, &page); err != nil {
			return nil, err
		}
		results = append(results, page.Results...)
		rawURL = page.Next
	}
	return results, nil
}

// ListDocumentsByTag returns every document carrying the given tag,
// following pagination.
func (c *Client) ListDocumentsByTag(ctx context.Context, tagID int) ([]Document, error) {
	u := fmt.Sprintf("%s/api/documents/?tags__id=%d&page_size=%d", c.baseURL, tagID, listPageSize)
	return listAll[Document](ctx, c, u)
}

// GetDocument fetches the current snapshot of a document.
func (c *Client) GetDocument(ctx context.Context, id int) (*Document, error) {
	var doc Document
	u := fmt.Sprintf("%s/api/documents/%d/", c.baseURL, id)
	if err := c.getJSON(ctx, u, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DownloadContent fetches a document's original binary content and its
// content type.
func (c *Client) DownloadContent(ctx context.Context, id int) ([]byte, string, error) {
	u := fmt.Sprintf("%s/api/documents/%d/download/", c.baseURL, id)
	data, header, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return data, contentType, nil
}

// UpdateContent replaces a document's text content, and optionally its tag
// set when tags is non-nil.
func (c *Client) UpdateContent(ctx context.Context, id int, content string, tags []int) error {
	u := fmt.Sprintf("%s/api/documents/%d/", c.baseURL, id)
	payload := map[string]any{"content": content}
	if tags != nil {
		payload["tags"] = tags
	}
	_, _, err := c.do(ctx, http.MethodPatch, u, payload)
	return err
}

// UpdateMetadata applies a metadata patch. Nil fields are omitted from the
// request so the store leaves them untouched.
func (c *Client) UpdateMetadata(ctx context.Context, id int, patch MetadataPatch) error {
	payload := map[string]any{}
	if patch.Title != nil {
		payload["title"] = *patch.Title
	}
	if patch.Correspondent != nil {
		payload["correspondent"] = *patch.Correspondent
	}
	if patch.DocumentType != nil {
		payload["document_type"] = *patch.DocumentType
	}
	if patch.Created != nil {
		payload["created"] = *patch.Created
	}
	if patch.Language != nil {
		payload["language"] = *patch.Language
	}
	if patch.Tags != nil {
		payload["tags"] = patch.Tags
	}
	if patch.CustomFields != nil {
		payload["custom_fields"] = patch.CustomFields
	}
	if len(payload) == 0 {
		return nil
	}

	u := fmt.Sprintf("%s/api/documents/%d/", c.baseURL, id)
	_, _, err := c.do(ctx, http.MethodPatch, u, payload)
	return err
}

// ApplyDelta applies a tag-state delta with a read-modify-write cycle.
// Adding a present tag or removing an absent one is a no-op, so deltas can
// be replayed safely.
func (c *Client) ApplyDelta(ctx context.Context, id int, delta tagstate.Delta) error {
	if delta.Empty() {
		return nil
	}
	doc, err := c.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	tags := applyDelta(doc.Tags, delta)
	return c.UpdateMetadata(ctx, id, MetadataPatch{Tags: tags})
}

// applyDelta merges a delta into an observed tag set, preserving the order
// of surviving tags.
func applyDelta(current []int, delta tagstate.Delta) []int {
	remove := make(map[int]bool, len(delta.Remove))
	for _, id := range delta.Remove {
		remove[id] = true
	}
	present := make(map[int]bool, len(current))
	out := make([]int, 0, len(current)+len(delta.Add))
	for _, id := range current {
		present[id] = true
		if !remove[id] {
			out = append(out, id)
		}
	}
	for _, id := range delta.Add {
		if id != 0 && !present[id] && !remove[id] {
			present[id] = true
			out = append(out, id)
		}
	}
	return out
}

func requestPath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Path
	}
	return rawURL
}

func truncateBody(data []byte) string {
	const max = 512
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
