package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	CloudBackendName = "openai"
	LocalBackendName = "ollama"

	defaultLocalBaseURL = "http://localhost:11434/v1/"
)

// BackendConfig configures either backend variant.
type BackendConfig struct {
	// APIKey authenticates against the cloud backend. The local backend
	// ignores it.
	APIKey string

	// BaseURL points the local backend at a self-hosted
	// OpenAI-compatible endpoint. Ignored by the cloud backend.
	BaseURL string

	// Timeout bounds each completion request (default 180s).
	Timeout time.Duration

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// chatBackend is the shared openai-go plumbing. Cloud and local differ only
// in base URL and auth, never in call shape.
type chatBackend struct {
	name   string
	client openai.Client
}

// CloudBackend talks to the hosted OpenAI API.
type CloudBackend struct{ chatBackend }

// LocalBackend talks to a self-hosted OpenAI-compatible endpoint such as
// Ollama.
type LocalBackend struct{ chatBackend }

// NewCloudBackend creates the cloud variant.
func NewCloudBackend(cfg BackendConfig) (*CloudBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cloud backend requires an API key")
	}
	opts := baseOptions(cfg)
	opts = append(opts, option.WithAPIKey(cfg.APIKey))
	return &CloudBackend{chatBackend{
		name:   CloudBackendName,
		client: openai.NewClient(opts...),
	}}, nil
}

// NewLocalBackend creates the self-hosted variant. The endpoint does not
// check credentials but the SDK requires one, so a placeholder key is sent.
func NewLocalBackend(cfg BackendConfig) (*LocalBackend, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultLocalBaseURL
	}
	opts := baseOptions(cfg)
	opts = append(opts,
		option.WithBaseURL(baseURL),
		option.WithAPIKey("unused"),
	)
	return &LocalBackend{chatBackend{
		name:   LocalBackendName,
		client: openai.NewClient(opts...),
	}}, nil
}

func baseOptions(cfg BackendConfig) []option.RequestOption {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 180 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return []option.RequestOption{
		option.WithHTTPClient(httpClient),
		// The retry executor owns backoff; the SDK must not add its own.
		option.WithMaxRetries(0),
	}
}

// Name returns the backend identifier.
func (b *chatBackend) Name() string {
	return b.name
}

// Complete performs one chat completion.
func (b *chatBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var userMessage openai.ChatCompletionMessageParamUnion
	if len(req.ImageData) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.ImageData)
		parts := []openai.ChatCompletionContentPartUnionParam{
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL:    dataURL,
				Detail: "high",
			}),
		}
		if req.UserText != "" {
			parts = append(parts, openai.TextContentPart(req.UserText))
		}
		userMessage = openai.UserMessage(parts)
	} else {
		userMessage = openai.UserMessage(req.UserText)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			userMessage,
		},
	}
	if req.HasTemp {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices (model=%s)", req.Model)
	}
	return resp.Choices[0].Message.Content, nil
}
