package providers

import (
	"context"
	"fmt"
	"sync"
)

// MockBackend is a configurable Backend for tests.
type MockBackend struct {
	mu sync.Mutex

	// Responses maps model name to the canned response for that model.
	Responses map[string]string

	// Errors maps model name to an error returned instead of a response.
	Errors map[string]error

	// CompleteFunc, when set, overrides Responses/Errors entirely.
	CompleteFunc func(ctx context.Context, req CompletionRequest) (string, error)

	// Calls records every request in order.
	Calls []CompletionRequest
}

// Name returns "mock".
func (m *MockBackend) Name() string {
	return "mock"
}

// Complete returns the canned response for the requested model.
func (m *MockBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors[req.Model]; ok {
		return "", err
	}
	if resp, ok := m.Responses[req.Model]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("mock: no response configured for model %q", req.Model)
}

// CallCount returns the number of recorded calls.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
