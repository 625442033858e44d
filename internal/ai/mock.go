package ai

import "context"

// MockProvider is a test double for completion backends. When Responses is
// set, calls consume it in order (the last entry repeats); otherwise every
// call returns Response.
type MockProvider struct {
	Response    string
	Responses   []string
	Err         error
	LastRequest *CompletionRequest // captures the last request for inspection
	Requests    []CompletionRequest
	CallCount   int
}

// NewMockProvider creates a MockProvider that returns the given response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.LastRequest = &req
	m.Requests = append(m.Requests, req)
	m.CallCount++
	if m.Err != nil {
		return CompletionResponse{}, m.Err
	}

	content := m.Response
	if len(m.Responses) > 0 {
		idx := m.CallCount - 1
		if idx >= len(m.Responses) {
			idx = len(m.Responses) - 1
		}
		content = m.Responses[idx]
	}

	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

func (m *MockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "mock", Name: "Mock Model", MaxTokens: 4096, Description: "Test mock"},
	}
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}

// MockEmbedder is a test double for Embedder. It returns Vector for every
// input, or Err when set, and counts calls.
type MockEmbedder struct {
	Vector    []float32
	Err       error
	CallCount int
	LastText  string
}

// NewMockEmbedder creates a MockEmbedder returning the given vector.
func NewMockEmbedder(vector []float32) *MockEmbedder {
	return &MockEmbedder{Vector: vector}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.CallCount++
	m.LastText = text
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}
