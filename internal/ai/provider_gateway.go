package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultGatewayBaseURL = "http://localhost:4000/v1"

// GatewayProvider implements Provider for the OpenAI-compatible model gateway
// that hosts the tutoring models (lapa, mamay) behind a single base URL.
type GatewayProvider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	name         string
	defaultModel string
	models       []ModelInfo
}

// GatewayOption configures a GatewayProvider.
type GatewayOption func(*GatewayProvider)

// WithBaseURL sets the base URL for the gateway API.
func WithBaseURL(url string) GatewayOption {
	return func(p *GatewayProvider) {
		p.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(p *GatewayProvider) {
		p.client = client
	}
}

// WithDefaultModel sets the model used when a request leaves Model empty.
func WithDefaultModel(model string) GatewayOption {
	return func(p *GatewayProvider) {
		p.defaultModel = model
	}
}

// WithModels sets the available models for this provider.
func WithModels(models []ModelInfo) GatewayOption {
	return func(p *GatewayProvider) {
		p.models = models
	}
}

// WithProviderName sets the provider name used in error messages, so
// failures name the gateway when several are configured.
func WithProviderName(name string) GatewayOption {
	return func(p *GatewayProvider) {
		p.name = name
	}
}

// NewGatewayProvider creates a new OpenAI-compatible gateway provider.
func NewGatewayProvider(apiKey string, opts ...GatewayOption) *GatewayProvider {
	p := &GatewayProvider{
		apiKey:       apiKey,
		baseURL:      defaultGatewayBaseURL,
		client:       http.DefaultClient,
		name:         "gateway",
		defaultModel: "mamay",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// gatewayRequest is the request body for the chat completions endpoint.
type gatewayRequest struct {
	Model       string           `json:"model"`
	Messages    []gatewayMessage `json:"messages"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

type gatewayMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// gatewayResponse is the response from the chat completions endpoint.
type gatewayResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *GatewayProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]gatewayMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = gatewayMessage(m)
	}

	gwReq := gatewayRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		gwReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		gwReq.Temperature = &temp
	}

	body, err := json.Marshal(gwReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return CompletionResponse{}, fmt.Errorf("%s api error (status %d): %s", p.name, resp.StatusCode, string(respBody))
	}

	var gwResp gatewayResponse
	if err := json.Unmarshal(respBody, &gwResp); err != nil {
		return CompletionResponse{}, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(gwResp.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("no choices in response")
	}

	return CompletionResponse{
		Content:      gwResp.Choices[0].Message.Content,
		Model:        gwResp.Model,
		InputTokens:  gwResp.Usage.PromptTokens,
		OutputTokens: gwResp.Usage.CompletionTokens,
	}, nil
}

func (p *GatewayProvider) Models() []ModelInfo {
	if p.models != nil {
		return p.models
	}
	return []ModelInfo{
		{ID: "lapa", Name: "Lapa", MaxTokens: 32768, Description: "Long-form Ukrainian instruction model"},
		{ID: "mamay", Name: "Mamay", MaxTokens: 8192, Description: "Short structured-output model"},
	}
}

func (p *GatewayProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s health check returned status %d", p.name, resp.StatusCode)
	}
	return nil
}
