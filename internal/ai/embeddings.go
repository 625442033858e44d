package ai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mriia-ai/tutor/internal/platform/cache"
)

const (
	embedRetryBackoff = 500 * time.Millisecond
	embedCacheTTL     = 24 * time.Hour
)

// EmbeddingClient calls the gateway's embeddings endpoint. A failed call is
// retried once after a short backoff before the error is surfaced.
type EmbeddingClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// EmbeddingOption configures an EmbeddingClient.
type EmbeddingOption func(*EmbeddingClient)

// WithEmbeddingHTTPClient sets a custom HTTP client.
func WithEmbeddingHTTPClient(client *http.Client) EmbeddingOption {
	return func(c *EmbeddingClient) {
		c.client = client
	}
}

// NewEmbeddingClient creates an embeddings client for the gateway.
func NewEmbeddingClient(apiKey, baseURL, model string, opts ...EmbeddingOption) *EmbeddingClient {
	c := &EmbeddingClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the vector for text, retrying once on failure.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embedOnce(ctx, text)
	if err == nil {
		return vec, nil
	}

	slog.Warn("embedding request failed, retrying", "error", err)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(embedRetryBackoff):
	}

	vec, retryErr := c.embedOnce(ctx, text)
	if retryErr != nil {
		return nil, fmt.Errorf("embedding failed after retry: %w", retryErr)
	}
	return vec, nil
}

func (c *EmbeddingClient) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Model: c.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(embResp.Data) == 0 || len(embResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}

	return embResp.Data[0].Embedding, nil
}

// CachedEmbedder wraps an Embedder with a Redis-backed vector cache keyed by
// a hash of the model and input text. Cache failures fall through to the
// inner embedder.
type CachedEmbedder struct {
	inner Embedder
	cache *cache.Cache
	model string
}

// NewCachedEmbedder wraps inner with the given cache.
func NewCachedEmbedder(inner Embedder, c *cache.Cache, model string) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: c, model: model}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embedCacheKey(e.model, text)

	var vec []float32
	err := e.cache.GetJSON(ctx, key, &vec)
	if err == nil && len(vec) > 0 {
		return vec, nil
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		slog.Warn("embedding cache read failed", "error", err)
	}

	vec, err = e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetJSON(ctx, key, vec, embedCacheTTL); err != nil {
		slog.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

func embedCacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}
