package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// ChromaClient talks to a Chroma server over its HTTP API and implements
// both TopicIndex and PageIndex. Collection names are resolved to ids once
// and cached for the lifetime of the client.
type ChromaClient struct {
	baseURL          string
	topicsCollection string
	pagesCollection  string
	client           *http.Client

	mu            sync.Mutex
	collectionIDs map[string]string
}

// ChromaOption configures a ChromaClient.
type ChromaOption func(*ChromaClient)

// WithChromaHTTPClient sets a custom HTTP client.
func WithChromaHTTPClient(client *http.Client) ChromaOption {
	return func(c *ChromaClient) {
		c.client = client
	}
}

// NewChromaClient creates a client for the given Chroma server and
// collection names.
func NewChromaClient(baseURL, topicsCollection, pagesCollection string, opts ...ChromaOption) *ChromaClient {
	c := &ChromaClient{
		baseURL:          baseURL,
		topicsCollection: topicsCollection,
		pagesCollection:  pagesCollection,
		client:           http.DefaultClient,
		collectionIDs:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// queryRequest is the body for the collection query endpoint.
type queryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include"`
}

// queryResponse is the collection query result. Outer slices are per query
// embedding; we always send exactly one.
type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *ChromaClient) SearchTopics(ctx context.Context, vector []float32, filter TopicFilter, topK int) ([]TopicRecord, error) {
	where := buildWhere(
		eqCond("grade", filter.Grade),
		eqCond("global_discipline_id", filter.DisciplineID),
	)

	resp, err := c.query(ctx, c.topicsCollection, vector, where, topK)
	if err != nil {
		return nil, fmt.Errorf("topic search: %w", err)
	}

	records := make([]TopicRecord, 0, len(resp.ids))
	for i, id := range resp.ids {
		meta := resp.metadatas[i]
		records = append(records, TopicRecord{
			ID:           id,
			Title:        metaStr(meta, "topic_title"),
			Document:     resp.documents[i],
			BookID:       metaStr(meta, "book_id"),
			BookName:     metaStr(meta, "book_name"),
			BookTopicID:  metaStr(meta, "book_topic_id"),
			Grade:        metaInt(meta, "grade"),
			Subject:      metaStr(meta, "subject"),
			DisciplineID: metaInt(meta, "global_discipline_id"),
			StartPage:    metaInt(meta, "start_page"),
			EndPage:      metaInt(meta, "end_page"),
			Similarity:   1 - resp.distances[i],
		})
	}
	return records, nil
}

func (c *ChromaClient) SearchPages(ctx context.Context, vector []float32, filter PageFilter, topK int) ([]PageRecord, error) {
	conds := []map[string]any{
		eqCond("book_topic_id", filter.BookTopicID),
		eqCond("grade", filter.Grade),
		eqCond("global_discipline_id", filter.DisciplineID),
	}
	if filter.StartPage > 0 && filter.EndPage > 0 {
		conds = append(conds,
			map[string]any{"page_number": map[string]any{"$gte": filter.StartPage}},
			map[string]any{"page_number": map[string]any{"$lte": filter.EndPage}},
		)
	}
	where := buildWhere(conds...)

	resp, err := c.query(ctx, c.pagesCollection, vector, where, topK)
	if err != nil {
		return nil, fmt.Errorf("page search: %w", err)
	}

	records := make([]PageRecord, 0, len(resp.ids))
	for i, id := range resp.ids {
		meta := resp.metadatas[i]
		records = append(records, PageRecord{
			ID:         id,
			Text:       resp.documents[i],
			Page:       metaInt(meta, "page_number"),
			BookID:     metaStr(meta, "book_id"),
			BookName:   metaStr(meta, "book_name"),
			Grade:      metaInt(meta, "grade"),
			Similarity: 1 - resp.distances[i],
		})
	}
	return records, nil
}

// HealthCheck verifies the Chroma server is reachable.
func (c *ChromaClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// flatResult is a query response flattened to the single query embedding.
type flatResult struct {
	ids       []string
	documents []string
	metadatas []map[string]any
	distances []float64
}

func (c *ChromaClient) query(ctx context.Context, collection string, vector []float32, where map[string]any, topK int) (flatResult, error) {
	collID, err := c.collectionID(ctx, collection)
	if err != nil {
		return flatResult{}, err
	}

	body, err := json.Marshal(queryRequest{
		QueryEmbeddings: [][]float32{vector},
		NResults:        topK,
		Where:           where,
		Include:         []string{"documents", "metadatas", "distances"},
	})
	if err != nil {
		return flatResult{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/collections/%s/query", c.baseURL, collID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return flatResult{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return flatResult{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return flatResult{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return flatResult{}, fmt.Errorf("chroma api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var qr queryResponse
	if err := json.Unmarshal(respBody, &qr); err != nil {
		return flatResult{}, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(qr.IDs) == 0 {
		return flatResult{}, nil
	}

	flat := flatResult{ids: qr.IDs[0]}
	if len(qr.Documents) > 0 {
		flat.documents = qr.Documents[0]
	}
	if len(qr.Metadatas) > 0 {
		flat.metadatas = qr.Metadatas[0]
	}
	if len(qr.Distances) > 0 {
		flat.distances = qr.Distances[0]
	}

	// Pad so indexed access stays in bounds when the server omits a field.
	for len(flat.documents) < len(flat.ids) {
		flat.documents = append(flat.documents, "")
	}
	for len(flat.metadatas) < len(flat.ids) {
		flat.metadatas = append(flat.metadatas, map[string]any{})
	}
	for len(flat.distances) < len(flat.ids) {
		flat.distances = append(flat.distances, 0)
	}
	return flat, nil
}

func (c *ChromaClient) collectionID(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if id, ok := c.collectionIDs[name]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	endpoint := fmt.Sprintf("%s/api/v1/collections/%s", c.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve collection %q: %w", name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("collection %q lookup (status %d): %s", name, resp.StatusCode, string(respBody))
	}

	var info collectionInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return "", fmt.Errorf("unmarshal collection info: %w", err)
	}
	if info.ID == "" {
		return "", fmt.Errorf("collection %q has no id", name)
	}

	c.mu.Lock()
	c.collectionIDs[name] = info.ID
	c.mu.Unlock()
	return info.ID, nil
}

// eqCond returns an equality condition, or nil when the value is zero.
func eqCond(key string, value any) map[string]any {
	switch v := value.(type) {
	case int:
		if v == 0 {
			return nil
		}
	case string:
		if v == "" {
			return nil
		}
	}
	return map[string]any{key: value}
}

// buildWhere combines conditions into a Chroma where clause. One condition
// is used as-is, several are joined with $and, none yields nil.
func buildWhere(conds ...map[string]any) map[string]any {
	nonNil := make([]map[string]any, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			nonNil = append(nonNil, c)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		anyConds := make([]any, len(nonNil))
		for i, c := range nonNil {
			anyConds[i] = c
		}
		return map[string]any{"$and": anyConds}
	}
}

func metaStr(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}
