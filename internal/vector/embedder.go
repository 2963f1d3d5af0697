package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Embedder talks to an OpenAI-compatible embedding endpoint serving
// nomic-embed-text. Documents and queries use different task prefixes.
type Embedder struct {
	baseURL    string
	httpClient *http.Client
}

func NewEmbedder(baseURL string) *Embedder {
	if baseURL == "" {
		baseURL = "http://localhost:7997/v1"
	}
	return &Embedder{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

type EmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
	Task  string   `json:"task"`
}

type EmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *Embedder) ComputeBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	task := "search_document"
	if isQuery {
		task = "search_query"
	}

	reqBody, _ := json.Marshal(EmbedRequest{
		Input: texts,
		Model: "nomic-ai/nomic-embed-text-v1.5",
		Task:  task,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[Embedder] error status %d", resp.StatusCode)
	}

	var result EmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(result.Data))
	}

	vectors := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (e *Embedder) ComputeEmbeddings(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	vectors, err := e.ComputeBatch(ctx, []string{text}, isQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
