// Package memory – embeddings_gemini.go implements the Gemini embedding
// provider. All calls go through the batchEmbedContents endpoint; documents
// and queries are embedded with their respective retrieval task types.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-embedding-001"
	defaultGeminiDims    = 768

	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

// GeminiEmbedder generates embeddings using the Google Gemini API.
type GeminiEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	client     *http.Client
}

// NewGeminiEmbedder creates a Gemini embedding provider.
func NewGeminiEmbedder(cfg EmbeddingConfig) *GeminiEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = defaultGeminiDims
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiEmbedder{
		apiKey:     resolveAPIKey(cfg.APIKey, "GOOGLE_API_KEY"),
		model:      model,
		dimensions: dims,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     newEmbedHTTPClient(),
	}
}

type geminiEmbedItem struct {
	Model                string      `json:"model"`
	Content              geminiParts `json:"content"`
	TaskType             string      `json:"taskType"`
	OutputDimensionality int         `json:"outputDimensionality,omitempty"`
}

type geminiParts struct {
	Parts []geminiText `json:"parts"`
}

type geminiText struct {
	Text string `json:"text"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedItem `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Embed generates document embeddings for a batch of texts.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, taskDocument)
}

// EmbedQuery generates a single query embedding. Queries use a different
// task type than documents so both sides of the cosine comparison are
// optimized for retrieval.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, taskQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	items := make([]geminiEmbedItem, len(texts))
	for i, text := range texts {
		items[i] = geminiEmbedItem{
			Model:                "models/" + e.model,
			Content:              geminiParts{Parts: []geminiText{{Text: text}}},
			TaskType:             taskType,
			OutputDimensionality: e.dimensions,
		}
	}

	payload, err := json.Marshal(geminiBatchRequest{Requests: items})
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", e.baseURL, e.model, e.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gemini: create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed API call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini: read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: embed API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result geminiBatchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("gemini: unmarshal embed response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("gemini: embed API error: %s", result.Error.Message)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	vecs := make([][]float32, len(texts))
	for i := range result.Embeddings {
		vecs[i] = result.Embeddings[i].Values
	}
	return vecs, nil
}

// Dimensions returns the output vector dimensionality.
func (e *GeminiEmbedder) Dimensions() int { return e.dimensions }

// Name returns the provider name.
func (e *GeminiEmbedder) Name() string { return "gemini" }
