// Package llm implements the completion client for the Gemini REST API.
// Supports single-turn and multi-turn text completions plus structured
// (schema-constrained JSON) extraction via generateContent.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel     = "gemini-2.5-flash"
	defaultChatModel = "gemini-2.5-pro"
)

// Config holds completion client configuration.
type Config struct {
	// APIKey is the Gemini API key.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the Gemini API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the default model for classification, answers, and digests.
	Model string `yaml:"model"`

	// ChatModel is the richer model used for open-ended generic replies.
	ChatModel string `yaml:"chat_model"`
}

// Turn is a single entry in a multi-turn conversation history.
type Turn struct {
	// Role is "user" or "model".
	Role string `json:"role"`

	// Text is the turn content.
	Text string `json:"text"`
}

// Request describes a completion call. Prompt is used for single-turn calls;
// when History is set, Prompt is appended as the final user turn.
type Request struct {
	// Model overrides the client default when non-empty.
	Model string

	// System is the system instruction, optional.
	System string

	// Prompt is the user input.
	Prompt string

	// History is the prior conversation, optional.
	History []Turn
}

// Client handles communication with the Gemini generateContent API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	chatModel  string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a completion client from config.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = defaultChatModel
	}

	return &Client{
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     model,
		chatModel: chatModel,
		// No global timeout: a hung completion stalls only its own handler,
		// and callers control cancellation via context.
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     120 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger.With("component", "llm"),
	}
}

// Model returns the default model name.
func (c *Client) Model() string { return c.model }

// ChatModel returns the model used for open-ended generic replies.
func (c *Client) ChatModel() string { return c.chatModel }

// ---------- Wire types ----------

type generateRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ---------- API ----------

// Complete issues a completion call and returns the generated text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	body := c.buildRequest(req, nil)
	return c.generate(ctx, c.resolveModel(req), body)
}

// CompleteStructured issues a schema-constrained completion and returns the
// raw JSON produced by the model. The caller unmarshals into its own type.
func (c *Client) CompleteStructured(ctx context.Context, req Request, schema *Schema) (json.RawMessage, error) {
	body := c.buildRequest(req, &generationConfig{
		ResponseMimeType: "application/json",
		ResponseSchema:   schema,
	})

	text, err := c.generate(ctx, c.resolveModel(req), body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(text), nil
}

func (c *Client) resolveModel(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

func (c *Client) buildRequest(req Request, genCfg *generationConfig) generateRequest {
	body := generateRequest{GenerationConfig: genCfg}

	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	for _, turn := range req.History {
		role := turn.Role
		if role != "model" {
			role = "user"
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: turn.Text}},
		})
	}

	body.Contents = append(body.Contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: req.Prompt}},
	})

	return body
}

// generate performs the generateContent HTTP call for the given model.
func (c *Client) generate(ctx context.Context, model string, body generateRequest) (string, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: API call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: API error (status %d): %s", resp.StatusCode, truncateBody(respBody))
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("llm: unmarshal response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("llm: API error: %s", result.Error.Message)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("llm: empty completion response")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func truncateBody(b []byte) string {
	const maxLen = 512
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
