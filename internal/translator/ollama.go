package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaHost is the local Ollama endpoint.
const DefaultOllamaHost = "http://127.0.0.1:11434"

// OllamaClient is a minimal HTTP client for a local Ollama runtime.
type OllamaClient struct {
	httpClient  *http.Client
	host        string
	model       string
	temperature float64
	maxTokens   int
	engine      string
	retry       retryPolicy
}

// NewOllamaClient targets cfg.BaseURL, or DefaultOllamaHost when empty.
func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	cfg = cfg.withDefaults()
	host := cfg.BaseURL
	if host == "" {
		host = DefaultOllamaHost
	}
	return &OllamaClient{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		host:        strings.TrimRight(host, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		engine:      cfg.Engine,
		retry:       retryPolicy{maxAttempts: cfg.RetryMax, baseDelay: cfg.RetryBaseDelay, maxDelay: time.Second},
	}, nil
}

// Structures aligned with Ollama /api/chat (non-streaming)
type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Translate implements Translator.
func (c *OllamaClient) Translate(ctx context.Context, question, relationName, schema string) (string, error) {
	prompt, err := BuildPrompt(PromptData{Engine: c.engine, TableName: relationName, Schema: schema, Question: question})
	if err != nil {
		return "", err
	}
	text, err := c.Complete(ctx, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", err
	}
	return ExtractSQL(text), nil
}

// Complete sends a chat request and returns the reply. A host that cannot be
// reached yields *UnreachableError.
func (c *OllamaClient) Complete(ctx context.Context, messages []Message) (string, error) {
	oreq := ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Options:  map[string]any{},
	}
	if c.temperature > 0 {
		oreq.Options["temperature"] = c.temperature
	}
	if c.maxTokens > 0 {
		oreq.Options["num_predict"] = c.maxTokens
	}

	payload, err := json.Marshal(oreq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.host + "/api/chat"
	backoff := c.retry.baseDelay

	var lastErr error
	for attempt := 1; attempt <= c.retry.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) && attempt < c.retry.maxAttempts {
				if err := sleepCtx(ctx, withJitter(backoff)); err != nil {
					return "", err
				}
				backoff *= 2
				continue
			}
			return "", &UnreachableError{Host: c.host, Err: err}
		}

		text, retry, err := c.readResponse(resp)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retry || attempt == c.retry.maxAttempts {
			break
		}
		wait := withJitter(backoff)
		if wait > c.retry.maxDelay {
			wait = c.retry.maxDelay
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return "", err
		}
		backoff *= 2
	}
	return "", lastErr
}

func (c *OllamaClient) readResponse(resp *http.Response) (string, bool, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			// Ollama answers 404 for models that were never pulled
			return "", false, &ModelNotFoundError{APIError: apiErr}
		case resp.StatusCode >= 500:
			return "", true, &ServerError{APIError: apiErr}
		case resp.StatusCode == http.StatusBadRequest:
			return "", false, &BadRequestError{APIError: apiErr}
		}
		return "", false, apiErr
	}

	var oresp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	return oresp.Message.Content, false, nil
}
