package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-haiku-4-5"

// AnthropicClient translates with the Anthropic Messages API.
type AnthropicClient struct {
	client      anthropic.Client
	model       anthropic.Model
	temperature float64
	maxTokens   int64
	engine      string
}

// NewAnthropicClient builds a client from cfg. BaseURL overrides the API
// endpoint.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for provider %s", ErrMissingAPIKey, ProviderAnthropic)
	}
	cfg = cfg.withDefaults()

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.RetryMax - 1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicClient{
		client:      anthropic.NewClient(opts...),
		model:       anthropic.Model(model),
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxTokens),
		engine:      cfg.Engine,
	}, nil
}

// Translate implements Translator.
func (c *AnthropicClient) Translate(ctx context.Context, question, relationName, schema string) (string, error) {
	prompt, err := BuildPrompt(PromptData{Engine: c.engine, TableName: relationName, Schema: schema, Question: question})
	if err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(textBlock.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text response from model")
	}
	return ExtractSQL(b.String()), nil
}
