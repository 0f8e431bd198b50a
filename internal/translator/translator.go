// Package translator turns natural-language questions into SQL using an
// LLM: any OpenAI-compatible endpoint, a local Ollama runtime or Anthropic.
package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// ErrMissingAPIKey is returned when a hosted provider has no key configured.
var ErrMissingAPIKey = errors.New("API key is missing")

// Translator converts a question about one relation into a SQL statement.
type Translator interface {
	Translate(ctx context.Context, question, relationName, schema string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Engine      string // SQL dialect named in the prompt
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	RetryMax    int
	// RetryBaseDelay is the first backoff interval; it doubles per retry.
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	return c
}

// New returns the backend named by cfg.Provider (openai when empty).
func New(cfg Config) (Translator, error) {
	var (
		t   Translator
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		t, err = asTranslator(NewOpenAIClient(cfg))
	case ProviderOllama:
		t, err = asTranslator(NewOllamaClient(cfg))
	case ProviderAnthropic:
		t, err = asTranslator(NewAnthropicClient(cfg))
	default:
		err = fmt.Errorf("unsupported provider: %s (use 'openai', 'ollama' or 'anthropic')", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// asTranslator keeps a failed constructor from yielding a non-nil interface
// around a nil pointer.
func asTranslator[T Translator](t T, err error) (Translator, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}
