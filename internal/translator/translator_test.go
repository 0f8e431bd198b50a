package translator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"plain", "  SELECT * FROM data  \n", "SELECT * FROM data"},
		{"sql fence", "Here you go:\n```sql\nSELECT a FROM data\n```\nDone.", "SELECT a FROM data"},
		{"upper fence tag", "```SQL\nSELECT 1\n```", "SELECT 1"},
		{"bare fence", "```\nSELECT a\nFROM data\n```", "SELECT a\nFROM data"},
		{"other tag", "```sqlite3\nSELECT 1\n```", "SELECT 1"},
		{"unterminated", "```sql\nSELECT 1", "SELECT 1"},
		{"no sql", "I cannot answer that.", "I cannot answer that."},
		{"first of two", "```sql\nSELECT 1\n```\n```sql\nSELECT 2\n```", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSQL(tt.response); got != tt.want {
				t.Errorf("ExtractSQL(%q) = %q, want %q", tt.response, got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt(PromptData{
		TableName: "data",
		Schema:    "- passenger_class (INTEGER) [from \"Passenger Class\"]\n",
		Question:  "How many passengers per class?",
	})
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	for _, want := range []string{
		"valid SQLite SQL queries",
		"Table name: data",
		"- passenger_class (INTEGER) [from \"Passenger Class\"]\n\nUSER QUESTION:",
		"How many passengers per class?",
		"SQL QUERY:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt lacks %q:\n%s", want, prompt)
		}
	}

	duck, _ := BuildPrompt(PromptData{Engine: "DuckDB", TableName: "data"})
	if !strings.Contains(duck, "valid DuckDB syntax") {
		t.Errorf("engine not used in prompt:\n%s", duck)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"openai default", Config{APIKey: "k", Model: "m"}, false},
		{"openai missing key", Config{Provider: ProviderOpenAI, Model: "m"}, true},
		{"ollama", Config{Provider: ProviderOllama, Model: "llama3"}, false},
		{"ollama missing model", Config{Provider: ProviderOllama}, true},
		{"anthropic", Config{Provider: ProviderAnthropic, APIKey: "k"}, false},
		{"anthropic missing key", Config{Provider: ProviderAnthropic}, true},
		{"unknown", Config{Provider: "bard", APIKey: "k"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && tr != nil {
				t.Errorf("New() returned non-nil translator with error")
			}
		})
	}

	_, err := New(Config{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("New() error = %v, want ErrMissingAPIKey", err)
	}
}

func chatHandler(t *testing.T, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "Table name: data") {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}
}

func testOpenAIConfig(url string) Config {
	return Config{
		APIKey:         "test-key",
		Model:          "test-model",
		BaseURL:        url,
		RetryMax:       3,
		RetryBaseDelay: time.Millisecond,
	}
}

func TestOpenAITranslate(t *testing.T) {
	srv := httptest.NewServer(chatHandler(t, "```sql\nSELECT passenger_class FROM data\n```"))
	defer srv.Close()

	tr, err := New(testOpenAIConfig(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sql, err := tr.Translate(context.Background(), "classes?", "data", "- passenger_class (INTEGER)")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if sql != "SELECT passenger_class FROM data" {
		t.Errorf("Translate() = %q", sql)
	}
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls int32
	ok := chatHandler(t, "SELECT 1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		ok(w, r)
	}))
	defer srv.Close()

	tr, _ := New(testOpenAIConfig(srv.URL))
	sql, err := tr.Translate(context.Background(), "q", "data", "")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if sql != "SELECT 1" || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Translate() = %q after %d calls", sql, calls)
	}
}

func TestOpenAIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
		calls  int32
	}{
		{
			name:   "auth",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"invalid api key"}}`,
			check:  func(err error) bool { var e *AuthError; return errors.As(err, &e) },
			calls:  1,
		},
		{
			name:   "model not found",
			status: http.StatusNotFound,
			body:   `{"error":{"message":"model x not found","code":"model_not_found"}}`,
			check:  func(err error) bool { var e *ModelNotFoundError; return errors.As(err, &e) },
			calls:  1,
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"bad"}}`,
			check:  func(err error) bool { var e *BadRequestError; return errors.As(err, &e) },
			calls:  1,
		},
		{
			name:   "rate limited until exhausted",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"slow down"}}`,
			check:  func(err error) bool { var e *RateLimitError; return errors.As(err, &e) },
			calls:  3,
		},
		{
			name:   "server error until exhausted",
			status: http.StatusBadGateway,
			body:   `{}`,
			check:  func(err error) bool { var e *ServerError; return errors.As(err, &e) },
			calls:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tr, _ := New(testOpenAIConfig(srv.URL))
			_, err := tr.Translate(context.Background(), "q", "data", "")
			if err == nil || !tt.check(err) {
				t.Fatalf("Translate() error = %v (%T)", err, err)
			}
			if got := atomic.LoadInt32(&calls); got != tt.calls {
				t.Errorf("calls = %d, want %d", got, tt.calls)
			}
		})
	}
}

func TestOllamaTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req ollamaChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if req.Model == "missing" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"model 'missing' not found"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "SELECT COUNT(*) FROM data"},
			"done":    true,
		})
	}))
	defer srv.Close()

	tr, err := New(Config{Provider: ProviderOllama, Model: "llama3", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sql, err := tr.Translate(context.Background(), "how many?", "data", "- a (TEXT)")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if sql != "SELECT COUNT(*) FROM data" {
		t.Errorf("Translate() = %q", sql)
	}

	missing, _ := New(Config{Provider: ProviderOllama, Model: "missing", BaseURL: srv.URL})
	_, err = missing.Translate(context.Background(), "q", "data", "")
	var notFound *ModelNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("Translate() error = %v, want *ModelNotFoundError", err)
	}
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr, _ := New(Config{Provider: ProviderOllama, Model: "llama3", BaseURL: url, RetryMax: 1})
	_, err := tr.Translate(context.Background(), "q", "data", "")
	var unreachable *UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("Translate() error = %v, want *UnreachableError", err)
	}
	if unreachable.Host != url {
		t.Errorf("Host = %q, want %q", unreachable.Host, url)
	}
}

func TestAnthropicTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("X-Api-Key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5",
			"content": [{"type": "text", "text": "` + "```sql\\nSELECT age FROM data\\n```" + `"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	tr, err := New(Config{Provider: ProviderAnthropic, APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sql, err := tr.Translate(context.Background(), "ages?", "data", "- age (INTEGER)")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if sql != "SELECT age FROM data" {
		t.Errorf("Translate() = %q", sql)
	}
}
