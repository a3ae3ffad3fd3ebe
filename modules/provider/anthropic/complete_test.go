package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/provider"
)

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_123",
			"type": "message",
			"role": "assistant",
			"content": [{"type": "text", "text": "Hello!"}],
			"model": "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	a := newTestProvider(srv.URL)

	resp, err := a.Complete(context.Background(), provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("expected content 'Hello!', got %q", resp.Content)
	}
	if resp.FinishReason != provider.FinishReasonStop {
		t.Errorf("expected finish reason 'stop', got %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected total tokens 15, got %d", resp.Usage.TotalTokens)
	}
}

func TestComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		sentinel  error
		transient bool
	}{
		{"rate limit", http.StatusTooManyRequests, `{"type":"error","error":{"type":"rate_limit_error","message":"rate limited"}}`, provider.ErrRateLimit, true},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`, provider.ErrProviderDown, true},
		{"unavailable", http.StatusServiceUnavailable, `{"type":"error","error":{"type":"api_error","message":"try later"}}`, provider.ErrProviderDown, true},
		{"context length", http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"prompt is too long: 210000 tokens"}}`, provider.ErrContextLength, false},
		{"bad request", http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: must be positive"}}`, nil, false},
		{"auth", http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, memory.ErrConfiguration, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestProvider(srv.URL).Complete(context.Background(), provider.CompletionRequest{
				Messages: []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "summarize"}},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("err = %v, want %v", err, tt.sentinel)
			}
			if got := memory.IsTransient(err); got != tt.transient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, got, tt.transient)
			}
			if got := provider.IsRetryable(err); got != tt.transient {
				t.Errorf("IsRetryable(%v) = %v, want %v", err, got, tt.transient)
			}
		})
	}
}

func TestComplete_CanceledContextPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestProvider(srv.URL).Complete(ctx, provider.CompletionRequest{
		Messages: []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "summarize"}},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if memory.IsTransient(err) {
		t.Error("cancellation must not be reported as a dependency failure")
	}
}

func TestComplete_SendsSystemAndTemperature(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_456",
			"type": "message",
			"role": "assistant",
			"content": [
				{"type": "text", "text": "{\"skills\": [\"Go\"]}"}
			],
			"model": "claude-3-5-haiku-latest",
			"stop_reason": "max_tokens",
			"stop_sequence": null,
			"usage": {"input_tokens": 20, "output_tokens": 15}
		}`))
	}))
	defer srv.Close()

	a := newTestProvider(srv.URL)
	temp := 0.0
	resp, err := a.Complete(context.Background(), provider.CompletionRequest{
		System:      "Extract entities as JSON.",
		Messages:    []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "I write Go."}},
		MaxTokens:   300,
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"skills": ["Go"]}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.FinishReason != provider.FinishReasonLength {
		t.Errorf("finish reason = %q, want length", resp.FinishReason)
	}

	if body["max_tokens"] != float64(300) || body["temperature"] != float64(0) {
		t.Errorf("request = %v", body)
	}
	system, _ := body["system"].([]any)
	if len(system) != 1 {
		t.Fatalf("system = %v", body["system"])
	}
	if block, _ := system[0].(map[string]any); block["text"] != "Extract entities as JSON." {
		t.Errorf("system block = %v", block)
	}
}

// newTestProvider creates an Anthropic provider pointed at the given httptest server URL.
func newTestProvider(baseURL string) *Anthropic {
	client := sdkanthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	return &Anthropic{
		config: Config{
			Model:     "claude-3-5-haiku-latest",
			MaxTokens: 512,
		},
		client: &client,
	}
}
