package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/driftlock/symbiont/internal/config"
)

func testClient(url string) *Client {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.BaseURL = url
	cfg.Provider.Model = "test-model"
	return NewClient(cfg)
}

func TestChatCompletion(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"response": "hello"}`}},
			},
		})
	}))
	defer server.Close()

	client := testClient(server.URL)
	out, err := client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("ChatCompletion failed: %v", err)
	}
	if out != `{"response": "hello"}` {
		t.Errorf("unexpected content: %s", out)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header: %s", gotAuth)
	}
	if gotBody["model"] != "test-model" {
		t.Errorf("unexpected model: %v", gotBody["model"])
	}
}

func TestChatCompletionHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testClient(server.URL)
	if _, err := client.ChatCompletion(context.Background(), nil); err == nil {
		t.Fatal("expected error on http 429")
	}
}

func TestChatCompletionEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	if _, err := client.ChatCompletion(context.Background(), nil); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestChatCompletionMissingKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = ""
	client := NewClient(cfg)
	if _, err := client.ChatCompletion(context.Background(), nil); err == nil {
		t.Fatal("expected error with no api key")
	}
}
