package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPStoreRecentChat(t *testing.T) {
	var gotReq storeRequest
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"history": [
			["2024-06-10T11:00:00Z", "user", "hi"],
			["2024-06-10T11:00:05Z", "assistant", "hello"],
			["broken row"]
		]}`))
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL)
	rows, err := s.RecentChat(context.Background())
	if err != nil {
		t.Fatalf("RecentChat failed: %v", err)
	}
	if gotReq.Action != "get_recent_chat" {
		t.Errorf("unexpected action: %q", gotReq.Action)
	}
	if gotContentType != "text/plain" {
		t.Errorf("unexpected content type: %q", gotContentType)
	}
	if len(rows) != 2 {
		t.Fatalf("short rows must be skipped, got %d rows", len(rows))
	}
	if rows[0].Role != "user" || rows[0].Content != "hi" {
		t.Errorf("unexpected row: %#v", rows[0])
	}
	want := time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)
	if !rows[0].Timestamp.Equal(want) {
		t.Errorf("unexpected timestamp: %v", rows[0].Timestamp)
	}
}

func TestHTTPStoreLogChat(t *testing.T) {
	var gotReq storeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL)
	if err := s.LogChat(context.Background(), "user", "I like sushi"); err != nil {
		t.Fatalf("LogChat failed: %v", err)
	}
	if gotReq.Action != "log_chat" || gotReq.Role != "user" || gotReq.Content != "I like sushi" {
		t.Errorf("unexpected request: %#v", gotReq)
	}
}

func TestHTTPStoreRetrieve(t *testing.T) {
	var gotReq storeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"found": true, "relevant_memories": ["Arvin likes sushi"]}`))
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL)
	res, err := s.Retrieve(context.Background(), []string{"Sushi", "Food"})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if gotReq.Action != "retrieve" || len(gotReq.Keywords) != 2 {
		t.Errorf("unexpected request: %#v", gotReq)
	}
	if !res.Found || len(res.Memories) != 1 {
		t.Errorf("unexpected result: %#v", res)
	}
}

func TestHTTPStoreStoreAtomic(t *testing.T) {
	var gotReq storeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL)
	fact := Fact{Fact: "Arvin went to the zoo on 2024-06-09", Entities: "Arvin, Zoo", Topics: "History", Importance: 7}
	if err := s.StoreAtomic(context.Background(), fact); err != nil {
		t.Fatalf("StoreAtomic failed: %v", err)
	}
	if gotReq.Action != "store_atomic" || gotReq.Fact != fact.Fact || gotReq.Importance != 7 {
		t.Errorf("unexpected request: %#v", gotReq)
	}
}

func TestHTTPStoreServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "script error", http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL)
	if err := s.LogChat(context.Background(), "user", "hi"); err == nil {
		t.Fatal("expected error on http 500")
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []string{
		"2024-06-10T11:00:00Z",
		"2024-06-10T11:00:00.000Z",
		"2024-06-10 11:00:00",
		"2024-06-10",
	}
	for _, raw := range cases {
		if parseTimestamp(raw).IsZero() {
			t.Errorf("expected %q to parse", raw)
		}
	}
	if !parseTimestamp("не дата").IsZero() {
		t.Error("garbage must parse to zero time")
	}
}
