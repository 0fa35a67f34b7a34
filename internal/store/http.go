package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// timestampLayouts covers the formats remote deployments have been seen
// emitting for chat log rows.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// HTTPStore is the remote fact store client. The endpoint is a single URL
// accepting an action-tagged JSON request (get_recent_chat, log_chat,
// retrieve, store_atomic).
type HTTPStore struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPStore(endpoint string) *HTTPStore {
	return &HTTPStore{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type storeRequest struct {
	Action     string   `json:"action"`
	Role       string   `json:"role,omitempty"`
	Content    string   `json:"content,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Fact       string   `json:"fact,omitempty"`
	Entities   string   `json:"entities,omitempty"`
	Topics     string   `json:"topics,omitempty"`
	Importance int      `json:"importance,omitempty"`
}

func (s *HTTPStore) do(ctx context.Context, reqBody storeRequest, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", reqBody.Action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", reqBody.Action, err)
	}
	// Apps Script web apps cannot answer a CORS preflight; text/plain keeps
	// the request simple and matches what deployed endpoints expect.
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", reqBody.Action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", reqBody.Action, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s http %d: %s", reqBody.Action, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", reqBody.Action, err)
	}
	return nil
}

// RecentChat fetches the ordered chat log. Rows arrive as
// [timestamp, role, content] value arrays.
func (s *HTTPStore) RecentChat(ctx context.Context) ([]ChatRow, error) {
	var decoded struct {
		History [][]string `json:"history"`
	}
	if err := s.do(ctx, storeRequest{Action: "get_recent_chat"}, &decoded); err != nil {
		return nil, err
	}

	rows := make([]ChatRow, 0, len(decoded.History))
	for _, raw := range decoded.History {
		if len(raw) < 3 {
			continue
		}
		rows = append(rows, ChatRow{
			Timestamp: parseTimestamp(raw[0]),
			Role:      raw[1],
			Content:   raw[2],
		})
	}
	return rows, nil
}

func (s *HTTPStore) LogChat(ctx context.Context, role, content string) error {
	return s.do(ctx, storeRequest{Action: "log_chat", Role: role, Content: content}, nil)
}

func (s *HTTPStore) Retrieve(ctx context.Context, keywords []string) (*RetrieveResult, error) {
	var decoded struct {
		Found            bool     `json:"found"`
		RelevantMemories []string `json:"relevant_memories"`
	}
	if err := s.do(ctx, storeRequest{Action: "retrieve", Keywords: keywords}, &decoded); err != nil {
		return nil, err
	}
	return &RetrieveResult{Found: decoded.Found, Memories: decoded.RelevantMemories}, nil
}

func (s *HTTPStore) StoreAtomic(ctx context.Context, fact Fact) error {
	return s.do(ctx, storeRequest{
		Action:     "store_atomic",
		Fact:       fact.Fact,
		Entities:   fact.Entities,
		Topics:     fact.Topics,
		Importance: fact.Importance,
	}, nil)
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
