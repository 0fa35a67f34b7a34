package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/driftlock/symbiont/internal/config"
	"github.com/driftlock/symbiont/internal/llm"
	"github.com/driftlock/symbiont/internal/store"
)

// stageBackend routes completion calls to per-stage canned replies by
// matching distinctive fragments of each stage's prompt. Stages without a
// reply configured fail the call, which exercises the degrade paths.
type stageBackend struct {
	mu sync.Mutex

	analysisReply   string
	timekeeperReply string
	interceptReply  string
	generationReply string
	dedupReply      string

	analysisCalls   int
	timekeeperCalls int
	interceptCalls  int
	generationCalls int
	dedupCalls      int
}

func (b *stageBackend) ChatCompletion(ctx context.Context, messages []llm.Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prompt := ""
	for _, m := range messages {
		prompt += m.Content
	}

	switch {
	case strings.Contains(prompt, "MEMORY ENTRIES (ADAPTIVE SPLITTING)"):
		b.analysisCalls++
		return b.reply(b.analysisReply, "analysis")
	case strings.Contains(prompt, "Determine if this is a specific past event"):
		b.timekeeperCalls++
		return b.reply(b.timekeeperReply, "timekeeper")
	case strings.Contains(prompt, "didn't say WHEN"):
		b.interceptCalls++
		return b.reply(b.interceptReply, "interceptor")
	case strings.Contains(prompt, "CONSTRUCT a Knowledge Graph"):
		b.generationCalls++
		return b.reply(b.generationReply, "generation")
	case strings.Contains(prompt, "NEW CANDIDATE FACT"):
		b.dedupCalls++
		return b.reply(b.dedupReply, "deduplication")
	}
	return "", fmt.Errorf("unrecognized prompt: %.80s", prompt)
}

func (b *stageBackend) reply(canned, stage string) (string, error) {
	if canned == "" {
		return "", fmt.Errorf("no %s reply configured", stage)
	}
	return canned, nil
}

func (b *stageBackend) counts() (analysis, timekeeper, intercept, generation, dedup int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.analysisCalls, b.timekeeperCalls, b.interceptCalls, b.generationCalls, b.dedupCalls
}

// recordingBackend answers every call with one canned reply and remembers
// the last prompt it saw.
type recordingBackend struct {
	mu      sync.Mutex
	reply   string
	prompts []string
}

func (b *recordingBackend) ChatCompletion(ctx context.Context, messages []llm.Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prompt := ""
	for _, m := range messages {
		prompt += m.Content
	}
	b.prompts = append(b.prompts, prompt)
	return b.reply, nil
}

func (b *recordingBackend) lastPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.prompts) == 0 {
		return ""
	}
	return b.prompts[len(b.prompts)-1]
}

// memStore is an in-memory FactStore recording every call.
type memStore struct {
	mu sync.Mutex

	chat        []store.ChatRow
	facts       []store.Fact
	retrieveRes *store.RetrieveResult
	retrieveErr error

	retrieveCalls int
	retrieveKeys  [][]string
}

func (s *memStore) RecentChat(ctx context.Context) ([]store.ChatRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.ChatRow(nil), s.chat...), nil
}

func (s *memStore) LogChat(ctx context.Context, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append(s.chat, store.ChatRow{Timestamp: time.Now(), Role: role, Content: content})
	return nil
}

func (s *memStore) Retrieve(ctx context.Context, keywords []string) (*store.RetrieveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrieveCalls++
	s.retrieveKeys = append(s.retrieveKeys, append([]string(nil), keywords...))
	if s.retrieveErr != nil {
		return nil, s.retrieveErr
	}
	if s.retrieveRes != nil {
		return s.retrieveRes, nil
	}
	return &store.RetrieveResult{}, nil
}

func (s *memStore) StoreAtomic(ctx context.Context, fact store.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, fact)
	return nil
}

func (s *memStore) storedFacts() []store.Fact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Fact(nil), s.facts...)
}

func (s *memStore) retrieves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retrieveCalls
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	return cfg
}

func newTestCoordinator(backend llm.Backend, st store.FactStore) *Coordinator {
	c := NewCoordinator(testConfig(), backend, st)
	c.now = func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC) }
	return c
}

const emptyAnalysisReply = `{"search_keywords": [], "entries": []}`

func cannedGeneration(response, mood string) string {
	return fmt.Sprintf(`{"response": %q, "mood": %q, "roots": []}`, response, mood)
}
