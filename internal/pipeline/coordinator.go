package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftlock/symbiont/internal/config"
	"github.com/driftlock/symbiont/internal/llm"
	"github.com/driftlock/symbiont/internal/store"
)

// Coordinator drives one session's turns through the pipeline stages. It
// owns the session's mutable state — the trailing history and the last
// retrieved context — so nothing ambient is shared between sessions.
type Coordinator struct {
	cfg       *config.Config
	backend   llm.Backend
	store     store.FactStore // nil when memory is disabled
	persister *Persister

	sessionID  string
	sessionGap time.Duration
	now        func() time.Time

	mu          sync.Mutex
	history     History
	lastContext string
}

func NewCoordinator(cfg *config.Config, backend llm.Backend, st store.FactStore) *Coordinator {
	gap := 6 * time.Hour
	if d, err := time.ParseDuration(cfg.Session.Gap); err == nil && d > 0 {
		gap = d
	}

	c := &Coordinator{
		cfg:        cfg,
		backend:    backend,
		store:      st,
		sessionID:  uuid.NewString()[:8],
		sessionGap: gap,
		now:        time.Now,
	}
	c.persister = NewPersister(backend, st, c.snapshotContext)
	return c
}

// Close drains the background persister. Queued facts are stored before
// Close returns.
func (c *Coordinator) Close() {
	c.persister.Close()
}

func (c *Coordinator) snapshotContext() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastContext
}

func (c *Coordinator) appendTurn(role, content string, ts time.Time) History {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Turn{Role: role, Content: content, Timestamp: ts}).Trim(c.cfg.Session.MaxTurns)
	return append(History(nil), c.history...)
}

// logChat appends a turn to the store's chat log without blocking the
// pipeline; failures are logged and swallowed.
func (c *Coordinator) logChat(role, content string) {
	if c.store == nil {
		return
	}
	go func() {
		if err := c.store.LogChat(context.Background(), role, content); err != nil {
			log.Printf("[pipeline] %s: log chat warning: %v", c.sessionID, err)
		}
	}()
}

// RunTurn processes one user utterance and returns exactly one result.
// Extraction, timekeeping, retrieval and dedup all degrade gracefully; only
// the generator exhausting its retries fails the turn.
func (c *Coordinator) RunTurn(ctx context.Context, utterance string, questionMode bool) (*PipelineResult, error) {
	now := c.now()
	hist := c.appendTurn(RoleUser, utterance, now)
	c.logChat(RoleUser, utterance)

	analysis := c.extract(ctx, utterance, hist, now)

	kept, intercepted := c.gate(ctx, utterance, analysis.Entries, now)
	if intercepted != nil {
		// Hard short-circuit: the clarifying question replaces the reply
		// and the rest of the pipeline is skipped for this turn.
		c.appendTurn(RoleAssistant, intercepted.Reply, c.now())
		return intercepted, nil
	}

	keys := buildSearchKeys(analysis.SearchKeywords, hist, utterance)
	retrieved := c.retrieve(ctx, keys)

	c.mu.Lock()
	c.lastContext = retrieved
	c.mu.Unlock()

	result, err := c.generate(ctx, utterance, hist, retrieved, questionMode)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	if questionMode {
		result.Mood = MoodQuestion
	}

	c.appendTurn(RoleAssistant, result.Reply, c.now())
	c.logChat(RoleAssistant, result.Reply)
	c.persister.Enqueue(kept)

	return result, nil
}
