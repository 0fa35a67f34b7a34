// Package store talks to the durable fact store. The pipeline treats the
// store as a best-effort request/response service: every call is allowed to
// fail without taking a turn down with it.
package store

import (
	"context"
	"time"
)

// ChatRow is one logged turn returned by RecentChat.
type ChatRow struct {
	Timestamp time.Time
	Role      string
	Content   string
}

// Fact is one persisted memory entry.
type Fact struct {
	Fact       string
	Entities   string
	Topics     string
	Importance int
}

// RetrieveResult holds the relevant prior facts for a keyword query.
type RetrieveResult struct {
	Found    bool
	Memories []string
}

// FactStore is the durable memory backend. Implementations: the remote
// action-tagged HTTP endpoint and the embedded SQLite store.
type FactStore interface {
	RecentChat(ctx context.Context) ([]ChatRow, error)
	LogChat(ctx context.Context, role, content string) error
	Retrieve(ctx context.Context, keywords []string) (*RetrieveResult, error)
	StoreAtomic(ctx context.Context, fact Fact) error
}
