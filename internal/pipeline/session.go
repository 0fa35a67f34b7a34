package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"
)

// gapNoteTmpl is the system note inserted when the user returns after a
// long absence, so generation treats the exchange as a fresh session while
// retaining stored memories.
const gapNoteTmpl = "[SYSTEM_NOTE: The user has returned after %d hours. Treat this as a new session context, but retain previous memories.]"

// RestoreSession rebuilds the working history from the fact store's chat
// log and inserts a time-gap note when applicable. Memory disabled or a
// store failure leaves the session empty rather than failing startup.
func (c *Coordinator) RestoreSession(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	rows, err := c.store.RecentChat(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	hist := make(History, 0, len(rows))
	for _, row := range rows {
		hist = append(hist, Turn{Role: row.Role, Content: row.Content, Timestamp: row.Timestamp})
	}
	hist = hist.Trim(c.cfg.Session.MaxTurns)

	c.mu.Lock()
	c.history = hist
	c.mu.Unlock()

	if len(hist) > 0 {
		c.InsertGapNote(c.now())
	}

	log.Printf("[pipeline] %s: session restored, %d turns", c.sessionID, len(hist))
	return nil
}

// InsertGapNote appends the time-gap system note when the last turn is
// older than the configured gap. Reports whether a note was added.
func (c *Coordinator) InsertGapNote(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 {
		return false
	}
	last := c.history[len(c.history)-1]
	if last.Role == RoleSystem || last.Timestamp.IsZero() {
		return false
	}

	gap := now.Sub(last.Timestamp)
	if gap < c.sessionGap {
		return false
	}

	hours := int(gap.Hours())
	log.Printf("[pipeline] %s: time gap detected: %d hours", c.sessionID, hours)
	c.history = append(c.history, Turn{
		Role:      RoleSystem,
		Content:   fmt.Sprintf(gapNoteTmpl, hours),
		Timestamp: now,
	})
	return true
}
