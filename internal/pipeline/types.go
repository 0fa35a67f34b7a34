// Package pipeline runs one conversational turn end to end: candidate fact
// extraction, the timekeeper gate, retrieval against the fact store,
// persona-conditioned reply generation and deduplicating background
// persistence.
package pipeline

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one exchange unit in the working history.
type Turn struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// History is the bounded trailing slice of turns. Older turns are dropped,
// never mutated.
type History []Turn

// Trim keeps the most recent max turns.
func (h History) Trim(max int) History {
	if max <= 0 || len(h) <= max {
		return h
	}
	return h[len(h)-max:]
}

// Format renders the history as ROLE: content lines for prompt building.
func (h History) Format() string {
	lines := make([]string, 0, len(h))
	for _, t := range h {
		lines = append(lines, strings.ToUpper(t.Role)+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

// LastAssistant returns the most recent assistant turn, if any.
func (h History) LastAssistant() (Turn, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == RoleAssistant {
			return h[i], true
		}
	}
	return Turn{}, false
}

// CandidateFact is one structured, datable statement worth remembering.
// Facts are created by extraction, possibly rewritten by the timekeeper,
// and immutable once persisted.
type CandidateFact struct {
	Fact       string `json:"fact"`
	Entities   string `json:"entities"`
	Topics     string `json:"topics"`
	Importance int    `json:"importance"`
}

// Analysis is the extractor's output for one utterance.
type Analysis struct {
	SearchKeywords []string
	Entries        []CandidateFact
}

// PipelineResult is the externally visible outcome of one turn. The JSON
// shape matches what the rendering collaborator consumes.
type PipelineResult struct {
	Reply string           `json:"response"`
	Mood  Mood             `json:"mood"`
	Roots []AnnotationRoot `json:"roots"`
}

// tailChars returns at most n trailing bytes of s; prompt context is
// bounded from the end so the newest turns survive. The cut advances to
// the next rune boundary so the slice is always valid UTF-8.
func tailChars(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}
