package pipeline

import (
	"context"
	"log"
	"strings"
)

const (
	stickyWordMinLen   = 6
	stickyWordMax      = 2
	fallbackWordMinLen = 4
	contextHeader      = "=== DATABASE SEARCH RESULTS ==="
)

var fallbackStopWords = map[string]struct{}{
	"what":  {},
	"when":  {},
	"where": {},
}

// buildSearchKeys assembles the retrieval key set: extractor keywords, up
// to two "sticky" long words from the previous assistant turn for topical
// continuity, and a raw-utterance fallback when everything else is empty.
func buildSearchKeys(keywords []string, hist History, utterance string) []string {
	keys := append([]string(nil), keywords...)

	if last, ok := hist.LastAssistant(); ok {
		sticky := 0
		for _, word := range strings.Fields(last.Content) {
			if len(word) < stickyWordMinLen || !isAlpha(word) {
				continue
			}
			keys = append(keys, word)
			sticky++
			if sticky == stickyWordMax {
				break
			}
		}
	}

	if len(keys) == 0 {
		for _, word := range strings.Fields(utterance) {
			if len(word) < fallbackWordMinLen {
				continue
			}
			if _, stop := fallbackStopWords[strings.ToLower(word)]; stop {
				continue
			}
			keys = append(keys, word)
		}
	}

	return keys
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}

// retrieve queries the fact store for relevant prior facts and joins them
// into the shared context block. No retries: failure yields empty context,
// never an error.
func (c *Coordinator) retrieve(ctx context.Context, keys []string) string {
	if c.store == nil || len(keys) == 0 {
		return ""
	}

	log.Printf("[pipeline] %s: searching fact store: %v", c.sessionID, keys)
	res, err := c.store.Retrieve(ctx, keys)
	if err != nil {
		log.Printf("[pipeline] %s: retrieval warning: %v", c.sessionID, err)
		return ""
	}
	if res == nil || !res.Found || len(res.Memories) == 0 {
		return ""
	}

	return contextHeader + "\n" + strings.Join(res.Memories, "\n")
}
