package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// MaxAttempts caps the retry loop in Complete. Every stage of the pipeline
// goes through this single chokepoint, so the cap bounds total latency for
// one logical request.
const MaxAttempts = 2

// Complete sends messages to the backend, recovers the embedded JSON
// payload, parses it into T and checks it with the stage's validator.
// Transport errors, unparsable text and validator rejections all count as
// one failed attempt; after MaxAttempts the whole operation fails with an
// error labeled by the calling stage.
func Complete[T any](ctx context.Context, b Backend, messages []Message, valid func(T) bool, label string) (T, error) {
	var zero T
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		raw, err := b.ChatCompletion(ctx, messages)
		if err != nil {
			log.Printf("[llm] %s attempt %d: %v", label, attempt, err)
			continue
		}

		payload, err := ExtractPayload(raw)
		if err != nil {
			log.Printf("[llm] %s attempt %d: %v", label, attempt, err)
			continue
		}

		var out T
		if err := json.Unmarshal([]byte(payload), &out); err != nil {
			log.Printf("[llm] %s attempt %d: parse payload: %v", label, attempt, err)
			continue
		}

		if !valid(out) {
			log.Printf("[llm] %s attempt %d: payload rejected by validator", label, attempt)
			continue
		}

		return out, nil
	}
	return zero, fmt.Errorf("%s: completion attempts exhausted", label)
}
