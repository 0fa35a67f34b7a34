package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/driftlock/symbiont/internal/llm"
)

// Facts below this importance skip temporal validation entirely.
const timekeeperThreshold = 4

const timekeeperPromptTmpl = `FACT: "%s"
CURRENT_DATE: %s
TASK: Determine if this is a specific past event (e.g. "went to", "visited").
RULES:
- If it is an EVENT but lacks a specific absolute date or month or year /timeframe -> return "valid": false.
- If it is a STATE/PREFERENCE/HISTORY (e.g. "was fat", "likes sushi") -> return "valid": true.
- If it has a date or month or year -> return "valid": true.
Return JSON: { "valid": boolean, "rewritten_fact": "..." }`

const interceptPromptTmpl = `User said: "%s"
Fact detected: "%s"
ISSUE: User mentioned an event but didn't say WHEN.
INSTRUCTIONS: Ask the user "When did this happen?" naturally.
- Keep it short.
- Do not answer the user's input yet, just ask for the time.
Return JSON: { "response": "..." }`

type timeCheckPayload struct {
	Valid         *bool  `json:"valid"`
	RewrittenFact string `json:"rewritten_fact"`
}

type interceptPayload struct {
	Response string `json:"response"`
}

// gate runs the timekeeper over each candidate fact in list order. It
// returns the facts that survived, or a short-circuit result when the
// interceptor fires: the turn's reply becomes a clarifying question, mood
// QUESTION, empty annotation tree, and no retrieval, generation or storage
// happens. Failures of the timekeeper's own calls keep the fact as-is.
func (c *Coordinator) gate(ctx context.Context, utterance string, entries []CandidateFact, now time.Time) ([]CandidateFact, *PipelineResult) {
	if len(entries) == 0 {
		return nil, nil
	}

	kept := make([]CandidateFact, 0, len(entries))
	for _, entry := range entries {
		if entry.Importance < timekeeperThreshold {
			kept = append(kept, entry)
			continue
		}

		log.Printf("[pipeline] %s: validating timeframe for %q (importance %d)", c.sessionID, entry.Fact, entry.Importance)

		checkPrompt := fmt.Sprintf(timekeeperPromptTmpl, entry.Fact, promptDate(now))
		check, err := llm.Complete(ctx, c.backend,
			[]llm.Message{{Role: RoleSystem, Content: checkPrompt}},
			func(p timeCheckPayload) bool { return p.Valid != nil },
			"timekeeper")
		if err != nil {
			// Fail open: an unvalidated fact beats a blocked turn.
			log.Printf("[pipeline] %s: timekeeper check failed, keeping fact: %v", c.sessionID, err)
			kept = append(kept, entry)
			continue
		}

		if *check.Valid {
			if check.RewrittenFact != "" {
				entry.Fact = check.RewrittenFact
			}
			kept = append(kept, entry)
			continue
		}

		log.Printf("[pipeline] %s: interceptor triggered, event missing date: %q", c.sessionID, entry.Fact)

		interceptMsg := fmt.Sprintf(interceptPromptTmpl, utterance, entry.Fact)
		intercept, err := llm.Complete(ctx, c.backend,
			[]llm.Message{{Role: RoleSystem, Content: interceptMsg}},
			func(p interceptPayload) bool { return p.Response != "" },
			"interceptor")
		if err != nil {
			log.Printf("[pipeline] %s: interceptor failed, keeping fact: %v", c.sessionID, err)
			kept = append(kept, entry)
			continue
		}

		return nil, &PipelineResult{
			Reply: intercept.Response,
			Mood:  MoodQuestion,
			Roots: []AnnotationRoot{},
		}
	}

	return kept, nil
}
