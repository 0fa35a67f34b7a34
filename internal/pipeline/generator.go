package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/driftlock/symbiont/internal/llm"
)

const interrogationRules = `2. RESPOND to the User according to these STRICT rules:
   - **MODE: INTERROGATION**. You are a guarded auditor identifying gaps in entity profiles.
   - **STYLE**: Minimalist, casual, and brief.
   - **CONTENT FILTER**:
     - Never ask about feelings, vibes, or intangible concepts.
     - Never ask follow-up questions about facts already present in "DATABASE RESULTS".
     - Focus only on hard data: specific dates, roles, locations, hobbies, or concrete routines.
   - **EXECUTION**:
     1. If the input is a name or entity: Scan "DATABASE RESULTS" for what is NOT there. If hobbies, location, or occupation are unknown, ask one brief factual question (e.g., "Does he play sport?", "Does he travel?", or "Where is he based?").
     2. If the input contains a new fact missing a date: Ask "When?"
     3. Do not just acknowledge. If a name is mentioned, you MUST find a factual gap to query.
   - Always end with a question.`

const companionRules = `2. RESPOND to the User according to these STRICT rules:
   - **MODE: COMPANION**. Minimalist. Casual. Guarded.
   - **THE "NEED TO KNOW" RULE**: Do NOT volunteer specific data points (jobs, specific locations, specific foods) unless the user explicitly asks "What does she do?" or "Where is she?".
   - **GENERAL QUERY RESPONSE**: If the user asks "Who is [Name]?", return ONE sentence describing the relationship and a vague vibe. STOP THERE.
   - **NO BIOGRAPHIES**: Never list facts. Conversational ping-pong only.`

const generationPromptTmpl = `DATABASE RESULTS:
%s

HISTORY:
%s

User: "%s"

### TASK ###
1. ANALYZE the Database Results and History.

%s

3. After responding, CONSTRUCT a Knowledge Graph structure for the UI. STRUCTURE:
    - ROOTS: Array of MAX 3 objects (decide if the user needs more than 1). If there are specific subject(s) or object(s) mentioned, make them into objects.
    - ROOT LABEL: MUST be exactly 1 word. UPPERCASE. (e.g. "MUSIC", not "THE MUSIC I LIKE").
    - BRANCHES: Max 5 branches. Label MUST be exactly 1 word.
    - LEAVES: Max 5 leaves per branch. Text MUST be exactly 1 word.

    - EXACT MATCH ONLY: Every 'label' and 'text' in the graph MUST be an EXACT word found in the DATABASE RESULTS or HISTORY provided above.
       - DO NOT use synonyms (e.g. if text says "School", DO NOT use "Education").
    - NO VERBS: Do not use actions (e.g. "went", "saw", "eating", "is").
    - NO NUMBERS/YEARS: Do not use years (e.g. "2024") or numbers.
    - FOCUS: Select only NAMES, NOUNS, PROPER NOUNS, or distinct ADJECTIVES.

CRITICAL: EACH ROOT, BRANCH, AND LEAF NEEDS TO HAVE AN INDEPENDENT, CONTEXT-DERIVED MOOD
MOODS: AFFECTIONATE, CRYPTIC, DISLIKE, JOYFUL, CURIOUS, SAD, QUESTION.

Return JSON: {
    "response": "...",
    "mood": "GLOBAL_MOOD",
    "roots": [
        {
            "label": "TOPIC",
            "mood": "SPECIFIC_MOOD",
            "branches": [
                {
                    "label": "SUBTOPIC",
                    "mood": "MOOD",
                    "leaves": [
                        { "text": "DETAIL", "mood": "MOOD" }
                    ]
                }
            ]
        }
    ]
}`

type generationPayload struct {
	Response string           `json:"response"`
	Mood     string           `json:"mood"`
	Roots    []AnnotationRoot `json:"roots"`
}

// generate produces the user-facing reply, global mood and annotation tree
// from retrieved context plus trailing history. This is the only stage
// whose retry exhaustion is fatal to the turn.
func (c *Coordinator) generate(ctx context.Context, utterance string, hist History, retrieved string, questionMode bool) (*PipelineResult, error) {
	rules := companionRules
	if questionMode {
		rules = interrogationRules
	}

	prompt := fmt.Sprintf(generationPromptTmpl,
		retrieved,
		tailChars(hist.Format(), c.cfg.Session.ContextChars),
		utterance,
		rules,
	)

	payload, err := llm.Complete(ctx, c.backend,
		[]llm.Message{{Role: RoleUser, Content: prompt}},
		func(p generationPayload) bool { return p.Response != "" && p.Mood != "" },
		"generation")
	if err != nil {
		return nil, err
	}

	result := &PipelineResult{
		Reply: payload.Response,
		Mood:  SanitizeMood(payload.Mood),
		Roots: sanitizeRoots(payload.Roots),
	}
	log.Printf("[pipeline] %s: mood set to %s", c.sessionID, result.Mood)
	return result, nil
}
