package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/driftlock/symbiont/internal/llm"
)

const extractionPromptTmpl = `USER_IDENTITY: %s, (pronoun: %s) unless said otherwise
CURRENT_DATE: %s
CONTEXT:
%s

CURRENT INPUT: "%s"

TASK:
1. KEYWORDS: Extract 3-5 specific search terms from the input. Always include synonyms.
   - Example: "My stomach hurts" -> Keywords: ["Stomach", "Pain", "Health", "Sick"]
   - CRITICAL: This is used for database retrieval. Be specific.
   - You must ALSO append 2 relevant categories from this list: [%s].
   - Example: User says "Any restaurant recs" -> Keywords: ["Restaurant", "Lunch", "Dinner", "Location", "Preference"]

2. MEMORY ENTRIES (ADAPTIVE SPLITTING):
   - If input is a continuous story (e.g. "I went to the zoo then ate toast"), keep as ONE entry.
   - If input has UNRELATED facts (e.g. "I like red. My dog is sick."), SPLIT into separate entries.
   - If QUESTION/CHIT-CHAT/NO NEW INFO, return empty array [].

3. FACT FORMATTING (For each entry):
   - Write in third person (%s...).
   - Please retain all qualitative and quantitative information.
   - CRITICAL DATE RULE:
     > IF A SPECIFIC TIME IS MENTIONED (e.g. "yesterday", "last week"), convert to absolute date (YYYY-MM-DD).
     > IF NO TIME IS MENTIONED, DO NOT GUESS. Leave the fact without a date.
   - Entities: Comma-separated list of people/places for THAT specific entry
   - Topics: Broad categories. Choose ONLY from: %s.

4. METADATA & IMPORTANCE GUIDE:
   - IMPORTANCE (1-10):
     > 1-3: Trivial (Preferences like food/color, fleeting thoughts).
     > 4-6: Routine (Work updates, daily events, general status).
     > 7-8: Significant (Relationship changes, health events, trips, new jobs).
     > 9-10: Life-Defining (Marriage, Death, Birth, Major Relocation).

If QUESTION/CHIT-CHAT/KNOWN INFO, return empty array [].

Return JSON only: {
    "search_keywords": ["..."],
    "entries": [
        {
            "fact": "...",
            "entities": "...",
            "topics": "...",
            "importance": 5
        }
    ]
}`

// keywordList tolerates the backend returning the keyword field as either
// a JSON array or a comma-joined string.
type keywordList []string

func (k *keywordList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*k = list
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("search_keywords is neither list nor string")
	}

	out := make(keywordList, 0)
	for _, part := range strings.Split(joined, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	*k = out
	return nil
}

type analysisPayload struct {
	SearchKeywords keywordList     `json:"search_keywords"`
	Entries        []CandidateFact `json:"entries"`
}

// promptDate renders the current date the way prompts reference it,
// e.g. "Mon, June 10, 2024".
func promptDate(now time.Time) string {
	return now.Format("Mon, January 2, 2006")
}

// extract turns one utterance plus trailing history into search keywords
// and zero or more candidate facts. Extraction failure degrades to an empty
// analysis; it never prevents a reply.
func (c *Coordinator) extract(ctx context.Context, utterance string, hist History, now time.Time) Analysis {
	topicList := strings.Join(Topics, ", ")
	prompt := fmt.Sprintf(extractionPromptTmpl,
		c.cfg.Identity.UserName,
		c.cfg.Identity.Pronouns,
		promptDate(now),
		tailChars(hist.Format(), c.cfg.Session.ContextChars),
		utterance,
		topicList,
		c.cfg.Identity.UserName,
		topicList,
	)

	payload, err := llm.Complete(ctx, c.backend,
		[]llm.Message{{Role: RoleSystem, Content: prompt}},
		func(p analysisPayload) bool { return p.SearchKeywords != nil },
		"analysis")
	if err != nil {
		log.Printf("[pipeline] %s: analysis failed, continuing without facts: %v", c.sessionID, err)
		return Analysis{}
	}

	return Analysis{
		SearchKeywords: payload.SearchKeywords,
		Entries:        payload.Entries,
	}
}
