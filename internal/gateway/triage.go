package gateway

import (
	"strings"

	"github.com/driftlock/symbiont/internal/pipeline"
)

const (
	cmdQuestionMode = "question time"
	cmdCompanion    = "done"

	glitchReply        = "ERR.. SYST3M... REJECT... D4TA..."
	questionModeReply  = "MODE: INTERROGATION. WHAT SHALL WE DISCUSS?"
	companionModeReply = "RETURNING TO HOMEOSTASIS."
)

// triage handles inputs that never reach the pipeline: mode-toggle
// commands and garbage (keyboard-mash) input. Returns the canned result
// and whether the input was consumed.
func triage(text string, s *session) (*pipeline.PipelineResult, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case cmdQuestionMode:
		s.questionMode = true
		return &pipeline.PipelineResult{Reply: questionModeReply, Mood: pipeline.MoodQuestion}, true
	case cmdCompanion:
		if s.questionMode {
			s.questionMode = false
			return &pipeline.PipelineResult{Reply: companionModeReply, Mood: pipeline.MoodNeutral}, true
		}
	}

	if isGarbage(text) {
		return &pipeline.PipelineResult{Reply: glitchReply, Mood: pipeline.MoodGlitch}, true
	}

	return nil, false
}

// isGarbage flags keyboard-mash input: long vowel-free strings or runs of
// four or more repeated characters.
func isGarbage(text string) bool {
	if len(text) <= 6 {
		return false
	}
	if !strings.ContainsAny(text, "aeiouAEIOU") {
		return true
	}
	return hasRepeatedRun(text, 4)
}

func hasRepeatedRun(text string, min int) bool {
	run := 0
	var prev rune
	for i, r := range text {
		if i > 0 && r == prev {
			run++
			if run >= min {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}
	return false
}
