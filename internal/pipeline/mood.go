package pipeline

import "strings"

// Mood is the closed set of affect tags carried by replies and annotation
// nodes. Anything outside the set sanitizes to NEUTRAL.
type Mood string

const (
	MoodNeutral      Mood = "NEUTRAL"
	MoodAffectionate Mood = "AFFECTIONATE"
	MoodCryptic      Mood = "CRYPTIC"
	MoodDislike      Mood = "DISLIKE"
	MoodJoyful       Mood = "JOYFUL"
	MoodCurious      Mood = "CURIOUS"
	MoodSad          Mood = "SAD"
	MoodQuestion     Mood = "QUESTION"
	MoodGlitch       Mood = "GLITCH"
)

var knownMoods = map[Mood]struct{}{
	MoodNeutral:      {},
	MoodAffectionate: {},
	MoodCryptic:      {},
	MoodDislike:      {},
	MoodJoyful:       {},
	MoodCurious:      {},
	MoodSad:          {},
	MoodQuestion:     {},
	MoodGlitch:       {},
}

// SanitizeMood uppercases and trims a raw mood value and falls back to
// NEUTRAL for anything not in the closed set. It is total and idempotent.
func SanitizeMood(raw string) Mood {
	m := Mood(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := knownMoods[m]; ok {
		return m
	}
	return MoodNeutral
}

// Topics is the closed category set candidate facts are tagged with.
var Topics = []string{"Identity", "Preference", "Location", "Relationship", "History", "Work"}
