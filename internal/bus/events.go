package bus

import (
	"time"

	"github.com/driftlock/symbiont/internal/pipeline"
)

type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage carries one turn's reply plus the mood and annotation
// roots the rendering collaborator consumes. Text-only channels send just
// Content.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	Mood    pipeline.Mood
	Roots   []pipeline.AnnotationRoot
}
