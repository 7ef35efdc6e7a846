package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubjectRoundTrip(t *testing.T) {
	assert.Equal(t, "events.CHAT_MESSAGE_SENT", Subject(ChatMessageSent))
	assert.Equal(t, ChatMessageSent, TypeFromSubject(Subject(ChatMessageSent)))
	assert.Equal(t, "OTHER", TypeFromSubject("OTHER"))
}

func TestParseOccurredAt(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 123000, time.UTC)
	assert.True(t, at.Equal(ParseOccurredAt(at.Format(time.RFC3339Nano))))

	fallback := ParseOccurredAt("not a time")
	assert.WithinDuration(t, time.Now(), fallback, time.Minute)
}
