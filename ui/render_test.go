package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"chatline/models"
	"chatline/notify"
)

func TestReadMark(t *testing.T) {
	assert.Equal(t, "✓", readMark(models.Message{}))
	assert.Equal(t, "✓✓", readMark(models.Message{IsRead: true}))
}

func TestUnreadLabelCapsAt99(t *testing.T) {
	assert.Equal(t, "7", unreadLabel(7))
	assert.Equal(t, "99", unreadLabel(99))
	assert.Equal(t, "99+", unreadLabel(100))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "line one line two", truncate("line one\nline two", 40))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "2.0 KB", humanSize(2048))
	assert.Equal(t, "1.5 MB", humanSize(3<<19))
}

func TestConversationPreview(t *testing.T) {
	conv := models.Conversation{ID: "1"}
	assert.Equal(t, "No messages yet", conversationPreview(conv, "alice"))

	conv.LastMessage = &models.LastMessage{Content: "hi there", SenderUsername: "alice"}
	assert.Equal(t, "You: hi there", conversationPreview(conv, "alice"))
	assert.Equal(t, "hi there", conversationPreview(conv, "bob"))

	conv.LastMessage = &models.LastMessage{MessageType: models.MessageTypeAudio, SenderUsername: "bob"}
	assert.Equal(t, "♪ Audio message", conversationPreview(conv, "alice"))
}

func TestConversationTitleUsesOtherParticipant(t *testing.T) {
	conv := models.Conversation{
		ID: "4",
		Participants: []models.User{
			{Username: "alice"},
			{Username: "bob", FirstName: "Bob", LastName: "Builder"},
		},
	}
	assert.Equal(t, "Bob Builder", conversationTitle(conv, "alice"))
	assert.Equal(t, "Conversation 9", conversationTitle(models.Conversation{ID: "9"}, "alice"))
}

func TestRenderConversationRowShowsUnreadBadge(t *testing.T) {
	conv := models.Conversation{ID: "3", Participants: []models.User{{Username: "alice"}, {Username: "carol"}}}
	counts := notify.Snapshot{Total: 4, Conversations: map[string]int{"3": 4}}

	row := renderConversationRow(conv, "alice", counts, false)
	assert.Contains(t, row, "carol")
	assert.Contains(t, row, "4")

	row = renderConversationRow(conv, "alice", notify.Snapshot{}, true)
	assert.Contains(t, row, "carol")
}

func TestRenderTranscript(t *testing.T) {
	assert.Contains(t, renderTranscript(nil, "alice", -1), "No messages yet")

	msgs := []models.Message{
		{ID: "1", Content: "hello", SenderUsername: "bob"},
		{ID: "2", Content: "hey", SenderUsername: "alice", IsRead: true},
	}
	out := renderTranscript(msgs, "alice", 1)
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "hello")
	assert.Contains(t, lines[1], "you")
	assert.Contains(t, lines[1], "✓✓")
	assert.Contains(t, lines[1], "> ")
}

func TestMessageBodyAudio(t *testing.T) {
	msg := models.Message{Content: "Audio message", MessageType: models.MessageTypeAudio, AudioDataBase64: "AAAA"}
	assert.Equal(t, "♪ Audio message (3 B)", messageBody(msg))
	assert.Equal(t, "plain", messageBody(models.Message{Content: "plain"}))
}
