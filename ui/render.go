package ui

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"chatline/models"
	"chatline/notify"
)

// readMark is shown after the user's own messages.
func readMark(msg models.Message) string {
	if msg.IsRead {
		return "✓✓"
	}
	return "✓"
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return time.Now().Format("15:04")
	}
	return ts.Local().Format("15:04")
}

func messageBody(msg models.Message) string {
	if !msg.IsAudio() {
		return msg.Content
	}
	size := base64.StdEncoding.DecodedLen(len(msg.AudioDataBase64))
	if size == 0 {
		return "♪ " + msg.Content
	}
	return fmt.Sprintf("♪ %s (%s)", msg.Content, humanSize(size))
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// renderMessageRow renders one transcript line.
func renderMessageRow(msg models.Message, self string, selected bool) string {
	outgoing := msg.SenderUsername == self
	name := otherStyle.Render(msg.SenderUsername)
	if outgoing {
		name = ownStyle.Render("you")
	}

	line := fmt.Sprintf("%s %s: %s", mutedStyle.Render(formatTimestamp(msg.Timestamp)), name, messageBody(msg))
	if outgoing {
		line += " " + readMarkStyle.Render(readMark(msg))
	}
	if selected {
		return selectedMessageStyle.Render("> " + line)
	}
	return "  " + line
}

func renderTranscript(msgs []models.Message, self string, selected int) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet. Say hello!")
	}
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(renderMessageRow(msg, self, i == selected))
	}
	return b.String()
}

// conversationTitle names a conversation after the other participant.
func conversationTitle(conv models.Conversation, self string) string {
	other, ok := conv.OtherParticipant(self)
	if !ok {
		return "Conversation " + conv.ID.String()
	}
	return other.DisplayName()
}

func conversationPreview(conv models.Conversation, self string) string {
	last := conv.LastMessage
	if last == nil {
		return "No messages yet"
	}
	content := last.Content
	if last.MessageType == models.MessageTypeAudio {
		content = "♪ Audio message"
	}
	if last.SenderUsername == self {
		content = "You: " + content
	}
	return truncate(content, 40)
}

func renderConversationRow(conv models.Conversation, self string, counts notify.Snapshot, selected bool) string {
	title := conversationTitle(conv, self)
	if n := counts.Count(conv.ID); n > 0 {
		title += " " + badgeStyle.Render(unreadLabel(n))
	}
	row := title + "\n" + mutedStyle.Render(conversationPreview(conv, self))
	if selected {
		return selectedItemStyle.Render(row)
	}
	return unselectedItemStyle.Render(row)
}

func unreadLabel(n int) string {
	if n > 99 {
		return "99+"
	}
	return fmt.Sprintf("%d", n)
}

func truncate(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
