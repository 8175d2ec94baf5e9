package cli

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"chatline/models"
	"chatline/network"
	"chatline/notify"
)

const previewLimit = 40

func conversationTable(convs []models.Conversation, self string) string {
	rows := make([][]string, 0, len(convs))
	for _, conv := range convs {
		with := "?"
		if other, ok := conv.OtherParticipant(self); ok {
			with = other.DisplayName()
		}
		unread := ""
		if conv.UnreadCount > 0 {
			unread = strconv.Itoa(conv.UnreadCount)
		}
		rows = append(rows, []string{conv.ID.String(), with, unread, preview(conv, self), updatedAt(conv)})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "WITH", "UNREAD", "LAST MESSAGE", "UPDATED").
		Rows(rows...).
		String()
}

func preview(conv models.Conversation, self string) string {
	last := conv.LastMessage
	if last == nil {
		return "No messages yet"
	}
	content := last.Content
	if last.MessageType == models.MessageTypeAudio {
		content = "Audio message"
	}
	if last.SenderUsername == self {
		content = "You: " + content
	}
	content = strings.ReplaceAll(content, "\n", " ")
	if r := []rune(content); len(r) > previewLimit {
		content = string(r[:previewLimit-1]) + "…"
	}
	return content
}

func updatedAt(conv models.Conversation) string {
	ts := conv.UpdatedAt
	if conv.LastMessage != nil && conv.LastMessage.Timestamp.After(ts) {
		ts = conv.LastMessage.Timestamp
	}
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func formatMessage(msg models.Message, self string) string {
	who := msg.SenderUsername
	if who == self {
		who = "you"
	}
	body := msg.Content
	if msg.IsAudio() {
		body = "[audio] " + body
	}
	line := fmt.Sprintf("[%s] #%s %s: %s", msg.Timestamp.Local().Format("2006-01-02 15:04"), msg.ID, who, body)
	if msg.SenderUsername == self {
		if msg.IsRead {
			line += " (read)"
		} else {
			line += " (sent)"
		}
	}
	return line
}

func formatCounts(snap notify.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "total unread: %d", snap.Total)
	for _, id := range slices.Sorted(maps.Keys(snap.Conversations)) {
		fmt.Fprintf(&b, "\n  conversation %s: %d", id, snap.Conversations[id])
	}
	return b.String()
}

func formatProfile(u models.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (@%s)", u.DisplayName(), u.Username)
	for _, field := range []struct{ label, value string }{
		{"email", u.Email},
		{"phone", u.PhoneNumber},
		{"picture", u.ProfilePictureURL},
	} {
		if field.value != "" {
			fmt.Fprintf(&b, "\n  %s: %s", field.label, field.value)
		}
	}
	return b.String()
}

func formatStatus(name string, status network.Status) string {
	return fmt.Sprintf("%s: %s", name, status)
}
