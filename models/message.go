package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	// MessageTypeText is a plain text chat message.
	MessageTypeText = "text"
	// MessageTypeAudio carries a base64-encoded audio clip.
	MessageTypeAudio = "audio"
)

// ID is a server-assigned identifier. The server emits numbers, but edit
// frames echo whatever the client sent, so both forms decode to the same value.
type ID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ID) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*id = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes canonical integer ids as numbers so the server's integer
// lookups match. Anything else, such as "007" or "+5", stays a string.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// String returns the raw identifier.
func (id ID) String() string {
	return string(id)
}

// Message is a single chat item within a conversation.
type Message struct {
	ID                      ID        `json:"id"`
	Content                 string    `json:"content"`
	SenderUsername          string    `json:"sender_username"`
	Timestamp               time.Time `json:"timestamp"`
	IsRead                  bool      `json:"is_read"`
	IsDelivered             bool      `json:"is_delivered"`
	MessageType             string    `json:"message_type"`
	AudioDataBase64         string    `json:"audio_data_base64,omitempty"`
	SenderProfilePicture    string    `json:"sender_profile_picture,omitempty"`
	RecipientProfilePicture string    `json:"recipient_profile_picture,omitempty"`
}

// Kind returns the message type, defaulting to text.
func (m Message) Kind() string {
	if m.MessageType == "" {
		return MessageTypeText
	}
	return m.MessageType
}

// IsAudio reports whether the message is an audio clip.
func (m Message) IsAudio() bool {
	return m.Kind() == MessageTypeAudio
}

// Pagination mirrors the server's page metadata for messages and conversations.
type Pagination struct {
	Page               int  `json:"page"`
	PageSize           int  `json:"page_size"`
	TotalMessages      int  `json:"total_messages,omitempty"`
	TotalConversations int  `json:"total_conversations,omitempty"`
	TotalPages         int  `json:"total_pages"`
	HasNext            bool `json:"has_next"`
	HasPrevious        bool `json:"has_previous"`
}

// TotalItems returns whichever total the server filled in.
func (p Pagination) TotalItems() int {
	if p.TotalMessages > 0 {
		return p.TotalMessages
	}
	return p.TotalConversations
}

// MessagePage is one page of conversation history, oldest first.
type MessagePage struct {
	Messages   []Message   `json:"messages"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// NotificationCounts holds unread counters keyed by conversation id.
type NotificationCounts struct {
	TotalUnreadCount   int            `json:"total_unread_count"`
	ConversationCounts map[string]int `json:"conversation_counts"`
}
