package models

import (
	"strings"
	"time"
)

// User is a chat participant profile.
type User struct {
	Username          string `json:"username"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	PhoneNumber       string `json:"phone_number"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
}

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return u.Username
}

// Initials returns up to two uppercase letters for avatars.
func (u User) Initials() string {
	if u.FirstName != "" && u.LastName != "" {
		return strings.ToUpper(firstRune(u.FirstName) + firstRune(u.LastName))
	}
	return strings.ToUpper(firstRune(u.Username))
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

// LastMessage is the conversation preview line.
type LastMessage struct {
	ID             ID        `json:"id"`
	Content        string    `json:"content"`
	SenderUsername string    `json:"sender_username"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"is_read"`
	MessageType    string    `json:"message_type"`
}

// Conversation is a chat thread between two users.
type Conversation struct {
	ID           ID           `json:"id"`
	Participants []User       `json:"participants"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	LastMessage  *LastMessage `json:"last_message"`
	UnreadCount  int          `json:"unread_count"`
}

// OtherParticipant returns the first participant that is not the current user.
func (c Conversation) OtherParticipant(currentUsername string) (User, bool) {
	for _, p := range c.Participants {
		if p.Username != currentUsername {
			return p, true
		}
	}
	if len(c.Participants) > 0 {
		return c.Participants[0], true
	}
	return User{}, false
}

// ConversationPage is one page of the conversation list.
type ConversationPage struct {
	Conversations []Conversation `json:"conversations"`
	Pagination    *Pagination    `json:"pagination,omitempty"`
}

// LastMessageFrom builds a preview entry from a full message.
func LastMessageFrom(msg Message) *LastMessage {
	return &LastMessage{
		ID:             msg.ID,
		Content:        msg.Content,
		SenderUsername: msg.SenderUsername,
		Timestamp:      msg.Timestamp,
		IsRead:         msg.IsRead,
		MessageType:    msg.Kind(),
	}
}
