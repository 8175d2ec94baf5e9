package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"chatline/models"
)

var ErrEmptyMessage = errors.New("api: message has no content")

// FirstMessage is a message to a phone number that may not have a conversation yet.
type FirstMessage struct {
	RecipientPhone  string `json:"recipient_phone"`
	Content         string `json:"content"`
	MessageType     string `json:"message_type"`
	AudioDataBase64 string `json:"audio_data_base64,omitempty"`
}

// FirstMessageResult is the server's reply to SendFirstMessage.
type FirstMessageResult struct {
	ConversationID    models.ID           `json:"conversation_id"`
	Conversation      models.Conversation `json:"conversation"`
	Message           models.Message      `json:"message"`
	IsNewConversation bool                `json:"is_new_conversation"`
}

// MarkReadResult is the server's reply to MarkConversationRead.
type MarkReadResult struct {
	Success            bool      `json:"success"`
	MessagesMarkedRead int       `json:"messages_marked_read"`
	ConversationID     models.ID `json:"conversation_id"`
}

func pageQuery(page, pageSize int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	return q
}

// Conversations fetches one page of the user's conversations, newest first.
func (c *Client) Conversations(ctx context.Context, page, pageSize int) (*models.ConversationPage, error) {
	var out models.ConversationPage
	req := request{method: http.MethodGet, path: "/chat/api/conversations/", query: pageQuery(page, pageSize)}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateConversation opens (or returns the existing) conversation with a phone number.
func (c *Client) CreateConversation(ctx context.Context, recipientPhone string) (*models.Conversation, error) {
	var out models.Conversation
	body := map[string]string{"recipient_phone": recipientPhone}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/chat/api/create-conversation/", json: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConversation removes a conversation for both participants.
func (c *Client) DeleteConversation(ctx context.Context, id models.ID) error {
	path := fmt.Sprintf("/chat/api/conversation/%s/delete/", url.PathEscape(id.String()))
	return c.do(ctx, request{method: http.MethodDelete, path: path}, nil)
}

// Messages fetches one page of history. Page 1 holds the newest messages;
// within a page messages are oldest first.
func (c *Client) Messages(ctx context.Context, id models.ID, page, pageSize int) (*models.MessagePage, error) {
	var out models.MessagePage
	path := fmt.Sprintf("/chat/api/conversation/%s/messages/", url.PathEscape(id.String()))
	if err := c.do(ctx, request{method: http.MethodGet, path: path, query: pageQuery(page, pageSize)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendFirstMessage posts a message by recipient phone, creating the conversation if needed.
func (c *Client) SendFirstMessage(ctx context.Context, msg FirstMessage) (*FirstMessageResult, error) {
	if msg.MessageType == "" {
		msg.MessageType = models.MessageTypeText
	}
	if msg.MessageType == models.MessageTypeText && msg.Content == "" {
		return nil, ErrEmptyMessage
	}
	if msg.MessageType == models.MessageTypeAudio && msg.AudioDataBase64 == "" {
		return nil, ErrEmptyMessage
	}

	var out FirstMessageResult
	if err := c.do(ctx, request{method: http.MethodPost, path: "/chat/api/send-message/", json: msg}, &out); err != nil {
		return nil, err
	}
	if out.ConversationID == "" {
		out.ConversationID = out.Conversation.ID
	}
	return &out, nil
}

// NotificationCounts fetches unread totals.
func (c *Client) NotificationCounts(ctx context.Context) (*models.NotificationCounts, error) {
	var out models.NotificationCounts
	if err := c.do(ctx, request{method: http.MethodGet, path: "/chat/api/notifications/count/"}, &out); err != nil {
		return nil, err
	}
	if out.ConversationCounts == nil {
		out.ConversationCounts = map[string]int{}
	}
	return &out, nil
}

// MarkConversationRead marks every message addressed to the user in a conversation as read.
func (c *Client) MarkConversationRead(ctx context.Context, id models.ID) (*MarkReadResult, error) {
	var out MarkReadResult
	path := fmt.Sprintf("/chat/api/conversation/%s/mark-read/", url.PathEscape(id.String()))
	if err := c.do(ctx, request{method: http.MethodPost, path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
