package network

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"chatline/models"
)

const (
	// MaxFrameSize is the maximum accepted inbound frame size. Audio clips
	// travel base64-encoded inside chat frames.
	MaxFrameSize = 10 * 1024 * 1024
	// DefaultConnectionTimeout bounds the WebSocket dial and upgrade.
	DefaultConnectionTimeout = 15 * time.Second
	// DefaultReconnectDelay is the fixed wait before redialing after an abnormal close.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultPingInterval is the notification socket keep-alive period.
	DefaultPingInterval = 30 * time.Second
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second
)

// Close codes used by the chat server.
const (
	CloseNormal       = 1000
	CloseGoingAway    = 1001
	CloseAbnormal     = 1006
	CloseUnauthorized = 4001
)

// Chat socket action_type values.
const (
	ActionSend            = "send"
	ActionNewMessage      = "new_message"
	ActionEdit            = "edit"
	ActionDelete          = "delete"
	ActionTyping          = "typing"
	ActionStopTyping      = "stop_typing"
	ActionTypingIndicator = "typing_indicator"
	ActionMarkRead        = "mark_read"
	ActionReadReceipt     = "read_receipt"
)

// Notification socket type values.
const (
	TypePing                    = "ping"
	TypePong                    = "pong"
	TypeRequestCounts           = "request_counts"
	TypeNotificationCountUpdate = "notification_count_update"
	TypeConversationUpdate      = "conversation_update"
	TypeConversationDelete      = "conversation_delete"
)

// FrameKind classifies an inbound frame from either socket.
type FrameKind string

const (
	KindNewMessage      FrameKind = "new_message"
	KindEdit            FrameKind = "edit"
	KindDelete          FrameKind = "delete"
	KindTyping          FrameKind = "typing_indicator"
	KindReadReceipt     FrameKind = "read_receipt"
	KindError           FrameKind = "error"
	KindCountUpdate     FrameKind = "notification_count_update"
	KindConversation    FrameKind = "conversation_update"
	KindConversationDel FrameKind = "conversation_delete"
	KindPong            FrameKind = "pong"
	KindUnknown         FrameKind = "unknown"
)

var (
	// ErrInvalidFrame indicates a payload that is not a JSON object.
	ErrInvalidFrame = errors.New("network: invalid frame")
	// ErrFrameTooLarge indicates an outbound payload exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("network: frame exceeds max size")
)

// envelope carries the fields DecodeFrameKind inspects.
type envelope struct {
	ActionType string          `json:"action_type"`
	Type       string          `json:"type"`
	Error      json.RawMessage `json:"error"`
	ID         json.RawMessage `json:"id"`
	Content    json.RawMessage `json:"content"`
}

// DecodeFrameKind classifies a frame. The chat socket tags frames with
// action_type, the notification socket with type. Untagged frames with an
// error field are errors; untagged frames carrying an id or content are new
// messages.
func DecodeFrameKind(payload []byte) (FrameKind, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return KindUnknown, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	switch env.ActionType {
	case ActionNewMessage:
		return KindNewMessage, nil
	case ActionEdit:
		return KindEdit, nil
	case ActionDelete:
		return KindDelete, nil
	case ActionTypingIndicator:
		return KindTyping, nil
	case ActionReadReceipt:
		return KindReadReceipt, nil
	case "":
	default:
		return KindUnknown, nil
	}

	switch env.Type {
	case TypePong:
		return KindPong, nil
	case TypeNotificationCountUpdate:
		return KindCountUpdate, nil
	case TypeConversationUpdate:
		return KindConversation, nil
	case TypeConversationDelete:
		return KindConversationDel, nil
	}

	if present(env.Error) {
		return KindError, nil
	}
	if present(env.ID) || present(env.Content) {
		return KindNewMessage, nil
	}
	return KindUnknown, nil
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// EncodeJSON marshals a frame.
func EncodeJSON(frame any) ([]byte, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return payload, nil
}

// Inbound frames.

// EditFrame announces a new content for an existing message.
type EditFrame struct {
	ActionType     string    `json:"action_type"`
	ID             models.ID `json:"id"`
	Content        string    `json:"content"`
	SenderUsername string    `json:"sender_username"`
	Timestamp      string    `json:"timestamp"`
	MessageType    string    `json:"message_type"`
}

// DeleteFrame announces a removed message.
type DeleteFrame struct {
	ActionType     string    `json:"action_type"`
	ID             models.ID `json:"id"`
	SenderUsername string    `json:"sender_username"`
}

// TypingIndicatorFrame reports another participant's typing state.
type TypingIndicatorFrame struct {
	ActionType string `json:"action_type"`
	Username   string `json:"username"`
	IsTyping   bool   `json:"is_typing"`
}

// ReadReceiptFrame reports that a message was read.
type ReadReceiptFrame struct {
	ActionType     string    `json:"action_type"`
	MessageID      models.ID `json:"message_id"`
	ReaderUsername string    `json:"reader_username"`
}

// ErrorFrame is the server's in-band error reply.
type ErrorFrame struct {
	Error string `json:"error"`
}

// CountUpdateFrame pushes fresh unread counters.
type CountUpdateFrame struct {
	Type             string                    `json:"type"`
	NotificationData models.NotificationCounts `json:"notification_data"`
}

// ConversationUpdateFrame pushes a created or changed conversation.
type ConversationUpdateFrame struct {
	Type         string              `json:"type"`
	Conversation models.Conversation `json:"conversation"`
	IsNew        bool                `json:"is_new"`
}

// ConversationDeleteFrame announces a deleted conversation.
type ConversationDeleteFrame struct {
	Type           string    `json:"type"`
	ConversationID models.ID `json:"conversation_id"`
}

// Outbound frames.

// SendFrame posts a new message. It is untagged; the server defaults to send.
type SendFrame struct {
	Content         string `json:"content"`
	SenderUsername  string `json:"sender_username"`
	MessageType     string `json:"message_type"`
	AudioDataBase64 string `json:"audio_data_base64,omitempty"`
}

// EditRequest asks the server to change a message's content.
type EditRequest struct {
	ActionType     string    `json:"action_type"`
	MessageID      models.ID `json:"message_id"`
	Content        string    `json:"content"`
	SenderUsername string    `json:"sender_username"`
}

// DeleteRequest asks the server to remove a message.
type DeleteRequest struct {
	ActionType     string    `json:"action_type"`
	MessageID      models.ID `json:"message_id"`
	SenderUsername string    `json:"sender_username"`
}

// TypingRequest is a typing or stop_typing frame.
type TypingRequest struct {
	ActionType     string `json:"action_type"`
	SenderUsername string `json:"sender_username"`
}

// MarkReadRequest marks a batch of messages read.
type MarkReadRequest struct {
	ActionType     string      `json:"action_type"`
	ReaderUsername string      `json:"reader_username"`
	MessageIDs     []models.ID `json:"message_ids"`
}

// TypeFrame is a bare {"type": ...} frame (ping, request_counts).
type TypeFrame struct {
	Type string `json:"type"`
}

// ChatURL builds the per-conversation socket URL.
func ChatURL(baseWSURL string, conversationID models.ID, token string) (string, error) {
	return endpoint(baseWSURL, "/ws/chat/"+url.PathEscape(conversationID.String())+"/", token)
}

// NotificationsURL builds the per-user notification socket URL.
func NotificationsURL(baseWSURL, token string) (string, error) {
	return endpoint(baseWSURL, "/ws/notifications/", token)
}

func endpoint(baseWSURL, path, token string) (string, error) {
	base, err := url.Parse(strings.TrimRight(baseWSURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse websocket base url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported websocket scheme %q", base.Scheme)
	}

	base.Path = strings.TrimRight(base.Path, "/") + path
	if token != "" {
		q := base.Query()
		q.Set("token", token)
		base.RawQuery = q.Encode()
	}
	return base.String(), nil
}
