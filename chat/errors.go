package chat

import "errors"

// User-facing errors. Their text is shown verbatim in the chat view.
var (
	ErrFetchMessages  = errors.New("Failed to fetch messages")
	ErrLoadOlder      = errors.New("Error loading older messages.")
	ErrNotConnected   = errors.New("WebSocket not connected. Attempting to reconnect...")
	ErrConnection     = errors.New("WebSocket connection error")
	ErrParseFrame     = errors.New("Error parsing message from server")
	ErrEditNonText    = errors.New("Only text messages can be edited")
	ErrSendFailed     = errors.New("Failed to send message")
	ErrEmptyMessage   = errors.New("Message cannot be empty")
	ErrUnknownMessage = errors.New("Message not found")
	ErrNotOwnMessage  = errors.New("You can only change your own messages")
	ErrRoomClosed     = errors.New("Conversation closed")
)
