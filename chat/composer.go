package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"chatline/api"
	"chatline/models"
)

// FirstMessageSender posts a message by phone number.
type FirstMessageSender interface {
	SendFirstMessage(ctx context.Context, msg api.FirstMessage) (*api.FirstMessageResult, error)
}

// Composer sends the first message to a phone number that has no open
// conversation yet. The result names the conversation to open as a Room.
type Composer struct {
	sender FirstMessageSender
	self   string
	phone  string
}

// NewComposer targets recipientPhone on behalf of self.
func NewComposer(sender FirstMessageSender, self, recipientPhone string) *Composer {
	return &Composer{sender: sender, self: self, phone: strings.TrimSpace(recipientPhone)}
}

// Recipient returns the target phone number.
func (c *Composer) Recipient() string {
	return c.phone
}

// Send posts a text message.
func (c *Composer) Send(ctx context.Context, text string) (*api.FirstMessageResult, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	return c.post(ctx, api.FirstMessage{
		RecipientPhone: c.phone,
		Content:        content,
		MessageType:    models.MessageTypeText,
	})
}

// SendAudio posts an audio clip.
func (c *Composer) SendAudio(ctx context.Context, clip []byte) (*api.FirstMessageResult, error) {
	if len(clip) == 0 {
		return nil, ErrEmptyMessage
	}
	return c.post(ctx, api.FirstMessage{
		RecipientPhone:  c.phone,
		Content:         audioPlaceholder,
		MessageType:     models.MessageTypeAudio,
		AudioDataBase64: base64.StdEncoding.EncodeToString(clip),
	})
}

func (c *Composer) post(ctx context.Context, msg api.FirstMessage) (*api.FirstMessageResult, error) {
	if c.phone == "" {
		return nil, fmt.Errorf("%w: recipient phone is required", ErrSendFailed)
	}
	res, err := c.sender.SendFirstMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSendFailed, api.Message(err, err.Error()))
	}
	if res.Message.SenderUsername == "" {
		res.Message.SenderUsername = c.self
	}
	return res, nil
}
