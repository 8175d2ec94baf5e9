package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/api"
	"chatline/models"
)

type fakeSender struct {
	got []api.FirstMessage
	res *api.FirstMessageResult
	err error
}

func (f *fakeSender) SendFirstMessage(_ context.Context, msg api.FirstMessage) (*api.FirstMessageResult, error) {
	f.got = append(f.got, msg)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func TestComposerSendText(t *testing.T) {
	sender := &fakeSender{res: &api.FirstMessageResult{
		Message:           models.Message{ID: "1", Content: "hello"},
		ConversationID:    "42",
		IsNewConversation: true,
	}}
	composer := NewComposer(sender, "me", " +15550100 ")
	assert.Equal(t, "+15550100", composer.Recipient())

	res, err := composer.Send(context.Background(), " hello ")
	require.NoError(t, err)
	assert.Equal(t, models.ID("42"), res.ConversationID)
	assert.Equal(t, "me", res.Message.SenderUsername)

	require.Len(t, sender.got, 1)
	assert.Equal(t, "hello", sender.got[0].Content)
	assert.Equal(t, models.MessageTypeText, sender.got[0].MessageType)
	assert.Equal(t, "+15550100", sender.got[0].RecipientPhone)
}

func TestComposerSendAudio(t *testing.T) {
	sender := &fakeSender{res: &api.FirstMessageResult{ConversationID: "7"}}
	composer := NewComposer(sender, "me", "+15550100")

	_, err := composer.SendAudio(context.Background(), []byte{0xde, 0xad})
	require.NoError(t, err)
	require.Len(t, sender.got, 1)
	assert.Equal(t, "Audio message", sender.got[0].Content)
	assert.Equal(t, models.MessageTypeAudio, sender.got[0].MessageType)
	assert.Equal(t, "3q0=", sender.got[0].AudioDataBase64)
}

func TestComposerRejectsEmptyInput(t *testing.T) {
	sender := &fakeSender{}
	composer := NewComposer(sender, "me", "+15550100")

	_, err := composer.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = composer.SendAudio(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = NewComposer(sender, "me", "").Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Empty(t, sender.got)
}

func TestComposerWrapsServerErrors(t *testing.T) {
	sender := &fakeSender{err: &api.Error{Status: 404, Message: "Recipient not found"}}
	composer := NewComposer(sender, "me", "+15550100")

	_, err := composer.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSendFailed))
	assert.Contains(t, err.Error(), "Recipient not found")
}
