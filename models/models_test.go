package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDDecodesNumbersAndStrings(t *testing.T) {
	var frame struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":42,"b":"42","c":null}`), &frame))

	assert.Equal(t, ID("42"), frame.A)
	assert.Equal(t, frame.A, frame.B)
	assert.Equal(t, ID(""), frame.C)
}

func TestIDEncodesNumericAsNumber(t *testing.T) {
	raw, err := json.Marshal(map[string]ID{"n": "17", "s": "tmp-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":17,"s":"tmp-1"}`, string(raw))
}

func TestIDEncodesNonCanonicalDigitsAsString(t *testing.T) {
	raw, err := json.Marshal(map[string]ID{
		"zero": "0", "neg": "-3", "padded": "007", "plus": "+5", "negzero": "-0", "word": "abc",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"zero":0,"neg":-3,"padded":"007","plus":"+5","negzero":"-0","word":"abc"}`, string(raw))

	raw, err = json.Marshal(Message{ID: "007", Content: "hi"})
	require.NoError(t, err)
	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, ID("007"), back.ID)
}

func TestOtherParticipantFallsBackToFirst(t *testing.T) {
	conv := Conversation{Participants: []User{{Username: "me"}, {Username: "bob"}}}
	other, ok := conv.OtherParticipant("me")
	require.True(t, ok)
	assert.Equal(t, "bob", other.Username)

	self := Conversation{Participants: []User{{Username: "me"}}}
	other, ok = self.OtherParticipant("me")
	require.True(t, ok)
	assert.Equal(t, "me", other.Username)

	_, ok = Conversation{}.OtherParticipant("me")
	assert.False(t, ok)
}

func TestUserDisplayNameAndInitials(t *testing.T) {
	u := User{Username: "jdoe", FirstName: "Jane", LastName: "Doe"}
	assert.Equal(t, "Jane Doe", u.DisplayName())
	assert.Equal(t, "JD", u.Initials())

	bare := User{Username: "zed"}
	assert.Equal(t, "zed", bare.DisplayName())
	assert.Equal(t, "Z", bare.Initials())
}

func TestPaginationTotalItems(t *testing.T) {
	assert.Equal(t, 30, Pagination{TotalMessages: 30}.TotalItems())
	assert.Equal(t, 9, Pagination{TotalConversations: 9}.TotalItems())
}

func TestMessageKindDefaultsToText(t *testing.T) {
	assert.Equal(t, MessageTypeText, Message{}.Kind())
	assert.True(t, Message{MessageType: MessageTypeAudio}.IsAudio())
}
