package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRoundTrip(t *testing.T) {
	ts := newWSTestServer(t, func(_ int, conn *websocket.Conn) {
		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, payload); err != nil {
				return
			}
		}
	})

	conn, err := Dial(context.Background(), ts.url(), ConnectionOptions{})
	require.NoError(t, err)
	defer conn.Close(CloseNormal, "")
	assert.Equal(t, StateOpen, conn.State())

	require.NoError(t, conn.Send(TypingRequest{ActionType: ActionTyping, SenderUsername: "me"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	payload, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action_type":"typing","sender_username":"me"}`, string(payload))
}

func TestConnectionRecordsServerCloseCode(t *testing.T) {
	ts := newWSTestServer(t, func(_ int, conn *websocket.Conn) {
		closeWith(conn, CloseUnauthorized)
	})

	conn, err := Dial(context.Background(), ts.url(), ConnectionOptions{})
	require.NoError(t, err)

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not close")
	}
	assert.Equal(t, CloseUnauthorized, conn.CloseCode())
	assert.Equal(t, StateClosed, conn.State())
	assert.Error(t, conn.LastError())
	assert.ErrorIs(t, conn.SendRaw([]byte(`{}`)), ErrNotConnected)
}

func TestConnectionNormalCloseHasNoError(t *testing.T) {
	ts := newWSTestServer(t, func(_ int, conn *websocket.Conn) {
		closeWith(conn, CloseNormal)
	})

	conn, err := Dial(context.Background(), ts.url(), ConnectionOptions{})
	require.NoError(t, err)
	<-conn.Done()
	assert.Equal(t, CloseNormal, conn.CloseCode())
	assert.NoError(t, conn.LastError())
}

func TestConnectionKeepAliveSendsPingAndSwallowsPong(t *testing.T) {
	pings := make(chan string, 4)
	ts := newWSTestServer(t, func(_ int, conn *websocket.Conn) {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case pings <- string(payload):
			default:
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notification_count_update","notification_data":{"total_unread_count":1}}`))
		}
	})

	conn, err := Dial(context.Background(), ts.url(), ConnectionOptions{PingInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer conn.Close(CloseNormal, "")

	select {
	case got := <-pings:
		assert.JSONEq(t, `{"type":"ping"}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no ping sent")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	payload, err := conn.Receive(ctx)
	require.NoError(t, err)
	kind, err := DecodeFrameKind(payload)
	require.NoError(t, err)
	assert.Equal(t, KindCountUpdate, kind)
}

func TestDialHandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), ConnectionOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHandshakeRejected))

	var hsErr *HandshakeError
	require.True(t, errors.As(err, &hsErr))
	assert.Equal(t, http.StatusForbidden, hsErr.StatusCode)
	assert.Equal(t, CloseUnauthorized, dialCloseCode(err))
}
