package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatline/logging"
	"chatline/models"
	"chatline/network"
)

const (
	DefaultPageSize         = 15
	DefaultTypingIdle       = 3 * time.Second
	DefaultReadReceiptDelay = time.Second

	audioPlaceholder = "Audio message"
)

// HistoryFetcher loads pages of conversation history.
type HistoryFetcher interface {
	Messages(ctx context.Context, id models.ID, page, pageSize int) (*models.MessagePage, error)
}

// EventKind says which part of the room changed.
type EventKind int

const (
	EventMessages EventKind = iota
	EventTyping
	EventStatus
	EventError
)

// Event is emitted whenever room state visible to the user changes.
type Event struct {
	ConversationID models.ID
	Kind           EventKind
}

// RoomOptions configures a Room.
type RoomOptions struct {
	ConversationID models.ID
	Username       string
	History        HistoryFetcher
	// SocketURL resolves the chat socket URL, token included.
	SocketURL        func() (string, error)
	PageSize         int
	ReconnectDelay   time.Duration
	TypingIdle       time.Duration
	ReadReceiptDelay time.Duration
	Connection       network.ConnectionOptions

	// OnEvent must not block; UIs forward it to their event loop.
	OnEvent func(Event)
	// OnNewMessage sees every live message added to the log.
	OnNewMessage func(conversationID models.ID, msg models.Message)
	Logger       *zap.SugaredLogger
}

// Room is one open conversation: its history, live socket and typing state.
type Room struct {
	options RoomOptions
	log     *zap.SugaredLogger

	messages *MessageLog
	typing   *TypingSet
	socket   *network.Socket

	mu          sync.Mutex
	page        int
	hasNext     bool
	loading     bool
	errText     string
	connErr     bool
	status      network.Status
	selfTyping  bool
	typingTimer *time.Timer
	readTimer   *time.Timer
	closed      bool

	closeOnce sync.Once
}

// NewRoom builds an idle Room; call Open to load and connect.
func NewRoom(options RoomOptions) *Room {
	if options.PageSize <= 0 {
		options.PageSize = DefaultPageSize
	}
	if options.TypingIdle <= 0 {
		options.TypingIdle = DefaultTypingIdle
	}
	if options.ReadReceiptDelay <= 0 {
		options.ReadReceiptDelay = DefaultReadReceiptDelay
	}
	if options.ReconnectDelay <= 0 {
		options.ReconnectDelay = network.DefaultReconnectDelay
	}

	r := &Room{
		options:  options,
		log:      logging.OrNop(options.Logger).With("conversation", options.ConversationID.String()),
		messages: NewMessageLog(),
		typing:   NewTypingSet(options.Username),
		status:   network.StatusDisconnected,
	}
	r.socket = network.NewSocket(network.SocketOptions{
		Name:             "chat:" + options.ConversationID.String(),
		URL:              options.SocketURL,
		ReconnectBackoff: []time.Duration{options.ReconnectDelay},
		Connection:       options.Connection,
		OnFrame:          r.handleFrame,
		OnInvalid:        func([]byte, error) { r.setError(ErrParseFrame.Error()) },
		OnStatus:         r.handleStatus,
		OnClose:          r.handleClose,
		Logger:           options.Logger,
	})
	return r
}

// ConversationID returns the room's conversation.
func (r *Room) ConversationID() models.ID {
	return r.options.ConversationID
}

// Open loads the newest page and connects the socket. A failed first dial is
// returned, but the socket keeps retrying in the background.
func (r *Room) Open(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	r.page = 1
	r.hasNext = false
	r.loading = true
	r.mu.Unlock()

	page, fetchErr := r.options.History.Messages(ctx, r.options.ConversationID, 1, r.options.PageSize)

	r.mu.Lock()
	r.loading = false
	if fetchErr == nil && page.Pagination != nil {
		r.hasNext = page.Pagination.HasNext
	}
	r.mu.Unlock()

	if fetchErr != nil {
		r.log.Warnw("fetch messages failed", "error", fetchErr)
		r.setError(ErrFetchMessages.Error())
	} else {
		r.messages.Replace(page.Messages)
		r.emit(EventMessages)
		r.scheduleReadReceipts()
	}

	if err := r.socket.Start(); err != nil {
		r.log.Warnw("chat socket dial failed", "error", err)
		if fetchErr != nil {
			return errors.Join(fmt.Errorf("%w: %v", ErrFetchMessages, fetchErr), err)
		}
		return fmt.Errorf("connect chat socket: %w", err)
	}
	if fetchErr != nil {
		return fmt.Errorf("%w: %v", ErrFetchMessages, fetchErr)
	}
	return nil
}

// LoadOlder prepends the next page of history. It returns how many messages
// were added; zero with a nil error means there is nothing older.
func (r *Room) LoadOlder(ctx context.Context) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrRoomClosed
	}
	if !r.hasNext || r.loading {
		r.mu.Unlock()
		return 0, nil
	}
	r.loading = true
	next := r.page + 1
	r.mu.Unlock()

	page, err := r.options.History.Messages(ctx, r.options.ConversationID, next, r.options.PageSize)

	r.mu.Lock()
	r.loading = false
	if err == nil {
		r.page = next
		r.hasNext = page.Pagination != nil && page.Pagination.HasNext
	}
	r.mu.Unlock()

	if err != nil {
		r.log.Warnw("load older failed", "page", next, "error", err)
		r.setError(ErrLoadOlder.Error())
		return 0, fmt.Errorf("%w: %v", ErrLoadOlder, err)
	}

	added := r.messages.PrependOlder(page.Messages)
	if added > 0 {
		r.emit(EventMessages)
		r.scheduleReadReceipts()
	}
	return added, nil
}

// Send posts a text message over the socket.
func (r *Room) Send(text string) error {
	content := strings.TrimSpace(text)
	if content == "" {
		return ErrEmptyMessage
	}
	return r.send(network.SendFrame{
		Content:        content,
		SenderUsername: r.options.Username,
		MessageType:    models.MessageTypeText,
	})
}

// SendAudio posts an audio clip over the socket.
func (r *Room) SendAudio(clip []byte) error {
	if len(clip) == 0 {
		return ErrEmptyMessage
	}
	return r.send(network.SendFrame{
		Content:         audioPlaceholder,
		SenderUsername:  r.options.Username,
		MessageType:     models.MessageTypeAudio,
		AudioDataBase64: base64.StdEncoding.EncodeToString(clip),
	})
}

// Edit changes one of the user's text messages.
func (r *Room) Edit(id models.ID, text string) error {
	msg, err := r.ownMessage(id)
	if err != nil {
		return err
	}
	if msg.Kind() != models.MessageTypeText {
		r.setError(ErrEditNonText.Error())
		return ErrEditNonText
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return ErrEmptyMessage
	}
	return r.send(network.EditRequest{
		ActionType:     network.ActionEdit,
		MessageID:      id,
		Content:        content,
		SenderUsername: r.options.Username,
	})
}

// Delete removes one of the user's messages.
func (r *Room) Delete(id models.ID) error {
	if _, err := r.ownMessage(id); err != nil {
		return err
	}
	return r.send(network.DeleteRequest{
		ActionType:     network.ActionDelete,
		MessageID:      id,
		SenderUsername: r.options.Username,
	})
}

// Typing is called on every keystroke. The first one sends typing; stop_typing
// follows once keystrokes pause for the idle period.
func (r *Room) Typing() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	first := !r.selfTyping
	r.selfTyping = true
	if r.typingTimer != nil {
		r.typingTimer.Stop()
	}
	r.typingTimer = time.AfterFunc(r.options.TypingIdle, r.stopTyping)
	r.mu.Unlock()

	if first {
		r.sendIfConnected(network.TypingRequest{ActionType: network.ActionTyping, SenderUsername: r.options.Username})
	}
}

func (r *Room) stopTyping() {
	r.mu.Lock()
	if !r.selfTyping || r.closed {
		r.mu.Unlock()
		return
	}
	r.selfTyping = false
	r.typingTimer = nil
	r.mu.Unlock()

	r.sendIfConnected(network.TypingRequest{ActionType: network.ActionStopTyping, SenderUsername: r.options.Username})
}

// Close cancels timers and closes the socket with 1000.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		if r.typingTimer != nil {
			r.typingTimer.Stop()
			r.typingTimer = nil
		}
		if r.readTimer != nil {
			r.readTimer.Stop()
			r.readTimer = nil
		}
		r.mu.Unlock()

		r.socket.Stop()
		r.typing.Clear()
	})
}

// Messages returns the current message list, oldest first.
func (r *Room) Messages() []models.Message {
	return r.messages.Messages()
}

// TypingLabel renders the typing indicator line.
func (r *Room) TypingLabel() string {
	return r.typing.Label()
}

// Status returns the connection status label.
func (r *Room) Status() network.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Error returns the current error line, or "".
func (r *Room) Error() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errText
}

// ClearError dismisses the error line.
func (r *Room) ClearError() {
	r.setError("")
}

// HasOlder reports whether older history can be loaded.
func (r *Room) HasOlder() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasNext
}

// Loading reports whether a history fetch is in flight.
func (r *Room) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

func (r *Room) ownMessage(id models.ID) (models.Message, error) {
	msg, ok := r.messages.Get(id)
	if !ok {
		return models.Message{}, ErrUnknownMessage
	}
	if msg.SenderUsername != r.options.Username {
		return models.Message{}, ErrNotOwnMessage
	}
	return msg, nil
}

func (r *Room) send(frame any) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrRoomClosed
	}

	err := r.socket.Send(frame)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, network.ErrNotConnected):
		r.setConnError(ErrNotConnected.Error())
		return ErrNotConnected
	default:
		r.log.Warnw("send failed", "error", err)
		r.setError(ErrSendFailed.Error())
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
}

// sendIfConnected drops the frame when the socket is down, without
// triggering a reconnect.
func (r *Room) sendIfConnected(frame any) {
	if !r.socket.Connected() {
		return
	}
	if err := r.socket.Send(frame); err != nil {
		r.log.Debugw("best-effort send failed", "error", err)
	}
}

// scheduleReadReceipts restarts the read-receipt timer with the current unread
// messages from others.
func (r *Room) scheduleReadReceipts() {
	ids := r.messages.UnreadFrom(r.options.Username)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readTimer != nil {
		r.readTimer.Stop()
		r.readTimer = nil
	}
	if r.closed || len(ids) == 0 {
		return
	}
	r.readTimer = time.AfterFunc(r.options.ReadReceiptDelay, func() {
		r.sendReadReceipts(ids)
	})
}

func (r *Room) sendReadReceipts(ids []models.ID) {
	if !r.socket.Connected() {
		return
	}
	err := r.socket.Send(network.MarkReadRequest{
		ActionType:     network.ActionMarkRead,
		ReaderUsername: r.options.Username,
		MessageIDs:     ids,
	})
	if err != nil {
		r.log.Debugw("mark_read failed", "error", err)
		return
	}
	// Local copies are flagged so the same batch is not re-sent on the next change.
	for _, id := range ids {
		r.messages.MarkRead(id)
	}
}

func (r *Room) handleFrame(kind network.FrameKind, payload []byte) {
	switch kind {
	case network.KindError:
		var frame network.ErrorFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			r.setError(ErrParseFrame.Error())
			return
		}
		r.setError(frame.Error)

	case network.KindEdit:
		var frame network.EditFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			r.setError(ErrParseFrame.Error())
			return
		}
		if r.messages.ApplyEdit(frame.ID, frame.Content) {
			r.emit(EventMessages)
		}

	case network.KindDelete:
		var frame network.DeleteFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			r.setError(ErrParseFrame.Error())
			return
		}
		if r.messages.Remove(frame.ID) {
			r.emit(EventMessages)
			r.scheduleReadReceipts()
		}

	case network.KindTyping:
		var frame network.TypingIndicatorFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			r.setError(ErrParseFrame.Error())
			return
		}
		if r.typing.Apply(frame.Username, frame.IsTyping) {
			r.emit(EventTyping)
		}

	case network.KindReadReceipt:
		var frame network.ReadReceiptFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			r.setError(ErrParseFrame.Error())
			return
		}
		if frame.ReaderUsername == r.options.Username {
			return
		}
		if r.messages.MarkRead(frame.MessageID) {
			r.emit(EventMessages)
		}

	case network.KindNewMessage:
		var msg models.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			r.setError(ErrParseFrame.Error())
			return
		}
		if msg.MessageType == "" {
			msg.MessageType = models.MessageTypeText
		}
		stored, added := r.messages.Append(msg)
		if !added {
			return
		}
		r.emit(EventMessages)
		if r.options.OnNewMessage != nil {
			r.options.OnNewMessage(r.options.ConversationID, stored)
		}
		r.scheduleReadReceipts()

	default:
		r.log.Debugw("ignoring frame", "kind", kind)
	}
}

func (r *Room) handleStatus(status network.Status) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
	r.emit(EventStatus)

	switch status {
	case network.StatusConnected:
		r.mu.Lock()
		stale := r.connErr
		r.mu.Unlock()
		if stale {
			r.setError("")
		}
		r.scheduleReadReceipts()
	case network.StatusError:
		r.setConnError(ErrConnection.Error())
	}
}

func (r *Room) handleClose(code int, _ error) {
	if code == network.CloseNormal {
		return
	}
	r.setConnError(fmt.Sprintf("Connection closed unexpectedly (Code: %d)", code))
}

func (r *Room) setError(text string) {
	r.updateError(text, false)
}

// setConnError records a connection problem; the next successful connect
// clears it.
func (r *Room) setConnError(text string) {
	r.updateError(text, true)
}

func (r *Room) updateError(text string, conn bool) {
	r.mu.Lock()
	changed := r.errText != text
	r.errText = text
	r.connErr = conn && text != ""
	r.mu.Unlock()
	if changed {
		r.emit(EventError)
	}
}

func (r *Room) emit(kind EventKind) {
	if r.options.OnEvent != nil {
		r.options.OnEvent(Event{ConversationID: r.options.ConversationID, Kind: kind})
	}
}
