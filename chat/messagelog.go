package chat

import (
	"sync"

	"github.com/google/uuid"

	"chatline/models"
)

// MessageLog is the ordered message list of one conversation, oldest first.
// Ids are unique within the log.
type MessageLog struct {
	mu       sync.RWMutex
	messages []models.Message
	index    map[models.ID]int
}

// NewMessageLog returns an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{index: make(map[models.ID]int)}
}

// Replace discards the log and loads the first page.
func (l *MessageLog) Replace(page []models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = l.messages[:0]
	l.index = make(map[models.ID]int, len(page))
	for _, msg := range page {
		msg = withID(msg)
		if _, dup := l.index[msg.ID]; dup {
			continue
		}
		l.index[msg.ID] = len(l.messages)
		l.messages = append(l.messages, msg)
	}
}

// PrependOlder inserts an older page ahead of the current messages, skipping
// ids already present. It returns the number of messages added.
func (l *MessageLog) PrependOlder(page []models.Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	older := make([]models.Message, 0, len(page))
	seen := make(map[models.ID]struct{}, len(page))
	for _, msg := range page {
		msg = withID(msg)
		if _, dup := l.index[msg.ID]; dup {
			continue
		}
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		older = append(older, msg)
	}
	if len(older) == 0 {
		return 0
	}

	l.messages = append(older, l.messages...)
	l.reindex()
	return len(older)
}

// Append adds a live message at the end unless its id is already present.
// It returns the stored message and whether it was added.
func (l *MessageLog) Append(msg models.Message) (models.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg = withID(msg)
	if _, dup := l.index[msg.ID]; dup {
		return msg, false
	}
	l.index[msg.ID] = len(l.messages)
	l.messages = append(l.messages, msg)
	return msg, true
}

// ApplyEdit replaces a message's content.
func (l *MessageLog) ApplyEdit(id models.ID, content string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.messages[i].Content = content
	return true
}

// Remove drops a message.
func (l *MessageLog) Remove(id models.ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.messages = append(l.messages[:i], l.messages[i+1:]...)
	l.reindex()
	return true
}

// MarkRead flags a message as read. It reports whether anything changed.
func (l *MessageLog) MarkRead(id models.ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok || l.messages[i].IsRead {
		return false
	}
	l.messages[i].IsRead = true
	return true
}

// UnreadFrom returns ids of unread messages not sent by self, oldest first.
func (l *MessageLog) UnreadFrom(self string) []models.ID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var ids []models.ID
	for _, msg := range l.messages {
		if msg.SenderUsername != self && !msg.IsRead {
			ids = append(ids, msg.ID)
		}
	}
	return ids
}

// Get returns one message by id.
func (l *MessageLog) Get(id models.ID) (models.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[id]
	if !ok {
		return models.Message{}, false
	}
	return l.messages[i], true
}

// Messages returns a copy of the log.
func (l *MessageLog) Messages() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Message(nil), l.messages...)
}

// Len returns the number of messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Last returns the newest message.
func (l *MessageLog) Last() (models.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return models.Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

func (l *MessageLog) reindex() {
	l.index = make(map[models.ID]int, len(l.messages))
	for i, msg := range l.messages {
		l.index[msg.ID] = i
	}
}

// withID gives id-less messages a local id so they are never merged.
func withID(msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = models.ID("local-" + uuid.NewString())
	}
	return msg
}
