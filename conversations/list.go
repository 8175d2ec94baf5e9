// Package conversations caches the user's conversation list and folds live
// socket updates into it.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatline/api"
	"chatline/logging"
	"chatline/models"
)

const (
	DefaultPageSize   = 8
	DefaultStaleAfter = time.Second
)

var (
	ErrFetch  = errors.New("Failed to load conversations")
	ErrDelete = errors.New("Failed to delete conversation")
	ErrCreate = errors.New("Failed to create conversation")
)

// Source is the REST surface the list reads and writes through.
type Source interface {
	Conversations(ctx context.Context, page, pageSize int) (*models.ConversationPage, error)
	CreateConversation(ctx context.Context, recipientPhone string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id models.ID) error
}

// Options configures a List.
type Options struct {
	Source Source
	// Username is the signed-in user; filtering matches the other participant.
	Username   string
	PageSize   int
	StaleAfter time.Duration
	// OnChange must not block.
	OnChange func()
	Logger   *zap.SugaredLogger
}

// List is the paged conversation list, most recently active first.
type List struct {
	options Options
	log     *zap.SugaredLogger
	now     func() time.Time

	mu        sync.Mutex
	items     []models.Conversation
	pages     int
	hasNext   bool
	fetchedAt time.Time
	loading   bool
	errText   string
}

// New returns an empty, stale List.
func New(options Options) *List {
	if options.PageSize <= 0 {
		options.PageSize = DefaultPageSize
	}
	if options.StaleAfter <= 0 {
		options.StaleAfter = DefaultStaleAfter
	}
	return &List{
		options: options,
		log:     logging.OrNop(options.Logger).With("component", "conversations"),
		now:     time.Now,
	}
}

// Load always refetches the first page and drops anything loaded after it.
func (l *List) Load(ctx context.Context) error {
	page, err := l.fetch(ctx, 1)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.items = dedup(page.Conversations)
	l.pages = 1
	l.hasNext = page.Pagination != nil && page.Pagination.HasNext
	l.fetchedAt = l.now()
	l.mu.Unlock()

	l.changed()
	return nil
}

// LoadMore appends the next page. It is a no-op when there is nothing left.
func (l *List) LoadMore(ctx context.Context) error {
	l.mu.Lock()
	if !l.hasNext || l.loading {
		l.mu.Unlock()
		return nil
	}
	next := l.pages + 1
	l.mu.Unlock()

	page, err := l.fetch(ctx, next)
	if err != nil {
		return err
	}

	l.mu.Lock()
	for _, conv := range page.Conversations {
		if l.indexLocked(conv.ID) < 0 {
			l.items = append(l.items, conv)
		}
	}
	l.pages = next
	l.hasNext = page.Pagination != nil && page.Pagination.HasNext
	l.fetchedAt = l.now()
	l.mu.Unlock()

	l.changed()
	return nil
}

// Invalidate refetches every page loaded so far.
func (l *List) Invalidate(ctx context.Context) error {
	l.mu.Lock()
	pages := max(1, l.pages)
	l.mu.Unlock()

	var items []models.Conversation
	hasNext := false
	loaded := 0
	for p := 1; p <= pages; p++ {
		page, err := l.fetch(ctx, p)
		if err != nil {
			return err
		}
		items = append(items, page.Conversations...)
		loaded = p
		hasNext = page.Pagination != nil && page.Pagination.HasNext
		if !hasNext {
			break
		}
	}

	l.mu.Lock()
	l.items = dedup(items)
	l.pages = loaded
	l.hasNext = hasNext
	l.fetchedAt = l.now()
	l.mu.Unlock()

	l.changed()
	return nil
}

// Stale reports whether the cached pages are older than StaleAfter.
func (l *List) Stale() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetchedAt.IsZero() || l.now().Sub(l.fetchedAt) > l.options.StaleAfter
}

// Items returns the cached conversations.
func (l *List) Items() []models.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items)
}

// Get looks up one cached conversation.
func (l *List) Get(id models.ID) (models.Conversation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexLocked(id); i >= 0 {
		return l.items[i], true
	}
	return models.Conversation{}, false
}

// Filter matches term case-insensitively against the other participant's
// username, first name and last name. An empty term returns everything.
func (l *List) Filter(term string) []models.Conversation {
	items := l.Items()
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return items
	}

	out := items[:0]
	for _, conv := range items {
		other, ok := conv.OtherParticipant(l.options.Username)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(other.Username), needle) ||
			strings.Contains(strings.ToLower(other.FirstName), needle) ||
			strings.Contains(strings.ToLower(other.LastName), needle) {
			out = append(out, conv)
		}
	}
	return out
}

// HasMore reports whether LoadMore can fetch another page.
func (l *List) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasNext
}

// Loading reports whether a fetch is in flight.
func (l *List) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Error returns the last error line, or "".
func (l *List) Error() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errText
}

// ApplyNewMessage sets the conversation's preview and moves it to the top.
// It reports false when the conversation is not cached.
func (l *List) ApplyNewMessage(id models.ID, msg models.Message) bool {
	l.mu.Lock()
	i := l.indexLocked(id)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	conv := l.items[i]
	conv.LastMessage = models.LastMessageFrom(msg)
	if !msg.Timestamp.IsZero() {
		conv.UpdatedAt = msg.Timestamp
	}
	l.items = slices.Delete(l.items, i, i+1)
	l.items = slices.Insert(l.items, 0, conv)
	l.mu.Unlock()

	l.changed()
	return true
}

// Upsert replaces a cached conversation in place, or inserts an unknown one
// at the top.
func (l *List) Upsert(conv models.Conversation) {
	l.mu.Lock()
	if i := l.indexLocked(conv.ID); i >= 0 {
		l.items[i] = conv
	} else {
		l.items = slices.Insert(l.items, 0, conv)
	}
	l.mu.Unlock()

	l.changed()
}

// Remove drops a conversation from the cache.
func (l *List) Remove(id models.ID) bool {
	l.mu.Lock()
	i := l.indexLocked(id)
	if i >= 0 {
		l.items = slices.Delete(l.items, i, i+1)
	}
	l.mu.Unlock()

	if i < 0 {
		return false
	}
	l.changed()
	return true
}

// Delete removes a conversation on the server and refetches the list.
func (l *List) Delete(ctx context.Context, id models.ID) error {
	if err := l.options.Source.DeleteConversation(ctx, id); err != nil {
		l.log.Warnw("delete conversation failed", "id", id.String(), "error", err)
		l.setError(api.Message(err, ErrDelete.Error()))
		return fmt.Errorf("%w: %v", ErrDelete, err)
	}
	l.Remove(id)
	return l.Invalidate(ctx)
}

// Create opens, or returns the existing, conversation with a phone number
// and caches it at the top.
func (l *List) Create(ctx context.Context, recipientPhone string) (*models.Conversation, error) {
	phone := strings.TrimSpace(recipientPhone)
	if phone == "" {
		return nil, fmt.Errorf("%w: recipient phone is required", ErrCreate)
	}
	conv, err := l.options.Source.CreateConversation(ctx, phone)
	if err != nil {
		l.setError(api.Message(err, ErrCreate.Error()))
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}
	l.Upsert(*conv)
	return conv, nil
}

func (l *List) fetch(ctx context.Context, page int) (*models.ConversationPage, error) {
	l.mu.Lock()
	l.loading = true
	l.mu.Unlock()

	res, err := l.options.Source.Conversations(ctx, page, l.options.PageSize)

	l.mu.Lock()
	l.loading = false
	if err == nil {
		l.errText = ""
	}
	l.mu.Unlock()

	if err != nil {
		l.log.Warnw("fetch conversations failed", "page", page, "error", err)
		l.setError(ErrFetch.Error())
		l.changed()
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return res, nil
}

func (l *List) indexLocked(id models.ID) int {
	return slices.IndexFunc(l.items, func(c models.Conversation) bool { return c.ID == id })
}

func (l *List) setError(text string) {
	l.mu.Lock()
	l.errText = text
	l.mu.Unlock()
}

func (l *List) changed() {
	if l.options.OnChange != nil {
		l.options.OnChange()
	}
}

func dedup(in []models.Conversation) []models.Conversation {
	seen := make(map[models.ID]struct{}, len(in))
	out := make([]models.Conversation, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
