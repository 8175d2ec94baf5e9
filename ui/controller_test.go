package ui

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatline/app"
	"chatline/config"
	"chatline/conversations"
	"chatline/models"
	"chatline/network"
	"chatline/notify"
	"chatline/session"
)

type stubSource struct {
	mu      sync.Mutex
	convs   []models.Conversation
	deleted []models.ID
}

func (s *stubSource) Conversations(_ context.Context, page, pageSize int) (*models.ConversationPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page > 1 {
		return &models.ConversationPage{Pagination: &models.Pagination{Page: page, PageSize: pageSize}}, nil
	}
	return &models.ConversationPage{
		Conversations: append([]models.Conversation(nil), s.convs...),
		Pagination:    &models.Pagination{Page: 1, PageSize: pageSize},
	}, nil
}

func (s *stubSource) CreateConversation(_ context.Context, phone string) (*models.Conversation, error) {
	return &models.Conversation{ID: "99", Participants: []models.User{{Username: "alice"}, {Username: phone}}}, nil
}

func (s *stubSource) DeleteConversation(_ context.Context, id models.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	kept := s.convs[:0]
	for _, conv := range s.convs {
		if conv.ID != id {
			kept = append(kept, conv)
		}
	}
	s.convs = kept
	return nil
}

func conversationWith(id models.ID, other models.User) models.Conversation {
	return models.Conversation{ID: id, Participants: []models.User{{Username: "alice"}, other}}
}

func newTestController(t *testing.T, src *stubSource) *controller {
	t.Helper()
	log := zap.NewNop().Sugar()
	counts := notify.NewCounts()
	a := &app.App{
		Config:  &config.ClientConfig{},
		Session: session.New(nil, log, counts),
		Counts:  counts,
		Logger:  log,
	}
	c := newController(context.Background(), a, &bridge{})
	c.screen = screenList
	c.convs = conversations.New(conversations.Options{Source: src, Username: "alice"})
	require.NoError(t, c.convs.Load(context.Background()))
	return c
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(c *controller, text string) {
	for _, r := range text {
		c.Update(key(string(r)))
	}
}

func sampleSource() *stubSource {
	return &stubSource{convs: []models.Conversation{
		conversationWith("1", models.User{Username: "bob", FirstName: "Bob"}),
		conversationWith("2", models.User{Username: "carol", LastName: "Jones"}),
		conversationWith("3", models.User{Username: "dave"}),
	}}
}

func TestListSelectionStaysInRange(t *testing.T) {
	c := newTestController(t, sampleSource())

	c.Update(key("up"))
	assert.Equal(t, 0, c.selected)

	for range 5 {
		c.Update(key("down"))
	}
	assert.Equal(t, 2, c.selected)

	c.Update(key("k"))
	assert.Equal(t, 1, c.selected)
}

func TestListSearchNarrowsAndEscClears(t *testing.T) {
	c := newTestController(t, sampleSource())

	c.Update(key("/"))
	require.Equal(t, promptSearch, c.prompt)
	typeText(c, "jon")

	visible := c.visibleConversations()
	require.Len(t, visible, 1)
	assert.Equal(t, models.ID("2"), visible[0].ID)

	c.Update(key("esc"))
	assert.Equal(t, promptNone, c.prompt)
	assert.Empty(t, c.searchTerm)
	assert.Len(t, c.visibleConversations(), 3)
}

func TestListSearchWithNoMatchesShowsHint(t *testing.T) {
	c := newTestController(t, sampleSource())

	c.Update(key("/"))
	typeText(c, "zzz")
	c.Update(key("enter"))

	assert.Equal(t, "zzz", c.searchTerm)
	assert.Contains(t, c.View(), "No conversations found")
}

func TestListDeleteNeedsConfirmation(t *testing.T) {
	src := sampleSource()
	c := newTestController(t, src)
	c.Update(key("down"))

	c.Update(key("d"))
	require.Equal(t, promptConfirmDelete, c.prompt)
	typeText(c, "n")
	_, cmd := c.Update(key("enter"))
	assert.Nil(t, cmd)
	assert.Empty(t, src.deleted)

	c.Update(key("d"))
	typeText(c, "y")
	_, cmd = c.Update(key("enter"))
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, listLoadedMsg{}, msg)
	assert.NoError(t, msg.(listLoadedMsg).err)
	assert.Equal(t, []models.ID{"2"}, src.deleted)

	c.Update(msg)
	assert.False(t, c.busy)
	assert.Len(t, c.visibleConversations(), 2)
}

func TestListNewConversationPromptsForPhoneThenMessage(t *testing.T) {
	c := newTestController(t, sampleSource())

	c.Update(key("n"))
	require.Equal(t, promptPhone, c.prompt)
	typeText(c, "+15550100")
	c.Update(key("enter"))

	assert.Equal(t, promptFirstMessage, c.prompt)
	assert.Equal(t, "+15550100", c.pendingPhone)

	_, cmd := c.Update(key("enter"))
	require.NotNil(t, cmd)
	assert.Empty(t, c.pendingPhone)
	assert.True(t, c.busy)

	msg := cmd()
	created, ok := msg.(conversationCreatedMsg)
	require.True(t, ok)
	require.NoError(t, created.err)
	assert.Equal(t, models.ID("99"), created.conv.ID)

	got, ok := c.convs.Get("99")
	require.True(t, ok)
	assert.Equal(t, "+15550100", got.Participants[1].Username)
}

func TestListEmptyPhoneCancelsPrompt(t *testing.T) {
	c := newTestController(t, sampleSource())

	c.Update(key("n"))
	_, cmd := c.Update(key("enter"))
	assert.Nil(t, cmd)
	assert.Equal(t, promptNone, c.prompt)
}

func TestListViewShowsUnreadTotal(t *testing.T) {
	c := newTestController(t, sampleSource())

	c.app.Counts.ReplaceAll(map[string]int{"1": 3})
	c.Update(countsChangedMsg{})
	view := c.View()
	assert.Contains(t, view, "3 unread")
	assert.Contains(t, view, "Bob")
	assert.Contains(t, view, "carol")
}

func TestLateCountSignalsShowLatestTotal(t *testing.T) {
	c := newTestController(t, sampleSource())

	c.app.Counts.ReplaceAll(map[string]int{"1": 5})
	c.app.Counts.ReplaceAll(map[string]int{"1": 2})
	c.Update(countsChangedMsg{})
	c.Update(countsChangedMsg{})
	assert.Equal(t, 2, c.counts.Total)
	assert.Contains(t, c.View(), "2 unread")

	c.app.Counts.ReplaceAll(nil)
	c.Update(countsChangedMsg{})
	assert.NotContains(t, c.View(), "unread")
}

func TestLateStatusSignalReadsNotifier(t *testing.T) {
	c := newTestController(t, sampleSource())
	c.notifier = notify.NewService(notify.ServiceOptions{
		Counts:    c.app.Counts,
		SocketURL: func() (string, error) { return "ws://chat.example.test/ws/notifications/", nil },
	})
	c.notifyStatus = network.StatusConnected

	c.Update(notifyStatusChangedMsg{})
	assert.Equal(t, network.StatusDisconnected, c.notifyStatus)
}

func TestConversationRemovedClampsSelection(t *testing.T) {
	c := newTestController(t, sampleSource())
	c.selected = 2

	require.True(t, c.convs.Remove("3"))
	c.Update(conversationRemovedMsg{id: "3"})
	assert.Equal(t, 1, c.selected)
}

func TestLoginRequiresAllFields(t *testing.T) {
	c := newTestController(t, sampleSource())
	c.screen = screenLogin

	_, cmd := c.Update(key("enter"))
	assert.Nil(t, cmd)
	_, cmd = c.Update(key("enter"))
	assert.Nil(t, cmd)
	assert.Equal(t, "Please fill in all fields", c.loginError)
	assert.False(t, c.busy)
}

func TestLoginToggleSignupAddsUsernameField(t *testing.T) {
	c := newTestController(t, sampleSource())
	c.screen = screenLogin

	assert.Len(t, c.loginInputs(), 2)
	c.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.True(t, c.signup)
	assert.Len(t, c.loginInputs(), 3)
	assert.Equal(t, 0, c.loginFocus)
	assert.Contains(t, c.View(), "Create account")

	c.Update(key("tab"))
	assert.Equal(t, 1, c.loginFocus)
}
