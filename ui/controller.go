// Package ui is the terminal interface: login, conversation list and chat view.
package ui

import (
	"context"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"chatline/api"
	"chatline/app"
	"chatline/chat"
	"chatline/conversations"
	"chatline/models"
	"chatline/network"
	"chatline/notify"
)

type screen int

const (
	screenLogin screen = iota
	screenList
	screenChat
)

type promptKind int

const (
	promptNone promptKind = iota
	promptSearch
	promptPhone
	promptFirstMessage
	promptConfirmDelete
)

type (
	authDoneMsg    struct{ err error }
	sessionUpMsg   struct{ err error }
	listUpdatedMsg struct{}
	listLoadedMsg  struct{ err error }
	roomEventMsg   chat.Event
	roomOpenedMsg  struct {
		room *chat.Room
		err  error
	}
	olderLoadedMsg struct {
		added int
		err   error
	}
	firstMessageMsg struct {
		res *api.FirstMessageResult
		err error
	}
	conversationCreatedMsg struct {
		conv *models.Conversation
		err  error
	}
	conversationRemovedMsg struct{ id models.ID }
	loggedOutMsg           struct{ err error }
	flashMsg               string
)

// Counts and notification status changes arrive as bare signals. Update
// reads the current state, so a late delivery cannot roll it back.
type (
	countsChangedMsg       struct{}
	notifyStatusChangedMsg struct{}
)

// bridge forwards events from socket goroutines into the program. Sends are
// asynchronous so a blocked event loop never stalls a socket.
type bridge struct {
	mu      sync.Mutex
	program *tea.Program
}

func (b *bridge) attach(p *tea.Program) {
	b.mu.Lock()
	b.program = p
	b.mu.Unlock()
}

func (b *bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()
	if p != nil {
		go p.Send(msg)
	}
}

type controller struct {
	ctx    context.Context
	app    *app.App
	log    *zap.SugaredLogger
	bridge *bridge

	screen screen
	width  int
	height int
	flash  string
	busy   bool

	// login
	emailInput    textinput.Model
	passwordInput textinput.Model
	usernameInput textinput.Model
	signup        bool
	loginFocus    int
	loginError    string

	// conversation list
	convs        *conversations.List
	notifier     *notify.Service
	counts       notify.Snapshot
	notifyStatus network.Status
	stopCounts   func()
	selected     int
	prompt       promptKind
	promptInput  textinput.Model
	searchTerm   string
	pendingPhone string

	// chat
	room         *chat.Room
	roomConv     models.Conversation
	messageInput textinput.Model
	transcript   viewport.Model
	selectMode   bool
	selectedMsg  int
	editing      models.ID
}

func newController(ctx context.Context, a *app.App, b *bridge) *controller {
	email := textinput.New()
	email.Placeholder = "Email"
	email.CharLimit = 254
	email.Width = 36
	email.SetValue(a.Config.Username)
	email.Focus()

	password := textinput.New()
	password.Placeholder = "Password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 128
	password.Width = 36

	username := textinput.New()
	username.Placeholder = "Username"
	username.CharLimit = 64
	username.Width = 36

	prompt := textinput.New()
	prompt.CharLimit = 1000
	prompt.Width = 50

	message := textinput.New()
	message.Placeholder = "Type a message..."
	message.CharLimit = 4000
	message.Width = 60

	return &controller{
		ctx:           ctx,
		app:           a,
		log:           a.Logger.Named("ui"),
		bridge:        b,
		screen:        screenLogin,
		emailInput:    email,
		passwordInput: password,
		usernameInput: username,
		promptInput:   prompt,
		messageInput:  message,
		transcript:    viewport.New(80, 20),
		notifyStatus:  network.StatusDisconnected,
		selectedMsg:   -1,
	}
}

// Run starts the TUI and blocks until the user quits.
func Run(ctx context.Context, a *app.App) error {
	b := &bridge{}
	c := newController(ctx, a, b)
	p := tea.NewProgram(c, tea.WithAltScreen(), tea.WithContext(ctx))
	b.attach(p)

	_, err := p.Run()
	c.shutdown()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *controller) Init() tea.Cmd {
	if c.app.Session.Authenticated() {
		c.busy = true
		return tea.Batch(textinput.Blink, c.startSession())
	}
	return textinput.Blink
}

func (c *controller) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		c.layout()
		return c, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return c, tea.Quit
		}
		switch c.screen {
		case screenLogin:
			return c.updateLogin(msg)
		case screenList:
			return c.updateList(msg)
		case screenChat:
			return c.updateChat(msg)
		}

	case authDoneMsg:
		c.busy = false
		if msg.err != nil {
			c.loginError = api.Message(msg.err, msg.err.Error())
			return c, nil
		}
		c.loginError = ""
		c.passwordInput.SetValue("")
		c.busy = true
		return c, c.startSession()

	case sessionUpMsg:
		c.busy = false
		c.screen = screenList
		if msg.err != nil {
			c.flash = msg.err.Error()
		}
		return c, nil

	case listLoadedMsg:
		c.busy = false
		if msg.err != nil {
			c.flash = msg.err.Error()
		}
		c.clampSelection()
		return c, nil

	case listUpdatedMsg:
		c.clampSelection()
		return c, nil

	case countsChangedMsg:
		if c.convs != nil {
			c.counts = c.app.Counts.Snapshot()
		}
		return c, nil

	case notifyStatusChangedMsg:
		if c.notifier != nil {
			c.notifyStatus = c.notifier.Status()
		}
		return c, nil

	case conversationRemovedMsg:
		if c.room != nil && c.room.ConversationID() == msg.id {
			c.closeRoom()
			c.flash = "This conversation was deleted"
		}
		c.clampSelection()
		return c, nil

	case loggedOutMsg:
		c.teardownSession()
		c.screen = screenLogin
		c.emailInput.Focus()
		if msg.err != nil {
			c.loginError = msg.err.Error()
		}
		return c, nil

	case flashMsg:
		c.flash = string(msg)
		return c, nil
	}

	if c.screen == screenChat {
		return c.updateChatAsync(msg)
	}
	return c, c.updateListAsync(msg)
}

func (c *controller) View() string {
	var body string
	switch c.screen {
	case screenLogin:
		body = c.viewLogin()
	case screenList:
		body = c.viewList()
	case screenChat:
		body = c.viewChat()
	}
	if c.width > 0 {
		return lipgloss.NewStyle().MaxWidth(c.width).Render(body)
	}
	return body
}

func (c *controller) layout() {
	w := max(c.width-2, 20)
	h := max(c.height-8, 3)
	c.transcript.Width = w
	c.transcript.Height = h
	c.messageInput.Width = max(w-4, 10)
	c.promptInput.Width = max(w-20, 10)
	c.refreshTranscript(false)
}

// startSession connects the notifications socket and loads the first page of
// conversations.
func (c *controller) startSession() tea.Cmd {
	b := c.bridge
	convs := c.app.NewConversationList(func() { b.send(listUpdatedMsg{}) })
	notifier := c.app.NewNotifier(app.NotifierHooks{
		OnConversationUpdate: func(conv models.Conversation, _ bool) {
			convs.Upsert(conv)
		},
		OnConversationDelete: func(id models.ID) {
			convs.Remove(id)
			b.send(conversationRemovedMsg{id: id})
		},
		OnStatus: func(network.Status) { b.send(notifyStatusChangedMsg{}) },
	})
	c.convs, c.notifier = convs, notifier

	updates, cancel := c.app.Counts.Subscribe()
	c.stopCounts = cancel
	go func() {
		for range updates {
			b.send(countsChangedMsg{})
		}
	}()

	ctx, log := c.ctx, c.log
	return func() tea.Msg {
		if err := convs.Load(ctx); err != nil {
			_ = notifier.Start()
			return sessionUpMsg{err: err}
		}
		if err := notifier.Start(); err != nil {
			log.Warnw("notifications unavailable", "error", err)
		}
		return sessionUpMsg{}
	}
}

func (c *controller) teardownSession() {
	c.closeRoom()
	if c.notifier != nil {
		c.notifier.Stop()
		c.notifier = nil
	}
	if c.stopCounts != nil {
		c.stopCounts()
		c.stopCounts = nil
	}
	c.convs = nil
	c.counts = notify.Snapshot{}
	c.notifyStatus = network.StatusDisconnected
	c.selected = 0
	c.prompt = promptNone
	c.searchTerm = ""
}

func (c *controller) shutdown() {
	c.teardownSession()
}

func (c *controller) logout() tea.Cmd {
	c.busy = true
	s := c.app.Session
	ctx := c.ctx
	return func() tea.Msg {
		return loggedOutMsg{err: s.Logout(ctx)}
	}
}
