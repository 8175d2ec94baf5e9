package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"chatline/models"
	"chatline/network"
)

func (c *controller) visibleConversations() []models.Conversation {
	if c.convs == nil {
		return nil
	}
	return c.convs.Filter(c.searchTerm)
}

func (c *controller) clampSelection() {
	n := len(c.visibleConversations())
	if c.selected >= n {
		c.selected = n - 1
	}
	if c.selected < 0 {
		c.selected = 0
	}
}

func (c *controller) selectedConversation() (models.Conversation, bool) {
	items := c.visibleConversations()
	if c.selected < 0 || c.selected >= len(items) {
		return models.Conversation{}, false
	}
	return items[c.selected], true
}

func (c *controller) openPrompt(kind promptKind, placeholder, value string) tea.Cmd {
	c.prompt = kind
	c.promptInput.Placeholder = placeholder
	c.promptInput.SetValue(value)
	c.promptInput.CursorEnd()
	return c.promptInput.Focus()
}

func (c *controller) closePrompt() {
	c.prompt = promptNone
	c.promptInput.Blur()
	c.promptInput.SetValue("")
}

func (c *controller) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if c.convs == nil {
		return c, nil
	}
	if c.prompt != promptNone {
		return c.updatePrompt(msg)
	}

	c.flash = ""
	switch msg.String() {
	case "q":
		return c, tea.Quit
	case "up", "k":
		if c.selected > 0 {
			c.selected--
		}
	case "down", "j":
		if c.selected < len(c.visibleConversations())-1 {
			c.selected++
		}
	case "enter", "l", "right":
		if conv, ok := c.selectedConversation(); ok {
			return c, c.openRoom(conv)
		}
	case "/":
		return c, c.openPrompt(promptSearch, "Search conversations...", c.searchTerm)
	case "n":
		return c, c.openPrompt(promptPhone, "Recipient phone number", "")
	case "d":
		if _, ok := c.selectedConversation(); ok {
			return c, c.openPrompt(promptConfirmDelete, "type y to delete", "")
		}
	case "m":
		if c.convs.HasMore() {
			c.busy = true
			return c, c.loadMoreConversations()
		}
	case "r":
		c.busy = true
		return c, c.refreshConversations()
	case "L":
		return c, c.logout()
	}
	return c, nil
}

func (c *controller) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if c.prompt == promptSearch {
			c.searchTerm = ""
		}
		c.closePrompt()
		c.clampSelection()
		return c, nil
	case "enter":
		return c, c.submitPrompt()
	}

	var cmd tea.Cmd
	c.promptInput, cmd = c.promptInput.Update(msg)
	if c.prompt == promptSearch {
		c.searchTerm = c.promptInput.Value()
		c.selected = 0
	}
	return c, cmd
}

func (c *controller) submitPrompt() tea.Cmd {
	value := strings.TrimSpace(c.promptInput.Value())
	kind := c.prompt
	c.closePrompt()

	switch kind {
	case promptSearch:
		c.searchTerm = value
		c.clampSelection()
	case promptPhone:
		if value == "" {
			return nil
		}
		c.pendingPhone = value
		return c.openPrompt(promptFirstMessage, "First message (empty opens the conversation)", "")
	case promptFirstMessage:
		phone := c.pendingPhone
		c.pendingPhone = ""
		c.busy = true
		if value == "" {
			return c.createConversation(phone)
		}
		return c.sendFirstMessage(phone, value)
	case promptConfirmDelete:
		conv, ok := c.selectedConversation()
		if !ok || !strings.EqualFold(value, "y") {
			return nil
		}
		c.busy = true
		return c.deleteConversation(conv.ID)
	}
	return nil
}

func (c *controller) updateListAsync(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case conversationCreatedMsg:
		c.busy = false
		if msg.err != nil {
			c.flash = msg.err.Error()
			return nil
		}
		return c.openRoom(*msg.conv)

	case firstMessageMsg:
		c.busy = false
		if msg.err != nil {
			c.flash = msg.err.Error()
			return nil
		}
		conv := msg.res.Conversation
		if conv.ID == "" {
			conv.ID = msg.res.ConversationID
		}
		c.convs.Upsert(conv)
		c.convs.ApplyNewMessage(conv.ID, msg.res.Message)
		return c.openRoom(conv)
	}

	if c.prompt != promptNone {
		var cmd tea.Cmd
		c.promptInput, cmd = c.promptInput.Update(msg)
		return cmd
	}
	return nil
}

func (c *controller) refreshConversations() tea.Cmd {
	convs, ctx := c.convs, c.ctx
	return func() tea.Msg {
		return listLoadedMsg{err: convs.Invalidate(ctx)}
	}
}

func (c *controller) loadMoreConversations() tea.Cmd {
	convs, ctx := c.convs, c.ctx
	return func() tea.Msg {
		return listLoadedMsg{err: convs.LoadMore(ctx)}
	}
}

func (c *controller) deleteConversation(id models.ID) tea.Cmd {
	convs, ctx := c.convs, c.ctx
	return func() tea.Msg {
		return listLoadedMsg{err: convs.Delete(ctx, id)}
	}
}

func (c *controller) createConversation(phone string) tea.Cmd {
	convs, ctx := c.convs, c.ctx
	return func() tea.Msg {
		conv, err := convs.Create(ctx, phone)
		return conversationCreatedMsg{conv: conv, err: err}
	}
}

func (c *controller) sendFirstMessage(phone, text string) tea.Cmd {
	composer := c.app.NewComposer(phone)
	ctx := c.ctx
	return func() tea.Msg {
		res, err := composer.Send(ctx, text)
		return firstMessageMsg{res: res, err: err}
	}
}

func (c *controller) viewList() string {
	self := c.app.Session.Username()
	var b strings.Builder

	header := fmt.Sprintf("Conversations %s", statusDot(c.notifyStatus == network.StatusConnected))
	if c.counts.Total > 0 {
		header += " " + badgeStyle.Render(unreadLabel(c.counts.Total)+" unread")
	}
	if user, ok := c.app.Session.User(); ok {
		header += mutedStyle.Render("  signed in as " + user.DisplayName())
	}
	b.WriteString(headerStyle.Render(header) + "\n")

	if c.searchTerm != "" && c.prompt != promptSearch {
		b.WriteString(mutedStyle.Render("filter: "+c.searchTerm) + "\n")
	}

	items := c.visibleConversations()
	switch {
	case c.convs == nil || (c.busy && len(items) == 0):
		b.WriteString(statusStyle.Render("Loading conversations...") + "\n")
	case len(items) == 0 && c.searchTerm != "":
		b.WriteString(mutedStyle.Render("No conversations found. Try a different search term") + "\n")
	case len(items) == 0:
		b.WriteString(mutedStyle.Render("No conversations yet. Press n to start one.") + "\n")
	default:
		for i, conv := range items {
			b.WriteString(renderConversationRow(conv, self, c.counts, i == c.selected) + "\n")
		}
		if c.convs.HasMore() {
			b.WriteString(mutedStyle.Render("  m: load more") + "\n")
		}
	}

	if c.prompt != promptNone {
		b.WriteString("\n" + promptLabel(c.prompt) + c.promptInput.View() + "\n")
	}
	if line := c.errorLine(); line != "" {
		b.WriteString(errorStyle.Render(line) + "\n")
	}
	b.WriteString(footerStyle.Render("enter: open · /: search · n: new chat · d: delete · r: refresh · L: log out · q: quit"))
	return b.String()
}

func (c *controller) errorLine() string {
	if c.flash != "" {
		return c.flash
	}
	if c.convs != nil && c.convs.Error() != "" {
		return c.convs.Error()
	}
	if c.notifier != nil {
		return c.notifier.Error()
	}
	return ""
}

func promptLabel(kind promptKind) string {
	switch kind {
	case promptSearch:
		return "Search: "
	case promptPhone:
		return "Phone: "
	case promptFirstMessage:
		return "Message: "
	case promptConfirmDelete:
		return "Delete conversation? "
	default:
		return ""
	}
}
