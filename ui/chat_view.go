package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"chatline/app"
	"chatline/chat"
	"chatline/models"
	"chatline/network"
)

const (
	audioCommand    = "/audio "
	markReadTimeout = 10 * time.Second
)

// openRoom switches to the chat screen and connects the conversation.
func (c *controller) openRoom(conv models.Conversation) tea.Cmd {
	c.closeRoom()

	id := conv.ID
	b, convs := c.bridge, c.convs
	c.roomConv = conv
	c.room = c.app.NewRoom(id, app.RoomHooks{
		OnEvent: func(ev chat.Event) { b.send(roomEventMsg(ev)) },
		OnNewMessage: func(convID models.ID, msg models.Message) {
			if convs != nil {
				convs.ApplyNewMessage(convID, msg)
			}
		},
	})
	c.screen = screenChat
	c.flash = ""
	c.selectMode = false
	c.selectedMsg = -1
	c.editing = ""
	c.messageInput.SetValue("")
	c.app.Counts.SetActive(id)

	if notifier := c.notifier; notifier != nil {
		log, parent := c.log, c.ctx
		go func() {
			ctx, cancel := context.WithTimeout(parent, markReadTimeout)
			defer cancel()
			if err := notifier.MarkRead(ctx, id); err != nil {
				log.Debugw("mark read failed", "conversation", id.String(), "error", err)
			}
		}()
	}

	room, ctx := c.room, c.ctx
	c.refreshTranscript(true)
	return tea.Batch(c.messageInput.Focus(), func() tea.Msg {
		return roomOpenedMsg{room: room, err: room.Open(ctx)}
	})
}

// closeRoom disconnects the open conversation, if any.
func (c *controller) closeRoom() {
	if c.room == nil {
		return
	}
	c.room.Close()
	c.room = nil
	c.roomConv = models.Conversation{}
	c.editing = ""
	c.selectMode = false
	c.messageInput.Blur()
	c.app.Counts.ClearActive()
}

func (c *controller) backToList() tea.Cmd {
	c.closeRoom()
	c.screen = screenList
	c.clampSelection()
	if c.convs != nil && c.convs.Stale() {
		return c.refreshConversations()
	}
	return nil
}

func (c *controller) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if c.room == nil {
		c.screen = screenList
		return c, nil
	}
	if c.selectMode {
		return c.updateSelect(msg)
	}

	switch msg.String() {
	case "esc":
		if c.editing != "" {
			c.editing = ""
			c.messageInput.SetValue("")
			return c, nil
		}
		return c, c.backToList()
	case "tab":
		if n := len(c.room.Messages()); n > 0 {
			c.selectMode = true
			c.selectedMsg = n - 1
			c.messageInput.Blur()
			c.refreshTranscript(true)
		}
		return c, nil
	case "ctrl+o":
		return c, c.loadOlder()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		c.transcript, cmd = c.transcript.Update(msg)
		return c, cmd
	case "enter":
		return c, c.submitMessage()
	}

	before := c.messageInput.Value()
	var cmd tea.Cmd
	c.messageInput, cmd = c.messageInput.Update(msg)
	if c.messageInput.Value() != before && c.editing == "" {
		c.room.Typing()
	}
	return c, cmd
}

func (c *controller) updateSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	msgs := c.room.Messages()
	if c.selectedMsg >= len(msgs) {
		c.selectedMsg = len(msgs) - 1
	}

	switch msg.String() {
	case "esc", "tab":
		c.selectMode = false
		c.selectedMsg = -1
		c.refreshTranscript(false)
		return c, c.messageInput.Focus()
	case "up", "k":
		if c.selectedMsg > 0 {
			c.selectedMsg--
		}
	case "down", "j":
		if c.selectedMsg < len(msgs)-1 {
			c.selectedMsg++
		}
	case "e":
		if c.selectedMsg < 0 {
			return c, nil
		}
		target := msgs[c.selectedMsg]
		if target.SenderUsername != c.app.Session.Username() {
			c.flash = chat.ErrNotOwnMessage.Error()
			return c, nil
		}
		if target.IsAudio() {
			c.flash = chat.ErrEditNonText.Error()
			return c, nil
		}
		c.editing = target.ID
		c.selectMode = false
		c.selectedMsg = -1
		c.messageInput.SetValue(target.Content)
		c.messageInput.CursorEnd()
		c.refreshTranscript(false)
		return c, c.messageInput.Focus()
	case "x", "delete":
		if c.selectedMsg < 0 {
			return c, nil
		}
		if err := c.room.Delete(msgs[c.selectedMsg].ID); err != nil {
			c.flash = err.Error()
		}
	}
	c.refreshTranscript(false)
	return c, nil
}

func (c *controller) submitMessage() tea.Cmd {
	text := strings.TrimSpace(c.messageInput.Value())
	if text == "" {
		return nil
	}
	c.flash = ""

	var err error
	switch {
	case c.editing != "":
		err = c.room.Edit(c.editing, text)
		if err == nil {
			c.editing = ""
		}
	case strings.HasPrefix(text, audioCommand):
		err = c.sendAudioFile(strings.TrimSpace(strings.TrimPrefix(text, audioCommand)))
	default:
		err = c.room.Send(text)
	}

	if err != nil {
		if !errors.Is(err, chat.ErrNotConnected) {
			c.flash = err.Error()
		}
		return nil
	}
	c.messageInput.SetValue("")
	return nil
}

func (c *controller) sendAudioFile(path string) error {
	clip, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read audio clip: %w", err)
	}
	return c.room.SendAudio(clip)
}

func (c *controller) loadOlder() tea.Cmd {
	if c.room == nil || !c.room.HasOlder() {
		return nil
	}
	room, ctx := c.room, c.ctx
	return func() tea.Msg {
		added, err := room.LoadOlder(ctx)
		return olderLoadedMsg{added: added, err: err}
	}
}

func (c *controller) updateChatAsync(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case roomEventMsg:
		if c.room == nil || c.room.ConversationID() != msg.ConversationID {
			return c, nil
		}
		if msg.Kind == chat.EventMessages {
			c.refreshTranscript(c.transcript.AtBottom() && !c.selectMode)
		}
		return c, nil

	case roomOpenedMsg:
		if msg.room != c.room {
			return c, nil
		}
		if msg.err != nil {
			c.log.Debugw("room open", "error", msg.err)
		}
		c.refreshTranscript(true)
		return c, nil

	case olderLoadedMsg:
		if msg.err == nil && msg.added > 0 {
			c.refreshTranscript(false)
			c.transcript.GotoTop()
		}
		return c, nil

	case tea.MouseMsg:
		var cmd tea.Cmd
		c.transcript, cmd = c.transcript.Update(msg)
		return c, cmd
	}

	var cmd tea.Cmd
	c.messageInput, cmd = c.messageInput.Update(msg)
	return c, cmd
}

// refreshTranscript re-renders the open room into the viewport.
func (c *controller) refreshTranscript(gotoBottom bool) {
	if c.room == nil {
		c.transcript.SetContent("")
		return
	}
	selected := -1
	if c.selectMode {
		selected = c.selectedMsg
	}
	c.transcript.SetContent(renderTranscript(c.room.Messages(), c.app.Session.Username(), selected))
	if gotoBottom {
		c.transcript.GotoBottom()
	}
}

func (c *controller) viewChat() string {
	if c.room == nil {
		return ""
	}
	self := c.app.Session.Username()

	var b strings.Builder
	header := fmt.Sprintf("%s %s", conversationTitle(c.roomConv, self), roomStatusLabel(c.room.Status()))
	b.WriteString(headerStyle.Render(header) + "\n")

	switch {
	case c.room.Loading() && len(c.room.Messages()) == 0:
		b.WriteString(statusStyle.Render("Loading messages...") + "\n")
	default:
		if c.room.HasOlder() {
			b.WriteString(mutedStyle.Render("ctrl+o: load older messages") + "\n")
		}
		b.WriteString(c.transcript.View() + "\n")
	}

	if label := c.room.TypingLabel(); label != "" {
		b.WriteString(typingStyle.Render(label) + "\n")
	}
	if text := c.chatError(); text != "" {
		b.WriteString(errorStyle.Render(text) + "\n")
	}

	prefix := "> "
	if c.editing != "" {
		prefix = "edit> "
	}
	b.WriteString(prefix + c.messageInput.View() + "\n")

	footer := "enter: send · tab: select message · /audio <file>: send clip · esc: back"
	switch {
	case c.selectMode:
		footer = "up/down: move · e: edit · x: delete · esc: done"
	case c.editing != "":
		footer = "enter: save edit · esc: cancel"
	}
	b.WriteString(footerStyle.Render(footer))
	return b.String()
}

func (c *controller) chatError() string {
	if c.flash != "" {
		return c.flash
	}
	return c.room.Error()
}

func roomStatusLabel(status network.Status) string {
	switch status {
	case network.StatusConnected:
		return statusDot(true) + mutedStyle.Render(" connected")
	case network.StatusConnecting:
		return statusDot(false) + mutedStyle.Render(" connecting...")
	case network.StatusError:
		return statusDot(false) + errorStyle.Render(" connection error")
	default:
		return statusDot(false) + mutedStyle.Render(" offline")
	}
}
