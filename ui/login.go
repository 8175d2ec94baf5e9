package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func (c *controller) loginInputs() []*textinput.Model {
	if c.signup {
		return []*textinput.Model{&c.usernameInput, &c.emailInput, &c.passwordInput}
	}
	return []*textinput.Model{&c.emailInput, &c.passwordInput}
}

func (c *controller) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if c.busy {
		return c, nil
	}
	inputs := c.loginInputs()

	switch msg.String() {
	case "esc":
		return c, tea.Quit
	case "tab", "down", "shift+tab", "up":
		step := 1
		if msg.String() == "shift+tab" || msg.String() == "up" {
			step = len(inputs) - 1
		}
		c.focusLogin((c.loginFocus + step) % len(inputs))
		return c, nil
	case "ctrl+r":
		c.signup = !c.signup
		c.loginError = ""
		c.focusLogin(0)
		return c, nil
	case "enter":
		if c.loginFocus < len(inputs)-1 {
			c.focusLogin(c.loginFocus + 1)
			return c, nil
		}
		return c, c.submitLogin()
	}

	current := inputs[c.loginFocus]
	var cmd tea.Cmd
	*current, cmd = current.Update(msg)
	return c, cmd
}

func (c *controller) focusLogin(i int) {
	inputs := c.loginInputs()
	for _, in := range inputs {
		in.Blur()
	}
	if i >= len(inputs) {
		i = 0
	}
	c.loginFocus = i
	inputs[i].Focus()
}

func (c *controller) submitLogin() tea.Cmd {
	email := strings.TrimSpace(c.emailInput.Value())
	password := c.passwordInput.Value()
	username := strings.TrimSpace(c.usernameInput.Value())
	if email == "" || password == "" || (c.signup && username == "") {
		c.loginError = "Please fill in all fields"
		return nil
	}

	c.busy = true
	c.loginError = ""
	a, ctx, signup := c.app, c.ctx, c.signup
	return func() tea.Msg {
		var err error
		if signup {
			_, err = a.Session.Signup(ctx, username, email, password)
		} else {
			_, err = a.Login(ctx, email, password)
		}
		return authDoneMsg{err: err}
	}
}

func (c *controller) viewLogin() string {
	action := "Sign in"
	toggle := "ctrl+r: create an account"
	if c.signup {
		action = "Create account"
		toggle = "ctrl+r: sign in instead"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("chatline · "+action) + "\n\n")
	if c.signup {
		b.WriteString(c.usernameInput.View() + "\n")
	}
	b.WriteString(c.emailInput.View() + "\n")
	b.WriteString(c.passwordInput.View() + "\n\n")

	switch {
	case c.busy:
		b.WriteString(statusStyle.Render("Please wait...") + "\n")
	case c.loginError != "":
		b.WriteString(errorStyle.Render(c.loginError) + "\n")
	}
	b.WriteString(mutedStyle.Render("tab: next field · enter: submit · " + toggle + " · esc: quit"))

	box := boxStyle.Render(b.String())
	if c.width > 0 && c.height > 0 {
		return lipgloss.Place(c.width, c.height, lipgloss.Center, lipgloss.Center, box)
	}
	return box
}
