package ui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha palette.
var (
	ctpCrust    = lipgloss.Color("#11111b")
	ctpSurface0 = lipgloss.Color("#313244")
	ctpSurface1 = lipgloss.Color("#45475a")
	ctpOverlay0 = lipgloss.Color("#6c7086")
	ctpOverlay1 = lipgloss.Color("#7f849c")
	ctpSubtext0 = lipgloss.Color("#a6adc8")
	ctpText     = lipgloss.Color("#cdd6f4")
	ctpBlue     = lipgloss.Color("#89b4fa")
	ctpGreen    = lipgloss.Color("#a6e3a1")
	ctpRed      = lipgloss.Color("#f38ba8")
	ctpYellow   = lipgloss.Color("#f9e2af")
	ctpPeach    = lipgloss.Color("#fab387")
	ctpMauve    = lipgloss.Color("#cba6f7")
)

var (
	colorOnline      = ctpGreen
	colorOffline     = ctpOverlay0
	colorOutgoingMsg = ctpGreen
	colorIncomingMsg = ctpBlue
	colorMuted       = ctpOverlay1
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ctpMauve).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ctpMauve).
			Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ctpText).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ctpSurface1).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(ctpSurface1).
			Padding(0, 1)

	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle    = lipgloss.NewStyle().Foreground(ctpRed).Bold(true)
	typingStyle   = lipgloss.NewStyle().Foreground(ctpSubtext0).Italic(true)
	ownStyle      = lipgloss.NewStyle().Foreground(colorOutgoingMsg)
	otherStyle    = lipgloss.NewStyle().Foreground(colorIncomingMsg)
	readMarkStyle = lipgloss.NewStyle().Foreground(ctpBlue)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(ctpGreen).
				Bold(true).
				PaddingLeft(1).
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(ctpGreen)

	unselectedItemStyle = lipgloss.NewStyle().PaddingLeft(2)

	selectedMessageStyle = lipgloss.NewStyle().Background(ctpSurface0)

	badgeStyle = lipgloss.NewStyle().
			Foreground(ctpCrust).
			Background(ctpPeach).
			Bold(true).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().Foreground(ctpYellow)
)

// statusDot renders a coloured connection indicator.
func statusDot(online bool) string {
	if online {
		return lipgloss.NewStyle().Foreground(colorOnline).Render("●")
	}
	return lipgloss.NewStyle().Foreground(colorOffline).Render("●")
}
