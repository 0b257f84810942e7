package cmds

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	noticeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	eventStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5F87AF"))
)

// renderMarkdown styles a complete reply, falling back to the raw text.
func renderMarkdown(md string) string {
	styled, err := glamour.Render(md, "dark")
	if err != nil {
		log.Debug().Err(err).Msg("could not render markdown")
		return md
	}
	return styled
}
