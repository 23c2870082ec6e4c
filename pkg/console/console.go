// Package console renders relay replies for the interactive terminal client.
package console

import (
	"fmt"
	"strconv"
	"strings"

	"vfrelay/pkg/bus"

	"github.com/charmbracelet/lipgloss"
)

// theme groups reusable styles for console output.
type theme struct {
	header      lipgloss.Style
	headerMeta  lipgloss.Style
	prompt      lipgloss.Style
	replyBox    lipgloss.Style
	replyTitle  lipgloss.Style
	choiceBox   lipgloss.Style
	choiceTitle lipgloss.Style
	choiceItem  lipgloss.Style
	errorBox    lipgloss.Style
	errorTitle  lipgloss.Style
	hint        lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("88")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("223")),
		prompt: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")),
		replyBox: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("44")).
			Padding(0, 1),
		replyTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("44")).
			Padding(0, 1),
		choiceBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("109")).
			Padding(0, 1),
		choiceTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("109")).
			Padding(0, 1),
		choiceItem: lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")),
		errorBox: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("203")).
			Foreground(lipgloss.Color("203")).
			Padding(0, 1),
		errorTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
	}
}

// Renderer formats replies with the console theme.
type Renderer struct {
	theme theme
}

func NewRenderer() *Renderer {
	return &Renderer{theme: defaultTheme()}
}

// Header is printed once when an interactive session starts.
func (r *Renderer) Header(runtime string, sessionKey string) string {
	title := r.theme.header.Render("vfrelay")
	meta := r.theme.headerMeta.Render(fmt.Sprintf("runtime %s  session %s", runtime, sessionKey))
	hint := r.theme.hint.Render("Type a message, a button number to tap it, or exit to quit.")
	return lipgloss.JoinVertical(lipgloss.Left, lipgloss.JoinHorizontal(lipgloss.Center, title, " ", meta), hint)
}

// Prompt is the input marker for the line reader.
func (r *Renderer) Prompt() string {
	return r.theme.prompt.Render("you ›") + " "
}

// Reply renders one outbound message. Choices are numbered from 1.
func (r *Renderer) Reply(outbound bus.OutboundMessage) string {
	switch outbound.Kind {
	case bus.OutboundChoice:
		lines := make([]string, 0, len(outbound.Choices)+2)
		if title := strings.TrimSpace(outbound.Title); title != "" {
			lines = append(lines, title)
		}
		if subtitle := strings.TrimSpace(outbound.Subtitle); subtitle != "" {
			lines = append(lines, r.theme.hint.Render(subtitle))
		}
		for i, choice := range outbound.Choices {
			lines = append(lines, r.theme.choiceItem.Render(fmt.Sprintf("[%d] %s", i+1, choice)))
		}
		return lipgloss.JoinVertical(lipgloss.Left,
			r.theme.choiceTitle.Render("choice"),
			r.theme.choiceBox.Render(strings.Join(lines, "\n")),
		)
	default:
		return lipgloss.JoinVertical(lipgloss.Left,
			r.theme.replyTitle.Render("bot"),
			r.theme.replyBox.Render(strings.TrimSpace(outbound.Content)),
		)
	}
}

// Error renders a failed turn.
func (r *Renderer) Error(err error) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		r.theme.errorTitle.Render("error"),
		r.theme.errorBox.Render(err.Error()),
	)
}

// ResolveChoice maps a numeric answer to the matching button of the last
// choice. Anything else is returned unchanged.
func ResolveChoice(input string, choices []string) string {
	trimmed := strings.TrimSpace(input)
	index, err := strconv.Atoi(trimmed)
	if err != nil || index < 1 || index > len(choices) {
		return trimmed
	}
	return choices[index-1]
}
