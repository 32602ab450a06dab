package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/oktsec/wafwatch/internal/poller"
	"github.com/oktsec/wafwatch/internal/render"
)

// View implements tea.Model.
func (m *Model) View() string {
	return frame(m.view, m.confirming, m.help.View(m.keys))
}

func frame(v render.View, confirming bool, helpLine string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wafwatch · live firewall telemetry"))
	b.WriteString("\n\n")

	if v.Stale != nil {
		msg := "! " + v.Stale.Message
		if v.Stale.Since != "" {
			msg += " (last success " + v.Stale.Since + ")"
		}
		b.WriteString(staleStyle.Render(msg))
		b.WriteString("\n\n")
	}

	cards := make([]string, 0, len(v.Cards))
	for _, c := range v.Cards {
		cards = append(cards, cardStyle.Render(
			dimStyle.Render(c.Title)+"\n"+classStyle(c.Class).Inherit(cardValueStyle).Render(c.Value),
		))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n")

	if v.HasLastUpdated() {
		b.WriteString(dimStyle.Render("Last updated: " + v.LastUpdated))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Recent Events"))
	b.WriteString("\n")

	if v.Empty {
		b.WriteString(dimStyle.Render(v.Placeholder))
		b.WriteString("\n")
	}
	for _, e := range v.Events {
		b.WriteString(eventLine(e))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("[%s]", v.Controls.ToggleLabel)))
	b.WriteString("\n")
	if confirming {
		b.WriteString(promptStyle.Render(poller.ClearPrompt + " [y/N]"))
	} else {
		b.WriteString(helpLine)
	}
	return b.String()
}

func eventLine(e render.EventItem) string {
	path := e.Path
	if e.Query != "" {
		path += "?" + e.Query
	}
	return fmt.Sprintf("%-6s %s %s %-7s %-28s %s %s %s  ua=%s",
		fmt.Sprintf("#%d", e.Key),
		dimStyle.Render(e.Time),
		classStyle(e.ActionClass).Render(e.ActionLabel),
		e.Method,
		path,
		e.ClientIP,
		classStyle(e.ClassificationClass).Render(e.Probability),
		classStyle(e.ClassificationClass).Render(e.Classification),
		e.UserAgent,
	)
}
