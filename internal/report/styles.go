package report

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/siftlab/sift/internal/card"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0969DA")).
			Bold(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6E7681"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#39D353")).
			Bold(true)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D29922")).
			Bold(true)

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA657"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#58A6FF")).
			Underline(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CF222E")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6E7681"))

	typeStyles = map[card.Type]lipgloss.Style{
		card.TypeFunding: lipgloss.NewStyle().Foreground(lipgloss.Color("#2DA44E")).Bold(true),
		card.TypePaper:   lipgloss.NewStyle().Foreground(lipgloss.Color("#8250DF")).Bold(true),
		card.TypeNews:    lipgloss.NewStyle().Foreground(lipgloss.Color("#D29922")).Bold(true),
	}
)

func typeStyle(t card.Type) lipgloss.Style {
	if s, ok := typeStyles[t]; ok {
		return s
	}
	return dimStyle
}
