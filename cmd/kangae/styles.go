package main

import "charm.land/lipgloss/v2"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true)
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)
	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("114"))
)

func kv(label, value string) string {
	return labelStyle.Render(label+": ") + valueStyle.Render(value)
}
