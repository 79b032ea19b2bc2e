package main

import "github.com/charmbracelet/lipgloss"

// Unified color palette
var (
	primaryColor   = lipgloss.Color("109")
	accentColor    = lipgloss.Color("171")
	barBackground  = lipgloss.Color("233")
	barColor       = lipgloss.NewStyle().Background(barBackground)
	mutedColor     = lipgloss.Color("239")
	subtleColor    = lipgloss.Color("244")
	warningColor   = lipgloss.Color("179")
	dangerColor    = lipgloss.Color("167")
	highlightColor = lipgloss.Color("171")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			Background(barBackground)

	titleNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Background(barBackground)

	selectedStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Bold(true)

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	groupStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	countStyle = lipgloss.NewStyle().
			Foreground(subtleColor)

	searchStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Bold(true).
			Background(barBackground)

	searchInputStyle = lipgloss.NewStyle().
				Foreground(accentColor).
				Background(barBackground)

	matchStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	dangerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(dangerColor)

	// Help bar styles - persistent bottom bar
	helpBarStyle = lipgloss.NewStyle().
			Foreground(subtleColor).
			Background(barBackground)

	headerBarStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Background(barBackground)

	helpBarKeyStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	helpBarDescStyle = lipgloss.NewStyle().
				Foreground(subtleColor)

	helpBarSeparatorStyle = lipgloss.NewStyle().
				Foreground(mutedColor)

	helpBarInfoStyle = lipgloss.NewStyle().
				Foreground(mutedColor)
)
