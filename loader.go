package main

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// Minimum time before showing the loading screen
	loadingDelay = 200 * time.Millisecond
)

// loadCompleteMsg is sent when the index is warm
type loadCompleteMsg struct{}

// loaderModel handles the loading screen
type loaderModel struct {
	spinner      spinner.Model
	vaultName    string
	windowWidth  int
	windowHeight int
	startTime    time.Time
	showLoader   bool
	cancelled    bool
}

func newLoaderModel(vaultName string) loaderModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentColor)

	return loaderModel{
		spinner:   s,
		vaultName: vaultName,
		startTime: time.Now(),
	}
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tea.WindowSize(),
	)
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if !m.showLoader && time.Since(m.startTime) > loadingDelay {
			m.showLoader = true
		}
		return m, cmd

	case loadCompleteMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m loaderModel) View() string {
	if !m.showLoader {
		return ""
	}

	dimStyle := lipgloss.NewStyle().Foreground(subtleColor)

	content := lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("otx") + " " +
		m.spinner.View() + " Indexing " +
		countStyle.Render(m.vaultName) +
		dimStyle.Render("...")

	return lipgloss.Place(m.windowWidth, m.windowHeight, lipgloss.Center, lipgloss.Center, content)
}

// RunWithLoader runs load and shows a spinner when it takes longer than
// loadingDelay. Quitting the spinner cancels load.
func RunWithLoader(ctx context.Context, vaultName string, load func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- load(ctx) }()

	select {
	case err := <-done:
		return err
	case <-time.After(loadingDelay):
	}

	p := tea.NewProgram(newLoaderModel(vaultName), tea.WithAltScreen())

	var loadErr error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		loadErr = <-done
		p.Send(loadCompleteMsg{})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}

	if m, ok := final.(loaderModel); ok && m.cancelled {
		cancel()
	}

	<-finished
	return loadErr
}
