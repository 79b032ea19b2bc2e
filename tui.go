package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/elcuervo/otx/internal/cache"
	"github.com/elcuervo/otx/internal/query"
	"github.com/elcuervo/otx/internal/status"
	"github.com/elcuervo/otx/internal/task"
)

const (
	defaultWindowHeight = 24
	defaultWindowWidth  = 80
	minVisibleHeight    = 3
	cursorCharacter     = ">"
)

// taskWriter puts edited tasks back into their documents.
type taskWriter interface {
	ReplaceTask(ctx context.Context, codec task.Codec, original task.Task, replacements []task.Task) error
}

// cacheUpdateMsg carries a new snapshot from the index
type cacheUpdateMsg cache.Update

// midnightMsg asks for the queries to be rebuilt for the new day
type midnightMsg struct{}

type toggledMsg struct {
	task task.Task
	err  error
}

// reconfiguredMsg carries the settings of a reloaded config file
type reconfiguredMsg struct {
	settings settings
	err      error
}

// listedTask is a task in display order with the section it came from.
type listedTask struct {
	task    task.Task
	section string
	group   string
	layout  task.LayoutOptions
}

type model struct {
	titleName string
	profile   *ResolvedProfile

	blocks   []queryBlock
	options  func() query.Options
	sections []QuerySection
	results  []sectionResult

	snapshot []task.Task
	tasks    []listedTask
	updates  <-chan cache.Update

	toggler     task.Toggler
	writer      taskWriter
	display     display
	now         func() time.Time
	reconfigure func() (settings, error)

	cursor       int
	quitting     bool
	err          error
	message      string
	windowHeight int
	windowWidth  int
	viewport     viewport.Model

	searching   bool
	searchInput textinput.Model

	// picking waits for the indicator of the status to set
	picking bool
}

type modelConfig struct {
	Profile  *ResolvedProfile
	Blocks   []queryBlock
	Options  func() query.Options
	Snapshot []task.Task
	Updates  <-chan cache.Update
	Toggler  task.Toggler
	Writer   taskWriter
	Display  display
	Now      func() time.Time

	// Reconfigure reloads the config file and re-indexes with it
	Reconfigure func() (settings, error)
}

func newModel(cfg modelConfig) model {
	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = "search"

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	m := model{
		titleName:    cfg.Profile.Name,
		profile:      cfg.Profile,
		blocks:       cfg.Blocks,
		options:      cfg.Options,
		snapshot:     cfg.Snapshot,
		updates:      cfg.Updates,
		toggler:      cfg.Toggler,
		writer:       cfg.Writer,
		display:      cfg.Display,
		now:          now,
		reconfigure:  cfg.Reconfigure,
		windowHeight: defaultWindowHeight,
		windowWidth:  defaultWindowWidth,
		viewport:     viewport.New(defaultWindowWidth, defaultWindowHeight),
		searchInput:  input,
	}
	if m.titleName == "" {
		m.titleName = cfg.Profile.VaultPath
	}

	m.sections = compileBlocks(m.blocks, m.options())
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tea.WindowSize(), waitForUpdate(m.updates), m.midnightTick())
}

// waitForUpdate blocks on the next snapshot. A closed channel ends the
// subscription.
func waitForUpdate(updates <-chan cache.Update) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return nil
		}
		return cacheUpdateMsg(u)
	}
}

// untilMidnight is the time left until the next local midnight.
func untilMidnight(now time.Time) time.Duration {
	y, mo, d := now.Date()
	next := time.Date(y, mo, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}

func (m model) midnightTick() tea.Cmd {
	return tea.Tick(untilMidnight(m.now()), func(time.Time) tea.Msg { return midnightMsg{} })
}

// refresh evaluates every section against the current snapshot and rebuilds
// the flat task list the cursor moves over.
func (m *model) refresh() {
	m.results = evaluate(context.Background(), m.sections, m.snapshot)

	needle := strings.ToLower(strings.TrimSpace(m.searchInput.Value()))

	var tasks []listedTask
	for _, r := range m.results {
		layout := r.Section.Engine.Layout()
		for _, g := range r.Groups.Groups {
			group := strings.Join(g.Names, " / ")
			for _, t := range g.Tasks {
				lt := listedTask{task: t, section: r.Section.Name, group: group, layout: layout}
				if needle != "" && !lt.matches(needle) {
					continue
				}
				tasks = append(tasks, lt)
			}
		}
	}

	m.tasks = tasks
	m.clampCursor(len(m.tasks))
}

func (lt listedTask) matches(needle string) bool {
	return strings.Contains(strings.ToLower(lt.task.Description), needle) ||
		strings.Contains(strings.ToLower(lt.section), needle) ||
		strings.Contains(strings.ToLower(lt.group), needle)
}

func (m *model) clampCursor(length int) {
	m.cursor = max(0, min(m.cursor, length-1))
}

// reload reads the query file again and recompiles every section.
func (m *model) reload() {
	if m.profile.QueryIsFile {
		blocks, err := loadQueryBlocks(m.profile)
		if err != nil {
			m.message = err.Error()
			return
		}
		m.blocks = blocks
	}
	m.sections = compileBlocks(m.blocks, m.options())
	m.refresh()
}

// toggleCmd moves t to target, or to its next status when target is Empty,
// and writes the result back.
func (m model) toggleCmd(t task.Task, target status.Status) tea.Cmd {
	tg := m.toggler
	writer := m.writer
	return func() tea.Msg {
		replacements, err := tg.ToggleTo(t, target)
		if err == nil {
			err = writer.ReplaceTask(context.Background(), tg.Codec, t, replacements)
		}
		return toggledMsg{task: t, err: err}
	}
}

func (m model) reconfigureCmd() tea.Cmd {
	reconfigure := m.reconfigure
	return func() tea.Msg {
		s, err := reconfigure()
		return reconfiguredMsg{settings: s, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowHeight = msg.Height
		m.windowWidth = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height
		return m, nil

	case cacheUpdateMsg:
		m.snapshot = msg.Tasks
		m.refresh()
		return m, waitForUpdate(m.updates)

	case midnightMsg:
		m.sections = compileBlocks(m.blocks, m.options())
		m.refresh()
		return m, m.midnightTick()

	case toggledMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("toggle failed: %v", msg.err)
		} else {
			m.message = ""
		}
		return m, nil

	case reconfiguredMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("reload failed: %v", msg.err)
			return m, nil
		}
		m.message = ""
		m.toggler.Codec = msg.settings.codec
		m.toggler.SetDoneDate = msg.settings.setDoneDate
		m.display = msg.settings.display
		m.sections = compileBlocks(m.blocks, m.options())
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		if m.picking {
			return m.updatePick(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "/":
			m.searching = true
			m.cursor = 0
			cmd := m.searchInput.Focus()
			return m, cmd

		case "esc":
			if m.searchInput.Value() != "" {
				m.searchInput.SetValue("")
				m.refresh()
			}

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.tasks)-1 {
				m.cursor++
			}

		case "g":
			m.cursor = 0

		case "G":
			m.cursor = max(0, len(m.tasks)-1)

		case "enter", " ", "x":
			if len(m.tasks) > 0 && m.writer != nil {
				return m, m.toggleCmd(m.tasks[m.cursor].task, status.Empty)
			}

		case "s":
			if len(m.tasks) > 0 && m.writer != nil {
				m.picking = true
			}

		case "r":
			m.message = ""
			m.reload()
			if m.reconfigure != nil {
				return m, m.reconfigureCmd()
			}
		}
	}

	return m, nil
}

// updatePick sets the selected task to the status whose indicator was typed.
func (m model) updatePick(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.picking = false

	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		return m, nil
	case tea.KeySpace:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{' '}}
	}

	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 || len(m.tasks) == 0 {
		return m, nil
	}

	indicator := string(msg.Runes)
	target := m.toggler.Codec.Registry.ByIndicator(indicator)
	if target.IsEmpty() {
		m.message = fmt.Sprintf("no status registered for %q", indicator)
		return m, nil
	}

	return m, m.toggleCmd(m.tasks[m.cursor].task, target)
}

// statusPrompt lists the statuses the picker accepts.
func (m model) statusPrompt() string {
	parts := []string{helpBarKeyStyle.Render("set status")}
	for _, st := range m.toggler.Codec.Registry.Statuses() {
		parts = append(parts, helpBarKeyStyle.Render("["+st.Indicator+"]")+helpBarDescStyle.Render(" "+st.Name))
	}
	parts = append(parts, helpBarDescStyle.Render("esc cancel"))
	return strings.Join(parts, helpBarSeparatorStyle.Render(" • "))
}

func (m model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc", "ctrl+[":
		m.searching = false
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		m.cursor = 0
		m.refresh()
		return m, nil

	case "enter":
		m.searching = false
		m.searchInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	m.cursor = 0
	m.refresh()
	return m, cmd
}

func (m model) renderHelpBar(rightInfo string) string {
	keys := []struct{ key, desc string }{
		{"space", "toggle"},
		{"s", "set status"},
		{"/", "search"},
		{"r", "reload"},
		{"q", "quit"},
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, helpBarKeyStyle.Render(k.key)+helpBarDescStyle.Render(" "+k.desc))
	}
	left := strings.Join(parts, helpBarSeparatorStyle.Render(" • "))

	switch {
	case m.picking:
		left = m.statusPrompt()
	case m.message != "":
		left = dangerStyle.Render(m.message)
	}

	right := ""
	if rightInfo != "" {
		right = helpBarInfoStyle.Render(rightInfo)
	}

	return m.renderFooterSplit(left, right)
}

func (m model) renderFooterSplit(left, right string) string {
	if left == "" && right == "" {
		return helpBarStyle.Width(m.windowWidth).Render("")
	}

	spacing := max(0, m.windowWidth-lipgloss.Width(left)-lipgloss.Width(right))
	gap := helpBarStyle.Render(strings.Repeat(" ", spacing))
	return left + gap + right
}

func (m model) buildViewport(lines []viewLine, cursorLineIdx int, contentHeight int) (string, int, int, int) {
	if contentHeight < minVisibleHeight {
		contentHeight = minVisibleHeight
	}

	width := m.windowWidth
	if width <= 0 {
		width = defaultWindowWidth
	}

	vp := m.viewport
	vp.Width = width
	vp.Height = contentHeight

	if len(lines) == 0 {
		vp.SetContent("")
		view := lipgloss.NewStyle().Width(width).Height(contentHeight).Render(vp.View())
		return normalizeViewHeight(view, contentHeight), 0, 0, 0
	}

	contentLines := make([]string, len(lines))
	lineHeights := make([]int, len(lines))
	totalRenderedLines := 0

	for i, line := range lines {
		contentLines[i] = line.content
		height := 1 + strings.Count(line.content, "\n")
		lineHeights[i] = height
		totalRenderedLines += height
	}

	cursorLineIdx = max(0, min(cursorLineIdx, len(lines)-1))

	startLine := 0
	endLine := len(lines)
	startRow := 0

	if totalRenderedLines > contentHeight {
		startLine, endLine = calculateVisibleRange(cursorLineIdx, lineHeights, contentHeight)
		for i := 0; i < startLine; i++ {
			startRow += lineHeights[i]
		}
	}

	vp.SetContent(strings.Join(contentLines, "\n"))
	vp.YOffset = startRow

	view := lipgloss.NewStyle().Width(width).Height(contentHeight).Render(vp.View())
	return normalizeViewHeight(view, contentHeight), startLine, endLine, totalRenderedLines
}

func normalizeViewHeight(view string, height int) string {
	if height <= 0 {
		return ""
	}

	lines := strings.Split(view, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

type viewLine struct {
	content   string
	taskIndex int
}

// buildLines lays out sections, group headings and tasks. Lines that are not
// tasks carry a taskIndex of -1.
func (m model) buildLines() []viewLine {
	var lines []viewLine
	taskIndex := 0
	filtering := m.searchInput.Value() != ""

	for _, r := range m.results {
		layout := r.Section.Engine.Layout()

		if r.Section.Name != "" {
			header := sectionStyle.Render("# " + r.Section.Name)
			if !layout.HideTaskCount {
				header += countStyle.Render(fmt.Sprintf(" (%d)", r.Groups.TotalCount()))
			}
			lines = append(lines, viewLine{content: header, taskIndex: -1})
		}

		if r.Err != nil {
			lines = append(lines, viewLine{content: dangerStyle.Render("  " + r.Err.Error()), taskIndex: -1})
			continue
		}

		grouped := len(r.Groups.Groupings) > 0

		for _, g := range r.Groups.Groups {
			var visible []task.Task
			for _, t := range g.Tasks {
				if taskIndex+len(visible) < len(m.tasks) && sameTask(m.tasks[taskIndex+len(visible)].task, t) {
					visible = append(visible, t)
				}
			}
			if len(visible) == 0 && filtering {
				continue
			}

			for _, h := range g.Headings {
				indent := strings.Repeat("  ", h.Level+1)
				lines = append(lines, viewLine{
					content:   groupStyle.Render(indent+strings.Repeat("#", h.Level+2)+" "+h.Name) + countStyle.Render(fmt.Sprintf(" (%d)", len(g.Tasks))),
					taskIndex: -1,
				})
			}

			indent := ""
			if grouped {
				indent = strings.Repeat("  ", len(r.Groups.Groupings))
			}

			for _, t := range visible {
				cursor := " "
				line := renderTask(t, m.display.body(t, layout))
				if m.cursor == taskIndex {
					cursor = cursorStyle.Render(cursorCharacter)
					line = selectedStyle.Render(line)
				}

				fileInfo := ""
				if !layout.HideBacklinks && t.LinkText() != "" {
					fileInfo = fileStyle.Render(" (" + t.LinkText() + ")")
				}

				lines = append(lines, viewLine{
					content:   indent + cursor + line + fileInfo,
					taskIndex: taskIndex,
				})
				taskIndex++
			}
		}
	}

	return lines
}

func sameTask(a, b task.Task) bool {
	return a.Path == b.Path && a.SectionStart == b.SectionStart && a.SectionIndex == b.SectionIndex && a.OriginalMarkdown == b.OriginalMarkdown
}

func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)
	}

	if m.quitting {
		return ""
	}

	titleLine := titleStyle.Render("otx") + barColor.Render(" → ") + titleNameStyle.Render(m.titleName)
	headerView := headerBarStyle.Width(m.windowWidth).Render(titleLine)

	windowHeight := m.windowHeight
	if windowHeight <= 0 {
		windowHeight = defaultWindowHeight
	}
	contentHeight := max(1, windowHeight-2)

	footer := func(info string) string {
		if m.searching || m.searchInput.Value() != "" {
			search := searchStyle.Render("/") + searchInputStyle.Render(m.searchInput.Value())
			if m.searching {
				search += searchStyle.Render("_")
			}
			return m.renderFooterSplit(search, matchStyle.Render(info))
		}
		return m.renderHelpBar(info)
	}

	lines := m.buildLines()
	if len(m.tasks) == 0 {
		lines = append(lines, viewLine{content: fileStyle.Render("No tasks found."), taskIndex: -1})
		viewportView, _, _, _ := m.buildViewport(lines, 0, contentHeight)
		return lipgloss.JoinVertical(lipgloss.Left, headerView, viewportView, footer(""))
	}

	cursorLineIdx := 0
	for i, line := range lines {
		if line.taskIndex == m.cursor {
			cursorLineIdx = i
			break
		}
	}

	viewportView, startLine, endLine, totalRenderedLines := m.buildViewport(lines, cursorLineIdx, contentHeight)

	var info string
	switch {
	case m.searchInput.Value() != "":
		info = fmt.Sprintf("%d matches", len(m.tasks))
	case totalRenderedLines > contentHeight:
		info = fmt.Sprintf("%d-%d of %d", startLine+1, endLine, len(lines))
	}

	return lipgloss.JoinVertical(lipgloss.Left, headerView, viewportView, footer(info))
}

// calculateVisibleRange returns start/end indices for visible lines
func calculateVisibleRange(cursorLineIdx int, lineHeights []int, visibleHeight int) (startLine, endLine int) {
	totalLines := len(lineHeights)

	if totalLines == 0 {
		return 0, 0
	}

	cursorPos := 0
	totalHeight := 0

	for i, h := range lineHeights {
		if i < cursorLineIdx {
			cursorPos += h
		}
		totalHeight += h
	}

	if totalHeight <= visibleHeight {
		return 0, totalLines
	}

	startRow := max(0, cursorPos-(visibleHeight-1))

	pos := 0
	for i, h := range lineHeights {
		if pos+h > startRow {
			startLine = i
			break
		}
		pos += h
	}

	rendered := 0
	for i := startLine; i < totalLines; i++ {
		if rendered+lineHeights[i] > visibleHeight {
			break
		}

		rendered += lineHeights[i]
		endLine = i + 1
	}

	if cursorLineIdx >= endLine {
		endLine = cursorLineIdx + 1
	}

	return startLine, endLine
}
