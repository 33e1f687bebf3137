// Package tui provides an interactive terminal interface over the sync
// engine. Every mutation goes through the engine, so the display stays
// honest about what is synced, queued, or currently flushing.
package tui

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dayplan/backend"
	dsync "dayplan/internal/sync"
)

// Engine is the mutation surface the TUI drives (implemented by
// *sync.Engine).
type Engine interface {
	Load(ctx context.Context) error
	Tasks() []backend.Task
	Create(ctx context.Context, task backend.Task) (backend.Task, error)
	Update(ctx context.Context, id backend.ID, patch backend.Patch) error
	Delete(ctx context.Context, id backend.ID) error
	Flush(ctx context.Context) error
	State() dsync.State
	PendingCount(ctx context.Context) int
	Authenticated() bool
}

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeEdit
	ModeFilter
	ModeHelp
	ModeConfirmDelete
)

// Model represents the TUI state
type Model struct {
	engine  Engine
	account string
	ctx     context.Context

	tasks       []backend.Task
	filteredIdx []int // indices into tasks slice for filtered view

	cursor int

	mode      Mode
	textInput textinput.Model
	filter    string
	statusMsg string

	width  int
	height int

	paneStyle      lipgloss.Style
	selectedStyle  lipgloss.Style
	completedStyle lipgloss.Style
	dueStyle       lipgloss.Style
	helpStyle      lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
	offlineStyle   lipgloss.Style
}

// Message types
type tasksReloadedMsg struct {
	tasks []backend.Task
}

type mutationDoneMsg struct{}

type flushDoneMsg struct{}

type errMsg struct {
	err error
}

// New creates a TUI model over the given engine. account is shown in the
// status bar and may be empty for guest mode.
func New(engine Engine, account string) *Model {
	ti := textinput.New()
	ti.Placeholder = "Enter text..."
	ti.CharLimit = 256

	return &Model{
		engine:    engine,
		account:   account,
		ctx:       context.Background(),
		textInput: ti,
		mode:      ModeNormal,
		paneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		dueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		offlineStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
	}
}

// Init loads the task list.
func (m *Model) Init() tea.Cmd {
	return m.reload(true)
}

// reload refreshes the engine snapshot, optionally loading from the
// server/cache first.
func (m *Model) reload(load bool) tea.Cmd {
	return func() tea.Msg {
		if load {
			if err := m.engine.Load(m.ctx); err != nil {
				return errMsg{err}
			}
		}
		return tasksReloadedMsg{m.engine.Tasks()}
	}
}

func (m *Model) createTask(title string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.engine.Create(m.ctx, backend.Task{Title: title})
		if err != nil {
			return errMsg{err}
		}
		return mutationDoneMsg{}
	}
}

func (m *Model) updateTask(id backend.ID, patch backend.Patch) tea.Cmd {
	return func() tea.Msg {
		if err := m.engine.Update(m.ctx, id, patch); err != nil {
			return errMsg{err}
		}
		return mutationDoneMsg{}
	}
}

func (m *Model) deleteTask(id backend.ID) tea.Cmd {
	return func() tea.Msg {
		if err := m.engine.Delete(m.ctx, id); err != nil {
			return errMsg{err}
		}
		return mutationDoneMsg{}
	}
}

func (m *Model) flush() tea.Cmd {
	return func() tea.Msg {
		if err := m.engine.Flush(m.ctx); err != nil {
			return errMsg{err}
		}
		return flushDoneMsg{}
	}
}

// selected returns the task under the cursor, if any.
func (m *Model) selected() (backend.Task, bool) {
	if len(m.filteredIdx) == 0 || m.cursor >= len(m.filteredIdx) {
		return backend.Task{}, false
	}
	return m.tasks[m.filteredIdx[m.cursor]], true
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tasksReloadedMsg:
		m.tasks = msg.tasks
		backend.SortTasks(m.tasks)
		m.applyFilter()
		return m, nil

	case mutationDoneMsg:
		m.statusMsg = ""
		return m, m.reload(false)

	case flushDoneMsg:
		m.statusMsg = "synced"
		return m, m.reload(false)

	case errMsg:
		m.statusMsg = msg.err.Error()
		// The optimistic local change may still have landed.
		return m, m.reload(false)

	case tea.KeyMsg:
		switch m.mode {
		case ModeAdd:
			return m.handleAddMode(msg)
		case ModeEdit:
			return m.handleEditMode(msg)
		case ModeFilter:
			return m.handleFilterMode(msg)
		case ModeHelp:
			return m.handleHelpMode(msg)
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case "down", "j":
			if m.cursor < len(m.filteredIdx)-1 {
				m.cursor++
			}
			return m, nil

		case "a":
			m.mode = ModeAdd
			m.textInput.Reset()
			m.textInput.Placeholder = "New task title..."
			m.textInput.Focus()
			return m, textinput.Blink

		case "e":
			if task, ok := m.selected(); ok {
				m.mode = ModeEdit
				m.textInput.Reset()
				m.textInput.SetValue(task.Title)
				m.textInput.Focus()
				return m, textinput.Blink
			}
			return m, nil

		case "c":
			if task, ok := m.selected(); ok {
				done := !task.Done
				return m, m.updateTask(task.ID, backend.Patch{Done: &done})
			}
			return m, nil

		case "d":
			if _, ok := m.selected(); ok {
				m.mode = ModeConfirmDelete
			}
			return m, nil

		case "s":
			m.statusMsg = "flushing..."
			return m, m.flush()

		case "r":
			return m, m.reload(true)

		case "/":
			m.mode = ModeFilter
			m.textInput.Reset()
			m.textInput.Placeholder = "Search..."
			m.textInput.Focus()
			return m, textinput.Blink

		case "?":
			m.mode = ModeHelp
			return m, nil
		}
	}

	if m.mode == ModeAdd || m.mode == ModeEdit || m.mode == ModeFilter {
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleAddMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := strings.TrimSpace(m.textInput.Value())
		m.mode = ModeNormal
		if value != "" {
			return m, m.createTask(value)
		}
		return m, nil

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleEditMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := strings.TrimSpace(m.textInput.Value())
		m.mode = ModeNormal
		if task, ok := m.selected(); ok && value != "" && value != task.Title {
			return m, m.updateTask(task.ID, backend.Patch{Title: &value})
		}
		return m, nil

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleFilterMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.filter = m.textInput.Value()
		m.applyFilter()
		m.mode = ModeNormal
		return m, nil

	case tea.KeyEsc:
		m.filter = ""
		m.applyFilter()
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleHelpMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.mode = ModeNormal
		return m, nil
	}

	if msg.String() == "q" {
		m.mode = ModeNormal
		return m, nil
	}

	return m, nil
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		if task, ok := m.selected(); ok {
			if m.cursor >= len(m.filteredIdx)-1 && m.cursor > 0 {
				m.cursor--
			}
			return m, m.deleteTask(task.ID)
		}
		return m, nil

	case "n", "N", "esc":
		m.mode = ModeNormal
		return m, nil
	}

	if msg.Type == tea.KeyEsc {
		m.mode = ModeNormal
	}

	return m, nil
}

func (m *Model) applyFilter() {
	m.filteredIdx = nil
	for i, task := range m.tasks {
		if m.filter == "" || strings.Contains(strings.ToLower(task.Title), strings.ToLower(m.filter)) {
			m.filteredIdx = append(m.filteredIdx, i)
		}
	}
	if m.cursor >= len(m.filteredIdx) {
		m.cursor = 0
	}
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd:
		return m.renderInputDialog("Add Task", "Enter: confirm  Esc: cancel")
	case ModeEdit:
		return m.renderInputDialog("Edit Task", "Enter: confirm  Esc: cancel")
	case ModeFilter:
		return m.renderInputDialog("Filter Tasks", "Enter: filter  Esc: clear")
	case ModeHelp:
		return m.renderHelpDialog()
	case ModeConfirmDelete:
		return m.renderConfirmDeleteDialog()
	}

	var b strings.Builder
	content := m.renderTaskPane(m.width - 6)
	b.WriteString(m.paneStyle.Width(m.width - 2).Height(m.height - 4).Render(content))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

func (m *Model) renderTaskPane(width int) string {
	var b strings.Builder
	b.WriteString("Tasks\n")
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	if len(m.filteredIdx) == 0 {
		b.WriteString("No tasks\n")
		return b.String()
	}

	for fi, taskIdx := range m.filteredIdx {
		task := m.tasks[taskIdx]

		cursor := " "
		if fi == m.cursor {
			cursor = ">"
		}

		status := "[ ]"
		if task.Done {
			status = "[x]"
		}

		title := task.Title
		if task.Done {
			title = m.completedStyle.Render(title)
		} else if fi == m.cursor {
			title = m.selectedStyle.Render(title)
		}

		line := cursor + " " + status + " " + title
		if task.DueDate != "" {
			due := task.DueDate
			if task.DueTime != "" {
				due += " " + task.DueTime
			}
			line += " " + m.dueStyle.Render("("+due+")")
		}
		if task.ID.IsLocal() {
			line += " " + m.offlineStyle.Render("*")
		}

		b.WriteString(line + "\n")
	}

	return b.String()
}

// renderStatusBar shows the account, the sync state, and pending queue
// depth. Tasks still carrying a placeholder id are starred in the list.
func (m *Model) renderStatusBar() string {
	left := "guest | local"
	if m.engine.Authenticated() {
		state := m.engine.State().String()
		if n := m.engine.PendingCount(m.ctx); n > 0 {
			state += " (" + strconv.Itoa(n) + " pending)"
		}
		left = m.account + " | " + state
	}
	if m.statusMsg != "" {
		left += " | " + m.statusMsg
	}

	right := "a:add  s:sync  q:quit  ?:help"
	if m.filter != "" {
		right = "filter: " + m.filter + "  " + right
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderInputDialog(title, help string) string {
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.textInput.View() + "\n\n" +
			m.helpStyle.Render(help),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderHelpDialog() string {
	help := `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up

Actions:
  a      Add new task
  e      Edit selected task title
  c      Toggle task completion
  d      Delete task (with confirm)
  s      Sync now (flush queued changes)
  r      Reload from server
  /      Search/filter tasks

General:
  ?      Show this help
  q      Quit

Tasks marked * are still awaiting a server id.

Press any key to close`

	dialog := m.dialogStyle.Render(help)
	return m.centerDialog(dialog)
}

func (m *Model) renderConfirmDeleteDialog() string {
	title := "Delete selected task?"
	if task, ok := m.selected(); ok {
		title = "Delete \"" + task.Title + "\"?"
	}
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.helpStyle.Render("y: yes  n: no"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) centerDialog(dialog string) string {
	lines := strings.Split(dialog, "\n")
	dialogHeight := len(lines)
	dialogWidth := 0
	for _, line := range lines {
		if w := lipgloss.Width(line); w > dialogWidth {
			dialogWidth = w
		}
	}

	topPad := (m.height - dialogHeight) / 2
	leftPad := (m.width - dialogWidth) / 2
	if topPad < 0 {
		topPad = 0
	}
	if leftPad < 0 {
		leftPad = 0
	}

	var b strings.Builder
	for i := 0; i < topPad; i++ {
		b.WriteString("\n")
	}
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}
