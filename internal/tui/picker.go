package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionStatus
	ActionNew
	ActionStart
	ActionStop
	ActionRestart
	ActionDelete
	ActionQuit
)

// StatusFunc checks the health of an Active workspace.
type StatusFunc func(ws *workspace.Workspace) health.Status

// PickerOptions configures the picker.
type PickerOptions struct {
	// AllowCreate opens the creation wizard on "n".
	AllowCreate bool
	// Owner pre-fills the wizard's owner field.
	Owner string
	// Plans maps plan names to quota bytes for the wizard.
	Plans map[string]int64
	// Status checks Active workspaces. Optional.
	Status StatusFunc
}

// PickerResult holds the result of the picker
type PickerResult struct {
	Action        Action
	Workspace     *workspace.Workspace
	CreateOptions *CreateOptions
}

// workspaceItem implements list.Item for workspace display
type workspaceItem struct {
	ws     *workspace.Workspace
	health health.Status
}

func (i workspaceItem) Title() string {
	return i.ws.Name
}

func (i workspaceItem) Description() string {
	state := string(i.ws.Status)
	if i.ws.Status == workspace.StatusActive {
		state = string(i.health)
	}
	port := "-"
	if i.ws.Port != 0 {
		port = fmt.Sprintf("%d", i.ws.Port)
	}
	return fmt.Sprintf("%s %s | %s | %s | %s",
		statusIcon(i.ws.Status, i.health),
		state,
		i.ws.Plan,
		port,
		truncate(i.ws.PublicHostname, 40),
	)
}

func (i workspaceItem) FilterValue() string {
	return i.ws.Ref()
}

func statusIcon(s workspace.Status, h health.Status) string {
	switch s {
	case workspace.StatusActive:
		if h == health.StatusHealthy {
			return "✓"
		}
		return "⚠"
	case workspace.StatusError:
		return "✗"
	case workspace.StatusStopped, workspace.StatusDeleted:
		return "●"
	}
	return "○"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the workspace picker
type Model struct {
	list     list.Model
	opts     PickerOptions
	result   PickerResult
	quitting bool

	wizard   *wizardModel
	inWizard bool

	width  int
	height int
}

// NewPicker creates a new workspace picker
func NewPicker(workspaces []*workspace.Workspace, opts PickerOptions) Model {
	items := buildGroupedItems(workspaces, opts.Status)

	l := list.New(items, newGroupedDelegate(), 80, 20)
	l.Title = "forage-ws - Workspaces"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle
	l.SetStatusBarItemName("workspace", "workspaces")
	if isHeaderSelected(&l) {
		skipHeaders(&l, 1)
	}

	return Model{
		list: l,
		opts: opts,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) selected() (*workspace.Workspace, bool) {
	if item, ok := m.list.SelectedItem().(workspaceItem); ok {
		return item.ws, true
	}
	return nil, false
}

func (m Model) finish(action Action, ws *workspace.Workspace) (tea.Model, tea.Cmd) {
	m.result = PickerResult{Action: action, Workspace: ws}
	m.quitting = true
	return m, tea.Quit
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.inWizard {
		done, opts, cmd := m.wizard.Update(msg)
		if !done {
			return m, cmd
		}
		if opts == nil {
			m.inWizard = false
			m.wizard = nil
			return m, nil
		}
		m.result = PickerResult{Action: ActionNew, CreateOptions: opts}
		m.quitting = true
		return m, tea.Quit
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			if ws, ok := m.selected(); ok {
				return m.finish(ActionStatus, ws)
			}
		case "s":
			if ws, ok := m.selected(); ok {
				return m.finish(ActionStart, ws)
			}
		case "x":
			if ws, ok := m.selected(); ok {
				return m.finish(ActionStop, ws)
			}
		case "r":
			if ws, ok := m.selected(); ok {
				return m.finish(ActionRestart, ws)
			}
		case "D":
			if ws, ok := m.selected(); ok {
				return m.finish(ActionDelete, ws)
			}
		case "n":
			if !m.opts.AllowCreate {
				return m.finish(ActionNew, nil)
			}
			w := newWizardModel(m.opts.Owner, m.opts.Plans)
			m.wizard = &w
			m.inWizard = true
			return m, m.wizard.Init()
		case "q", "esc":
			return m.finish(ActionQuit, nil)
		case "up", "k", "down", "j":
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			skipHeaders(&m.list, navigationDirection(msg))
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.inWizard {
		return m.wizard.View()
	}

	help := helpStyle.Render("[enter] Status  [s] Start  [x] Stop  [r] Restart  [D] Delete  [n] New  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive workspace picker
func RunPicker(workspaces []*workspace.Workspace, opts PickerOptions) (PickerResult, error) {
	if len(workspaces) == 0 && !opts.AllowCreate {
		return PickerResult{Action: ActionNew}, nil
	}

	m := NewPicker(workspaces, opts)
	if len(workspaces) == 0 {
		w := newWizardModel(opts.Owner, opts.Plans)
		m.wizard = &w
		m.inWizard = true
	}
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimplePicker is a non-interactive listing of workspaces grouped by owner
func SimplePicker(workspaces []*workspace.Workspace, status StatusFunc) string {
	var sb strings.Builder

	sb.WriteString("forage-ws - Workspaces\n")
	sb.WriteString(strings.Repeat("─", 60) + "\n\n")

	if len(workspaces) == 0 {
		sb.WriteString("No workspaces found.\n")
		sb.WriteString("Create one with: forage-ws create <owner>/<name>\n")
		return sb.String()
	}

	n := 0
	for _, item := range buildGroupedItems(workspaces, status) {
		switch it := item.(type) {
		case headerItem:
			sb.WriteString(it.label + "\n")
		case workspaceItem:
			n++
			sb.WriteString(fmt.Sprintf("  %d. %s %s\n", n, statusIcon(it.ws.Status, it.health), it.ws.Name))
			sb.WriteString(fmt.Sprintf("     Port: %d | Host: %s\n\n", it.ws.Port, it.ws.PublicHostname))
		}
	}

	return sb.String()
}
