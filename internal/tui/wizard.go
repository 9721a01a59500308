package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/quota"
)

// CreateOptions holds the values collected by the creation wizard.
type CreateOptions struct {
	Owner string
	Name  string
	Plan  string
}

// wizardStep identifies the current step.
type wizardStep int

const (
	stepOwner wizardStep = iota
	stepName
	stepPlan
	stepConfirm
)

// wizardModel drives the multi-step creation wizard.
type wizardModel struct {
	step wizardStep

	ownerInput textinput.Model
	nameInput  textinput.Model
	planList   list.Model

	selectedOwner string
	selectedName  string
	selectedPlan  string

	// errMsg explains why the last input was rejected.
	errMsg string
}

// planItem implements list.Item for plan selection.
type planItem struct {
	name  string
	bytes int64
}

func (p planItem) Title() string       { return p.name }
func (p planItem) Description() string { return "disk quota " + quota.FormatSize(p.bytes) }
func (p planItem) FilterValue() string { return p.name }

var (
	wizardTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				MarginBottom(1)

	wizardStepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	wizardActiveStepStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	wizardLabelStyle = lipgloss.NewStyle().
				Bold(true).
				MarginBottom(1)

	wizardValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39"))

	wizardDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	wizardErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196"))
)

func newWizardModel(owner string, plans map[string]int64) wizardModel {
	oi := textinput.New()
	oi.Placeholder = "owner"
	oi.CharLimit = 32
	oi.Width = 40
	oi.SetValue(owner)
	oi.Focus()

	ni := textinput.New()
	ni.Placeholder = "workspace-name"
	ni.CharLimit = 31
	ni.Width = 40

	names := make([]string, 0, len(plans))
	for name := range plans {
		names = append(names, name)
	}
	sort.Strings(names)
	items := make([]list.Item, 0, len(names))
	for _, name := range names {
		items = append(items, planItem{name: name, bytes: plans[name]})
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	l := list.New(items, delegate, 60, 10)
	l.Title = ""
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return wizardModel{
		step:       stepOwner,
		ownerInput: oi,
		nameInput:  ni,
		planList:   l,
	}
}

func (w *wizardModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update processes a message and returns (done, createOptions, cmd).
// done=true with non-nil opts means wizard completed successfully.
// done=true with nil opts means wizard was cancelled.
func (w *wizardModel) Update(msg tea.Msg) (bool, *CreateOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyCtrlC:
			return true, nil, nil
		case tea.KeyEsc:
			return w.handleBack()
		}
	}

	switch w.step {
	case stepOwner:
		return w.updateOwner(msg)
	case stepName:
		return w.updateName(msg)
	case stepPlan:
		return w.updatePlan(msg)
	case stepConfirm:
		return w.updateConfirm(msg)
	}

	return false, nil, nil
}

func (w *wizardModel) handleBack() (bool, *CreateOptions, tea.Cmd) {
	w.errMsg = ""
	switch w.step {
	case stepOwner:
		return true, nil, nil
	case stepName:
		w.step = stepOwner
		w.nameInput.Blur()
		w.ownerInput.Focus()
		return false, nil, textinput.Blink
	case stepPlan:
		w.step = stepName
		w.nameInput.Focus()
		return false, nil, textinput.Blink
	case stepConfirm:
		w.step = stepPlan
		return false, nil, nil
	}
	return false, nil, nil
}

func (w *wizardModel) updateOwner(msg tea.Msg) (bool, *CreateOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
		owner := strings.TrimSpace(w.ownerInput.Value())
		if err := config.ValidateOwner(owner); err != nil {
			w.errMsg = err.Error()
			return false, nil, nil
		}
		w.errMsg = ""
		w.selectedOwner = owner
		w.step = stepName
		w.ownerInput.Blur()
		w.nameInput.Focus()
		return false, nil, textinput.Blink
	}

	var cmd tea.Cmd
	w.ownerInput, cmd = w.ownerInput.Update(msg)
	return false, nil, cmd
}

func (w *wizardModel) updateName(msg tea.Msg) (bool, *CreateOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
		name := strings.TrimSpace(w.nameInput.Value())
		if err := config.ValidateWorkspaceName(name); err != nil {
			w.errMsg = err.Error()
			return false, nil, nil
		}
		w.errMsg = ""
		w.selectedName = name
		w.nameInput.Blur()
		w.step = stepPlan
		return false, nil, nil
	}

	var cmd tea.Cmd
	w.nameInput, cmd = w.nameInput.Update(msg)
	return false, nil, cmd
}

func (w *wizardModel) updatePlan(msg tea.Msg) (bool, *CreateOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
		if item, ok := w.planList.SelectedItem().(planItem); ok {
			w.selectedPlan = item.name
			w.step = stepConfirm
		}
		return false, nil, nil
	}

	var cmd tea.Cmd
	w.planList, cmd = w.planList.Update(msg)
	return false, nil, cmd
}

func (w *wizardModel) updateConfirm(msg tea.Msg) (bool, *CreateOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter", "y":
			return true, &CreateOptions{
				Owner: w.selectedOwner,
				Name:  w.selectedName,
				Plan:  w.selectedPlan,
			}, nil
		case "n":
			w.step = stepOwner
			w.nameInput.SetValue("")
			w.selectedName = ""
			w.selectedPlan = ""
			w.ownerInput.Focus()
			return false, nil, textinput.Blink
		}
	}
	return false, nil, nil
}

func (w *wizardModel) View() string {
	var b strings.Builder

	b.WriteString(wizardTitleStyle.Render("Create New Workspace"))
	b.WriteString("\n")
	b.WriteString(w.progressBar())
	b.WriteString("\n\n")

	switch w.step {
	case stepOwner:
		b.WriteString(wizardLabelStyle.Render("Owner:"))
		b.WriteString("\n")
		b.WriteString(w.ownerInput.View())
	case stepName:
		b.WriteString(wizardLabelStyle.Render("Workspace name:"))
		b.WriteString("\n")
		b.WriteString(w.nameInput.View())
		b.WriteString("\n\n")
		b.WriteString(wizardDimStyle.Render("Lowercase letters, digits and dashes."))
	case stepPlan:
		b.WriteString(wizardLabelStyle.Render("Select plan:"))
		b.WriteString("\n")
		b.WriteString(w.planList.View())
	case stepConfirm:
		b.WriteString(wizardLabelStyle.Render("Confirm:"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("  Owner: %s\n", wizardValueStyle.Render(w.selectedOwner)))
		b.WriteString(fmt.Sprintf("  Name:  %s\n", wizardValueStyle.Render(w.selectedName)))
		b.WriteString(fmt.Sprintf("  Plan:  %s\n", wizardValueStyle.Render(w.selectedPlan)))
		b.WriteString("\n")
		b.WriteString(wizardDimStyle.Render("Enter to create, n to restart, Esc to go back."))
	}

	if w.errMsg != "" {
		b.WriteString("\n\n")
		b.WriteString(wizardErrorStyle.Render(w.errMsg))
	}

	return b.String()
}

func (w *wizardModel) progressBar() string {
	names := []string{"Owner", "Name", "Plan", "Confirm"}

	var parts []string
	for i, name := range names {
		label := fmt.Sprintf("%d. %s", i+1, name)
		if wizardStep(i) == w.step {
			parts = append(parts, wizardActiveStepStyle.Render(label))
		} else {
			parts = append(parts, wizardStepStyle.Render(label))
		}
	}

	return strings.Join(parts, wizardDimStyle.Render(" > "))
}
