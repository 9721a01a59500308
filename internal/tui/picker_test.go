package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testWorkspaces() []*workspace.Workspace {
	return []*workspace.Workspace{
		ws("acme", "dev", workspace.StatusActive),
		ws("acme", "web", workspace.StatusStopped),
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"dev-acme.workspaces.example.com", 20, "dev-acme.workspac..."},
		{"", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			if got := truncate(tt.s, tt.maxLen); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestWorkspaceItemMethods(t *testing.T) {
	item := workspaceItem{ws: ws("acme", "dev", workspace.StatusActive), health: health.StatusHealthy}

	if got := item.Title(); got != "dev" {
		t.Errorf("Title() = %q, want %q", got, "dev")
	}
	if got := item.FilterValue(); got != "acme/dev" {
		t.Errorf("FilterValue() = %q, want %q", got, "acme/dev")
	}

	desc := item.Description()
	for _, want := range []string{"✓", "healthy", "free", "8001", "dev-acme.ws.test"} {
		if !strings.Contains(desc, want) {
			t.Errorf("Description() = %q, missing %q", desc, want)
		}
	}

	stopped := workspaceItem{ws: ws("acme", "web", workspace.StatusStopped), health: health.StatusStopped}
	if desc := stopped.Description(); !strings.Contains(desc, "stopped") || !strings.Contains(desc, "●") {
		t.Errorf("stopped Description() = %q", desc)
	}
}

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		status workspace.Status
		health health.Status
		want   string
	}{
		{workspace.StatusActive, health.StatusHealthy, "✓"},
		{workspace.StatusActive, health.StatusUnitDown, "⚠"},
		{workspace.StatusError, health.StatusStopped, "✗"},
		{workspace.StatusStopped, health.StatusStopped, "●"},
		{workspace.StatusProvisioning, health.StatusStopped, "○"},
	}
	for _, tt := range tests {
		if got := statusIcon(tt.status, tt.health); got != tt.want {
			t.Errorf("statusIcon(%s, %s) = %q, want %q", tt.status, tt.health, got, tt.want)
		}
	}
}

func TestPicker_InitialSelectionSkipsHeader(t *testing.T) {
	m := NewPicker(testWorkspaces(), PickerOptions{})
	if ws, ok := m.selected(); !ok || ws.Name != "dev" {
		t.Errorf("initial selection = %v, want dev", ws)
	}
}

func TestPicker_Actions(t *testing.T) {
	tests := []struct {
		key  string
		want Action
	}{
		{"enter", ActionStatus},
		{"s", ActionStart},
		{"x", ActionStop},
		{"r", ActionRestart},
		{"D", ActionDelete},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m := NewPicker(testWorkspaces(), PickerOptions{})
			updated, cmd := m.Update(key(tt.key))
			if cmd == nil {
				t.Error("expected quit command")
			}
			result := updated.(Model).Result()
			if result.Action != tt.want {
				t.Errorf("Action = %v, want %v", result.Action, tt.want)
			}
			if result.Workspace == nil || result.Workspace.Name != "dev" {
				t.Errorf("Workspace = %v, want dev", result.Workspace)
			}
		})
	}
}

func TestPicker_Quit(t *testing.T) {
	for _, k := range []string{"q", "esc"} {
		m := NewPicker(testWorkspaces(), PickerOptions{})
		updated, _ := m.Update(key(k))
		if got := updated.(Model).Result().Action; got != ActionQuit {
			t.Errorf("%s: Action = %v, want ActionQuit", k, got)
		}
		if updated.View() != "" {
			t.Errorf("%s: View() should be empty after quitting", k)
		}
	}
}

func TestPicker_NewWithoutWizard(t *testing.T) {
	m := NewPicker(testWorkspaces(), PickerOptions{})
	updated, _ := m.Update(key("n"))
	if got := updated.(Model).Result().Action; got != ActionNew {
		t.Errorf("Action = %v, want ActionNew", got)
	}
}

func TestPicker_WizardFlow(t *testing.T) {
	m := NewPicker(testWorkspaces(), PickerOptions{
		AllowCreate: true,
		Owner:       "acme",
		Plans:       map[string]int64{"free": 5_000_000_000},
	})

	model, _ := m.Update(key("n"))
	m = model.(Model)
	if !m.inWizard {
		t.Fatal("n should open the wizard")
	}
	if !strings.Contains(m.View(), "Create New Workspace") {
		t.Error("wizard view not shown")
	}

	// owner (pre-filled) -> name -> plan -> confirm
	model, _ = m.Update(key("enter"))
	m = model.(Model)
	m.wizard.nameInput.SetValue("api")
	for i := 0; i < 3; i++ {
		model, _ = m.Update(key("enter"))
		m = model.(Model)
	}

	result := m.Result()
	if result.Action != ActionNew || result.CreateOptions == nil {
		t.Fatalf("result = %+v, want ActionNew with options", result)
	}
	want := CreateOptions{Owner: "acme", Name: "api", Plan: "free"}
	if *result.CreateOptions != want {
		t.Errorf("CreateOptions = %+v, want %+v", *result.CreateOptions, want)
	}
}

func TestPicker_WizardCancelReturnsToList(t *testing.T) {
	m := NewPicker(testWorkspaces(), PickerOptions{AllowCreate: true, Owner: "acme"})
	model, _ := m.Update(key("n"))
	model, _ = model.(Model).Update(key("esc"))
	m = model.(Model)

	if m.inWizard {
		t.Error("esc at the first wizard step should close the wizard")
	}
	if m.Result().Action != ActionNone {
		t.Errorf("Action = %v, want ActionNone", m.Result().Action)
	}
}

func TestPicker_WindowResize(t *testing.T) {
	m := NewPicker(testWorkspaces(), PickerOptions{})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if got := updated.(Model); got.width != 120 || got.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", got.width, got.height)
	}
}

func TestPicker_ViewShowsHelp(t *testing.T) {
	view := NewPicker(testWorkspaces(), PickerOptions{}).View()
	if !strings.Contains(view, "[D] Delete") {
		t.Error("View() should contain the key help")
	}
}

func TestSimplePicker(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		out := SimplePicker(nil, nil)
		if !strings.Contains(out, "No workspaces found") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("grouped", func(t *testing.T) {
		out := SimplePicker(testWorkspaces(), func(*workspace.Workspace) health.Status {
			return health.StatusHealthy
		})
		for _, want := range []string{"acme\n", "1. ✓ dev", "2. ● web", "Host: dev-acme.ws.test"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})
}
