package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

func ws(owner, name string, status workspace.Status) *workspace.Workspace {
	return &workspace.Workspace{
		ID:             owner + "-" + name,
		OwnerID:        owner,
		Name:           name,
		Plan:           "free",
		PublicHostname: name + "-" + owner + ".ws.test",
		Port:           8001,
		Status:         status,
	}
}

func TestGroupKey(t *testing.T) {
	if got := groupKey(ws("acme", "dev", workspace.StatusActive)); got != "acme" {
		t.Errorf("groupKey() = %q, want %q", got, "acme")
	}
}

func TestBuildGroupedItems(t *testing.T) {
	t.Run("empty workspaces", func(t *testing.T) {
		if items := buildGroupedItems(nil, nil); items != nil {
			t.Errorf("expected nil, got %d items", len(items))
		}
	})

	t.Run("groups sorted by owner then name", func(t *testing.T) {
		items := buildGroupedItems([]*workspace.Workspace{
			ws("globex", "api", workspace.StatusActive),
			ws("acme", "web", workspace.StatusStopped),
			ws("acme", "dev", workspace.StatusActive),
		}, nil)

		want := []string{"acme", "dev", "web", "globex", "api"}
		if len(items) != len(want) {
			t.Fatalf("got %d items, want %d", len(items), len(want))
		}
		for i, item := range items {
			var got string
			switch it := item.(type) {
			case headerItem:
				got = it.label
			case workspaceItem:
				got = it.ws.Name
			}
			if got != want[i] {
				t.Errorf("item %d = %q, want %q", i, got, want[i])
			}
		}
	})

	t.Run("checks only active workspaces", func(t *testing.T) {
		checked := 0
		status := func(*workspace.Workspace) health.Status {
			checked++
			return health.StatusHealthy
		}
		items := buildGroupedItems([]*workspace.Workspace{
			ws("acme", "dev", workspace.StatusActive),
			ws("acme", "old", workspace.StatusStopped),
		}, status)

		if checked != 1 {
			t.Errorf("checked %d workspaces, want 1", checked)
		}
		if h := items[1].(workspaceItem).health; h != health.StatusHealthy {
			t.Errorf("active health = %s, want healthy", h)
		}
		if h := items[2].(workspaceItem).health; h != health.StatusStopped {
			t.Errorf("stopped health = %s, want stopped", h)
		}
	})
}

func TestSkipHeaders(t *testing.T) {
	items := []list.Item{
		headerItem{label: "acme"},
		workspaceItem{ws: ws("acme", "dev", workspace.StatusActive)},
		headerItem{label: "globex"},
		workspaceItem{ws: ws("globex", "api", workspace.StatusActive)},
	}
	l := list.New(items, newGroupedDelegate(), 80, 20)

	l.Select(0)
	skipHeaders(&l, 1)
	if l.Index() != 1 {
		t.Errorf("down from header: index = %d, want 1", l.Index())
	}

	l.Select(2)
	skipHeaders(&l, -1)
	if l.Index() != 1 {
		t.Errorf("up onto header: index = %d, want 1", l.Index())
	}

	l.Select(2)
	skipHeaders(&l, 1)
	if l.Index() != 3 {
		t.Errorf("down onto header: index = %d, want 3", l.Index())
	}

	l.Select(3)
	skipHeaders(&l, 1)
	if l.Index() != 3 {
		t.Errorf("non-header selection moved to %d", l.Index())
	}
}

func TestIsHeaderSelected(t *testing.T) {
	items := []list.Item{
		headerItem{label: "acme"},
		workspaceItem{ws: ws("acme", "dev", workspace.StatusActive)},
	}
	l := list.New(items, newGroupedDelegate(), 80, 20)

	l.Select(0)
	if !isHeaderSelected(&l) {
		t.Error("header should be selected")
	}
	l.Select(1)
	if isHeaderSelected(&l) {
		t.Error("workspace should be selected")
	}
}

func TestNavigationDirection(t *testing.T) {
	tests := []struct {
		key  tea.KeyMsg
		want int
	}{
		{tea.KeyMsg{Type: tea.KeyUp}, -1},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}}, -1},
		{tea.KeyMsg{Type: tea.KeyDown}, 1},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}}, 1},
	}
	for _, tt := range tests {
		if got := navigationDirection(tt.key); got != tt.want {
			t.Errorf("navigationDirection(%q) = %d, want %d", tt.key.String(), got, tt.want)
		}
	}
}
