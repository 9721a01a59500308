// Package tui provides terminal user interface components for forage-ws.
//
// This package uses the Bubble Tea framework for the interactive workspace
// picker behind `forage-ws pick`.
//
// # Workspace Picker
//
// The picker lists workspaces grouped by owner and returns the chosen action:
//
//	opts := tui.PickerOptions{AllowCreate: true, Owner: "acme", Plans: plans, Status: check}
//	result, err := tui.RunPicker(workspaces, opts)
//	switch result.Action {
//	case tui.ActionStart, tui.ActionStop, tui.ActionRestart, tui.ActionDelete:
//	    // Run the lifecycle operation on result.Workspace
//	case tui.ActionNew:
//	    if result.CreateOptions != nil {
//	        // Create from the wizard's owner, name and plan
//	    }
//	case tui.ActionQuit:
//	    // Exit
//	}
//
// # Picker Features
//
//   - Workspaces grouped by owner, headers skipped by j/k and arrows
//   - Keys: Enter (status), s (start), x (stop), r (restart), D (delete),
//     n (new), / (filter), q (quit)
//   - Health icons for Active workspaces
//   - Creation wizard when AllowCreate is true (owner, name, plan)
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - UI components
//   - github.com/charmbracelet/lipgloss - Styling
package tui
