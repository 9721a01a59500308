package workspace

import "testing"

func TestStatus_Predicates(t *testing.T) {
	tests := []struct {
		status       Status
		routed       bool
		intermediate bool
	}{
		{StatusProvisioning, false, true},
		{StatusActive, true, false},
		{StatusStopping, true, true},
		{StatusStopped, false, false},
		{StatusStarting, true, true},
		{StatusDeleting, false, true},
		{StatusDeleted, false, false},
		{StatusError, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if !tt.status.Valid() {
				t.Errorf("%s.Valid() = false", tt.status)
			}
			if got := tt.status.Routed(); got != tt.routed {
				t.Errorf("Routed() = %v, want %v", got, tt.routed)
			}
			if got := tt.status.Intermediate(); got != tt.intermediate {
				t.Errorf("Intermediate() = %v, want %v", got, tt.intermediate)
			}
			if got := tt.status.Settled(); got == tt.intermediate {
				t.Errorf("Settled() = %v, want %v", got, !tt.intermediate)
			}
		})
	}

	if Status("paused").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestHostname(t *testing.T) {
	tests := []struct {
		name, owner, domain, want string
	}{
		{"dev", "acme", "ws.example.com", "dev-acme.ws.example.com"},
		{"api", "Acme", ".example.com", "api-acme.example.com"},
	}
	for _, tt := range tests {
		if got := Hostname(tt.name, tt.owner, tt.domain); got != tt.want {
			t.Errorf("Hostname(%q, %q, %q) = %q, want %q", tt.name, tt.owner, tt.domain, got, tt.want)
		}
	}
}

func TestIdentityName(t *testing.T) {
	got := IdentityName("fws-", "3F2A9C01-B7D4-4E5F-8A9B-0C1D2E3F4A5B")
	if got != "fws-3f2a9c01b7d4" {
		t.Errorf("IdentityName() = %q, want fws-3f2a9c01b7d4", got)
	}
	if got := IdentityName("u", "abc"); got != "uabc" {
		t.Errorf("IdentityName() short id = %q, want uabc", got)
	}
}

func TestUnitName(t *testing.T) {
	if got := UnitName("forage-ws-", "fws-1"); got != "forage-ws-fws-1.service" {
		t.Errorf("UnitName() = %q", got)
	}
}

func TestWorkspace_RefAndHome(t *testing.T) {
	ws := &Workspace{OwnerID: "acme", Name: "dev", OSIdentity: "fws-abc"}
	if ws.Ref() != "acme/dev" {
		t.Errorf("Ref() = %q", ws.Ref())
	}
	if got := ws.HomeDir("/srv/homes"); got != "/srv/homes/fws-abc" {
		t.Errorf("HomeDir() = %q", got)
	}
}
