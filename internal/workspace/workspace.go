package workspace

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Status is the lifecycle state of a workspace.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusStarting     Status = "starting"
	StatusDeleting     Status = "deleting"
	StatusDeleted      Status = "deleted"
	StatusError        Status = "error"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusProvisioning,
	StatusActive,
	StatusStopping,
	StatusStopped,
	StatusStarting,
	StatusDeleting,
	StatusDeleted,
	StatusError,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Routed reports whether a workspace in this status must have a published route.
func (s Status) Routed() bool {
	switch s {
	case StatusActive, StatusStopping, StatusStarting:
		return true
	}
	return false
}

// Intermediate reports whether s is only valid while an operation is running.
func (s Status) Intermediate() bool {
	switch s {
	case StatusProvisioning, StatusStopping, StatusStarting, StatusDeleting:
		return true
	}
	return false
}

// Settled reports whether s is a state an operation may return in.
func (s Status) Settled() bool {
	return s.Valid() && !s.Intermediate()
}

func (s Status) String() string {
	return string(s)
}

// Workspace is one tenant-owned development environment.
type Workspace struct {
	ID             string
	OwnerID        string
	Name           string
	Plan           string
	PublicHostname string
	Port           int
	OSIdentity     string
	Credential     string
	DiskQuotaBytes int64
	UnitName       string
	Status         Status
	// Step is the last pipeline step that completed for the current operation.
	Step      string
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ref returns a short human reference such as "acme/dev".
func (w *Workspace) Ref() string {
	return w.OwnerID + "/" + w.Name
}

// HomeDir returns the workspace's home directory under homesDir.
func (w *Workspace) HomeDir(homesDir string) string {
	return filepath.Join(homesDir, w.OSIdentity)
}

// Hostname derives the public hostname for a workspace.
func Hostname(name, owner, baseDomain string) string {
	return strings.ToLower(fmt.Sprintf("%s-%s.%s", name, owner, strings.TrimPrefix(baseDomain, ".")))
}

// IdentityName derives the OS account name from a workspace ID.
// Account names are limited to 32 characters on Linux, so only the first
// 12 hex digits of the ID are used.
func IdentityName(prefix, id string) string {
	hex := strings.ReplaceAll(strings.ToLower(id), "-", "")
	if len(hex) > 12 {
		hex = hex[:12]
	}
	return prefix + hex
}

// UnitName derives the systemd unit name for an OS identity.
func UnitName(prefix, identity string) string {
	return prefix + identity + ".service"
}
