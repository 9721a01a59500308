package store

import (
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

// WorkspaceRecord is the persistence model for workspace.Workspace.
// Table name: workspaces
type WorkspaceRecord struct {
	ID             string    `gorm:"primaryKey;type:text;not null"`
	OwnerID        string    `gorm:"type:text;not null;index"`
	Name           string    `gorm:"type:text;not null"`
	Plan           string    `gorm:"type:text;not null"`
	PublicHostname string    `gorm:"type:text;not null"`
	Port           int       `gorm:"not null;default:0"`
	OSIdentity     string    `gorm:"column:os_identity;type:text"`
	Credential     string    `gorm:"type:text"`
	DiskQuotaBytes int64     `gorm:"not null;default:0"`
	UnitName       string    `gorm:"type:text"`
	Status         string    `gorm:"type:text;not null;index"`
	Step           string    `gorm:"type:text"`
	LastError      string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`

	// LockOwner holds the workspace lease while LockExpires is in the future.
	LockOwner   string `gorm:"type:text;not null;default:''"`
	LockExpires *time.Time
}

func (WorkspaceRecord) TableName() string { return "workspaces" }

// PortRecord is one port of the pool. A nil WorkspaceID means the port is free.
// Table name: ports
type PortRecord struct {
	Port        int     `gorm:"primaryKey;autoIncrement:false"`
	WorkspaceID *string `gorm:"type:text;index"`
	ClaimedAt   *time.Time
}

func (PortRecord) TableName() string { return "ports" }

// RouteRecord is one hostname to loopback port mapping.
// Table name: routes
type RouteRecord struct {
	Hostname    string    `gorm:"primaryKey;type:text;not null"`
	Port        int       `gorm:"not null"`
	WorkspaceID string    `gorm:"type:text;not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (RouteRecord) TableName() string { return "routes" }

// Route is a published hostname mapping.
type Route struct {
	Hostname    string
	Port        int
	WorkspaceID string
	UpdatedAt   time.Time
}

func toRecord(w *workspace.Workspace) *WorkspaceRecord {
	return &WorkspaceRecord{
		ID:             w.ID,
		OwnerID:        w.OwnerID,
		Name:           w.Name,
		Plan:           w.Plan,
		PublicHostname: w.PublicHostname,
		Port:           w.Port,
		OSIdentity:     w.OSIdentity,
		Credential:     w.Credential,
		DiskQuotaBytes: w.DiskQuotaBytes,
		UnitName:       w.UnitName,
		Status:         string(w.Status),
		Step:           w.Step,
		LastError:      w.LastError,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

func toModel(r *WorkspaceRecord) *workspace.Workspace {
	return &workspace.Workspace{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Name:           r.Name,
		Plan:           r.Plan,
		PublicHostname: r.PublicHostname,
		Port:           r.Port,
		OSIdentity:     r.OSIdentity,
		Credential:     r.Credential,
		DiskQuotaBytes: r.DiskQuotaBytes,
		UnitName:       r.UnitName,
		Status:         workspace.Status(r.Status),
		Step:           r.Step,
		LastError:      r.LastError,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toRoute(r *RouteRecord) Route {
	return Route{
		Hostname:    r.Hostname,
		Port:        r.Port,
		WorkspaceID: r.WorkspaceID,
		UpdatedAt:   r.UpdatedAt,
	}
}
