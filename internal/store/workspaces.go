package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

// ListOptions filters ListWorkspaces.
type ListOptions struct {
	OwnerID        string
	Statuses       []workspace.Status
	IncludeDeleted bool
}

// CreateWorkspace inserts a new workspace record. An ID is generated when w.ID
// is empty. Returns a NameConflict error when the owner already has a live
// workspace with the same name or the hostname is taken.
func (s *Store) CreateWorkspace(ctx context.Context, w *workspace.Workspace) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return s.insert(ctx, w, toRecord(w))
}

// CreateLeased inserts w with its lease already held by owner for ttl.
func (s *Store) CreateLeased(ctx context.Context, w *workspace.Workspace, owner string, ttl time.Duration) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	rec := toRecord(w)
	expires := time.Now().UTC().Add(ttl)
	rec.LockOwner = owner
	rec.LockExpires = &expires
	return s.insert(ctx, w, rec)
}

func (s *Store) insert(ctx context.Context, w *workspace.Workspace, rec *WorkspaceRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.NameConflict(w.OwnerID, w.Name)
		}
		return fmt.Errorf("failed to insert workspace: %w", err)
	}
	w.CreatedAt = rec.CreatedAt
	w.UpdatedAt = rec.UpdatedAt
	return nil
}

// GetWorkspace returns the workspace with the given ID.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*workspace.Workspace, error) {
	var rec WorkspaceRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WorkspaceNotFound(id)
		}
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	return toModel(&rec), nil
}

// FindWorkspace returns the live (not deleted) workspace named name for owner.
func (s *Store) FindWorkspace(ctx context.Context, ownerID, name string) (*workspace.Workspace, error) {
	var rec WorkspaceRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND name = ? AND status <> ?", ownerID, name, string(workspace.StatusDeleted)).
		First(&rec).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WorkspaceNotFound(ownerID + "/" + name)
		}
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	return toModel(&rec), nil
}

// ListWorkspaces returns workspaces ordered by creation time.
func (s *Store) ListWorkspaces(ctx context.Context, opts ListOptions) ([]*workspace.Workspace, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if opts.OwnerID != "" {
		q = q.Where("owner_id = ?", opts.OwnerID)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(opts.Statuses))
	} else if !opts.IncludeDeleted {
		q = q.Where("status <> ?", string(workspace.StatusDeleted))
	}

	var recs []WorkspaceRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	out := make([]*workspace.Workspace, 0, len(recs))
	for i := range recs {
		out = append(out, toModel(&recs[i]))
	}
	return out, nil
}

// ListByStatus returns all workspaces in any of the given statuses.
func (s *Store) ListByStatus(ctx context.Context, statuses ...workspace.Status) ([]*workspace.Workspace, error) {
	return s.ListWorkspaces(ctx, ListOptions{Statuses: statuses})
}

// UpdateWorkspace writes every mutable field of w. Zero values are written too.
// The lease columns are left alone.
func (s *Store) UpdateWorkspace(ctx context.Context, w *workspace.Workspace) error {
	rec := toRecord(w)
	rec.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&WorkspaceRecord{}).
		Where("id = ?", rec.ID).
		Select("*").
		Omit("id", "created_at", "lock_owner", "lock_expires").
		Updates(rec)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return errors.NameConflict(w.OwnerID, w.Name)
		}
		return fmt.Errorf("failed to update workspace: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.WorkspaceNotFound(w.ID)
	}
	w.UpdatedAt = rec.UpdatedAt
	return nil
}

// DeleteWorkspaceRecord removes a workspace row outright.
func (s *Store) DeleteWorkspaceRecord(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&WorkspaceRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete workspace: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.WorkspaceNotFound(id)
	}
	return nil
}

// PurgeDeleted hard-deletes workspaces in the deleted status last updated
// before cutoff. Returns the number of rows removed.
func (s *Store) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(workspace.StatusDeleted), cutoff.UTC()).
		Delete(&WorkspaceRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge workspaces: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountByStatus returns the number of workspaces per status.
func (s *Store) CountByStatus(ctx context.Context) (map[workspace.Status]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&WorkspaceRecord{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count workspaces: %w", err)
	}
	out := make(map[workspace.Status]int64, len(rows))
	for _, r := range rows {
		out[workspace.Status(r.Status)] = r.Count
	}
	return out, nil
}

func statusStrings(statuses []workspace.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
