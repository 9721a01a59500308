package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertRoute stores the route for r.Hostname, replacing any existing entry.
// The previous entry is returned when one existed.
func (s *Store) UpsertRoute(ctx context.Context, r Route) (*Route, error) {
	var previous *Route
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing RouteRecord
		err := tx.First(&existing, "hostname = ?", r.Hostname).Error
		switch {
		case err == nil:
			prev := toRoute(&existing)
			previous = &prev
		case !stderrors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		rec := RouteRecord{
			Hostname:    r.Hostname,
			Port:        r.Port,
			WorkspaceID: r.WorkspaceID,
			UpdatedAt:   time.Now().UTC(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hostname"}},
			DoUpdates: clause.AssignmentColumns([]string{"port", "workspace_id", "updated_at"}),
		}).Create(&rec).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert route %s: %w", r.Hostname, err)
	}
	return previous, nil
}

// DeleteRoute removes the route for hostname if workspaceID owns it. Reports
// whether a row was removed.
func (s *Store) DeleteRoute(ctx context.Context, hostname, workspaceID string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&RouteRecord{}, "hostname = ? AND workspace_id = ?", hostname, workspaceID)
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete route %s: %w", hostname, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetRoute returns the route for hostname, if any.
func (s *Store) GetRoute(ctx context.Context, hostname string) (Route, bool, error) {
	var rec RouteRecord
	err := s.db.WithContext(ctx).First(&rec, "hostname = ?", hostname).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return Route{}, false, nil
		}
		return Route{}, false, fmt.Errorf("failed to load route %s: %w", hostname, err)
	}
	return toRoute(&rec), true, nil
}

// ListRoutes returns every route ordered by hostname.
func (s *Store) ListRoutes(ctx context.Context) ([]Route, error) {
	var recs []RouteRecord
	if err := s.db.WithContext(ctx).Order("hostname ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	out := make([]Route, 0, len(recs))
	for i := range recs {
		out = append(out, toRoute(&recs[i]))
	}
	return out, nil
}
