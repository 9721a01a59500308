package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoFreePort is returned by ClaimPort when every port in the range is held.
var ErrNoFreePort = stderrors.New("no free port in range")

// maxClaimRaces bounds how often ClaimPort retries after losing a race for
// the lowest free row to another writer.
const maxClaimRaces = 16

// SeedPorts ensures a pool row exists for every port in [from, to].
// Existing rows, claimed or not, are left untouched.
func (s *Store) SeedPorts(ctx context.Context, from, to int) error {
	if from > to {
		return fmt.Errorf("invalid port range %d-%d", from, to)
	}
	rows := make([]PortRecord, 0, to-from+1)
	for p := from; p <= to; p++ {
		rows = append(rows, PortRecord{Port: p})
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 200).Error
	if err != nil {
		return fmt.Errorf("failed to seed port pool: %w", err)
	}
	return nil
}

// ClaimPort assigns the lowest free port in [from, to] to workspaceID and
// returns it. If workspaceID already holds a port in the range, that port is
// returned unchanged. Returns ErrNoFreePort when the range is exhausted.
func (s *Store) ClaimPort(ctx context.Context, workspaceID string, from, to int) (int, error) {
	db := s.db.WithContext(ctx)

	if port, ok, err := s.PortHeldBy(ctx, workspaceID); err != nil {
		return 0, err
	} else if ok && port >= from && port <= to {
		return port, nil
	}

	for attempt := 0; attempt < maxClaimRaces; attempt++ {
		// Single statement: pick the lowest free row and claim it only if it
		// is still free when the write lands.
		res := db.Exec(
			`UPDATE ports SET workspace_id = ?, claimed_at = ?
			 WHERE port = (SELECT MIN(port) FROM ports WHERE workspace_id IS NULL AND port BETWEEN ? AND ?)
			   AND workspace_id IS NULL`,
			workspaceID, time.Now().UTC(), from, to,
		)
		if res.Error != nil {
			return 0, fmt.Errorf("failed to claim port: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			port, ok, err := s.PortHeldBy(ctx, workspaceID)
			if err != nil {
				return 0, err
			}
			if !ok {
				return 0, fmt.Errorf("claimed port for %s not found", workspaceID)
			}
			return port, nil
		}

		var free int64
		if err := db.Model(&PortRecord{}).
			Where("workspace_id IS NULL AND port BETWEEN ? AND ?", from, to).
			Count(&free).Error; err != nil {
			return 0, fmt.Errorf("failed to count free ports: %w", err)
		}
		if free == 0 {
			return 0, ErrNoFreePort
		}
	}
	return 0, fmt.Errorf("failed to claim port after %d contended attempts", maxClaimRaces)
}

// ReleasePort frees port if it is held by workspaceID. Releasing a port that
// is already free, or held by another workspace, is a no-op.
func (s *Store) ReleasePort(ctx context.Context, port int, workspaceID string) error {
	res := s.db.WithContext(ctx).
		Model(&PortRecord{}).
		Where("port = ? AND workspace_id = ?", port, workspaceID).
		Updates(map[string]interface{}{"workspace_id": nil, "claimed_at": nil})
	if res.Error != nil {
		return fmt.Errorf("failed to release port %d: %w", port, res.Error)
	}
	return nil
}

// ReleaseAll frees every port held by workspaceID.
func (s *Store) ReleaseAll(ctx context.Context, workspaceID string) error {
	res := s.db.WithContext(ctx).
		Model(&PortRecord{}).
		Where("workspace_id = ?", workspaceID).
		Updates(map[string]interface{}{"workspace_id": nil, "claimed_at": nil})
	if res.Error != nil {
		return fmt.Errorf("failed to release ports of %s: %w", workspaceID, res.Error)
	}
	return nil
}

// PortHeldBy returns the port currently held by workspaceID, if any.
func (s *Store) PortHeldBy(ctx context.Context, workspaceID string) (int, bool, error) {
	var rec PortRecord
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("port ASC").
		First(&rec).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to look up port: %w", err)
	}
	return rec.Port, true, nil
}

// PortOwner returns the workspace holding port, or "" when it is free.
func (s *Store) PortOwner(ctx context.Context, port int) (string, error) {
	var rec PortRecord
	err := s.db.WithContext(ctx).First(&rec, "port = ?", port).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up port %d: %w", port, err)
	}
	if rec.WorkspaceID == nil {
		return "", nil
	}
	return *rec.WorkspaceID, nil
}

// ClaimedPorts returns every claimed port mapped to its workspace.
func (s *Store) ClaimedPorts(ctx context.Context) (map[int]string, error) {
	var recs []PortRecord
	if err := s.db.WithContext(ctx).Where("workspace_id IS NOT NULL").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list claimed ports: %w", err)
	}
	out := make(map[int]string, len(recs))
	for _, r := range recs {
		out[r.Port] = *r.WorkspaceID
	}
	return out, nil
}
