package store

import (
	"context"
	"fmt"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
)

// AcquireLease makes owner the holder of the workspace lease until ttl from
// now. It succeeds when the lease is free, expired or already held by owner,
// and reports false while another owner holds a live lease. The check and the
// write are one conditional UPDATE, so two processes can never both succeed.
func (s *Store) AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&WorkspaceRecord{}).
		Where("id = ? AND (lock_owner = '' OR lock_owner = ? OR lock_expires IS NULL OR lock_expires < ?)", id, owner, now).
		UpdateColumns(map[string]any{"lock_owner": owner, "lock_expires": now.Add(ttl)})
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire lease on %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&WorkspaceRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to load workspace: %w", err)
	}
	if n == 0 {
		return false, errors.WorkspaceNotFound(id)
	}
	return false, nil
}

// RenewLease pushes the expiry of a lease owner still holds. It reports false
// when the lease has been taken over.
func (s *Store) RenewLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&WorkspaceRecord{}).
		Where("id = ? AND lock_owner = ?", id, owner).
		UpdateColumn("lock_expires", time.Now().UTC().Add(ttl))
	if res.Error != nil {
		return false, fmt.Errorf("failed to renew lease on %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ReleaseLease frees the lease if owner holds it.
func (s *Store) ReleaseLease(ctx context.Context, id, owner string) error {
	res := s.db.WithContext(ctx).
		Model(&WorkspaceRecord{}).
		Where("id = ? AND lock_owner = ?", id, owner).
		UpdateColumns(map[string]any{"lock_owner": "", "lock_expires": nil})
	if res.Error != nil {
		return fmt.Errorf("failed to release lease on %s: %w", id, res.Error)
	}
	return nil
}
