package sqlite

import (
	"context"

	"github.com/erikbos/stashfin/database/model"
)

// LoadBans returns all banned addresses.
func (s *SqliteRepo) LoadBans(ctx context.Context) ([]model.Ban, error) {
	var bans []model.Ban
	err := s.dbReadHandle.SelectContext(ctx, &bans, `SELECT ip, COALESCE(reason, '') AS reason,
		failures, created FROM bans ORDER BY created`)
	return bans, err
}

// SaveBan stores a ban, replacing an earlier ban of the same address.
func (s *SqliteRepo) SaveBan(ctx context.Context, ban model.Ban) error {
	if s.dbWriteHandle == nil {
		return model.ErrNoDbHandle
	}
	_, err := s.dbWriteHandle.NamedExecContext(ctx, `INSERT OR REPLACE INTO bans
		(ip, reason, failures, created) VALUES (:ip, :reason, :failures, :created)`, ban)
	return err
}

// DeleteBan lifts the ban on ip.
func (s *SqliteRepo) DeleteBan(ctx context.Context, ip string) error {
	if s.dbWriteHandle == nil {
		return model.ErrNoDbHandle
	}
	res, err := s.dbWriteHandle.ExecContext(ctx, `DELETE FROM bans WHERE ip=?`, ip)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
