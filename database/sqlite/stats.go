package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/erikbos/stashfin/database/model"
)

const (
	counterTotalStreams = "total_streams"
	counterTodayStreams = "today_streams"
	counterAuthSuccess  = "auth_success"
	counterAuthFailure  = "auth_failure"
	metaTodayDate       = "today_date"
)

// LoadStats reads all persisted usage counters.
func (s *SqliteRepo) LoadStats(ctx context.Context) (model.Stats, error) {
	stats := model.Stats{
		Plays: make(map[string]model.ScenePlays),
	}

	var counters []struct {
		Name  string `db:"name"`
		Value int64  `db:"value"`
	}
	if err := s.dbReadHandle.SelectContext(ctx, &counters, `SELECT name, value FROM stats_counters`); err != nil {
		return stats, err
	}
	for _, c := range counters {
		switch c.Name {
		case counterTotalStreams:
			stats.TotalStreams = c.Value
		case counterTodayStreams:
			stats.TodayStreams = c.Value
		case counterAuthSuccess:
			stats.AuthSuccess = c.Value
		case counterAuthFailure:
			stats.AuthFailure = c.Value
		}
	}

	err := s.dbReadHandle.GetContext(ctx, &stats.TodayDate, `SELECT value FROM stats_meta WHERE name=?`, metaTodayDate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, err
	}

	if err := s.dbReadHandle.SelectContext(ctx, &stats.TodayIPs, `SELECT ip FROM stats_daily_ips ORDER BY ip`); err != nil {
		return stats, err
	}

	var plays []struct {
		SceneID string `db:"sceneid"`
		model.ScenePlays
	}
	if err := s.dbReadHandle.SelectContext(ctx, &plays, `SELECT sceneid, playcount,
		COALESCE(title, '') AS title, COALESCE(performers, '') AS performers, lastplayed
		FROM scene_plays`); err != nil {
		return stats, err
	}
	for _, p := range plays {
		stats.Plays[p.SceneID] = p.ScenePlays
	}
	return stats, nil
}

// SaveStats replaces the persisted usage counters with stats in a single transaction.
func (s *SqliteRepo) SaveStats(ctx context.Context, stats model.Stats) error {
	if s.dbWriteHandle == nil {
		return model.ErrNoDbHandle
	}
	tx, err := s.dbWriteHandle.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	counters := map[string]int64{
		counterTotalStreams: stats.TotalStreams,
		counterTodayStreams: stats.TodayStreams,
		counterAuthSuccess:  stats.AuthSuccess,
		counterAuthFailure:  stats.AuthFailure,
	}
	for name, value := range counters {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO stats_counters (name, value) VALUES (?, ?)`,
			name, value); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO stats_meta (name, value) VALUES (?, ?)`,
		metaTodayDate, stats.TodayDate); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stats_daily_ips`); err != nil {
		return err
	}
	for _, ip := range stats.TodayIPs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO stats_daily_ips (ip) VALUES (?)`, ip); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scene_plays`); err != nil {
		return err
	}
	for sceneID, p := range stats.Plays {
		row := map[string]any{
			"sceneid":    sceneID,
			"playcount":  p.PlayCount,
			"title":      p.Title,
			"performers": p.Performers,
			"lastplayed": p.LastPlayed.UTC().Truncate(time.Second),
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO scene_plays
			(sceneid, playcount, title, performers, lastplayed)
			VALUES (:sceneid, :playcount, :title, :performers, :lastplayed)`, row); err != nil {
			return err
		}
	}
	return tx.Commit()
}
