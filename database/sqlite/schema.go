package sqlite

import (
	"github.com/jmoiron/sqlx"
)

func (s *SqliteRepo) dbInitSchema(d *sqlx.DB) error {
	schema := []string{
		// This is needed to improve concurrent reads and writes.
		`PRAGMA journal_mode = WAL;`,

		`CREATE TABLE IF NOT EXISTS accesstokens (
userid TEXT NOT NULL,
token TEXT NOT NULL,
deviceid TEXT,
devicename TEXT,
applicationname TEXT,
applicationversion TEXT,
remoteaddress TEXT,
created DATETIME,
lastused DATETIME);`,

		`CREATE UNIQUE INDEX IF NOT EXISTS accesstokens_idx ON accesstokens (token);`,

		`CREATE TABLE IF NOT EXISTS stats_counters (
name TEXT NOT NULL PRIMARY KEY,
value INTEGER NOT NULL);`,

		`CREATE TABLE IF NOT EXISTS stats_meta (
name TEXT NOT NULL PRIMARY KEY,
value TEXT NOT NULL);`,

		`CREATE TABLE IF NOT EXISTS stats_daily_ips (
ip TEXT NOT NULL PRIMARY KEY);`,

		`CREATE TABLE IF NOT EXISTS scene_plays (
sceneid TEXT NOT NULL PRIMARY KEY,
playcount INTEGER NOT NULL,
title TEXT,
performers TEXT,
lastplayed DATETIME);`,

		`CREATE INDEX IF NOT EXISTS scene_plays_count_idx ON scene_plays (playcount);`,

		`CREATE TABLE IF NOT EXISTS bans (
ip TEXT NOT NULL PRIMARY KEY,
reason TEXT,
failures INTEGER NOT NULL,
created DATETIME NOT NULL);`,
	}

	for _, query := range schema {
		if _, err := d.Exec(query); err != nil {
			s.log.Error().Err(err).Msg("dbInitSchema error")
			return err
		}
	}
	return nil
}
