package store

import (
	"database/sql"
	"fmt"

	dbutil "github.com/llehouerou/echoes/internal/db"
)

// Migrations are forward-only. Each entry moves the schema one version up;
// migrations[0] creates version 1. The stored schema_version gates which
// entries still need to run.
var migrations = []string{
	`
	CREATE TABLE listens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT NOT NULL,
		album_artist TEXT,
		genre TEXT,
		track_number INTEGER NOT NULL DEFAULT 0,
		disc_number INTEGER NOT NULL DEFAULT 0,
		release_date TEXT,
		art_url TEXT,
		bpm INTEGER NOT NULL DEFAULT 0,
		musicbrainz_track_id TEXT,
		url TEXT,
		duration_ms INTEGER NOT NULL,
		played_ms INTEGER NOT NULL,
		completion REAL NOT NULL,
		seek_count INTEGER NOT NULL DEFAULT 0,
		seek_forward INTEGER NOT NULL DEFAULT 0,
		seek_backward INTEGER NOT NULL DEFAULT 0,
		seek_forward_ms INTEGER NOT NULL DEFAULT 0,
		seek_backward_ms INTEGER NOT NULL DEFAULT 0,
		intro_skipped INTEGER NOT NULL DEFAULT 0,
		vol_samples INTEGER NOT NULL DEFAULT 0,
		vol_min REAL,
		vol_max REAL,
		vol_mean REAL,
		hour_of_day INTEGER NOT NULL,
		day_of_week INTEGER NOT NULL,
		is_weekend INTEGER NOT NULL,
		season TEXT,
		active_window TEXT,
		screen_on INTEGER,
		on_battery INTEGER,
		player TEXT,
		is_local INTEGER NOT NULL DEFAULT 1,
		end_reason TEXT,
		UNIQUE(track_id, started_at)
	);
	CREATE INDEX idx_listens_finished_at ON listens(finished_at);
	CREATE INDEX idx_listens_artist ON listens(artist);
	CREATE INDEX idx_listens_album ON listens(artist, album);

	CREATE TABLE attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		finished_at INTEGER NOT NULL,
		eligible INTEGER NOT NULL
	);
	CREATE INDEX idx_attempts_finished_at ON attempts(finished_at);
	`,
	`
	ALTER TABLE listens ADD COLUMN composer TEXT;
	ALTER TABLE listens ADD COLUMN user_rating REAL;
	`,
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("initializing schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version > len(migrations) {
		return fmt.Errorf("database schema version %d was written by a newer version of the program (latest known: %d)",
			version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		target := i + 1
		err := dbutil.WithTx(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(migrations[i]); err != nil {
				return err
			}
			_, err := tx.Exec(`UPDATE schema_version SET version = ?`, target)
			return err
		})
		if err != nil {
			return fmt.Errorf("migrating schema to version %d: %w", target, err)
		}
	}

	return nil
}
