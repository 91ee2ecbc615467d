package store

import "fmt"

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Calibration profiles: pipeline settings plus a set of channels
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			smoothing_factor REAL NOT NULL DEFAULT 0.3 CHECK(smoothing_factor > 0 AND smoothing_factor <= 1),
			preferred_side TEXT NOT NULL DEFAULT 'right' CHECK(preferred_side IN ('left', 'right')),
			mirror TEXT NOT NULL DEFAULT 'left' CHECK(mirror IN ('none', 'left', 'right')),
			active INTEGER NOT NULL DEFAULT 0,
			samples INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Per-channel calibration of a profile
		`CREATE TABLE IF NOT EXISTS profile_channels (
			profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			channel TEXT NOT NULL,
			from_min REAL NOT NULL,
			from_max REAL NOT NULL,
			to_min REAL NOT NULL,
			to_max REAL NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (profile_id, channel)
		)`,

		// Raw angle samples recorded for fitting a profile
		`CREATE TABLE IF NOT EXISTS calibration_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			sample_index INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Configured output sinks
		`CREATE TABLE IF NOT EXISTS sinks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_profile_channels_profile_id ON profile_channels(profile_id)`,
		`CREATE INDEX IF NOT EXISTS idx_calibration_samples_profile_id ON calibration_samples(profile_id)`,
	}

	for i, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	return nil
}
