package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Sample is one recorded frame of raw angles stored for a profile.
type Sample struct {
	ID          int64           `json:"id"`
	ProfileID   string          `json:"profile_id"`
	SampleIndex int             `json:"sample_index"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SampleRepository stores recorded calibration samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Append adds samples after any already recorded for the profile, in a
// single transaction, and updates the profile's sample count.
func (r *SampleRepository) Append(profileID string, samples []json.RawMessage) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM profiles WHERE id = ?`, profileID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	var next int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(sample_index) + 1, 0) FROM calibration_samples WHERE profile_id = ?`,
		profileID,
	).Scan(&next)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO calibration_samples (profile_id, sample_index, data) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, data := range samples {
		if _, err := stmt.Exec(profileID, next+i, string(data)); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`UPDATE profiles SET samples = ?, updated_at = ? WHERE id = ?`,
		next+len(samples), time.Now(), profileID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetByProfileID retrieves all samples for a profile in recording order.
func (r *SampleRepository) GetByProfileID(profileID string) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT id, profile_id, sample_index, data, created_at
		 FROM calibration_samples
		 WHERE profile_id = ?
		 ORDER BY sample_index`,
		profileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var data string
		if err := rows.Scan(&s.ID, &s.ProfileID, &s.SampleIndex, &data, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Data = json.RawMessage(data)
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// Data returns just the payloads of a profile's samples.
func (r *SampleRepository) Data(profileID string) ([]json.RawMessage, error) {
	samples, err := r.GetByProfileID(profileID)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, len(samples))
	for i, s := range samples {
		out[i] = s.Data
	}
	return out, nil
}

// DeleteByProfileID removes all samples for a profile and resets its count.
func (r *SampleRepository) DeleteByProfileID(profileID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM calibration_samples WHERE profile_id = ?`, profileID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE profiles SET samples = 0 WHERE id = ?`, profileID); err != nil {
		return err
	}
	return tx.Commit()
}
