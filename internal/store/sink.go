package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SinkRecord is a configured output sink stored in the database.
type SinkRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	Config    json.RawMessage `json:"config"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
}

// ConfigMap decodes the stored config into a loosely typed map.
func (s *SinkRecord) ConfigMap() (map[string]any, error) {
	m := map[string]any{}
	if len(s.Config) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(s.Config, &m); err != nil {
		return nil, fmt.Errorf("sink %s config: %w", s.Name, err)
	}
	return m, nil
}

// SinkRepository provides CRUD operations for sinks.
type SinkRepository struct {
	db *sql.DB
}

// Sinks returns the sink repository for this store.
func (s *Store) Sinks() *SinkRepository {
	return &SinkRepository{db: s.db}
}

const sinkColumns = `id, name, kind, config, enabled, created_at`

func scanSink(row rowScanner) (*SinkRecord, error) {
	s := &SinkRecord{}
	var config string
	var enabled int
	if err := row.Scan(&s.ID, &s.Name, &s.Kind, &config, &enabled, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Config = json.RawMessage(config)
	s.Enabled = enabled != 0
	return s, nil
}

// Create inserts a new sink. An empty ID is filled with a fresh UUID.
func (r *SinkRepository) Create(s *SinkRecord) error {
	if s.Name == "" || s.Kind == "" {
		return fmt.Errorf("sink name and kind are required")
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.CreatedAt = time.Now()

	config := s.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO sinks (`+sinkColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Kind, string(config), boolToInt(s.Enabled), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sink: %w", err)
	}
	return nil
}

// GetByID retrieves a sink by its ID.
func (r *SinkRepository) GetByID(id string) (*SinkRecord, error) {
	s, err := scanSink(r.db.QueryRow(`SELECT `+sinkColumns+` FROM sinks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// List retrieves all sinks ordered by name.
func (r *SinkRepository) List() ([]*SinkRecord, error) {
	rows, err := r.db.Query(`SELECT ` + sinkColumns + ` FROM sinks ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sinks []*SinkRecord
	for rows.Next() {
		s, err := scanSink(rows)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sinks, nil
}

// SetEnabled turns a sink on or off.
func (r *SinkRepository) SetEnabled(id string, enabled bool) error {
	result, err := r.db.Exec(`UPDATE sinks SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// Delete removes a sink by its ID.
func (r *SinkRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sinks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}
