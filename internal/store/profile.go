package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/armmirror/internal/kinematics"
)

// Profile is a named set of pipeline settings and channel calibrations.
type Profile struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name"`
	SmoothingFactor float64                 `json:"smoothing_factor"`
	PreferredSide   kinematics.Side         `json:"preferred_side"`
	Mirror          kinematics.MirrorPolicy `json:"mirror"`
	Active          bool                    `json:"active"`
	Samples         int                     `json:"samples"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// ProfileChannel is the calibration of one channel within a profile. A
// disabled channel is measured but drives no joint.
type ProfileChannel struct {
	Channel     kinematics.Channel     `json:"channel"`
	Calibration kinematics.Calibration `json:"calibration"`
	Enabled     bool                   `json:"enabled"`
}

// NewProfile returns a profile carrying the default pipeline settings.
func NewProfile(name string) *Profile {
	def := kinematics.DefaultConfig()
	return &Profile{
		Name:            name,
		SmoothingFactor: def.SmoothingFactor,
		PreferredSide:   def.PreferredSide,
		Mirror:          def.Mirror,
	}
}

// DefaultChannels returns every channel enabled with its default calibration.
func DefaultChannels() []ProfileChannel {
	cals := kinematics.DefaultCalibrations()
	chans := make([]ProfileChannel, 0, len(cals))
	for _, ch := range kinematics.Channels() {
		if cal, ok := cals[ch]; ok {
			chans = append(chans, ProfileChannel{Channel: ch, Calibration: cal, Enabled: true})
		}
	}
	return chans
}

// PipelineConfig builds the kinematics configuration a profile describes.
// Only enabled channels are calibrated.
func (p *Profile) PipelineConfig(chans []ProfileChannel) kinematics.Config {
	cals := make(map[kinematics.Channel]kinematics.Calibration, len(chans))
	for _, c := range chans {
		if c.Enabled {
			cals[c.Channel] = c.Calibration
		}
	}
	return kinematics.Config{
		SmoothingFactor: p.SmoothingFactor,
		PreferredSide:   p.PreferredSide,
		Mirror:          p.Mirror,
		Calibrations:    cals,
	}
}

// validate checks the profile's own settings.
func (p *Profile) validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	cfg := kinematics.Config{
		SmoothingFactor: p.SmoothingFactor,
		PreferredSide:   p.PreferredSide,
		Mirror:          p.Mirror,
	}
	return cfg.Validate()
}

// ProfileRepository provides CRUD operations for profiles and their channels.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

const profileColumns = `id, name, smoothing_factor, preferred_side, mirror, active, samples, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	var side, mirror string
	var active int
	if err := row.Scan(&p.ID, &p.Name, &p.SmoothingFactor, &side, &mirror, &active, &p.Samples, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.PreferredSide = kinematics.Side(side)
	p.Mirror = kinematics.MirrorPolicy(mirror)
	p.Active = active != 0
	return p, nil
}

// Create inserts a new profile. An empty ID is filled with a fresh UUID.
func (r *ProfileRepository) Create(p *Profile) error {
	if err := p.validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.SmoothingFactor, string(p.PreferredSide), string(p.Mirror),
		boolToInt(p.Active), p.Samples, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(id string) (*Profile, error) {
	return r.getOne(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
}

// GetByName retrieves a profile by its name.
func (r *ProfileRepository) GetByName(name string) (*Profile, error) {
	return r.getOne(`SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name)
}

// Active returns the active profile, or ErrNotFound if none is active.
func (r *ProfileRepository) Active() (*Profile, error) {
	return r.getOne(`SELECT ` + profileColumns + ` FROM profiles WHERE active = 1 LIMIT 1`)
}

func (r *ProfileRepository) getOne(query string, args ...any) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List retrieves all profiles ordered by name.
func (r *ProfileRepository) List() ([]*Profile, error) {
	rows, err := r.db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return profiles, nil
}

// Update saves the profile's settings. The active flag and sample count are
// managed by SetActive and the sample repository and are not written here.
func (r *ProfileRepository) Update(p *Profile) error {
	if err := p.validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	p.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE profiles SET name = ?, smoothing_factor = ?, preferred_side = ?, mirror = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.SmoothingFactor, string(p.PreferredSide), string(p.Mirror), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// Delete removes a profile with its channels and samples.
func (r *ProfileRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// SetActive makes id the only active profile.
func (r *ProfileRepository) SetActive(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE profiles SET active = 0 WHERE active = 1`); err != nil {
		return err
	}
	result, err := tx.Exec(`UPDATE profiles SET active = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkAffected(result); err != nil {
		return err
	}

	return tx.Commit()
}

// Channels returns the channels of a profile in extraction order.
func (r *ProfileRepository) Channels(profileID string) ([]ProfileChannel, error) {
	rows, err := r.db.Query(
		`SELECT channel, from_min, from_max, to_min, to_max, enabled
		 FROM profile_channels WHERE profile_id = ?`,
		profileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chans []ProfileChannel
	for rows.Next() {
		var c ProfileChannel
		var name string
		var enabled int
		cal := &c.Calibration
		if err := rows.Scan(&name, &cal.FromMin, &cal.FromMax, &cal.ToMin, &cal.ToMax, &enabled); err != nil {
			return nil, err
		}
		ch, err := kinematics.ParseChannel(name)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", profileID, err)
		}
		c.Channel = ch
		c.Enabled = enabled != 0
		chans = append(chans, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(chans, func(i, j int) bool { return chans[i].Channel < chans[j].Channel })
	return chans, nil
}

// SaveChannel inserts or replaces one channel after validating its calibration.
func (r *ProfileRepository) SaveChannel(profileID string, c ProfileChannel) error {
	return r.SaveChannels(profileID, []ProfileChannel{c})
}

// SaveChannels inserts or replaces several channels in one transaction. No
// channel is written if any calibration is invalid.
func (r *ProfileRepository) SaveChannels(profileID string, chans []ProfileChannel) error {
	for _, c := range chans {
		if c.Channel < 0 || c.Channel >= kinematics.NumChannels {
			return fmt.Errorf("invalid channel %d", int(c.Channel))
		}
		if err := c.Calibration.Validate(); err != nil {
			return fmt.Errorf("channel %s: %w", c.Channel, err)
		}
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

	stmt, err := tx.Prepare(
		`INSERT INTO profile_channels (profile_id, channel, from_min, from_max, to_min, to_max, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(profile_id, channel) DO UPDATE SET
			from_min = excluded.from_min, from_max = excluded.from_max,
			to_min = excluded.to_min, to_max = excluded.to_max,
			enabled = excluded.enabled`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chans {
		cal := c.Calibration
		if _, err := stmt.Exec(profileID, c.Channel.String(), cal.FromMin, cal.FromMax, cal.ToMin, cal.ToMax, boolToInt(c.Enabled)); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`UPDATE profiles SET updated_at = ? WHERE id = ?`, time.Now(), profileID); err != nil {
		return err
	}

	return tx.Commit()
}
