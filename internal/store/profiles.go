package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/release"
	"github.com/cinephage/cinephage/internal/scoring"
)

// SeedBuiltins inserts the built-in formats and profiles with their
// reserved ids. Existing rows are left untouched so user edits to
// scores survive restarts.
func (s *Store) SeedBuiltins(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, format := range scoring.BuiltinFormats() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO custom_formats (id, name, category, default_score, conditions, built_in)
				VALUES (?, ?, ?, ?, ?, 1)
				ON CONFLICT (id) DO NOTHING`,
				format.ID, format.Name, format.Category, format.DefaultScore,
				marshalJSON(format.Conditions, "[]"),
			); err != nil {
				return fmt.Errorf("seeding format %q: %w", format.Name, err)
			}
		}
		for _, profile := range scoring.BuiltinProfiles() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO scoring_profiles (id, name, upgrades_allowed, min_score,
					upgrade_until_score, min_score_increment, movie_min_size_gb, movie_max_size_gb,
					episode_min_size_mb, episode_max_size_mb, pack_preference, allowed_protocols,
					format_scores, built_in)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
				ON CONFLICT (id) DO NOTHING`,
				profile.ID, profile.Name, profile.UpgradesAllowed, profile.MinScore,
				profile.UpgradeUntilScore, profile.MinScoreIncrement, profile.MovieMinSizeGb,
				profile.MovieMaxSizeGb, profile.EpisodeMinSizeMb, profile.EpisodeMaxSizeMb,
				marshalJSON(profile.PackPreference, "{}"),
				marshalJSON(profile.AllowedProtocols, `["torrent"]`),
				marshalJSON(profile.FormatScores, "{}"),
			); err != nil {
				return fmt.Errorf("seeding profile %q: %w", profile.Name, err)
			}
		}
		return nil
	})
}

// LoadRegistry reads every format and profile from the database and
// swaps them into the registry.
func (s *Store) LoadRegistry(ctx context.Context, registry *scoring.Registry) error {
	formats, err := s.ListFormats(ctx)
	if err != nil {
		return err
	}
	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		return err
	}
	return registry.Reload(formats, profiles)
}

// ListFormats returns every custom format.
func (s *Store) ListFormats(ctx context.Context) ([]*scoring.Format, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, default_score, conditions FROM custom_formats ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing formats: %w", err)
	}
	defer rows.Close()

	var formats []*scoring.Format
	for rows.Next() {
		var format scoring.Format
		var conditions string
		if err := rows.Scan(&format.ID, &format.Name, &format.Category,
			&format.DefaultScore, &conditions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(conditions), &format.Conditions); err != nil {
			return nil, fmt.Errorf("format %q conditions: %w", format.Name, err)
		}
		formats = append(formats, &format)
	}
	return formats, rows.Err()
}

// CreateFormat inserts a user-defined format. The format is compiled
// first so bad patterns never reach the database.
func (s *Store) CreateFormat(ctx context.Context, format *scoring.Format) error {
	if err := format.Compile(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_formats (name, category, default_score, conditions)
		VALUES (?, ?, ?, ?)`,
		format.Name, format.Category, format.DefaultScore, marshalJSON(format.Conditions, "[]"))
	if err != nil {
		return fmt.Errorf("inserting format: %w", err)
	}
	format.ID, err = result.LastInsertId()
	return err
}

// UpdateFormat rewrites a user-defined format. Built-in formats are
// immutable.
func (s *Store) UpdateFormat(ctx context.Context, format *scoring.Format) error {
	if err := format.Compile(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE custom_formats SET name = ?, category = ?, default_score = ?, conditions = ?,
			updated_at = ? WHERE id = ? AND built_in = 0`,
		format.Name, format.Category, format.DefaultScore,
		marshalJSON(format.Conditions, "[]"), time.Now(), format.ID)
	if err != nil {
		return fmt.Errorf("updating format: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("format %d: %w", format.ID, ErrNotFound)
	}
	return nil
}

// DeleteFormat removes a user-defined format. Built-in formats are
// refused.
func (s *Store) DeleteFormat(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM custom_formats WHERE id = ? AND built_in = 0`, id)
	if err != nil {
		return fmt.Errorf("deleting format: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("format %d: %w", id, ErrNotFound)
	}
	return nil
}

const profileColumns = `id, name, upgrades_allowed, min_score, upgrade_until_score,
	min_score_increment, movie_min_size_gb, movie_max_size_gb, episode_min_size_mb,
	episode_max_size_mb, pack_preference, allowed_protocols, format_scores`

// ListProfiles returns every scoring profile.
func (s *Store) ListProfiles(ctx context.Context) ([]*scoring.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM scoring_profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*scoring.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// ProfileFor loads one scoring profile by id.
func (s *Store) ProfileFor(ctx context.Context, profileID int64) (*scoring.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM scoring_profiles WHERE id = ?`, profileID)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
	}
	return profile, err
}

// CreateProfile inserts a user-defined scoring profile.
func (s *Store) CreateProfile(ctx context.Context, profile *scoring.Profile) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scoring_profiles (name, upgrades_allowed, min_score, upgrade_until_score,
			min_score_increment, movie_min_size_gb, movie_max_size_gb, episode_min_size_mb,
			episode_max_size_mb, pack_preference, allowed_protocols, format_scores)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.Name, profile.UpgradesAllowed, profile.MinScore, profile.UpgradeUntilScore,
		profile.MinScoreIncrement, profile.MovieMinSizeGb, profile.MovieMaxSizeGb,
		profile.EpisodeMinSizeMb, profile.EpisodeMaxSizeMb,
		marshalJSON(profile.PackPreference, "{}"),
		marshalJSON(profile.AllowedProtocols, `["torrent"]`),
		marshalJSON(profile.FormatScores, "{}"))
	if err != nil {
		return fmt.Errorf("inserting profile: %w", err)
	}
	profile.ID, err = result.LastInsertId()
	return err
}

// UpdateProfile rewrites a scoring profile. Built-in profiles accept
// score overrides too, so no built-in guard here.
func (s *Store) UpdateProfile(ctx context.Context, profile *scoring.Profile) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scoring_profiles SET name = ?, upgrades_allowed = ?, min_score = ?,
			upgrade_until_score = ?, min_score_increment = ?, movie_min_size_gb = ?,
			movie_max_size_gb = ?, episode_min_size_mb = ?, episode_max_size_mb = ?,
			pack_preference = ?, allowed_protocols = ?, format_scores = ?, updated_at = ?
		WHERE id = ?`,
		profile.Name, profile.UpgradesAllowed, profile.MinScore, profile.UpgradeUntilScore,
		profile.MinScoreIncrement, profile.MovieMinSizeGb, profile.MovieMaxSizeGb,
		profile.EpisodeMinSizeMb, profile.EpisodeMaxSizeMb,
		marshalJSON(profile.PackPreference, "{}"),
		marshalJSON(profile.AllowedProtocols, `["torrent"]`),
		marshalJSON(profile.FormatScores, "{}"), time.Now(), profile.ID)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("profile %d: %w", profile.ID, ErrNotFound)
	}
	return nil
}

// DeleteProfile removes a user-defined profile. Built-ins are refused.
func (s *Store) DeleteProfile(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scoring_profiles WHERE id = ? AND built_in = 0`, id)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("profile %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanProfile(row rowScanner) (*scoring.Profile, error) {
	var profile scoring.Profile
	var packPreference, allowedProtocols, formatScores string
	err := row.Scan(
		&profile.ID, &profile.Name, &profile.UpgradesAllowed, &profile.MinScore,
		&profile.UpgradeUntilScore, &profile.MinScoreIncrement, &profile.MovieMinSizeGb,
		&profile.MovieMaxSizeGb, &profile.EpisodeMinSizeMb, &profile.EpisodeMaxSizeMb,
		&packPreference, &allowedProtocols, &formatScores,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(packPreference), &profile.PackPreference); err != nil {
		return nil, fmt.Errorf("profile %q pack preference: %w", profile.Name, err)
	}
	if err := json.Unmarshal([]byte(allowedProtocols), &profile.AllowedProtocols); err != nil {
		return nil, fmt.Errorf("profile %q protocols: %w", profile.Name, err)
	}
	if err := json.Unmarshal([]byte(formatScores), &profile.FormatScores); err != nil {
		return nil, fmt.Errorf("profile %q format scores: %w", profile.Name, err)
	}
	return &profile, nil
}

// ListDelayProfiles returns every delay profile ordered by sort order.
func (s *Store) ListDelayProfiles(ctx context.Context) ([]*decisioning.DelayProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, enabled, usenet_delay_minutes, torrent_delay_minutes, quality_delays,
			preferred_protocol, bypass_if_highest_quality, bypass_if_above_score, sort_order
		FROM delay_profiles ORDER BY sort_order`)
	if err != nil {
		return nil, fmt.Errorf("listing delay profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*decisioning.DelayProfile
	for rows.Next() {
		var profile decisioning.DelayProfile
		var usenetMinutes, torrentMinutes int64
		var qualityDelays string
		var bypassScore sql.NullInt64
		if err := rows.Scan(
			&profile.ID, &profile.Enabled, &usenetMinutes, &torrentMinutes, &qualityDelays,
			&profile.PreferredProtocol, &profile.BypassIfHighestQuality, &bypassScore,
			&profile.SortOrder,
		); err != nil {
			return nil, err
		}
		profile.UsenetDelay = time.Duration(usenetMinutes) * time.Minute
		profile.TorrentDelay = time.Duration(torrentMinutes) * time.Minute
		if bypassScore.Valid {
			threshold := int(bypassScore.Int64)
			profile.BypassIfAboveScore = &threshold
		}
		delayMinutes := map[release.Resolution]int64{}
		if err := json.Unmarshal([]byte(qualityDelays), &delayMinutes); err != nil {
			return nil, fmt.Errorf("delay profile %d quality delays: %w", profile.ID, err)
		}
		if len(delayMinutes) > 0 {
			profile.QualityDelays = make(map[release.Resolution]time.Duration, len(delayMinutes))
			for res, minutes := range delayMinutes {
				profile.QualityDelays[res] = time.Duration(minutes) * time.Minute
			}
		}
		profiles = append(profiles, &profile)
	}
	return profiles, rows.Err()
}

// SaveDelayProfile inserts or updates a delay profile.
func (s *Store) SaveDelayProfile(ctx context.Context, profile *decisioning.DelayProfile) error {
	var bypassScore any
	if profile.BypassIfAboveScore != nil {
		bypassScore = *profile.BypassIfAboveScore
	}
	delayMinutes := make(map[release.Resolution]int64, len(profile.QualityDelays))
	for res, delay := range profile.QualityDelays {
		delayMinutes[res] = int64(delay / time.Minute)
	}

	if profile.ID == 0 {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO delay_profiles (enabled, usenet_delay_minutes, torrent_delay_minutes,
				quality_delays, preferred_protocol, bypass_if_highest_quality,
				bypass_if_above_score, sort_order)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			profile.Enabled, int64(profile.UsenetDelay/time.Minute),
			int64(profile.TorrentDelay/time.Minute), marshalJSON(delayMinutes, "{}"),
			profile.PreferredProtocol, profile.BypassIfHighestQuality, bypassScore,
			profile.SortOrder)
		if err != nil {
			return fmt.Errorf("inserting delay profile: %w", err)
		}
		profile.ID, err = result.LastInsertId()
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE delay_profiles SET enabled = ?, usenet_delay_minutes = ?,
			torrent_delay_minutes = ?, quality_delays = ?, preferred_protocol = ?,
			bypass_if_highest_quality = ?, bypass_if_above_score = ?, sort_order = ?
		WHERE id = ?`,
		profile.Enabled, int64(profile.UsenetDelay/time.Minute),
		int64(profile.TorrentDelay/time.Minute), marshalJSON(delayMinutes, "{}"),
		profile.PreferredProtocol, profile.BypassIfHighestQuality, bypassScore,
		profile.SortOrder, profile.ID)
	if err != nil {
		return fmt.Errorf("updating delay profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("delay profile %d: %w", profile.ID, ErrNotFound)
	}
	return nil
}
