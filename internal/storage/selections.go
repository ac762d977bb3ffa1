package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"newscurator/internal/model"
)

// GetSelection returns the active filter selection of a user.
func (s *SQLite) GetSelection(ctx context.Context, userID int64) (*model.UserFilterSelection, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, user_id, bundle_slug, positive_keywords, negative_keywords, advanced_settings, preset_name, updated_at
		 FROM user_filter_selections WHERE user_id = ?`, userID,
	)
	var sel model.UserFilterSelection
	var slug sql.NullString
	var pos, neg, advanced, updated string
	err := row.Scan(&sel.ID, &sel.UserID, &slug, &pos, &neg, &advanced, &sel.PresetName, &updated)
	if err != nil {
		return nil, mapError(err, "selection", strconv.FormatInt(userID, 10))
	}
	sel.BundleSlug = slug.String
	sel.PositiveKeywords = model.ParseKeywords(pos)
	sel.NegativeKeywords = model.ParseNegativeKeywords(neg)
	if err := json.Unmarshal([]byte(advanced), &sel.Advanced); err != nil {
		return nil, fmt.Errorf("decode advanced settings: %w", err)
	}
	sel.UpdatedAt = parseTime(updated)
	return &sel, nil
}

// UpsertSelection writes the selection of sel.UserID, replacing any
// previous one. There is at most one row per user.
func (s *SQLite) UpsertSelection(ctx context.Context, sel *model.UserFilterSelection) error {
	advanced, err := json.Marshal(sel.Advanced)
	if err != nil {
		return fmt.Errorf("encode advanced settings: %w", err)
	}
	ts := now()
	_, err = s.q(ctx).ExecContext(ctx,
		`INSERT INTO user_filter_selections
		   (user_id, bundle_slug, positive_keywords, negative_keywords, advanced_settings, preset_name, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   bundle_slug = excluded.bundle_slug,
		   positive_keywords = excluded.positive_keywords,
		   negative_keywords = excluded.negative_keywords,
		   advanced_settings = excluded.advanced_settings,
		   preset_name = excluded.preset_name,
		   updated_at = excluded.updated_at`,
		sel.UserID, nullString(sel.BundleSlug),
		model.JoinKeywords(sel.PositiveKeywords), model.JoinKeywords(sel.NegativeKeywords),
		string(advanced), sel.PresetName, ts,
	)
	if err != nil {
		return mapError(err, "upsert selection", strconv.FormatInt(sel.UserID, 10))
	}
	err = s.q(ctx).QueryRowContext(ctx,
		`SELECT id FROM user_filter_selections WHERE user_id = ?`, sel.UserID).Scan(&sel.ID)
	if err != nil {
		return mapError(err, "selection", strconv.FormatInt(sel.UserID, 10))
	}
	sel.UpdatedAt = parseTime(ts)
	return nil
}

// SavePreset stores p, overwriting a preset of the same user and name.
func (s *SQLite) SavePreset(ctx context.Context, p *model.Preset) error {
	advanced, err := json.Marshal(p.Advanced)
	if err != nil {
		return fmt.Errorf("encode advanced settings: %w", err)
	}
	ts := now()
	_, err = s.q(ctx).ExecContext(ctx,
		`INSERT INTO filter_presets
		   (id, user_id, name, bundle_slug, positive_keywords, negative_keywords, advanced_settings, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, name) DO UPDATE SET
		   bundle_slug = excluded.bundle_slug,
		   positive_keywords = excluded.positive_keywords,
		   negative_keywords = excluded.negative_keywords,
		   advanced_settings = excluded.advanced_settings`,
		p.ID, p.UserID, p.Name, nullString(p.BundleSlug),
		model.JoinKeywords(p.PositiveKeywords), model.JoinKeywords(p.NegativeKeywords),
		string(advanced), ts,
	)
	if err != nil {
		return mapError(err, "save preset", p.Name)
	}
	stored, err := s.GetPreset(ctx, p.UserID, p.Name)
	if err != nil {
		return err
	}
	p.ID, p.CreatedAt = stored.ID, stored.CreatedAt
	return nil
}

// GetPreset returns the preset a user saved under name.
func (s *SQLite) GetPreset(ctx context.Context, userID int64, name string) (*model.Preset, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, user_id, name, bundle_slug, positive_keywords, negative_keywords, advanced_settings, created_at
		 FROM filter_presets WHERE user_id = ? AND name = ?`, userID, name,
	)
	p, err := scanPreset(row)
	if err != nil {
		return nil, mapError(err, "preset", name)
	}
	return p, nil
}

// ListPresets returns the presets of a user ordered by name.
func (s *SQLite) ListPresets(ctx context.Context, userID int64) ([]model.Preset, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, user_id, name, bundle_slug, positive_keywords, negative_keywords, advanced_settings, created_at
		 FROM filter_presets WHERE user_id = ? ORDER BY name`, userID,
	)
	if err != nil {
		return nil, mapError(err, "list presets", strconv.FormatInt(userID, 10))
	}
	defer func() { _ = rows.Close() }()

	var out []model.Preset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, mapError(err, "scan preset", "")
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPreset(row scannable) (*model.Preset, error) {
	var p model.Preset
	var slug sql.NullString
	var pos, neg, advanced, created string
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &slug, &pos, &neg, &advanced, &created); err != nil {
		return nil, err
	}
	p.BundleSlug = slug.String
	p.PositiveKeywords = model.ParseKeywords(pos)
	p.NegativeKeywords = model.ParseNegativeKeywords(neg)
	if err := json.Unmarshal([]byte(advanced), &p.Advanced); err != nil {
		return nil, fmt.Errorf("decode advanced settings: %w", err)
	}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
