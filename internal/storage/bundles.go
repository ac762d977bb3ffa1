package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"newscurator/internal/model"
)

var bundleColumns = []string{
	"id", "slug", "name", "description", "category", "visibility", "sort_order",
	"positive_keywords", "negative_keywords", "priority_regions", "content_age_limit_days",
	"is_default", "is_custom", "is_active", "enabled_feed_urls", "usage_count",
	"created_at", "updated_at",
}

// CountActiveBundles returns the number of bundles with is_active set.
func (s *SQLite) CountActiveBundles(ctx context.Context) (int, error) {
	var n int
	err := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM bundles WHERE is_active = 1`).Scan(&n)
	if err != nil {
		return 0, mapError(err, "count bundles", "")
	}
	return n, nil
}

// CreateBundle inserts a new bundle and populates its ID and timestamps.
// A taken slug yields model.ErrConflict.
func (s *SQLite) CreateBundle(ctx context.Context, b *model.Bundle) error {
	query, args, err := bundleInsert(b).ToSql()
	if err != nil {
		return fmt.Errorf("build insert bundle: %w", err)
	}
	res, err := s.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, "insert bundle", b.Slug)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	b.ID = id
	return nil
}

// InsertBundleIfMissing inserts b unless its slug already exists.
// It reports whether a row was written.
func (s *SQLite) InsertBundleIfMissing(ctx context.Context, b *model.Bundle) (bool, error) {
	query, args, err := bundleInsert(b).Suffix("ON CONFLICT(slug) DO NOTHING").ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert bundle: %w", err)
	}
	res, err := s.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, mapError(err, "insert bundle", b.Slug)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	return true, nil
}

func bundleInsert(b *model.Bundle) sq.InsertBuilder {
	ts := now()
	b.CreatedAt, b.UpdatedAt = parseTime(ts), parseTime(ts)
	feeds, _ := json.Marshal(nonNil(b.EnabledFeedURLs))
	return sq.Insert("bundles").
		Columns(bundleColumns[1:]...).
		Values(
			b.Slug, b.Name, b.Description, string(b.Category), string(b.Visibility), b.SortOrder,
			model.JoinKeywords(b.PositiveKeywords), model.JoinKeywords(b.NegativeKeywords),
			model.JoinKeywords(b.PriorityRegions), b.ContentAgeLimitDays,
			boolToInt(b.IsDefault), boolToInt(b.IsCustom), boolToInt(b.IsActive),
			string(feeds), b.UsageCount, ts, ts,
		)
}

// GetBundle returns a single bundle by slug.
func (s *SQLite) GetBundle(ctx context.Context, slug string) (*model.Bundle, error) {
	query, args, err := sq.Select(bundleColumns...).From("bundles").Where(sq.Eq{"slug": slug}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get bundle: %w", err)
	}
	b, err := scanBundle(s.q(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err, "bundle", slug)
	}
	return b, nil
}

// GetDefaultBundle returns the active bundle flagged as default.
func (s *SQLite) GetDefaultBundle(ctx context.Context) (*model.Bundle, error) {
	query, args, err := sq.Select(bundleColumns...).From("bundles").
		Where(sq.Eq{"is_default": 1, "is_active": 1}).
		OrderBy("sort_order", "name").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get default bundle: %w", err)
	}
	b, err := scanBundle(s.q(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err, "bundle", "default")
	}
	return b, nil
}

// ListBundles returns bundles matching f ordered by sort order, then name.
func (s *SQLite) ListBundles(ctx context.Context, f BundleFilter) ([]model.Bundle, error) {
	qb := sq.Select(bundleColumns...).From("bundles").OrderBy("sort_order", "name")
	if f.ActiveOnly {
		qb = qb.Where(sq.Eq{"is_active": 1})
	}
	if f.Visibility != "" {
		qb = qb.Where(sq.Eq{"visibility": string(f.Visibility)})
	}
	if f.Category != "" {
		qb = qb.Where(sq.Eq{"category": string(f.Category)})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list bundles: %w", err)
	}

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list bundles", "")
	}
	defer func() { _ = rows.Close() }()

	var out []model.Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, mapError(err, "scan bundle", "")
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// UpdateBundle persists the mutable fields of an existing bundle.
// The slug identifies the row and is never rewritten.
func (s *SQLite) UpdateBundle(ctx context.Context, b *model.Bundle) error {
	feeds, _ := json.Marshal(nonNil(b.EnabledFeedURLs))
	ts := now()
	query, args, err := sq.Update("bundles").SetMap(map[string]any{
		"name":                   b.Name,
		"description":            b.Description,
		"category":               string(b.Category),
		"visibility":             string(b.Visibility),
		"sort_order":             b.SortOrder,
		"positive_keywords":      model.JoinKeywords(b.PositiveKeywords),
		"negative_keywords":      model.JoinKeywords(b.NegativeKeywords),
		"priority_regions":       model.JoinKeywords(b.PriorityRegions),
		"content_age_limit_days": b.ContentAgeLimitDays,
		"is_active":              boolToInt(b.IsActive),
		"enabled_feed_urls":      string(feeds),
		"updated_at":             ts,
	}).Where(sq.Eq{"slug": b.Slug}).ToSql()
	if err != nil {
		return fmt.Errorf("build update bundle: %w", err)
	}

	res, err := s.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, "update bundle", b.Slug)
	}
	if err := requireRow(res, "bundle", b.Slug); err != nil {
		return err
	}
	b.UpdatedAt = parseTime(ts)
	return nil
}

// DeleteBundle removes a bundle by slug.
func (s *SQLite) DeleteBundle(ctx context.Context, slug string) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM bundles WHERE slug = ?`, slug)
	if err != nil {
		return mapError(err, "delete bundle", slug)
	}
	return requireRow(res, "bundle", slug)
}

// IncrementUsage bumps usage_count by one and returns the new value.
func (s *SQLite) IncrementUsage(ctx context.Context, slug string) (int, error) {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE bundles SET usage_count = usage_count + 1 WHERE slug = ?`, slug)
	if err != nil {
		return 0, mapError(err, "increment usage", slug)
	}
	if err := requireRow(res, "bundle", slug); err != nil {
		return 0, err
	}
	var n int
	err = s.q(ctx).QueryRowContext(ctx, `SELECT usage_count FROM bundles WHERE slug = ?`, slug).Scan(&n)
	if err != nil {
		return 0, mapError(err, "read usage", slug)
	}
	return n, nil
}

func requireRow(res sql.Result, entity, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, key, model.ErrNotFound)
	}
	return nil
}

func scanBundle(row scannable) (*model.Bundle, error) {
	var b model.Bundle
	var category, visibility, pos, neg, regions, feeds, created, updated string
	var isDefault, isCustom, isActive int
	err := row.Scan(
		&b.ID, &b.Slug, &b.Name, &b.Description, &category, &visibility, &b.SortOrder,
		&pos, &neg, &regions, &b.ContentAgeLimitDays,
		&isDefault, &isCustom, &isActive, &feeds, &b.UsageCount,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}
	b.Category = model.Category(category)
	b.Visibility = model.Visibility(visibility)
	b.PositiveKeywords = model.ParseKeywords(pos)
	b.NegativeKeywords = model.ParseNegativeKeywords(neg)
	b.PriorityRegions = parseRegions(regions)
	b.IsDefault = isDefault == 1
	b.IsCustom = isCustom == 1
	b.IsActive = isActive == 1
	if err := json.Unmarshal([]byte(feeds), &b.EnabledFeedURLs); err != nil {
		return nil, fmt.Errorf("decode enabled_feed_urls of %s: %w", b.Slug, err)
	}
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return &b, nil
}

func parseRegions(raw string) []string {
	regions := model.ParseKeywords(raw)
	for i, r := range regions {
		regions[i] = strings.ToUpper(r)
	}
	return regions
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
