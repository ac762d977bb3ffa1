package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newscurator/internal/model"
)

// ListFeeds returns the feeds of f.UserID ordered by ID.
func (s *SQLite) ListFeeds(ctx context.Context, f model.FeedFilter) ([]model.Feed, error) {
	qb := sq.Select("id", "user_id", "url", "name", "enabled", "quality_score", "last_check_at", "created_at").
		From("feeds").
		Where(sq.Eq{"user_id": f.UserID}).
		OrderBy("id")
	if f.EnabledOnly {
		qb = qb.Where(sq.Eq{"enabled": 1})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list feeds: %w", err)
	}

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list feeds", strconv.FormatInt(f.UserID, 10))
	}
	defer func() { _ = rows.Close() }()

	var feeds []model.Feed
	for rows.Next() {
		var fd model.Feed
		var enabled int
		var lastCheck sql.NullString
		var created string
		if err := rows.Scan(&fd.ID, &fd.UserID, &fd.URL, &fd.Name, &enabled, &fd.QualityScore, &lastCheck, &created); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		fd.Enabled = enabled == 1
		if lastCheck.Valid {
			t := parseTime(lastCheck.String)
			fd.LastCheckAt = &t
		}
		fd.CreatedAt = parseTime(created)
		feeds = append(feeds, fd)
	}
	return feeds, rows.Err()
}

// ListFeedUsers returns the users that have at least one enabled feed.
func (s *SQLite) ListFeedUsers(ctx context.Context) ([]int64, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT DISTINCT user_id FROM feeds WHERE enabled = 1 ORDER BY user_id`)
	if err != nil {
		return nil, mapError(err, "list feed users", "")
	}
	defer func() { _ = rows.Close() }()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// EnableFeeds marks the given URLs enabled for a user, creating rows for
// URLs the user has never selected.
func (s *SQLite) EnableFeeds(ctx context.Context, userID int64, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	ts := now()
	qb := sq.Insert("feeds").Columns("user_id", "url", "enabled", "created_at")
	for _, u := range urls {
		qb = qb.Values(userID, u, 1, ts)
	}
	query, args, err := qb.Suffix("ON CONFLICT(user_id, url) DO UPDATE SET enabled = 1").ToSql()
	if err != nil {
		return fmt.Errorf("build enable feeds: %w", err)
	}
	if _, err := s.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return mapError(err, "enable feeds", strconv.FormatInt(userID, 10))
	}
	return nil
}

// DisableFeeds marks the given URLs disabled for a user.
func (s *SQLite) DisableFeeds(ctx context.Context, userID int64, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	query, args, err := sq.Update("feeds").
		Set("enabled", 0).
		Where(sq.Eq{"user_id": userID, "url": urls}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build disable feeds: %w", err)
	}
	if _, err := s.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return mapError(err, "disable feeds", strconv.FormatInt(userID, 10))
	}
	return nil
}

// UpdateFeedCheck records the outcome of the latest check of a feed.
// An empty name keeps the stored one.
func (s *SQLite) UpdateFeedCheck(ctx context.Context, feedID int64, name string, quality int, checkedAt time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE feeds SET name = COALESCE(NULLIF(?, ''), name), quality_score = ?, last_check_at = ? WHERE id = ?`,
		name, quality, checkedAt.UTC().Format(timeLayout), feedID,
	)
	if err != nil {
		return mapError(err, "update feed", strconv.FormatInt(feedID, 10))
	}
	return requireRow(res, "feed", strconv.FormatInt(feedID, 10))
}

// MarkSeen records that a feed item has been processed for a user.
func (s *SQLite) MarkSeen(ctx context.Context, userID int64, guid, title string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_items (user_id, guid, title, seen_at) VALUES (?, ?, ?, ?)`,
		userID, guid, title, now(),
	)
	if err != nil {
		return mapError(err, "mark seen", guid)
	}
	return nil
}

// IsSeen checks whether a feed item has already been processed for a user.
func (s *SQLite) IsSeen(ctx context.Context, userID int64, guid string) (bool, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_items WHERE user_id = ? AND guid = ?`,
		userID, guid,
	).Scan(&count)
	if err != nil {
		return false, mapError(err, "check seen", guid)
	}
	return count > 0, nil
}

// RecentTitles returns the most recently seen items of a user that kept a
// title, newest first. Items recorded without a title do not count toward limit.
func (s *SQLite) RecentTitles(ctx context.Context, userID int64, limit int) ([]model.SeenItem, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT user_id, guid, title, seen_at FROM seen_items
		 WHERE user_id = ? AND title <> '' ORDER BY seen_at DESC, rowid DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, mapError(err, "recent titles", strconv.FormatInt(userID, 10))
	}
	defer func() { _ = rows.Close() }()

	var items []model.SeenItem
	for rows.Next() {
		var it model.SeenItem
		var seen string
		if err := rows.Scan(&it.UserID, &it.GUID, &it.Title, &seen); err != nil {
			return nil, fmt.Errorf("scan seen item: %w", err)
		}
		it.SeenAt = parseTime(seen)
		items = append(items, it)
	}
	return items, rows.Err()
}
