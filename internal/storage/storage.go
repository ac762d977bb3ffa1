// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"newscurator/internal/model"
)

// BundleFilter narrows a bundle listing. Zero values match everything.
type BundleFilter struct {
	ActiveOnly bool
	Visibility model.Visibility
	Category   model.Category
}

// Storage is the interface for all persistence operations.
//
// Every method runs inside the transaction carried by ctx when there is one,
// so several calls made from a RunInTx callback commit or roll back together.
type Storage interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CountActiveBundles(ctx context.Context) (int, error)
	CreateBundle(ctx context.Context, b *model.Bundle) error
	InsertBundleIfMissing(ctx context.Context, b *model.Bundle) (bool, error)
	GetBundle(ctx context.Context, slug string) (*model.Bundle, error)
	GetDefaultBundle(ctx context.Context) (*model.Bundle, error)
	ListBundles(ctx context.Context, f BundleFilter) ([]model.Bundle, error)
	UpdateBundle(ctx context.Context, b *model.Bundle) error
	DeleteBundle(ctx context.Context, slug string) error
	IncrementUsage(ctx context.Context, slug string) (int, error)

	GetSelection(ctx context.Context, userID int64) (*model.UserFilterSelection, error)
	UpsertSelection(ctx context.Context, sel *model.UserFilterSelection) error

	SavePreset(ctx context.Context, p *model.Preset) error
	GetPreset(ctx context.Context, userID int64, name string) (*model.Preset, error)
	ListPresets(ctx context.Context, userID int64) ([]model.Preset, error)

	ListFeeds(ctx context.Context, f model.FeedFilter) ([]model.Feed, error)
	ListFeedUsers(ctx context.Context) ([]int64, error)
	EnableFeeds(ctx context.Context, userID int64, urls []string) error
	DisableFeeds(ctx context.Context, userID int64, urls []string) error
	UpdateFeedCheck(ctx context.Context, feedID int64, name string, quality int, checkedAt time.Time) error

	MarkSeen(ctx context.Context, userID int64, guid, title string) error
	IsSeen(ctx context.Context, userID int64, guid string) (bool, error)
	RecentTitles(ctx context.Context, userID int64, limit int) ([]model.SeenItem, error)

	Close() error
}
