// Package model defines the domain types used across the application.
package model

import (
	"time"
)

// Category groups bundles in the catalog.
type Category string

// Supported bundle categories, in display order.
const (
	CategoryMainNews    Category = "main_news"
	CategoryBusiness    Category = "business"
	CategoryTechnology  Category = "technology"
	CategoryLifestyle   Category = "lifestyle"
	CategoryIndustries  Category = "industries"
	CategorySpecialized Category = "specialized"
	CategoryRegional    Category = "regional"
	CategoryCustom      Category = "custom"
)

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{
		CategoryMainNews, CategoryBusiness, CategoryTechnology, CategoryLifestyle,
		CategoryIndustries, CategorySpecialized, CategoryRegional, CategoryCustom,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Visibility controls where a bundle is listed.
type Visibility string

// Supported visibilities.
const (
	VisibilityVisible     Visibility = "visible"
	VisibilityHidden      Visibility = "hidden"
	VisibilitySpecialized Visibility = "specialized"
	VisibilityRegional    Visibility = "regional"
	VisibilityCustom      Visibility = "custom"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityVisible, VisibilityHidden, VisibilitySpecialized, VisibilityRegional, VisibilityCustom:
		return true
	}
	return false
}

// Bundle is a named, reusable filter template.
type Bundle struct {
	ID                  int64      `json:"id"`
	Slug                string     `json:"slug"`
	Name                string     `json:"name"`
	Description         string     `json:"description"`
	Category            Category   `json:"category"`
	Visibility          Visibility `json:"visibility"`
	SortOrder           int        `json:"sort_order"`
	PositiveKeywords    []string   `json:"positive_keywords"`
	NegativeKeywords    []string   `json:"negative_keywords"`
	PriorityRegions     []string   `json:"priority_regions"`
	ContentAgeLimitDays int        `json:"content_age_limit_days"`
	IsDefault           bool       `json:"is_default"`
	IsCustom            bool       `json:"is_custom"`
	IsActive            bool       `json:"is_active"`
	EnabledFeedURLs     []string   `json:"enabled_feed_urls"`
	UsageCount          int        `json:"usage_count"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// FilterSet returns the evaluation criteria stored on the bundle.
func (b Bundle) FilterSet() FilterSet {
	return FilterSet{
		PositiveKeywords:    b.PositiveKeywords,
		NegativeKeywords:    b.NegativeKeywords,
		PriorityRegions:     b.PriorityRegions,
		ContentAgeLimitDays: b.ContentAgeLimitDays,
	}
}

// AdvancedSettings are per-user tuning knobs stored with a selection.
type AdvancedSettings struct {
	RegionBias         []string `json:"region_bias,omitempty"`
	QualityThreshold   int      `json:"quality_threshold,omitempty"`
	DuplicateDetection bool     `json:"duplicate_detection"`
	LanguagePriority   string   `json:"language_priority,omitempty"`
}

// UserFilterSelection is the active filter configuration of a user.
// An empty BundleSlug means the selection is fully custom.
type UserFilterSelection struct {
	ID               int64            `json:"id"`
	UserID           int64            `json:"user_id"`
	BundleSlug       string           `json:"bundle_slug,omitempty"`
	PositiveKeywords []string         `json:"positive_keywords"`
	NegativeKeywords []string         `json:"negative_keywords"`
	Advanced         AdvancedSettings `json:"advanced"`
	PresetName       string           `json:"preset_name,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Preset is a named snapshot of a selection saved by a user.
type Preset struct {
	ID               string           `json:"id"`
	UserID           int64            `json:"user_id"`
	Name             string           `json:"name"`
	BundleSlug       string           `json:"bundle_slug,omitempty"`
	PositiveKeywords []string         `json:"positive_keywords"`
	NegativeKeywords []string         `json:"negative_keywords"`
	Advanced         AdvancedSettings `json:"advanced"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Article is a candidate item handed to the filter engine.
// PublishedAt is a Unix timestamp; zero means the article carries none.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Author      string `json:"author"`
	SourceURL   string `json:"source_url"`
	PublishedAt int64  `json:"published_at"`
}

// FilterSet is the resolved criteria an article is evaluated against.
type FilterSet struct {
	PositiveKeywords    []string `json:"positive_keywords"`
	NegativeKeywords    []string `json:"negative_keywords"`
	PriorityRegions     []string `json:"priority_regions"`
	ContentAgeLimitDays int      `json:"content_age_limit_days"`
}

// Diagnostic explains why an evaluation failed open.
type Diagnostic struct {
	Message string `json:"message"`
}

// FilterResult is the outcome of evaluating one article.
// A non-nil Diagnostic marks a result that failed open: Passed is then
// always true and the other fields carry no matching information.
type FilterResult struct {
	Passed           bool        `json:"passed"`
	Score            int         `json:"score"`
	MatchedKeywords  []string    `json:"matched_keywords"`
	RejectionReasons []string    `json:"rejection_reasons"`
	EvaluatedAt      time.Time   `json:"evaluated_at"`
	Diagnostic       *Diagnostic `json:"diagnostic,omitempty"`
}

// FeedType is the detected syndication format.
type FeedType string

// Supported feed types.
const (
	FeedTypeRSS  FeedType = "rss"
	FeedTypeAtom FeedType = "atom"
)

// FeedValidationResult is the outcome of validating a feed URL.
// QualityScore is nil and Error is set whenever Valid is false.
type FeedValidationResult struct {
	URL          string   `json:"url"`
	Valid        bool     `json:"valid"`
	FeedType     FeedType `json:"feed_type,omitempty"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Link         string   `json:"link,omitempty"`
	ItemCount    int      `json:"item_count"`
	QualityScore *int     `json:"quality_score,omitempty"`
	Error        string   `json:"error,omitempty"`

	// Err carries the classified error behind Error for errors.Is checks.
	Err error `json:"-"`
}

// Feed is a feed URL a user has selected for curation.
type Feed struct {
	ID           int64
	UserID       int64
	URL          string
	Name         string
	Enabled      bool
	QualityScore int
	LastCheckAt  *time.Time
	CreatedAt    time.Time
}

// FeedFilter narrows a feed listing.
type FeedFilter struct {
	UserID      int64
	EnabledOnly bool
}

// SeenItem tracks a feed item that has already been processed.
type SeenItem struct {
	UserID int64
	GUID   string
	Title  string
	SeenAt time.Time
}

// CheckReport summarizes one curation pass over a user's feeds.
type CheckReport struct {
	Feeds      int `json:"feeds"`
	Invalid    int `json:"invalid"`
	LowQuality int `json:"low_quality"`
	Fetched    int `json:"fetched"`
	Admitted   int `json:"admitted"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
}
