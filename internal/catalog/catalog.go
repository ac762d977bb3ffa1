// Package catalog manages the bundle catalog: built-in and custom bundles,
// the per-user filter selection and saved presets.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"newscurator/internal/cache"
	"newscurator/internal/dedup"
	"newscurator/internal/model"
	"newscurator/internal/storage"
)

const (
	listTTL        = time.Hour
	userFiltersTTL = time.Hour
	maxNameLen     = 100
	maxPresetLen   = 64
	maxSlugSuffix  = 1000

	errOnlyCustom = "only custom bundles can be edited/deleted"
)

// FeedSelector enables and disables feeds for a user. Apply syncs it with
// the feed list of the applied bundle.
type FeedSelector interface {
	ListFeeds(ctx context.Context, f model.FeedFilter) ([]model.Feed, error)
	EnableFeeds(ctx context.Context, userID int64, urls []string) error
	DisableFeeds(ctx context.Context, userID int64, urls []string) error
}

// ListOptions narrow a catalog listing.
type ListOptions struct {
	ActiveOnly bool
	Visibility model.Visibility
}

// CategoryGroup is a category with its bundles in display order.
type CategoryGroup struct {
	Category model.Category
	Bundles  []model.Bundle
}

// Overrides replace parts of a bundle's filter when it is applied.
// Nil fields keep the bundle's values.
type Overrides struct {
	PositiveKeywords []string
	NegativeKeywords []string
	Advanced         *model.AdvancedSettings
}

// ApplyResult is the committed outcome of Apply. FeedSyncErr reports a
// failed feed sync, which never undoes the committed selection.
type ApplyResult struct {
	Selection     model.UserFilterSelection
	Bundle        model.Bundle
	EnabledFeeds  []string
	DisabledFeeds []string
	FeedSyncErr   error
}

// NewBundle describes a custom bundle to create.
type NewBundle struct {
	Name                string
	Description         string
	PositiveKeywords    []string
	NegativeKeywords    []string
	PriorityRegions     []string
	ContentAgeLimitDays int
	EnabledFeedURLs     []string
}

// BundleChanges lists the fields Edit rewrites. Nil fields are kept; a
// non-nil empty slice clears the list.
type BundleChanges struct {
	Name                *string
	Description         *string
	PositiveKeywords    []string
	NegativeKeywords    []string
	PriorityRegions     []string
	ContentAgeLimitDays *int
	EnabledFeedURLs     []string
}

// Catalog is the bundle catalog backed by the store and the cache.
type Catalog struct {
	store storage.Storage
	feeds FeedSelector
	cache cache.Cache
	seed  []model.Bundle
	log   *slog.Logger
	newID func() string
}

// New creates a Catalog. seed is the built-in bundle set Bootstrap loads.
func New(store storage.Storage, feeds FeedSelector, c cache.Cache, seed []model.Bundle, logger *slog.Logger) *Catalog {
	return &Catalog{
		store: store,
		feeds: feeds,
		cache: c,
		seed:  seed,
		log:   logger,
		newID: uuid.NewString,
	}
}

// Bootstrap loads the built-in bundles and gives userID a selection of the
// default bundle. It is a no-op once the catalog holds at least as many
// active bundles as the seed set. A zero userID only seeds.
//
// Seeding is atomic: if any row fails, nothing is written and the row
// errors are returned together.
func (c *Catalog) Bootstrap(ctx context.Context, userID int64) error {
	n, err := c.store.CountActiveBundles(ctx)
	if err != nil {
		return fmt.Errorf("count active bundles: %w", err)
	}
	if n >= len(c.seed) {
		c.log.Debug("catalog already seeded", "active_bundles", n)
		return nil
	}

	inserted := 0
	err = c.store.RunInTx(ctx, func(ctx context.Context) error {
		var errs []error
		for i := range c.seed {
			b := c.seed[i]
			ok, err := c.store.InsertBundleIfMissing(ctx, &b)
			if err != nil {
				errs = append(errs, fmt.Errorf("seed %s: %w", b.Slug, err))
				continue
			}
			if ok {
				inserted++
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%w: seed catalog: %w", model.ErrPersistence, errors.Join(errs...))
		}

		if userID == 0 {
			return nil
		}
		if _, err := c.store.GetSelection(ctx, userID); err == nil {
			return nil
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		def, err := c.store.GetDefaultBundle(ctx)
		if err != nil {
			return fmt.Errorf("default bundle: %w", err)
		}
		sel := model.UserFilterSelection{
			UserID:           userID,
			BundleSlug:       def.Slug,
			PositiveKeywords: def.PositiveKeywords,
			NegativeKeywords: def.NegativeKeywords,
			Advanced:         model.AdvancedSettings{DuplicateDetection: true},
		}
		return c.store.UpsertSelection(ctx, &sel)
	})
	if err != nil {
		return err
	}

	c.invalidate(ctx)
	c.log.Info("catalog bootstrapped", "inserted", inserted, "seed_size", len(c.seed), "user_id", userID)
	return nil
}

// List returns the bundles matching opts keyed by slug.
func (c *Catalog) List(ctx context.Context, opts ListOptions) (map[string]model.Bundle, error) {
	key := fmt.Sprintf("%slist_%t_%s", cache.PrefixBundles, opts.ActiveOnly, opts.Visibility)
	var cached map[string]model.Bundle
	if c.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	bundles, err := c.store.ListBundles(ctx, storage.BundleFilter{
		ActiveOnly: opts.ActiveOnly,
		Visibility: opts.Visibility,
	})
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	out := make(map[string]model.Bundle, len(bundles))
	for _, b := range bundles {
		out[b.Slug] = b
	}
	c.cacheSet(ctx, key, out, listTTL)
	return out, nil
}

// Grouped returns the bundles matching opts grouped by category. Groups
// follow the category display order; bundles are ordered by sort order,
// then name. Empty categories are omitted.
func (c *Catalog) Grouped(ctx context.Context, opts ListOptions) ([]CategoryGroup, error) {
	bundles, err := c.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[model.Category][]model.Bundle)
	for _, b := range bundles {
		byCategory[b.Category] = append(byCategory[b.Category], b)
	}

	var groups []CategoryGroup
	for _, cat := range model.Categories() {
		list := byCategory[cat]
		if len(list) == 0 {
			continue
		}
		slices.SortFunc(list, func(a, b model.Bundle) int {
			if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
				return c
			}
			return cmp.Compare(a.Name, b.Name)
		})
		groups = append(groups, CategoryGroup{Category: cat, Bundles: list})
	}
	return groups, nil
}

// Resolve returns the bundle with the given slug.
func (c *Catalog) Resolve(ctx context.Context, slug string) (model.Bundle, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return model.Bundle{}, model.NewValidationError("slug", "must not be empty")
	}
	b, err := c.store.GetBundle(ctx, slug)
	if err != nil {
		return model.Bundle{}, fmt.Errorf("resolve bundle: %w", err)
	}
	return *b, nil
}

// ActiveFilters returns the filter set a user's articles are evaluated with.
// Users without a selection get the default bundle's filters.
func (c *Catalog) ActiveFilters(ctx context.Context, userID int64) (model.FilterSet, error) {
	key := cache.PrefixUserFilters + strconv.FormatInt(userID, 10)
	var cached model.FilterSet
	if c.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	var fs model.FilterSet
	sel, err := c.store.GetSelection(ctx, userID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		def, err := c.store.GetDefaultBundle(ctx)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return model.FilterSet{}, fmt.Errorf("default bundle: %w", err)
		}
		if def != nil {
			fs = def.FilterSet()
		}
	case err != nil:
		return model.FilterSet{}, fmt.Errorf("get selection: %w", err)
	default:
		fs, err = c.selectionFilters(ctx, sel)
		if err != nil {
			return model.FilterSet{}, err
		}
	}

	c.cacheSet(ctx, key, fs, userFiltersTTL)
	return fs, nil
}

func (c *Catalog) selectionFilters(ctx context.Context, sel *model.UserFilterSelection) (model.FilterSet, error) {
	fs := model.FilterSet{
		PositiveKeywords: sel.PositiveKeywords,
		NegativeKeywords: sel.NegativeKeywords,
		PriorityRegions:  sel.Advanced.RegionBias,
	}
	if sel.BundleSlug == "" {
		return fs, nil
	}
	b, err := c.store.GetBundle(ctx, sel.BundleSlug)
	if errors.Is(err, model.ErrNotFound) {
		c.log.Warn("selected bundle no longer exists", "user_id", sel.UserID, "bundle_slug", sel.BundleSlug)
		return fs, nil
	}
	if err != nil {
		return model.FilterSet{}, fmt.Errorf("selected bundle: %w", err)
	}
	if len(fs.PriorityRegions) == 0 {
		fs.PriorityRegions = b.PriorityRegions
	}
	fs.ContentAgeLimitDays = b.ContentAgeLimitDays
	return fs, nil
}

// Apply makes the bundle the user's active selection.
//
// The selection write and the usage increment commit together. Only after
// the commit are the user's feeds synced with the bundle's feed list; a sync
// failure is logged and reported in the result, never rolled back.
func (c *Catalog) Apply(ctx context.Context, userID int64, slug string, o Overrides) (ApplyResult, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ApplyResult{}, model.NewValidationError("slug", "must not be empty")
	}

	var res ApplyResult
	err := c.store.RunInTx(ctx, func(ctx context.Context) error {
		b, err := c.store.GetBundle(ctx, slug)
		if err != nil {
			return err
		}
		if !b.IsActive {
			return fmt.Errorf("bundle %s is inactive: %w", slug, model.ErrNotFound)
		}

		sel := model.UserFilterSelection{
			UserID:           userID,
			BundleSlug:       b.Slug,
			PositiveKeywords: b.PositiveKeywords,
			NegativeKeywords: b.NegativeKeywords,
			Advanced:         model.AdvancedSettings{DuplicateDetection: true},
		}
		if prev, err := c.store.GetSelection(ctx, userID); err == nil {
			sel.Advanced = prev.Advanced
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		if o.PositiveKeywords != nil {
			sel.PositiveKeywords = o.PositiveKeywords
		}
		if o.NegativeKeywords != nil {
			sel.NegativeKeywords = o.NegativeKeywords
		}
		if o.Advanced != nil {
			sel.Advanced = *o.Advanced
		}
		if err := c.store.UpsertSelection(ctx, &sel); err != nil {
			return err
		}

		if b.UsageCount, err = c.store.IncrementUsage(ctx, slug); err != nil {
			return err
		}
		res.Selection, res.Bundle = sel, *b
		return nil
	})
	if err != nil {
		return ApplyResult{}, fmt.Errorf("apply bundle %s: %w", slug, err)
	}
	c.invalidate(ctx)

	res.EnabledFeeds, res.DisabledFeeds, res.FeedSyncErr = c.syncFeeds(ctx, userID, res.Bundle.EnabledFeedURLs)
	if res.FeedSyncErr != nil {
		c.log.Error("feed sync after apply failed", "user_id", userID, "bundle_slug", slug, "error", res.FeedSyncErr)
	}
	c.log.Info("bundle applied", "user_id", userID, "bundle_slug", slug, "usage_count", res.Bundle.UsageCount)
	return res, nil
}

// syncFeeds enables the wanted feeds the user lacks and disables enabled
// feeds that are no longer wanted. Feeds in both sets are left alone. Two
// URLs naming the same feed (scheme, "www." or a trailing slash apart) are
// treated as one, and the user's existing URL is kept.
func (c *Catalog) syncFeeds(ctx context.Context, userID int64, wanted []string) (enabled, disabled []string, err error) {
	current, err := c.feeds.ListFeeds(ctx, model.FeedFilter{UserID: userID, EnabledOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("list feeds: %w", err)
	}
	have := make([]dedup.Candidate, len(current))
	for i, f := range current {
		have[i] = dedup.Candidate{ID: f.URL, Title: feedKey(f.URL)}
	}

	keep := make(map[string]bool, len(current))
	var chosen []dedup.Candidate
	for _, u := range wanted {
		key := feedKey(u)
		if dup, match, _ := dedup.IsDuplicate(key, chosen); dup {
			c.log.Debug("skip duplicate feed url", "user_id", userID, "feed_url", u, "matching_url", match)
			continue
		}
		chosen = append(chosen, dedup.Candidate{ID: u, Title: key})
		if dup, match, _ := dedup.IsDuplicate(key, have); dup {
			keep[match] = true
			continue
		}
		enabled = append(enabled, u)
	}
	for _, f := range current {
		if !keep[f.URL] {
			disabled = append(disabled, f.URL)
		}
	}

	if err := c.feeds.DisableFeeds(ctx, userID, disabled); err != nil {
		return nil, nil, fmt.Errorf("disable feeds: %w", err)
	}
	if err := c.feeds.EnableFeeds(ctx, userID, enabled); err != nil {
		return nil, disabled, fmt.Errorf("enable feeds: %w", err)
	}
	return enabled, disabled, nil
}

// Create adds a custom bundle. Its slug is derived from the name; a taken
// slug gets a numeric suffix.
func (c *Catalog) Create(ctx context.Context, nb NewBundle) (model.Bundle, error) {
	b := model.Bundle{
		Name:                strings.TrimSpace(nb.Name),
		Description:         strings.TrimSpace(nb.Description),
		Category:            model.CategoryCustom,
		Visibility:          model.VisibilityCustom,
		PositiveKeywords:    nb.PositiveKeywords,
		NegativeKeywords:    nb.NegativeKeywords,
		PriorityRegions:     nb.PriorityRegions,
		ContentAgeLimitDays: nb.ContentAgeLimitDays,
		IsCustom:            true,
		IsActive:            true,
		EnabledFeedURLs:     nb.EnabledFeedURLs,
	}
	if err := validateBundle(&b); err != nil {
		return model.Bundle{}, err
	}
	base, err := Slugify(b.Name)
	if err != nil {
		return model.Bundle{}, err
	}

	err = c.store.RunInTx(ctx, func(ctx context.Context) error {
		slug, err := c.freeSlug(ctx, base)
		if err != nil {
			return err
		}
		b.Slug = slug
		return c.store.CreateBundle(ctx, &b)
	})
	if err != nil {
		return model.Bundle{}, fmt.Errorf("create bundle: %w", err)
	}
	c.invalidate(ctx)
	c.log.Info("custom bundle created", "bundle_slug", b.Slug)
	return b, nil
}

func (c *Catalog) freeSlug(ctx context.Context, base string) (string, error) {
	slug := base
	for n := 2; n <= maxSlugSuffix; n++ {
		_, err := c.store.GetBundle(ctx, slug)
		if errors.Is(err, model.ErrNotFound) {
			return slug, nil
		}
		if err != nil {
			return "", err
		}
		slug = base + "_" + strconv.Itoa(n)
	}
	return "", fmt.Errorf("slug %s: no free suffix: %w", base, model.ErrConflict)
}

// Edit rewrites the given fields of a custom bundle. The slug never changes.
func (c *Catalog) Edit(ctx context.Context, slug string, ch BundleChanges) (model.Bundle, error) {
	var out model.Bundle
	err := c.store.RunInTx(ctx, func(ctx context.Context) error {
		b, err := c.customBundle(ctx, slug)
		if err != nil {
			return err
		}
		if ch.Name != nil {
			b.Name = strings.TrimSpace(*ch.Name)
		}
		if ch.Description != nil {
			b.Description = strings.TrimSpace(*ch.Description)
		}
		if ch.PositiveKeywords != nil {
			b.PositiveKeywords = ch.PositiveKeywords
		}
		if ch.NegativeKeywords != nil {
			b.NegativeKeywords = ch.NegativeKeywords
		}
		if ch.PriorityRegions != nil {
			b.PriorityRegions = ch.PriorityRegions
		}
		if ch.ContentAgeLimitDays != nil {
			b.ContentAgeLimitDays = *ch.ContentAgeLimitDays
		}
		if ch.EnabledFeedURLs != nil {
			b.EnabledFeedURLs = ch.EnabledFeedURLs
		}
		if err := validateBundle(b); err != nil {
			return err
		}
		if err := c.store.UpdateBundle(ctx, b); err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return model.Bundle{}, fmt.Errorf("edit bundle %s: %w", slug, err)
	}
	c.invalidate(ctx)
	return out, nil
}

// Delete removes a custom bundle.
func (c *Catalog) Delete(ctx context.Context, slug string) error {
	err := c.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := c.customBundle(ctx, slug); err != nil {
			return err
		}
		return c.store.DeleteBundle(ctx, slug)
	})
	if err != nil {
		return fmt.Errorf("delete bundle %s: %w", slug, err)
	}
	c.invalidate(ctx)
	c.log.Info("custom bundle deleted", "bundle_slug", slug)
	return nil
}

func (c *Catalog) customBundle(ctx context.Context, slug string) (*model.Bundle, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, model.NewValidationError("slug", "must not be empty")
	}
	b, err := c.store.GetBundle(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !b.IsCustom {
		return nil, fmt.Errorf("%s: %w", errOnlyCustom, model.ErrConflict)
	}
	return b, nil
}

// SavePreset snapshots the user's active selection under name. Saving an
// existing name overwrites it.
func (c *Catalog) SavePreset(ctx context.Context, userID int64, name string) (model.Preset, error) {
	name, err := presetName(name)
	if err != nil {
		return model.Preset{}, err
	}

	var p model.Preset
	err = c.store.RunInTx(ctx, func(ctx context.Context) error {
		sel, err := c.store.GetSelection(ctx, userID)
		if err != nil {
			return fmt.Errorf("active selection: %w", err)
		}
		p = model.Preset{
			ID:               c.newID(),
			UserID:           userID,
			Name:             name,
			BundleSlug:       sel.BundleSlug,
			PositiveKeywords: sel.PositiveKeywords,
			NegativeKeywords: sel.NegativeKeywords,
			Advanced:         sel.Advanced,
		}
		if err := c.store.SavePreset(ctx, &p); err != nil {
			return err
		}
		sel.PresetName = name
		return c.store.UpsertSelection(ctx, sel)
	})
	if err != nil {
		return model.Preset{}, fmt.Errorf("save preset %s: %w", name, err)
	}
	c.invalidate(ctx)
	return p, nil
}

// ListPresets returns the presets of a user ordered by name.
func (c *Catalog) ListPresets(ctx context.Context, userID int64) ([]model.Preset, error) {
	presets, err := c.store.ListPresets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	return presets, nil
}

// ApplyPreset makes a saved preset the user's active selection and syncs
// feeds with the preset's bundle when it has one.
func (c *Catalog) ApplyPreset(ctx context.Context, userID int64, name string) (model.UserFilterSelection, error) {
	name, err := presetName(name)
	if err != nil {
		return model.UserFilterSelection{}, err
	}

	var sel model.UserFilterSelection
	var feeds []string
	err = c.store.RunInTx(ctx, func(ctx context.Context) error {
		p, err := c.store.GetPreset(ctx, userID, name)
		if err != nil {
			return err
		}
		sel = model.UserFilterSelection{
			UserID:           userID,
			BundleSlug:       p.BundleSlug,
			PositiveKeywords: p.PositiveKeywords,
			NegativeKeywords: p.NegativeKeywords,
			Advanced:         p.Advanced,
			PresetName:       p.Name,
		}
		if p.BundleSlug != "" {
			b, err := c.store.GetBundle(ctx, p.BundleSlug)
			switch {
			case err == nil:
				feeds = b.EnabledFeedURLs
			case errors.Is(err, model.ErrNotFound):
				sel.BundleSlug = ""
			default:
				return err
			}
		}
		return c.store.UpsertSelection(ctx, &sel)
	})
	if err != nil {
		return model.UserFilterSelection{}, fmt.Errorf("apply preset %s: %w", name, err)
	}
	c.invalidate(ctx)

	if sel.BundleSlug != "" {
		if _, _, err := c.syncFeeds(ctx, userID, feeds); err != nil {
			c.log.Error("feed sync after preset failed", "user_id", userID, "preset", name, "error", err)
		}
	}
	return sel, nil
}

func presetName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", model.NewValidationError("name", "must not be empty")
	case len(name) > maxPresetLen:
		return "", model.NewValidationError("name", fmt.Sprintf("must be at most %d characters", maxPresetLen))
	}
	return name, nil
}

func validateBundle(b *model.Bundle) error {
	var ve model.ValidationError
	if b.Name == "" {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "name", Message: "must not be empty"})
	} else if len(b.Name) > maxNameLen {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxNameLen)})
	}
	if len(b.PositiveKeywords) == 0 && len(b.NegativeKeywords) == 0 {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "keywords", Message: "at least one positive or negative keyword is required"})
	}
	if b.ContentAgeLimitDays < 0 {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "content_age_limit_days", Message: "must not be negative"})
	}
	for _, raw := range b.EnabledFeedURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			ve.Errors = append(ve.Errors, model.FieldError{Field: "enabled_feed_urls", Message: "invalid URL " + strconv.Quote(raw)})
		}
	}
	if len(ve.Errors) > 0 {
		return &ve
	}
	return nil
}

// feedKey reduces a feed URL to a single lowercase token of host and path.
func feedKey(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.Join(strings.Fields(raw), ""))
	}
	key := strings.TrimPrefix(strings.ToLower(u.Host), "www.") + strings.TrimRight(u.EscapedPath(), "/")
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return strings.ToLower(key)
}

// invalidate drops every cached view derived from the catalog.
func (c *Catalog) invalidate(ctx context.Context) {
	for _, prefix := range []string{cache.PrefixBundles, cache.PrefixUserFilters, cache.PrefixArticleFilter} {
		if err := c.cache.DeleteByPrefix(ctx, prefix); err != nil {
			c.log.Warn("invalidate cache", "prefix", prefix, "error", err)
		}
	}
}

func (c *Catalog) cacheGet(ctx context.Context, key string, v any) bool {
	found, err := cache.GetJSON(ctx, c.cache, key, v)
	if err != nil {
		c.log.Warn("read cache", "key", key, "error", err)
		return false
	}
	return found
}

func (c *Catalog) cacheSet(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := cache.SetJSON(ctx, c.cache, key, v, ttl); err != nil {
		c.log.Warn("write cache", "key", key, "error", err)
	}
}
