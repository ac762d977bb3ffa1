// Package scheduler runs the periodic curation pass: it fetches the enabled
// feeds of every user, filters their items and delivers what passes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newscurator/internal/bot"
	"newscurator/internal/dedup"
	"newscurator/internal/fetcher"
	"newscurator/internal/filter"
	"newscurator/internal/model"
	"newscurator/internal/storage"
)

// recentTitles bounds the titles each new item is compared against.
const recentTitles = 200

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// FilterSource resolves the filter set a user's items are evaluated with.
type FilterSource interface {
	ActiveFilters(ctx context.Context, userID int64) (model.FilterSet, error)
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Store     storage.Storage
	Filters   FilterSource
	Fetcher   *fetcher.Fetcher
	Validator *fetcher.Validator
	Engine    *filter.Engine
	Sender    Sender
	Logger    *slog.Logger
}

// Scheduler periodically checks the enabled feeds of every user.
type Scheduler struct {
	store     storage.Storage
	filters   FilterSource
	fetcher   *fetcher.Fetcher
	validator *fetcher.Validator
	engine    *filter.Engine
	sender    Sender
	log       *slog.Logger
	tick      time.Duration
	sendDelay time.Duration
	now       func() time.Time

	// mu serializes passes; a manual check waits for a running tick.
	mu sync.Mutex
}

// New creates a Scheduler that runs a pass every interval.
func New(d Deps, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:     d.Store,
		filters:   d.Filters,
		fetcher:   d.Fetcher,
		validator: d.Validator,
		engine:    d.Engine,
		sender:    d.Sender,
		log:       d.Logger,
		tick:      interval,
		// Rate limit: ~20 messages/sec max for Telegram
		sendDelay: 50 * time.Millisecond,
		now:       time.Now,
	}
}

// SetTickInterval overrides the interval passed to New.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	users, err := s.store.ListFeedUsers(ctx)
	if err != nil {
		s.log.Error("list feed users", "error", err)
		return
	}

	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		report, err := s.CheckUser(ctx, userID)
		if err != nil {
			s.log.Error("check user feeds", "user_id", userID, "error", err)
			continue
		}
		if report.Admitted > 0 {
			s.log.Info("sent notifications", "user_id", userID, "count", report.Admitted,
				"rejected", report.Rejected, "duplicates", report.Duplicates)
		}
	}
}

// CheckUser runs one curation pass over the enabled feeds of a user and
// sends every admitted item to the user's chat.
func (s *Scheduler) CheckUser(ctx context.Context, userID int64) (model.CheckReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report model.CheckReport
	fs, err := s.filters.ActiveFilters(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("active filters: %w", err)
	}

	adv := model.AdvancedSettings{DuplicateDetection: true}
	var bundleSlug string
	sel, err := s.store.GetSelection(ctx, userID)
	switch {
	case err == nil:
		adv, bundleSlug = sel.Advanced, sel.BundleSlug
	case !errors.Is(err, model.ErrNotFound):
		return report, fmt.Errorf("get selection: %w", err)
	}

	feeds, err := s.store.ListFeeds(ctx, model.FeedFilter{UserID: userID, EnabledOnly: true})
	if err != nil {
		return report, fmt.Errorf("list feeds: %w", err)
	}

	seen, err := s.store.RecentTitles(ctx, userID, recentTitles)
	if err != nil {
		return report, fmt.Errorf("recent titles: %w", err)
	}
	p := pass{
		userID:  userID,
		filters: fs,
		adv:     adv,
		opts:    fetcher.Options{Category: bundleSlug, Keywords: fs.PositiveKeywords},
		report:  &report,
	}
	for _, it := range seen {
		if it.Title != "" {
			p.candidates = append(p.candidates, dedup.Candidate{ID: it.GUID, Title: it.Title})
		}
	}

	for _, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Feeds++
		s.processFeed(ctx, &p, feed)
	}
	return report, ctx.Err()
}

// pass is the state shared by the feeds of one user during a pass.
type pass struct {
	userID     int64
	filters    model.FilterSet
	adv        model.AdvancedSettings
	opts       fetcher.Options
	candidates []dedup.Candidate
	report     *model.CheckReport
}

func (s *Scheduler) processFeed(ctx context.Context, p *pass, feed model.Feed) {
	s.log.Debug("checking feed", "user_id", p.userID, "feed_id", feed.ID, "feed_url", feed.URL)

	res := s.validator.Validate(ctx, feed.URL, p.opts)
	quality := 0
	if res.QualityScore != nil {
		quality = *res.QualityScore
	}
	if err := s.store.UpdateFeedCheck(ctx, feed.ID, res.Title, quality, s.now()); err != nil {
		s.log.Error("update last check", "feed_id", feed.ID, "error", err)
	}
	if !res.Valid {
		p.report.Invalid++
		s.log.Warn("feed failed validation", "feed_id", feed.ID, "feed_url", feed.URL, "error", res.Error)
		return
	}
	if quality < p.adv.QualityThreshold {
		p.report.LowQuality++
		s.log.Debug("feed below quality threshold", "feed_id", feed.ID, "quality", quality, "threshold", p.adv.QualityThreshold)
		return
	}

	parsed, err := s.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		s.log.Error("fetch feed", "feed_id", feed.ID, "feed_url", feed.URL, "error", err)
		return
	}

	var fresh []fetcher.Item
	for _, item := range s.fetcher.Items(parsed) {
		seen, err := s.store.IsSeen(ctx, p.userID, item.GUID)
		if err != nil {
			s.log.Error("check seen", "feed_id", feed.ID, "guid", item.GUID, "error", err)
			continue
		}
		if !seen {
			fresh = append(fresh, item)
		}
	}
	p.report.Fetched += len(fresh)
	if len(fresh) == 0 {
		return
	}

	articles := make([]model.Article, len(fresh))
	for i, item := range fresh {
		articles[i] = item.Article()
	}
	results, err := s.engine.EvaluateBatch(ctx, articles, p.filters)
	if err != nil {
		s.log.Warn("evaluation interrupted", "feed_id", feed.ID, "error", err)
		return
	}

	name := feedName(feed, res)
	for i, item := range fresh {
		r := results[i]
		if !r.Passed {
			p.report.Rejected++
			s.log.Debug("item rejected", "guid", item.GUID, "reasons", r.RejectionReasons)
			s.markSeen(ctx, p.userID, item.GUID, "")
			continue
		}
		if p.adv.DuplicateDetection {
			if dup, match, sim := dedup.IsDuplicate(item.Title, p.candidates); dup {
				p.report.Duplicates++
				s.log.Debug("item is a duplicate", "guid", item.GUID, "matching_guid", match, "similarity", sim)
				s.markSeen(ctx, p.userID, item.GUID, "")
				continue
			}
		}

		s.sender.SendMessage(p.userID, bot.FormatNotification(name, item))
		p.report.Admitted++
		s.markSeen(ctx, p.userID, item.GUID, item.Title)
		p.candidates = append(p.candidates, dedup.Candidate{ID: item.GUID, Title: item.Title})

		time.Sleep(s.sendDelay)
	}
}

// markSeen records an item. Only delivered items keep their title, so
// rejected items never count as duplicates of later ones.
func (s *Scheduler) markSeen(ctx context.Context, userID int64, guid, title string) {
	if err := s.store.MarkSeen(ctx, userID, guid, title); err != nil {
		s.log.Error("mark seen", "user_id", userID, "guid", guid, "error", err)
	}
}

func feedName(feed model.Feed, res model.FeedValidationResult) string {
	switch {
	case res.Title != "":
		return res.Title
	case feed.Name != "":
		return feed.Name
	}
	return feed.URL
}
