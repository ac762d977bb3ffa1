// Package filter implements the article evaluation engine.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"newscurator/internal/cache"
	"newscurator/internal/model"
)

const (
	resultTTL = 30 * time.Minute

	baseScore        = 50
	positivePoints   = 10
	maxPositiveBonus = 30
	negativePenalty  = 20

	reasonNoPositive = "no positive keywords matched"
)

// Engine evaluates articles against filter sets.
// It holds no mutable state besides the cache and is safe for concurrent use.
type Engine struct {
	cache   cache.Cache
	workers int
	log     *slog.Logger
	now     func() time.Time
}

// NewEngine creates an Engine. A nil cache disables result caching.
// workers bounds the fan-out of EvaluateBatch.
func NewEngine(c cache.Cache, workers int, logger *slog.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		cache:   c,
		workers: workers,
		log:     logger,
		now:     time.Now,
	}
}

// Evaluate decides whether a passes fs and scores it.
//
// Evaluate never fails. Any internal fault yields a result with Passed set
// and a Diagnostic describing the fault, so a broken filter admits content
// rather than silently dropping it.
func (e *Engine) Evaluate(ctx context.Context, a model.Article, fs model.FilterSet) (res model.FilterResult) {
	defer func() {
		if r := recover(); r != nil {
			res = e.failOpen(a, fmt.Errorf("panic: %v", r))
		}
	}()

	key, err := cache.Hash(a, fs)
	if err != nil {
		return e.failOpen(a, err)
	}
	key = cache.PrefixArticleFilter + key

	if e.cache != nil {
		var cached model.FilterResult
		found, err := cache.GetJSON(ctx, e.cache, key, &cached)
		if err != nil {
			e.log.Warn("read cached filter result", "error", err)
		} else if found {
			return cached
		}
	}

	res = e.evaluate(a, fs)

	if e.cache != nil {
		if err := cache.SetJSON(ctx, e.cache, key, res, resultTTL); err != nil {
			e.log.Warn("cache filter result", "error", err)
		}
	}
	return res
}

// EvaluateBatch evaluates articles concurrently. Results are index-aligned
// with articles. When ctx is cancelled the remaining articles are skipped,
// their results are left zero and ctx.Err() is returned.
func (e *Engine) EvaluateBatch(ctx context.Context, articles []model.Article, fs model.FilterSet) ([]model.FilterResult, error) {
	results := make([]model.FilterResult, len(articles))
	if len(articles) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(len(articles), e.workers))
	for i, a := range articles {
		if gctx.Err() != nil {
			break
		}
		i, a := i, a
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.Evaluate(gctx, a, fs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func (e *Engine) evaluate(a model.Article, fs model.FilterSet) model.FilterResult {
	res := model.FilterResult{Passed: true, EvaluatedAt: e.now()}
	text := strings.ToLower(strings.Join([]string{a.Title, a.Description, a.Category, a.Author}, " "))

	positives := normalize(fs.PositiveKeywords)
	for _, k := range positives {
		if strings.Contains(text, k) {
			res.MatchedKeywords = append(res.MatchedKeywords, k)
		}
	}
	if len(positives) > 0 && len(res.MatchedKeywords) == 0 {
		res.Passed = false
		res.RejectionReasons = append(res.RejectionReasons, reasonNoPositive)
	}

	negativeHit := false
	for _, k := range normalize(fs.NegativeKeywords) {
		if strings.Contains(text, k) {
			negativeHit = true
			res.Passed = false
			res.RejectionReasons = append(res.RejectionReasons, "negative keyword matched: "+k)
			break
		}
	}

	if fs.ContentAgeLimitDays > 0 && a.PublishedAt > 0 {
		// Age counts whole elapsed days: 7 days 23 hours is 7 days.
		age := int(res.EvaluatedAt.Sub(time.Unix(a.PublishedAt, 0)).Hours() / 24)
		if age > fs.ContentAgeLimitDays {
			res.Passed = false
			res.RejectionReasons = append(res.RejectionReasons,
				fmt.Sprintf("content too old: %d days (limit %d)", age, fs.ContentAgeLimitDays))
		}
	}

	// Region is advisory: a mismatch is reported but never rejects.
	if len(fs.PriorityRegions) > 0 {
		if region := DetectRegion(a.SourceURL); region != "" && !containsFold(fs.PriorityRegions, region) {
			res.RejectionReasons = append(res.RejectionReasons,
				fmt.Sprintf("region %s not in priority regions %s", region, strings.Join(fs.PriorityRegions, ", ")))
		}
	}

	res.Score = score(len(res.MatchedKeywords), negativeHit)
	return res
}

func (e *Engine) failOpen(a model.Article, err error) model.FilterResult {
	e.log.Error("article evaluation failed open", "title", a.Title, "source_url", a.SourceURL, "error", err)
	return model.FilterResult{
		Passed:      true,
		EvaluatedAt: time.Now(),
		Diagnostic:  &model.Diagnostic{Message: err.Error()},
	}
}

func score(positiveMatches int, negativeHit bool) int {
	s := baseScore + min(positiveMatches*positivePoints, maxPositiveBonus)
	if negativeHit {
		s -= negativePenalty
	}
	return max(0, min(100, s))
}

// normalize lowercases and trims phrases, strips the optional leading "-"
// and drops empty and repeated phrases.
func normalize(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	seen := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(strings.ToLower(p)), "-"))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
