package filter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"newscurator/internal/cache"
	"newscurator/internal/model"
)

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(c cache.Cache) *Engine {
	e := NewEngine(c, 4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return testNow }
	return e
}

func daysAgo(d int) int64 {
	return hoursAgo(d * 24)
}

func hoursAgo(h int) int64 {
	return testNow.Add(-time.Duration(h) * time.Hour).Unix()
}

var sailing = model.FilterSet{
	PositiveKeywords: []string{"sailing", "yacht"},
	NegativeKeywords: []string{"-powerboat"},
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		article model.Article
		fs      model.FilterSet
		want    model.FilterResult
	}{
		{
			name:    "negative keyword rejects despite positive match",
			article: model.Article{Title: "Sailing club announces new powerboat ban"},
			fs:      sailing,
			want: model.FilterResult{
				Passed:           false,
				Score:            40,
				MatchedKeywords:  []string{"sailing"},
				RejectionReasons: []string{"negative keyword matched: powerboat"},
			},
		},
		{
			name:    "single positive match without timestamp",
			article: model.Article{Title: "Local sailing club wins regatta"},
			fs:      sailing,
			want:    model.FilterResult{Passed: true, Score: 60, MatchedKeywords: []string{"sailing"}},
		},
		{
			name:    "no positive match",
			article: model.Article{Title: "Football results", Description: "Weekend round-up"},
			fs:      sailing,
			want: model.FilterResult{
				Passed:           false,
				Score:            50,
				RejectionReasons: []string{reasonNoPositive},
			},
		},
		{
			name:    "empty positives skip the gate",
			article: model.Article{Title: "Anything at all"},
			fs:      model.FilterSet{NegativeKeywords: []string{"casino"}},
			want:    model.FilterResult{Passed: true, Score: 50},
		},
		{
			name: "matches across description category and author",
			article: model.Article{
				Title:       "Weekend round-up",
				Description: "A YACHT delivery",
				Category:    "Sailing",
				Author:      "Dinghy Correspondent",
			},
			fs:   model.FilterSet{PositiveKeywords: []string{"sailing", "yacht", "dinghy", "regatta"}},
			want: model.FilterResult{Passed: true, Score: 80, MatchedKeywords: []string{"sailing", "yacht", "dinghy"}},
		},
		{
			name:    "positive bonus capped at 30",
			article: model.Article{Title: "a b c d e"},
			fs:      model.FilterSet{PositiveKeywords: []string{"a", "b", "c", "d", "e"}},
			want:    model.FilterResult{Passed: true, Score: 80, MatchedKeywords: []string{"a", "b", "c", "d", "e"}},
		},
		{
			name:    "negative penalty applied once",
			article: model.Article{Title: "casino betting odds"},
			fs:      model.FilterSet{NegativeKeywords: []string{"casino", "betting", "odds"}},
			want: model.FilterResult{
				Passed:           false,
				Score:            30,
				RejectionReasons: []string{"negative keyword matched: casino"},
			},
		},
		{
			name:    "keywords are normalized and deduplicated",
			article: model.Article{Title: "Yacht racing"},
			fs:      model.FilterSet{PositiveKeywords: []string{" Yacht ", "yacht", ""}},
			want:    model.FilterResult{Passed: true, Score: 60, MatchedKeywords: []string{"yacht"}},
		},
		{
			name:    "exactly at the age limit passes",
			article: model.Article{Title: "Sailing news", PublishedAt: daysAgo(7)},
			fs:      model.FilterSet{PositiveKeywords: []string{"sailing"}, ContentAgeLimitDays: 7},
			want:    model.FilterResult{Passed: true, Score: 60, MatchedKeywords: []string{"sailing"}},
		},
		{
			name:    "partial day past the age limit still passes",
			article: model.Article{Title: "Sailing news", PublishedAt: hoursAgo(7*24 + 23)},
			fs:      model.FilterSet{PositiveKeywords: []string{"sailing"}, ContentAgeLimitDays: 7},
			want:    model.FilterResult{Passed: true, Score: 60, MatchedKeywords: []string{"sailing"}},
		},
		{
			name:    "eighth started day fails a seven day limit",
			article: model.Article{Title: "Sailing news", PublishedAt: hoursAgo(8*24 + 1)},
			fs:      model.FilterSet{PositiveKeywords: []string{"sailing"}, ContentAgeLimitDays: 7},
			want: model.FilterResult{
				Passed:           false,
				Score:            60,
				MatchedKeywords:  []string{"sailing"},
				RejectionReasons: []string{"content too old: 8 days (limit 7)"},
			},
		},
		{
			name:    "one day over the age limit fails",
			article: model.Article{Title: "Sailing news", PublishedAt: daysAgo(8)},
			fs:      model.FilterSet{PositiveKeywords: []string{"sailing"}, ContentAgeLimitDays: 7},
			want: model.FilterResult{
				Passed:           false,
				Score:            60,
				MatchedKeywords:  []string{"sailing"},
				RejectionReasons: []string{"content too old: 8 days (limit 7)"},
			},
		},
		{
			name:    "age limit of zero disables the gate",
			article: model.Article{Title: "Old news", PublishedAt: daysAgo(400)},
			fs:      model.FilterSet{},
			want:    model.FilterResult{Passed: true, Score: 50},
		},
		{
			name:    "region mismatch is advisory",
			article: model.Article{Title: "Sailing news", SourceURL: "https://edition.cnn.com/sport/sailing"},
			fs:      model.FilterSet{PositiveKeywords: []string{"sailing"}, PriorityRegions: []string{"UK"}},
			want: model.FilterResult{
				Passed:           true,
				Score:            60,
				MatchedKeywords:  []string{"sailing"},
				RejectionReasons: []string{"region USA not in priority regions UK"},
			},
		},
		{
			name:    "matching region adds nothing",
			article: model.Article{Title: "Sailing news", SourceURL: "https://www.bbc.co.uk/sport/sailing"},
			fs:      model.FilterSet{PositiveKeywords: []string{"sailing"}, PriorityRegions: []string{"uk"}},
			want:    model.FilterResult{Passed: true, Score: 60, MatchedKeywords: []string{"sailing"}},
		},
		{
			name:    "unknown domain has no region",
			article: model.Article{Title: "Sailing news", SourceURL: "https://blog.example.com/post"},
			fs:      model.FilterSet{PositiveKeywords: []string{"sailing"}, PriorityRegions: []string{"UK"}},
			want:    model.FilterResult{Passed: true, Score: 60, MatchedKeywords: []string{"sailing"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(nil)
			got := e.Evaluate(context.Background(), tt.article, tt.fs)
			tt.want.EvaluatedAt = testNow
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluateNegativeAlwaysRejects(t *testing.T) {
	fs := model.FilterSet{
		PositiveKeywords: []string{"golf"},
		NegativeKeywords: []string{"Crazy Golf"},
	}
	articles := []model.Article{
		{Title: "CRAZY GOLF course opens"},
		{Title: "Golf", Description: "a new crazy golf venue"},
		{Title: "Golf open", Description: "crazy golf"},
	}
	e := newTestEngine(nil)
	for _, a := range articles {
		if got := e.Evaluate(context.Background(), a, fs); got.Passed {
			t.Errorf("Evaluate(%q) passed, want rejected", a.Title)
		}
	}
}

func TestEvaluateUsesCache(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	e := newTestEngine(mem)

	article := model.Article{Title: "Local sailing club wins regatta"}
	first := e.Evaluate(ctx, article, sailing)

	e.now = func() time.Time { return testNow.Add(time.Minute) }
	second := e.Evaluate(ctx, article, sailing)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached result mismatch (-want +got):\n%s", diff)
	}

	other := e.Evaluate(ctx, model.Article{Title: "Another sailing story"}, sailing)
	if !other.EvaluatedAt.Equal(testNow.Add(time.Minute)) {
		t.Errorf("different article served from cache: evaluated at %v", other.EvaluatedAt)
	}
	if diff := cmp.Diff(2, mem.Len()); diff != "" {
		t.Errorf("cache entries mismatch (-want +got):\n%s", diff)
	}
}

type failingCache struct{ cache.Cache }

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}

func TestEvaluateIgnoresCacheErrors(t *testing.T) {
	e := newTestEngine(failingCache{})
	got := e.Evaluate(context.Background(), model.Article{Title: "Local sailing club wins regatta"}, sailing)
	if !got.Passed || got.Score != 60 || got.Diagnostic != nil {
		t.Errorf("unexpected result with failing cache: %+v", got)
	}
}

func TestEvaluateFailsOpen(t *testing.T) {
	e := newTestEngine(nil)
	e.now = func() time.Time { panic("clock exploded") }

	got := e.Evaluate(context.Background(), model.Article{Title: "Football results"}, sailing)
	if !got.Passed {
		t.Fatal("faulty evaluation must pass")
	}
	if got.Diagnostic == nil {
		t.Fatal("expected a diagnostic on a failed-open result")
	}
	if diff := cmp.Diff("panic: clock exploded", got.Diagnostic.Message); diff != "" {
		t.Errorf("diagnostic mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateBatch(t *testing.T) {
	e := newTestEngine(nil)
	articles := []model.Article{
		{Title: "Local sailing club wins regatta"},
		{Title: "Sailing club announces new powerboat ban"},
		{Title: "Football results"},
	}

	got, err := e.EvaluateBatch(context.Background(), articles, sailing)
	if err != nil {
		t.Fatalf("EvaluateBatch() error: %v", err)
	}
	var passed []bool
	for _, r := range got {
		passed = append(passed, r.Passed)
	}
	if diff := cmp.Diff([]bool{true, false, false}, passed); diff != "" {
		t.Errorf("passed mismatch (-want +got):\n%s", diff)
	}

	empty, err := e.EvaluateBatch(context.Background(), nil, sailing)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty batch: got %v, %v", empty, err)
	}
}

func TestEvaluateBatchCancelled(t *testing.T) {
	e := newTestEngine(nil)
	var calls atomic.Int32
	e.now = func() time.Time {
		calls.Add(1)
		return testNow
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	articles := make([]model.Article, 50)
	got, err := e.EvaluateBatch(ctx, articles, sailing)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if diff := cmp.Diff(len(articles), len(got)); diff != "" {
		t.Errorf("results length mismatch (-want +got):\n%s", diff)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("evaluated %d articles after cancellation", n)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		matches  int
		negative bool
		want     int
	}{
		{0, false, 50},
		{1, false, 60},
		{3, false, 80},
		{10, false, 80},
		{0, true, 30},
		{10, true, 60},
	}
	for _, tt := range tests {
		if got := score(tt.matches, tt.negative); got != tt.want {
			t.Errorf("score(%d, %v) = %d, want %d", tt.matches, tt.negative, got, tt.want)
		}
	}
}
