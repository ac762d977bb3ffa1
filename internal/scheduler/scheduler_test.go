package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"newscurator/internal/cache"
	"newscurator/internal/catalog"
	"newscurator/internal/fetcher"
	"newscurator/internal/filter"
	"newscurator/internal/model"
	"newscurator/internal/storage"
)

const (
	testUser = int64(100)
	feedURL  = "https://www.ybw.com/feed"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (m *mockSender) SendMessage(chatID int64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

type mockHTTP struct {
	mu    sync.Mutex
	body  string
	calls int
}

func (m *mockHTTP) Do(_ *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/rss.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

type testEnv struct {
	sched   *Scheduler
	sender  *mockSender
	store   *storage.SQLite
	catalog *catalog.Catalog
}

func newTestEnv(t *testing.T, body string) *testEnv {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := cache.NewMemory()
	cat := catalog.New(store, store, mem, nil, log)
	f := fetcher.New(&mockHTTP{body: body}, "test-agent", 5*time.Second)
	sender := &mockSender{}

	sched := New(Deps{
		Store:     store,
		Filters:   cat,
		Fetcher:   f,
		Validator: fetcher.NewValidator(f, mem, log),
		Engine:    filter.NewEngine(mem, 4, log),
		Sender:    sender,
		Logger:    log,
	}, time.Minute)
	sched.sendDelay = 0
	sched.now = func() time.Time { return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC) }

	return &testEnv{sched: sched, sender: sender, store: store, catalog: cat}
}

// applySailing creates a sailing bundle carrying the fixture feed and
// applies it for testUser.
func (e *testEnv) applySailing(t *testing.T, adv *model.AdvancedSettings) {
	t.Helper()
	ctx := context.Background()
	b := model.Bundle{
		Slug:             "sailing",
		Name:             "Sailing",
		Category:         model.CategorySpecialized,
		Visibility:       model.VisibilityVisible,
		PositiveKeywords: []string{"sailing", "yacht"},
		NegativeKeywords: []string{"powerboat"},
		IsActive:         true,
		EnabledFeedURLs:  []string{feedURL},
	}
	if err := e.store.CreateBundle(ctx, &b); err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	if _, err := e.catalog.Apply(ctx, testUser, "sailing", catalog.Overrides{Advanced: adv}); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestCheckUserDeliversMatchingItems(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadFixture(t))
	env.applySailing(t, nil)

	report, err := env.sched.CheckUser(ctx, testUser)
	if err != nil {
		t.Fatalf("check user: %v", err)
	}

	want := model.CheckReport{Feeds: 1, Fetched: 5, Admitted: 2, Rejected: 3}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	msgs := env.sender.getMessages()
	wantMsgs := []sentMessage{
		{ChatID: testUser, Text: "[Sailing News Weekly]\n\nLocal sailing club wins regatta\n\nThe club took first place in the annual regatta.\n\nhttps://www.ybw.com/news/local-sailing-club-wins-regatta"},
		{ChatID: testUser, Text: "[Sailing News Weekly]\n\nYacht of the year shortlist revealed\n\nSix yachts make the final cut.\n\nhttps://www.ybw.com/news/yacht-of-the-year"},
	}
	if diff := cmp.Diff(wantMsgs, msgs); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckUserUpdatesFeedCheck(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadFixture(t))
	env.applySailing(t, nil)

	if _, err := env.sched.CheckUser(ctx, testUser); err != nil {
		t.Fatalf("check user: %v", err)
	}

	feeds, err := env.store.ListFeeds(ctx, model.FeedFilter{UserID: testUser})
	if err != nil {
		t.Fatalf("list feeds: %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("expected 1 feed, got %d", len(feeds))
	}
	got := feeds[0]
	if diff := cmp.Diff("Sailing News Weekly", got.Name); diff != "" {
		t.Errorf("name mismatch (-want +got):\n%s", diff)
	}
	// 5 items, a description and two keywords in the channel text.
	if diff := cmp.Diff(80, got.QualityScore); diff != "" {
		t.Errorf("quality mismatch (-want +got):\n%s", diff)
	}
	if got.LastCheckAt == nil {
		t.Fatal("expected LastCheckAt to be set")
	}
	if want := env.sched.now(); !got.LastCheckAt.Equal(want) {
		t.Errorf("LastCheckAt = %v, want %v", got.LastCheckAt, want)
	}
}

func TestCheckUserSkipsSeenItems(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadFixture(t))
	env.applySailing(t, nil)

	if _, err := env.sched.CheckUser(ctx, testUser); err != nil {
		t.Fatalf("first check: %v", err)
	}
	report, err := env.sched.CheckUser(ctx, testUser)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}

	if diff := cmp.Diff(model.CheckReport{Feeds: 1}, report); diff != "" {
		t.Errorf("second pass report mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, len(env.sender.getMessages())); diff != "" {
		t.Errorf("message count mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckUserDropsDuplicates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadFixture(t))
	env.applySailing(t, nil)

	if err := env.store.MarkSeen(ctx, testUser, "other-feed-1", "Local sailing club wins the regatta"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	report, err := env.sched.CheckUser(ctx, testUser)
	if err != nil {
		t.Fatalf("check user: %v", err)
	}
	want := model.CheckReport{Feeds: 1, Fetched: 5, Admitted: 1, Rejected: 3, Duplicates: 1}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckUserDuplicateWindowIgnoresRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadFixture(t))
	env.applySailing(t, nil)

	if err := env.store.MarkSeen(ctx, testUser, "other-feed-1", "Local sailing club wins the regatta"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	for i := 0; i < recentTitles+50; i++ {
		if err := env.store.MarkSeen(ctx, testUser, fmt.Sprintf("rejected-%d", i), ""); err != nil {
			t.Fatalf("mark seen: %v", err)
		}
	}

	report, err := env.sched.CheckUser(ctx, testUser)
	if err != nil {
		t.Fatalf("check user: %v", err)
	}
	want := model.CheckReport{Feeds: 1, Fetched: 5, Admitted: 1, Rejected: 3, Duplicates: 1}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckUserDuplicateDetectionOff(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadFixture(t))
	env.applySailing(t, &model.AdvancedSettings{DuplicateDetection: false})

	if err := env.store.MarkSeen(ctx, testUser, "other-feed-1", "Local sailing club wins the regatta"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	report, err := env.sched.CheckUser(ctx, testUser)
	if err != nil {
		t.Fatalf("check user: %v", err)
	}
	if diff := cmp.Diff(2, report.Admitted); diff != "" {
		t.Errorf("admitted mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckUserQualityThreshold(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadFixture(t))
	env.applySailing(t, &model.AdvancedSettings{QualityThreshold: 90, DuplicateDetection: true})

	report, err := env.sched.CheckUser(ctx, testUser)
	if err != nil {
		t.Fatalf("check user: %v", err)
	}
	if diff := cmp.Diff(model.CheckReport{Feeds: 1, LowQuality: 1}, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, len(env.sender.getMessages())); diff != "" {
		t.Errorf("expected no messages (-want +got):\n%s", diff)
	}
}

func TestCheckUserInvalidFeed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "<html><body>Not a feed</body></html>")
	env.applySailing(t, nil)

	report, err := env.sched.CheckUser(ctx, testUser)
	if err != nil {
		t.Fatalf("check user: %v", err)
	}
	if diff := cmp.Diff(model.CheckReport{Feeds: 1, Invalid: 1}, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	// The check is recorded even when the feed fails validation.
	feeds, err := env.store.ListFeeds(ctx, model.FeedFilter{UserID: testUser})
	if err != nil {
		t.Fatalf("list feeds: %v", err)
	}
	if feeds[0].LastCheckAt == nil {
		t.Error("expected LastCheckAt to be set after a failed validation")
	}
	if diff := cmp.Diff(0, feeds[0].QualityScore); diff != "" {
		t.Errorf("quality mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckUserWithoutSelection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadFixture(t))
	if err := env.store.EnableFeeds(ctx, testUser, []string{feedURL}); err != nil {
		t.Fatalf("enable feeds: %v", err)
	}

	// No selection and no default bundle: the empty filter set admits everything.
	report, err := env.sched.CheckUser(ctx, testUser)
	if err != nil {
		t.Fatalf("check user: %v", err)
	}
	if diff := cmp.Diff(5, report.Admitted); diff != "" {
		t.Errorf("admitted mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckAllVisitsFeedUsers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadFixture(t))
	env.applySailing(t, nil)
	if err := env.store.EnableFeeds(ctx, 200, []string{feedURL}); err != nil {
		t.Fatalf("enable feeds: %v", err)
	}

	env.sched.checkAll(ctx)

	perUser := map[int64]int{}
	for _, m := range env.sender.getMessages() {
		perUser[m.ChatID]++
	}
	if diff := cmp.Diff(map[int64]int{testUser: 2, 200: 5}, perUser); diff != "" {
		t.Errorf("messages per user mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckAllCancelledContext(t *testing.T) {
	env := newTestEnv(t, loadFixture(t))
	env.applySailing(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env.sched.checkAll(ctx)

	if diff := cmp.Diff(0, len(env.sender.getMessages())); diff != "" {
		t.Errorf("expected no messages when context cancelled (-want +got):\n%s", diff)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, "<rss><channel></channel></rss>")
	env.sched.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		env.sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
