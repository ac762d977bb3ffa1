// Package fetcher downloads feeds, validates feed candidates and turns feed
// items into articles for evaluation.
package fetcher

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"newscurator/internal/model"
)

const (
	maxBodySize       = 5 * 1024 * 1024
	maxDescriptionLen = 300
	acceptHeader      = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.1"
)

var errEmptyBody = errors.New("empty response body")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns an HTTP client for feed requests. Timeouts are
// applied per request through the request context.
func NewHTTPClient(insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}
	return &http.Client{Transport: transport}
}

// Item is a feed entry reduced to what curation needs.
type Item struct {
	GUID        string
	Title       string
	Description string
	Link        string
	Author      string
	Category    string
	PublishedAt int64
}

// Article converts the item into an evaluation candidate.
func (it Item) Article() model.Article {
	return model.Article{
		Title:       it.Title,
		Description: it.Description,
		Category:    it.Category,
		Author:      it.Author,
		SourceURL:   it.Link,
		PublishedAt: it.PublishedAt,
	}
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client    HTTPClient
	userAgent string
	timeout   time.Duration
	policy    *bluemonday.Policy
}

// New creates a Fetcher. timeout bounds every request.
func New(client HTTPClient, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
		policy:    bluemonday.StrictPolicy(),
	}
}

// Fetch downloads and parses a feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	body, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// download performs the GET and returns a non-empty body. Network failures,
// timeouts and 5xx/429 statuses wrap model.ErrTransientNetwork.
func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w: %w", model.ErrTransientNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("unexpected HTTP status %d: %w", resp.StatusCode, model.ErrTransientNetwork)
		}
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w: %w", model.ErrTransientNetwork, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, errEmptyBody
	}
	return body, nil
}

// Items converts parsed feed items, stripping markup from descriptions.
func (f *Fetcher) Items(feed *gofeed.Feed) []Item {
	items := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		item := Item{
			GUID:        ItemGUID(it),
			Title:       strings.TrimSpace(it.Title),
			Description: truncate(f.plainText(it.Description), maxDescriptionLen),
			Link:        it.Link,
		}
		if len(it.Authors) > 0 && it.Authors[0] != nil {
			item.Author = it.Authors[0].Name
		}
		if len(it.Categories) > 0 {
			item.Category = strings.Join(it.Categories, ", ")
		}
		switch {
		case it.PublishedParsed != nil:
			item.PublishedAt = it.PublishedParsed.Unix()
		case it.UpdatedParsed != nil:
			item.PublishedAt = it.UpdatedParsed.Unix()
		}
		items = append(items, item)
	}
	return items
}

func (f *Fetcher) plainText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(f.policy.Sanitize(s))), " ")
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
