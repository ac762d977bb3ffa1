package fetcher

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"

	"newscurator/internal/cache"
	"newscurator/internal/model"
)

const (
	validationTTL = 6 * time.Hour

	atomNamespace = "http://www.w3.org/2005/Atom"

	qualityBase         = 50
	qualityPerItem      = 2
	maxItemBonus        = 20
	descriptionBonus    = 10
	qualityPerRelevance = 5
	maxQuality          = 100
	maxScannedXMLTokens = 20000
)

// Options describe the context a feed candidate is validated in.
type Options struct {
	// Category, Keywords and Relevance scope the cached result.
	Category string
	Keywords []string
	// Relevance is a caller-supplied match strength. When zero it is the
	// number of Keywords found in the feed title and description.
	Relevance int
}

// Validator checks feed candidates and scores their quality.
type Validator struct {
	fetcher *Fetcher
	cache   cache.Cache
	log     *slog.Logger
}

// NewValidator creates a Validator. A nil cache disables result caching.
func NewValidator(f *Fetcher, c cache.Cache, logger *slog.Logger) *Validator {
	return &Validator{fetcher: f, cache: c, log: logger}
}

// Validate fetches rawURL and reports whether it is a usable RSS or Atom feed.
// Failures never return an error: the result has Valid unset, Error naming
// the failed step and Err holding the classified cause.
func (v *Validator) Validate(ctx context.Context, rawURL string, opts Options) model.FeedValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if err := checkURL(rawURL); err != nil {
		return failed(rawURL, err)
	}

	key, err := cache.Hash(rawURL, strings.ToLower(opts.Category), normalizeKeywords(opts.Keywords), opts.Relevance)
	if err != nil {
		return failed(rawURL, err)
	}
	key = cache.PrefixFeedValidation + key

	if v.cache != nil {
		var cached model.FeedValidationResult
		found, err := cache.GetJSON(ctx, v.cache, key, &cached)
		if err != nil {
			v.log.Warn("read cached feed validation", "feed_url", rawURL, "error", err)
		} else if found {
			return cached
		}
	}

	body, err := v.fetcher.download(ctx, rawURL)
	if err != nil {
		return failed(rawURL, err)
	}

	res := v.inspect(rawURL, body, opts)
	if res.Valid && v.cache != nil {
		if err := cache.SetJSON(ctx, v.cache, key, res, validationTTL); err != nil {
			v.log.Warn("cache feed validation", "feed_url", rawURL, "error", err)
		}
	}
	v.log.Debug("feed validated", "feed_url", rawURL, "valid", res.Valid, "error", res.Error)
	return res
}

func (v *Validator) inspect(rawURL string, body []byte, opts Options) model.FeedValidationResult {
	feedType, err := detectFeedType(body)
	if err != nil {
		return failed(rawURL, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return failed(rawURL, fmt.Errorf("feed extraction failed: %w", err))
	}

	res := model.FeedValidationResult{
		URL:         rawURL,
		Valid:       true,
		FeedType:    feedType,
		Title:       strings.TrimSpace(feed.Title),
		Description: v.fetcher.plainText(feed.Description),
		Link:        feed.Link,
		ItemCount:   len(feed.Items),
	}

	relevance := opts.Relevance
	if relevance == 0 {
		relevance = keywordRelevance(res.Title+" "+res.Description, opts.Keywords)
	}
	q := quality(res.ItemCount, res.Description != "", relevance)
	res.QualityScore = &q
	return res
}

func failed(rawURL string, err error) model.FeedValidationResult {
	return model.FeedValidationResult{URL: rawURL, Error: err.Error(), Err: err}
}

func checkURL(raw string) error {
	if raw == "" {
		return model.NewValidationError("url", "invalid URL: empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return model.NewValidationError("url", "invalid URL: "+err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return model.NewValidationError("url", fmt.Sprintf("invalid URL: unsupported scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return model.NewValidationError("url", "invalid URL: missing host")
	}
	return nil
}

// detectFeedType runs a permissive XML pass over body. channel or item
// elements mean RSS; entry elements or the Atom namespace mean Atom.
func detectFeedType(body []byte) (model.FeedType, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	var root string
	var rss, atom bool
	for i := 0; i < maxScannedXMLTokens; i++ {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if root == "" {
				return "", fmt.Errorf("XML parsing failed: %w", err)
			}
			break
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		name := strings.ToLower(el.Name.Local)
		if root == "" {
			root = name
			if name == "html" {
				return "", errors.New("XML parsing failed: document is HTML, not a feed")
			}
		}
		switch {
		case name == "rss" || name == "rdf" || name == "channel" || name == "item":
			rss = true
		case name == "entry" || el.Name.Space == atomNamespace:
			atom = true
		}
		if rss || atom {
			break
		}
	}

	switch {
	case root == "":
		return "", errors.New("XML parsing failed: no root element")
	case rss:
		return model.FeedTypeRSS, nil
	case atom:
		return model.FeedTypeAtom, nil
	}
	return "", fmt.Errorf("unrecognized feed format: root element <%s> has no channel, item or entry elements", root)
}

func quality(items int, hasDescription bool, relevance int) int {
	q := qualityBase + min(items*qualityPerItem, maxItemBonus)
	if hasDescription {
		q += descriptionBonus
	}
	q += max(relevance, 0) * qualityPerRelevance
	return min(q, maxQuality)
}

func keywordRelevance(text string, keywords []string) int {
	text = strings.ToLower(text)
	n := 0
	for _, k := range normalizeKeywords(keywords) {
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
