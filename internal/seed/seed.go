// Package seed holds the built-in bundle dataset loaded on first bootstrap.
package seed

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"newscurator/internal/model"
)

//go:embed bundles.yaml
var bundlesYAML []byte

type entry struct {
	Slug         string   `yaml:"slug"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Category     string   `yaml:"category"`
	Visibility   string   `yaml:"visibility"`
	SortOrder    int      `yaml:"sort_order"`
	Default      bool     `yaml:"default"`
	Positive     string   `yaml:"positive"`
	Negative     string   `yaml:"negative"`
	Regions      string   `yaml:"regions"`
	AgeLimitDays int      `yaml:"age_limit_days"`
	Feeds        []string `yaml:"feeds"`
}

// Bundles decodes the embedded dataset.
func Bundles() ([]model.Bundle, error) {
	return Parse(bundlesYAML)
}

// Parse decodes a YAML bundle list and checks that slugs are unique,
// enums are known and exactly one bundle is the default.
func Parse(data []byte) ([]model.Bundle, error) {
	var entries []entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode seed bundles: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(entries))
	defaults := 0
	bundles := make([]model.Bundle, 0, len(entries))
	for i, e := range entries {
		b := e.bundle()
		switch {
		case b.Slug == "":
			errs = append(errs, fmt.Errorf("entry %d: empty slug", i))
		case seen[b.Slug]:
			errs = append(errs, fmt.Errorf("entry %d: duplicate slug %q", i, b.Slug))
		}
		if !b.Category.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown category %q", b.Slug, b.Category))
		}
		if !b.Visibility.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown visibility %q", b.Slug, b.Visibility))
		}
		if b.IsDefault {
			defaults++
		}
		seen[b.Slug] = true
		bundles = append(bundles, b)
	}
	if defaults != 1 {
		errs = append(errs, fmt.Errorf("want exactly one default bundle, got %d", defaults))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid seed bundles: %w", err)
	}
	return bundles, nil
}

func (e entry) bundle() model.Bundle {
	regions := model.ParseKeywords(e.Regions)
	for i, r := range regions {
		regions[i] = strings.ToUpper(r)
	}
	return model.Bundle{
		Slug:                e.Slug,
		Name:                e.Name,
		Description:         e.Description,
		Category:            model.Category(e.Category),
		Visibility:          model.Visibility(e.Visibility),
		SortOrder:           e.SortOrder,
		PositiveKeywords:    model.ParseKeywords(e.Positive),
		NegativeKeywords:    model.ParseNegativeKeywords(e.Negative),
		PriorityRegions:     regions,
		ContentAgeLimitDays: e.AgeLimitDays,
		IsDefault:           e.Default,
		IsActive:            true,
		EnabledFeedURLs:     e.Feeds,
	}
}
