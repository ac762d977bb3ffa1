package bot

import (
	"fmt"
	"strings"

	"newscurator/internal/catalog"
	"newscurator/internal/fetcher"
	"newscurator/internal/model"
)

const (
	statusEnabled  = "enabled"
	statusDisabled = "disabled"
	none           = "none"
)

var categoryLabels = map[model.Category]string{
	model.CategoryMainNews:    "Main News",
	model.CategoryBusiness:    "Business",
	model.CategoryTechnology:  "Technology",
	model.CategoryLifestyle:   "Lifestyle",
	model.CategoryIndustries:  "Industries",
	model.CategorySpecialized: "Specialized",
	model.CategoryRegional:    "Regional",
	model.CategoryCustom:      "Custom",
}

func categoryLabel(c model.Category) string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// FormatNotification formats a feed item as a Telegram notification message.
func FormatNotification(feedName string, item fetcher.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", feedName)
	b.WriteString(item.Title)
	if item.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(item.Description)
	}
	if item.Link != "" {
		b.WriteString("\n\n")
		b.WriteString(item.Link)
	}
	return b.String()
}

// FormatBundleList formats catalog groups for display. Hidden bundles are
// left out.
func FormatBundleList(groups []catalog.CategoryGroup) string {
	var b strings.Builder
	for _, g := range groups {
		var lines []string
		for _, bundle := range g.Bundles {
			if bundle.Visibility == model.VisibilityHidden {
				continue
			}
			line := fmt.Sprintf("  %s  %s", bundle.Slug, bundle.Name)
			if bundle.IsDefault {
				line += " (default)"
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s:\n%s\n", categoryLabel(g.Category), strings.Join(lines, "\n"))
	}
	if b.Len() == 0 {
		return "No bundles available."
	}
	b.WriteString("\nUse /bundle <slug> for details or /apply <slug> to use one.")
	return b.String()
}

// FormatBundleInfo formats detailed information about a single bundle.
func FormatBundleInfo(bundle model.Bundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", bundle.Name, bundle.Slug)
	if bundle.Description != "" {
		fmt.Fprintf(&b, "%s\n", bundle.Description)
	}
	fmt.Fprintf(&b, "\nCategory: %s\n", categoryLabel(bundle.Category))
	fmt.Fprintf(&b, "Include: %s\n", keywordList(bundle.PositiveKeywords))
	fmt.Fprintf(&b, "Exclude: %s\n", keywordList(bundle.NegativeKeywords))
	fmt.Fprintf(&b, "Regions: %s\n", keywordList(bundle.PriorityRegions))
	if bundle.ContentAgeLimitDays > 0 {
		fmt.Fprintf(&b, "Max age: %d days\n", bundle.ContentAgeLimitDays)
	}
	fmt.Fprintf(&b, "Feeds: %d\n", len(bundle.EnabledFeedURLs))
	fmt.Fprintf(&b, "Used %d times", bundle.UsageCount)
	return b.String()
}

// FormatApplyResult formats the outcome of applying a bundle.
func FormatApplyResult(res catalog.ApplyResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bundle \"%s\" applied.\n", res.Bundle.Name)
	fmt.Fprintf(&b, "Feeds enabled: %d, disabled: %d", len(res.EnabledFeeds), len(res.DisabledFeeds))
	if res.FeedSyncErr != nil {
		b.WriteString("\nYour filters are saved, but updating your feeds failed. They will be synced the next time you apply a bundle.")
	}
	return b.String()
}

// FormatFilterSet formats a user's active filters. sel is nil for users
// still on the default bundle.
func FormatFilterSet(sel *model.UserFilterSelection, fs model.FilterSet) string {
	var b strings.Builder
	switch {
	case sel == nil:
		b.WriteString("Active filters (default bundle):\n")
	case sel.BundleSlug == "":
		b.WriteString("Active filters (custom):\n")
	default:
		fmt.Fprintf(&b, "Active filters (bundle %s):\n", sel.BundleSlug)
	}
	fmt.Fprintf(&b, "Include: %s\n", keywordList(fs.PositiveKeywords))
	fmt.Fprintf(&b, "Exclude: %s\n", keywordList(fs.NegativeKeywords))
	fmt.Fprintf(&b, "Regions: %s\n", keywordList(fs.PriorityRegions))
	if fs.ContentAgeLimitDays > 0 {
		fmt.Fprintf(&b, "Max age: %d days\n", fs.ContentAgeLimitDays)
	}
	if sel != nil {
		dedup := "on"
		if !sel.Advanced.DuplicateDetection {
			dedup = "off"
		}
		fmt.Fprintf(&b, "Duplicate detection: %s\n", dedup)
		if sel.Advanced.QualityThreshold > 0 {
			fmt.Fprintf(&b, "Minimum feed quality: %d\n", sel.Advanced.QualityThreshold)
		}
		if sel.PresetName != "" {
			fmt.Fprintf(&b, "Preset: %s\n", sel.PresetName)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatFeedList formats a user's feeds for display.
func FormatFeedList(feeds []model.Feed) string {
	if len(feeds) == 0 {
		return "You have no feeds yet. Use /apply <slug> to pick a bundle."
	}
	var b strings.Builder
	b.WriteString("Your feeds:\n")
	for _, f := range feeds {
		status := statusEnabled
		if !f.Enabled {
			status = statusDisabled
		}
		name := f.Name
		if name == "" {
			name = f.URL
		}
		fmt.Fprintf(&b, "\n#%d %s [%s]\n", f.ID, name, status)
		if name != f.URL {
			fmt.Fprintf(&b, "   %s\n", f.URL)
		}
		if f.LastCheckAt != nil {
			fmt.Fprintf(&b, "   quality %d, checked %s\n", f.QualityScore, f.LastCheckAt.Format("2006-01-02 15:04 UTC"))
		} else {
			b.WriteString("   not checked yet\n")
		}
	}
	return b.String()
}

// FormatValidation formats a feed validation result.
func FormatValidation(res model.FeedValidationResult) string {
	if !res.Valid {
		return fmt.Sprintf("%s is not a usable feed: %s", res.URL, res.Error)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Valid %s feed: %s\n", strings.ToUpper(string(res.FeedType)), res.Title)
	if res.Description != "" {
		fmt.Fprintf(&b, "%s\n", res.Description)
	}
	fmt.Fprintf(&b, "Items: %d\n", res.ItemCount)
	if res.QualityScore != nil {
		fmt.Fprintf(&b, "Quality: %d/100", *res.QualityScore)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatPresetList formats the saved presets of a user.
func FormatPresetList(presets []model.Preset) string {
	if len(presets) == 0 {
		return "No presets saved. Use /preset save <name> to save your current filters."
	}
	var b strings.Builder
	b.WriteString("Your presets:\n")
	for _, p := range presets {
		bundle := p.BundleSlug
		if bundle == "" {
			bundle = "custom"
		}
		fmt.Fprintf(&b, "\n%s (%s)", p.Name, bundle)
	}
	return b.String()
}

// FormatCheckReport formats the outcome of an on-demand check.
func FormatCheckReport(r model.CheckReport) string {
	if r.Feeds == 0 {
		return "You have no enabled feeds. Use /apply <slug> to pick a bundle."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Checked %d feed(s): %d new item(s), %d delivered, %d filtered out, %d duplicate(s).",
		r.Feeds, r.Fetched, r.Admitted, r.Rejected, r.Duplicates)
	if r.Invalid > 0 {
		fmt.Fprintf(&b, "\n%d feed(s) failed validation.", r.Invalid)
	}
	if r.LowQuality > 0 {
		fmt.Fprintf(&b, "\n%d feed(s) skipped below your quality threshold.", r.LowQuality)
	}
	return b.String()
}

func keywordList(words []string) string {
	if len(words) == 0 {
		return none
	}
	return strings.Join(words, ", ")
}
