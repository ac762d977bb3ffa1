package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"newscurator/internal/catalog"
	"newscurator/internal/fetcher"
	"newscurator/internal/model"
)

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	_, selErr := b.store.GetSelection(ctx, chatID)
	if err := b.catalog.Bootstrap(ctx, chatID); err != nil {
		b.log.Error("bootstrap catalog", "user_id", chatID, "error", err)
		b.reply(chatID, describeError(err))
		return
	}

	// New users start on the default bundle with its feeds enabled.
	if errors.Is(selErr, model.ErrNotFound) {
		if err := b.applyDefault(ctx, chatID); err != nil {
			b.log.Error("apply default bundle", "user_id", chatID, "error", err)
		}
	}

	b.reply(chatID, `Welcome to News Curator!

Pick a bundle of curated feeds and filters, and get the matching news here.

Quick start:
1. /bundles to browse the catalog
2. /apply <slug> to use a bundle
3. /filters to see what you are filtering on

Use /help for the full command reference.`)
}

func (b *Bot) applyDefault(ctx context.Context, userID int64) error {
	def, err := b.store.GetDefaultBundle(ctx)
	if err != nil {
		return err
	}
	_, err = b.catalog.Apply(ctx, userID, def.Slug, catalog.Overrides{})
	return err
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Bundles:
/bundles [category] - browse the catalog
/bundle <slug> - bundle details
/apply <slug> - use a bundle
/filters - show your active filters

Custom bundles:
/newbundle <name> | <include> | <exclude> - create a bundle
/editbundle <slug> | <include> | <exclude> - change its keywords
/rmbundle <slug> - delete a custom bundle

Presets:
/preset save <name> - save your current filters
/preset load <name> - switch to a saved preset
/presets - list saved presets

Feeds:
/feeds - show your feeds
/validate <url> - check a feed URL
/check - check your feeds now

Keywords are comma separated, e.g. sailing, yacht | powerboat`)
}

func (b *Bot) handleBundles(ctx context.Context, chatID int64, args string) {
	groups, err := b.catalog.Grouped(ctx, catalog.ListOptions{ActiveOnly: true})
	if err != nil {
		b.log.Error("list bundles", "error", err)
		b.reply(chatID, describeError(err))
		return
	}

	if args != "" {
		cat := model.Category(strings.ToLower(args))
		if !cat.Valid() {
			b.reply(chatID, fmt.Sprintf("Unknown category %q. Categories: %s", args, categoryNames()))
			return
		}
		var filtered []catalog.CategoryGroup
		for _, g := range groups {
			if g.Category == cat {
				filtered = append(filtered, g)
			}
		}
		groups = filtered
	}

	b.reply(chatID, FormatBundleList(groups))
}

func (b *Bot) handleBundle(ctx context.Context, chatID int64, args string) {
	slug, err := ParseSlugArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /bundle <slug>")
		return
	}

	bundle, err := b.catalog.Resolve(ctx, slug)
	if err != nil {
		b.reply(chatID, bundleError(slug, err))
		return
	}

	row := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Apply", cmdApply+":"+bundle.Slug),
	)
	if bundle.IsCustom {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Delete", cbRmBundleConfirm+":"+bundle.Slug))
	}
	b.replyWithKeyboard(chatID, FormatBundleInfo(bundle), tgbotapi.NewInlineKeyboardMarkup(row))
}

func (b *Bot) handleApply(ctx context.Context, chatID int64, args string) {
	slug, err := ParseSlugArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /apply <slug>")
		return
	}

	res, err := b.catalog.Apply(ctx, chatID, slug, catalog.Overrides{})
	if err != nil {
		b.reply(chatID, bundleError(slug, err))
		return
	}
	b.reply(chatID, FormatApplyResult(res))
}

func (b *Bot) handleFilters(ctx context.Context, chatID int64) {
	fs, err := b.catalog.ActiveFilters(ctx, chatID)
	if err != nil {
		b.log.Error("active filters", "user_id", chatID, "error", err)
		b.reply(chatID, describeError(err))
		return
	}

	sel, err := b.store.GetSelection(ctx, chatID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		b.reply(chatID, describeError(err))
		return
	}
	b.reply(chatID, FormatFilterSet(sel, fs))
}

func (b *Bot) handleNewBundle(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseBundleArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /newbundle <name> | <include> | <exclude>")
		return
	}

	bundle, err := b.catalog.Create(ctx, catalog.NewBundle{
		Name:             parsed.Head,
		PositiveKeywords: parsed.Positive,
		NegativeKeywords: parsed.Negative,
	})
	if err != nil {
		b.reply(chatID, describeError(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Bundle \"%s\" created as %s.\nUse /apply %s to use it.", bundle.Name, bundle.Slug, bundle.Slug))
}

func (b *Bot) handleEditBundle(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseBundleArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /editbundle <slug> | <include> | <exclude>")
		return
	}

	slug := strings.ToLower(parsed.Head)
	changes := catalog.BundleChanges{PositiveKeywords: parsed.Positive, NegativeKeywords: parsed.Negative}
	if changes.PositiveKeywords == nil {
		changes.PositiveKeywords = []string{}
	}
	if changes.NegativeKeywords == nil {
		changes.NegativeKeywords = []string{}
	}

	bundle, err := b.catalog.Edit(ctx, slug, changes)
	if err != nil {
		b.reply(chatID, bundleError(slug, err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Bundle %s updated.\nInclude: %s\nExclude: %s",
		bundle.Slug, keywordList(bundle.PositiveKeywords), keywordList(bundle.NegativeKeywords)))
}

func (b *Bot) handleRmBundle(ctx context.Context, chatID int64, args string) {
	slug, err := ParseSlugArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmbundle <slug>")
		return
	}

	if err := b.catalog.Delete(ctx, slug); err != nil {
		b.reply(chatID, bundleError(slug, err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Bundle %s deleted.", slug))
}

func (b *Bot) handlePreset(ctx context.Context, chatID int64, args string) {
	action, name, err := ParsePresetArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	switch action {
	case "save":
		if _, err := b.catalog.SavePreset(ctx, chatID, name); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				b.reply(chatID, "You have no active filters to save yet. Use /apply <slug> first.")
				return
			}
			b.reply(chatID, describeError(err))
			return
		}
		b.reply(chatID, fmt.Sprintf("Preset \"%s\" saved.", name))
	case "load":
		if _, err := b.catalog.ApplyPreset(ctx, chatID, name); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				b.reply(chatID, fmt.Sprintf("Preset \"%s\" not found.", name))
				return
			}
			b.reply(chatID, describeError(err))
			return
		}
		b.reply(chatID, fmt.Sprintf("Preset \"%s\" loaded.", name))
	}
}

func (b *Bot) handlePresets(ctx context.Context, chatID int64) {
	presets, err := b.catalog.ListPresets(ctx, chatID)
	if err != nil {
		b.reply(chatID, describeError(err))
		return
	}
	b.reply(chatID, FormatPresetList(presets))
}

func (b *Bot) handleValidate(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.reply(chatID, "Usage: /validate <url>")
		return
	}

	res := b.validator.Validate(ctx, fields[0], fetcher.Options{})
	b.reply(chatID, FormatValidation(res))
}

func (b *Bot) handleFeeds(ctx context.Context, chatID int64) {
	feeds, err := b.store.ListFeeds(ctx, model.FeedFilter{UserID: chatID})
	if err != nil {
		b.reply(chatID, describeError(err))
		return
	}
	b.reply(chatID, FormatFeedList(feeds))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64) {
	if b.checker == nil {
		b.reply(chatID, "Checking is not available right now.")
		return
	}

	report, err := b.checker.CheckUser(ctx, chatID)
	if err != nil {
		b.log.Error("check user", "user_id", chatID, "error", err)
		b.reply(chatID, describeError(err))
		return
	}
	b.reply(chatID, FormatCheckReport(report))
}

// bundleError describes a failed bundle operation for the user.
func bundleError(slug string, err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return fmt.Sprintf("Bundle %s not found. Use /bundles to browse the catalog.", slug)
	case errors.Is(err, model.ErrConflict):
		return "Only custom bundles can be edited or deleted."
	}
	return describeError(err)
}

// describeError turns an error into a reply. Validation problems are shown
// as is; anything else is reported without internals.
func describeError(err error) string {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		lines := make([]string, 0, len(ve.Errors))
		for _, fe := range ve.Errors {
			lines = append(lines, fmt.Sprintf("- %s: %s", fe.Field, fe.Message))
		}
		return "Invalid input:\n" + strings.Join(lines, "\n")
	}
	if errors.Is(err, model.ErrNotFound) {
		return "Not found."
	}
	return "Something went wrong, please try again later."
}

func categoryNames() string {
	cats := model.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
