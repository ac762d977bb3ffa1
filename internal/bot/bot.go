// Package bot is the Telegram command surface of the curator: browsing and
// applying bundles, managing custom bundles and presets, and feed checks.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"newscurator/internal/catalog"
	"newscurator/internal/config"
	"newscurator/internal/fetcher"
	"newscurator/internal/model"
	"newscurator/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Checker runs an on-demand curation pass for one user.
type Checker interface {
	CheckUser(ctx context.Context, userID int64) (model.CheckReport, error)
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Store     storage.Storage
	Catalog   *catalog.Catalog
	Validator *fetcher.Validator
	Config    *config.Config
	Logger    *slog.Logger
}

// Bot is the Telegram bot that handles user commands and sends notifications.
// The chat ID of a private chat doubles as the user ID.
type Bot struct {
	api       telegramAPI
	store     storage.Storage
	catalog   *catalog.Catalog
	validator *fetcher.Validator
	checker   Checker
	cfg       *config.Config
	log       *slog.Logger
}

// New creates a Bot with the given Telegram token.
func New(token string, d Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:       api,
		store:     d.Store,
		catalog:   d.Catalog,
		validator: d.Validator,
		cfg:       d.Config,
		log:       d.Logger,
	}, nil
}

// SetChecker sets the pass run by /check.
func (b *Bot) SetChecker(c Checker) {
	b.checker = c
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(chatID)
	case "bundles":
		b.handleBundles(ctx, chatID, args)
	case cmdBundle:
		b.handleBundle(ctx, chatID, args)
	case cmdApply:
		b.handleApply(ctx, chatID, args)
	case "filters":
		b.handleFilters(ctx, chatID)
	case "newbundle":
		b.handleNewBundle(ctx, chatID, args)
	case "editbundle":
		b.handleEditBundle(ctx, chatID, args)
	case cmdRmBundle:
		b.handleRmBundle(ctx, chatID, args)
	case "preset":
		b.handlePreset(ctx, chatID, args)
	case "presets":
		b.handlePresets(ctx, chatID)
	case "validate":
		b.handleValidate(ctx, chatID, args)
	case "feeds":
		b.handleFeeds(ctx, chatID)
	case "check":
		b.handleCheck(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
