package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdApply    = "apply"
	cmdBundle   = "bundle"
	cmdRmBundle = "rmbundle"

	cbRmBundleConfirm = "rmbundle_confirm"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, slug, ok := strings.Cut(data, ":")
	if !ok || slug == "" {
		return
	}

	b.log.Info("callback",
		"action", action,
		"bundle_slug", slug,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdBundle:
		b.handleBundle(ctx, chatID, slug)
	case cmdApply:
		b.handleApply(ctx, chatID, slug)
	case cbRmBundleConfirm:
		bundle, err := b.catalog.Resolve(ctx, slug)
		if err != nil || !bundle.IsCustom {
			b.reply(chatID, fmt.Sprintf("Custom bundle %s not found.", slug))
			return
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Delete bundle \"%s\"? This cannot be undone.", bundle.Name))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, delete", cmdRmBundle+":"+slug),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send delete confirmation", "error", err)
		}
	case cmdRmBundle:
		b.handleRmBundle(ctx, chatID, slug)
	}
}
