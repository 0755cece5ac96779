package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bird_whisperer/internal/app"
	"bird_whisperer/internal/config"
	"bird_whisperer/internal/storage"
)

func (b *Bot) handleStart(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, `Welcome to Bird Whisperer!

This bot runs the daily digest on demand and reports how runs went.

Use /help for the full command reference.`)
	msg.ReplyMarkup = actionsKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send welcome", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Digest:
/run - run the digest now
/status - show the last run

Declaration:
/follows - list recipients and followed accounts
/lastseen <email> <username> - show the last digested post id`)
}

func (b *Bot) handleRun(ctx context.Context, chatID int64) {
	if b.runner.Running() {
		b.reply(chatID, "A digest run is already in progress.")
		return
	}
	b.reply(chatID, "Digest run started.")

	b.runs.Add(1)
	go func() {
		defer b.runs.Done()
		res, err := b.runner.RunDigest(ctx, app.TriggerBot)
		switch {
		case errors.Is(err, app.ErrRunInProgress):
			b.reply(chatID, "A digest run is already in progress.")
		case err != nil:
			b.reply(chatID, FormatFailure(res, err))
		default:
			b.reply(chatID, FormatRunResult(res))
		}
	}()
}

func (b *Bot) handleStatus(chatID int64) {
	text := FormatRunResult(b.runner.Last())
	if b.runner.Running() {
		text = "A digest run is in progress.\n\nPrevious:\n" + text
	}
	b.reply(chatID, text)
}

func (b *Bot) handleFollows(chatID int64) {
	decl, err := config.LoadDigest(b.cfg.ConfigPath)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to load declaration: %v", err))
		return
	}
	b.reply(chatID, FormatFollows(decl))
}

func (b *Bot) handleLastSeen(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseLastSeenArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /lastseen <email> <username>")
		return
	}

	id, ok, err := b.store.Get(ctx, storage.LastSeenKey(parsed.Email, parsed.Username))
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to read state: %v", err))
		return
	}
	if !ok {
		b.reply(chatID, fmt.Sprintf("Nothing digested yet for @%s (%s).", parsed.Username, parsed.Email))
		return
	}
	b.reply(chatID, fmt.Sprintf("Last seen post for @%s (%s): %s", parsed.Username, parsed.Email, id))
}
