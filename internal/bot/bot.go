package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/olimpia-bot/internal/domain/counterparties"
	"github.com/Spok95/olimpia-bot/internal/flow"
	"github.com/Spok95/olimpia-bot/internal/report"
)

type Engine interface {
	Handle(ctx context.Context, ev flow.Event) flow.Prompt
	Idle() flow.Prompt
}

type Counterparties interface {
	GetByTelegramID(ctx context.Context, tgID int64) (*counterparties.Counterparty, error)
	BindTelegramByPhone(ctx context.Context, phone string, tgID int64) (*counterparties.Counterparty, error)
}

type Bot struct {
	api       *tgbotapi.BotAPI
	log       *slog.Logger
	engine    Engine
	cps       Counterparties
	records   report.Source
	adminChat int64
	updates   *dispatcher[tgbotapi.Update]
}

func New(api *tgbotapi.BotAPI, log *slog.Logger, engine Engine, cps Counterparties, recs report.Source, adminChatID int64) *Bot {
	b := &Bot{
		api:       api,
		log:       log.With("component", "bot"),
		engine:    engine,
		cps:       cps,
		records:   recs,
		adminChat: adminChatID,
	}
	b.updates = newDispatcher(b.onUpdate)
	return b
}

// Run читает обновления до отмены ctx. События одного пользователя
// обрабатываются строго по порядку, разные пользователи — параллельно.
func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	defer func() {
		b.api.StopReceivingUpdates()
		b.updates.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if uid, ok := senderID(upd); ok {
				b.updates.Submit(ctx, uid, upd)
			}
		}
	}
}

func senderID(upd tgbotapi.Update) (int64, bool) {
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID, true
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		return upd.CallbackQuery.From.ID, true
	}
	return 0, false
}

func (b *Bot) onUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panicked", "panic", r, "update_id", upd.UpdateID)
		}
	}()
	if upd.Message != nil {
		b.onMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		b.onCallback(ctx, upd.CallbackQuery)
	}
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", "err", err)
	}
}

func (b *Bot) sendPrompt(chatID int64, p flow.Prompt) {
	markup, skipped := promptMarkup(p)
	for _, o := range skipped {
		b.log.Warn("catalog code too long for a button", "code", o.Value, "label", o.Label)
	}
	m := tgbotapi.NewMessage(chatID, p.Message()+typeHint(skipped))
	m.ReplyMarkup = markup
	b.send(m)
}
