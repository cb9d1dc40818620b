package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/olimpia-bot/internal/flow"
)

func (b *Bot) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID

	if msg.Contact != nil {
		b.handleContact(ctx, msg)
		return
	}
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.handleStart(ctx, msg)
			return
		case "help":
			b.send(tgbotapi.NewMessage(chatID, helpText))
			return
		case "export":
			b.handleExport(ctx, msg)
			return
		}
	}

	if !b.registered(ctx, chatID, tgID) {
		return
	}
	ev, ok := messageEvent(msg)
	if !ok {
		b.sendPrompt(chatID, b.engine.Idle())
		return
	}
	b.sendPrompt(chatID, b.engine.Handle(ctx, ev))
}

func (b *Bot) onCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if err := b.answerCallback(cb, "", false); err != nil {
		b.log.Warn("answer callback failed", "err", err)
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	// старое меню больше не нажимается
	b.clearInline(chatID, cb.Message.MessageID)

	if !b.registered(ctx, chatID, cb.From.ID) {
		return
	}
	ev, ok := callbackEvent(cb)
	if !ok {
		return
	}
	b.sendPrompt(chatID, b.engine.Handle(ctx, ev))
}

const helpText = "Команди:\n" +
	"/start — реєстрація за номером телефону\n" +
	"/report, /order, /manufactured, /rawusage, /defective, /pallets — почати введення даних\n" +
	"/cancel — скасувати поточну дію"

// messageEvent переводит сообщение Telegram в событие сценария.
func messageEvent(msg *tgbotapi.Message) (flow.Event, bool) {
	ev := flow.Event{UserID: msg.From.ID, Kind: flow.EventText}
	if n := len(msg.Photo); n > 0 {
		// последний размер — самый крупный
		ev.Kind = flow.EventMedia
		ev.Media = msg.Photo[n-1].FileID
		ev.Text = msg.Caption
		return ev, true
	}
	if strings.TrimSpace(msg.Text) == "" {
		return flow.Event{}, false
	}
	ev.Text = msg.Text
	return ev, true
}

func callbackEvent(cb *tgbotapi.CallbackQuery) (flow.Event, bool) {
	ev := flow.Event{UserID: cb.From.ID, Kind: flow.EventSelection}
	switch {
	case cb.Data == cbCancel:
		ev.Text = flow.CommandCancel
	case strings.HasPrefix(cb.Data, cbSelect):
		ev.Text = strings.TrimPrefix(cb.Data, cbSelect)
	default:
		return flow.Event{}, false
	}
	return ev, true
}
