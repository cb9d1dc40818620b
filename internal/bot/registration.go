package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/olimpia-bot/internal/domain/counterparties"
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	cp, err := b.cps.GetByTelegramID(ctx, msg.From.ID)
	if err != nil {
		b.log.Error("lookup counterparty failed", "user_id", msg.From.ID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Помилка: спробуйте пізніше."))
		return
	}
	if cp != nil {
		p := b.engine.Idle()
		p.Notice = fmt.Sprintf("Вітаю, %s!", cp.Name)
		b.sendPrompt(chatID, p)
		return
	}
	b.askContact(chatID)
}

func (b *Bot) askContact(chatID int64) {
	m := tgbotapi.NewMessage(chatID, "Для роботи з ботом поділіться, будь ласка, своїм номером телефону.")
	m.ReplyMarkup = contactKeyboard()
	b.send(m)
}

// handleContact привязывает аккаунт к контрагенту по номеру телефона.
// Принимается только собственный контакт пользователя.
func (b *Bot) handleContact(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.Contact.UserID != msg.From.ID {
		b.send(tgbotapi.NewMessage(chatID, "Надішліть, будь ласка, власний номер телефону кнопкою нижче."))
		return
	}
	cp, err := b.cps.BindTelegramByPhone(ctx, msg.Contact.PhoneNumber, msg.From.ID)
	switch {
	case errors.Is(err, counterparties.ErrNotFound):
		b.log.Info("registration: unknown phone", "user_id", msg.From.ID)
		m := tgbotapi.NewMessage(chatID, "Контрагента не знайдено. Зверніться до менеджера.")
		m.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		b.send(m)
		return
	case err != nil:
		b.log.Error("registration failed", "user_id", msg.From.ID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Помилка реєстрації. Спробуйте пізніше."))
		return
	}
	b.log.Info("counterparty bound", "user_id", msg.From.ID, "counterparty", cp.Code)
	p := b.engine.Idle()
	p.Notice = fmt.Sprintf("Вас зареєстровано: %s", cp.Name)
	b.sendPrompt(chatID, p)
}

// registered пропускает к сценариям только привязанных пользователей.
func (b *Bot) registered(ctx context.Context, chatID, tgID int64) bool {
	cp, err := b.cps.GetByTelegramID(ctx, tgID)
	if err != nil {
		b.log.Error("lookup counterparty failed", "user_id", tgID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Помилка: спробуйте пізніше."))
		return false
	}
	if cp == nil {
		b.askContact(chatID)
		return false
	}
	return true
}
