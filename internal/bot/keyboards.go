package bot

import (
	"slices"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/olimpia-bot/internal/flow"
)

const (
	cbCancel = "nav:cancel"
	cbSelect = "sel:"

	// лимит Telegram на callback_data
	maxCallbackData = 64
)

// promptMarkup: меню каталога — inline-кнопки, варианты ответа — нижняя клавиатура.
// skipped — позиции, код которых не помещается в callback_data.
func promptMarkup(p flow.Prompt) (markup any, skipped []flow.Option) {
	if len(p.Options) > 0 {
		return optionsKeyboard(p.Options)
	}
	if len(p.Choices) == 0 && !p.Cancel {
		return tgbotapi.NewRemoveKeyboard(true), nil
	}
	return choicesKeyboard(p.Choices, p.Cancel), nil
}

func optionsKeyboard(opts []flow.Option) (tgbotapi.InlineKeyboardMarkup, []flow.Option) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(opts)+1)
	var skipped []flow.Option
	for _, o := range opts {
		data := cbSelect + o.Value
		if len(data) > maxCallbackData {
			skipped = append(skipped, o)
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(o.Label, data)))
	}
	rows = append(rows, navKeyboard().InlineKeyboard[0])
	return tgbotapi.NewInlineKeyboardMarkup(rows...), skipped
}

// typeHint подсказывает, какие позиции выбираются только вводом названия.
func typeHint(skipped []flow.Option) string {
	if len(skipped) == 0 {
		return ""
	}
	names := make([]string, len(skipped))
	for i, o := range skipped {
		names[i] = o.Label
	}
	return "\n\nЦі позиції оберіть, надіславши назву текстом: " + strings.Join(names, ", ")
}

func navKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖️ "+flow.LabelCancel, cbCancel)),
	)
}

// choicesKeyboard раскладывает варианты по два в ряд; кнопка отмены — отдельным рядом.
func choicesKeyboard(choices []string, cancel bool) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(choices); i += 2 {
		row := []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(choices[i])}
		if i+1 < len(choices) {
			row = append(row, tgbotapi.NewKeyboardButton(choices[i+1]))
		}
		rows = append(rows, row)
	}
	if cancel && !slices.Contains(choices, flow.LabelCancel) {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(flow.LabelCancel)))
	}
	return tgbotapi.ReplyKeyboardMarkup{ResizeKeyboard: true, Keyboard: rows}
}

func contactKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewOneTimeReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("📱 Надіслати номер телефону")),
	)
	kb.ResizeKeyboard = true
	return kb
}
