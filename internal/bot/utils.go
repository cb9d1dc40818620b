package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/olimpia-bot/internal/report"
)

/*** HELPERS ***/

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string, alert bool) error {
	resp := tgbotapi.NewCallback(cb.ID, text)
	resp.ShowAlert = alert
	_, err := b.api.Request(resp)
	return err
}

// clearInline убирает inline-кнопки у сообщения, текст остаётся.
func (b *Bot) clearInline(chatID int64, messageID int) {
	rm := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if _, err := b.api.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, rm)); err != nil {
		b.log.Debug("clear inline keyboard failed", "err", err)
	}
}

const (
	defaultExportDays = 30
	maxExportDays     = 366
)

// parseDays разбирает аргумент /export: число дней, по умолчанию 30.
func parseDays(arg string) (int, bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return defaultExportDays, true
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > maxExportDays {
		return 0, false
	}
	return n, true
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if b.adminChat == 0 || (msg.From.ID != b.adminChat && chatID != b.adminChat) {
		b.send(tgbotapi.NewMessage(chatID, "Доступ заборонено."))
		return
	}
	days, ok := parseDays(msg.CommandArguments())
	if !ok {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Використання: /export [днів], від 1 до %d", maxExportDays)))
		return
	}
	to := time.Now()
	from := to.AddDate(0, 0, -days)

	exp, err := report.Build(ctx, b.records, from, to)
	if err != nil {
		b.log.Error("export failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Помилка формування файлу."))
		return
	}
	if exp.Total == 0 {
		b.send(tgbotapi.NewMessage(chatID, "За вказаний період записів немає."))
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: exp.Name, Bytes: exp.Data})
	doc.Caption = fmt.Sprintf("Записи за %d дн.: %d", days, exp.Total)
	b.send(doc)
}

// FileFetcher скачивает вложения Telegram по file_id.
type FileFetcher struct {
	api  *tgbotapi.BotAPI
	http *http.Client
}

func NewFileFetcher(api *tgbotapi.BotAPI) *FileFetcher {
	return &FileFetcher{api: api, http: &http.Client{Timeout: 30 * time.Second}}
}

// Fetch скачивает файл по FileID через Telegram API.
func (f *FileFetcher) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	url, err := f.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram returned status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
