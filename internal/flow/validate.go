package flow

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Spok95/olimpia-bot/internal/dialog"
	"github.com/shopspring/decimal"
)

// Подписи кнопок, которые движок распознаёт в любом сценарии.
const (
	LabelConfirm   = "Підтвердити"
	LabelCancel    = "Скасувати"
	LabelYes       = "Так"
	LabelNo        = "Ні"
	LabelNoPhoto   = "Без фото"
	LabelNoComment = "Без коментаря"

	CommandCancel = "/cancel"
)

const (
	maxTextLen    = 256
	maxCommentLen = 1024
)

// ValidationError — ввод не подходит для текущего шага. Msg показывается пользователю.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// IsValidation сообщает, что err — ошибка ввода, а не сбой.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Input — то, что пользователь прислал на текущем шаге.
type Input struct {
	Text  string
	Media string
}

// Validator возвращает каноническое значение шага или *ValidationError.
type Validator func(in Input, s *dialog.Session) (string, error)

// Choice — вариант ответа: Label на кнопке, Value сохраняется в сессии.
type Choice struct {
	Label string
	Value string
}

var yesNo = []Choice{{Label: LabelYes, Value: "yes"}, {Label: LabelNo, Value: "no"}}

// ParseDecimal принимает и запятую, и точку: "10,5" и "10.5" дают одно значение.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" || strings.Count(s, ".") > 1 || strings.ContainsAny(s, "eE") {
		return decimal.Zero, invalid("Введіть число, наприклад 12,50")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid("Введіть число, наприклад 12,50")
	}
	return d, nil
}

// FreeText — непустая строка до maxTextLen символов.
func FreeText() Validator {
	return func(in Input, _ *dialog.Session) (string, error) {
		v := strings.TrimSpace(in.Text)
		if v == "" {
			return "", invalid("Значення не може бути порожнім")
		}
		if utf8.RuneCountInString(v) > maxTextLen {
			return "", invalid("Занадто довгий текст")
		}
		return v, nil
	}
}

// NonNegative — число >= 0.
func NonNegative() Validator {
	return func(in Input, _ *dialog.Session) (string, error) {
		d, err := ParseDecimal(in.Text)
		if err != nil {
			return "", err
		}
		if d.IsNegative() {
			return "", invalid("Число не може бути від'ємним")
		}
		return d.String(), nil
	}
}

// Positive — число > 0.
func Positive() Validator {
	return func(in Input, _ *dialog.Session) (string, error) {
		d, err := ParseDecimal(in.Text)
		if err != nil {
			return "", err
		}
		if !d.IsPositive() {
			return "", invalid("Кількість має бути більшою за нуль")
		}
		return d.String(), nil
	}
}

var dateLayouts = []string{"2006-01-02", "02.01.2006"}

// Date принимает YYYY-MM-DD или DD.MM.YYYY и приводит к YYYY-MM-DD.
func Date() Validator {
	return func(in Input, _ *dialog.Session) (string, error) {
		v := strings.TrimSpace(in.Text)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
		return "", invalid("Введіть дату у форматі ДД.ММ.РРРР")
	}
}

// OneOf принимает подпись кнопки или значение без учёта регистра.
func OneOf(choices []Choice) Validator {
	return func(in Input, _ *dialog.Session) (string, error) {
		v := strings.TrimSpace(in.Text)
		for _, c := range choices {
			if strings.EqualFold(v, c.Label) || strings.EqualFold(v, c.Value) {
				return c.Value, nil
			}
		}
		return "", invalid("Оберіть один з варіантів на клавіатурі")
	}
}

// Photo — фото (значение — handle файла) или явный отказ «Без фото».
func Photo() Validator {
	return func(in Input, _ *dialog.Session) (string, error) {
		if in.Media != "" {
			return in.Media, nil
		}
		if strings.EqualFold(strings.TrimSpace(in.Text), LabelNoPhoto) {
			return "", nil
		}
		return "", invalid("Надішліть фото або натисніть «" + LabelNoPhoto + "»")
	}
}

// Comment — необязательный комментарий; «Без коментаря» даёт пустое значение.
func Comment() Validator {
	return func(in Input, _ *dialog.Session) (string, error) {
		v := strings.TrimSpace(in.Text)
		if strings.EqualFold(v, LabelNoComment) {
			return "", nil
		}
		if v == "" {
			return "", invalid("Напишіть коментар або натисніть «" + LabelNoComment + "»")
		}
		if utf8.RuneCountInString(v) > maxCommentLen {
			return "", invalid("Занадто довгий коментар")
		}
		return v, nil
	}
}

// Selection — код из последнего показанного меню каталога (или точное название позиции).
func Selection() Validator {
	return func(in Input, s *dialog.Session) (string, error) {
		v := strings.TrimSpace(in.Text)
		if _, ok := s.Offer[v]; ok && v != "" {
			return v, nil
		}
		// по названию — только если оно однозначно
		match := ""
		for code, name := range s.Offer {
			if !strings.EqualFold(v, name) {
				continue
			}
			if match != "" {
				return "", invalid("Оберіть позицію зі списку")
			}
			match = code
		}
		if match == "" {
			return "", invalid("Оберіть позицію зі списку")
		}
		return match, nil
	}
}
