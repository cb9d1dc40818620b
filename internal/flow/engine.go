package flow

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Spok95/olimpia-bot/internal/commit"
	"github.com/Spok95/olimpia-bot/internal/dialog"
	"github.com/Spok95/olimpia-bot/internal/domain/catalog"
	"github.com/Spok95/olimpia-bot/internal/domain/records"
	"github.com/Spok95/olimpia-bot/internal/infra/erp"
	"github.com/Spok95/olimpia-bot/internal/infra/metrics"
)

type EventKind int

const (
	EventText EventKind = iota
	// EventSelection — нажатие inline-кнопки меню каталога, Text = код позиции.
	EventSelection
	// EventMedia — фото, Media = handle файла.
	EventMedia
)

type Event struct {
	UserID int64
	Kind   EventKind
	Text   string
	Media  string
}

// Option — пункт inline-меню каталога.
type Option struct {
	Label string
	Value string
}

// Prompt — ответ пользователю. Notice — ошибка или итог предыдущего действия.
type Prompt struct {
	Notice  string
	Text    string
	Choices []string
	Options []Option
	// Cancel — пользователь внутри сценария, показать кнопку отмены.
	Cancel bool
}

// Message — полный текст сообщения.
func (p Prompt) Message() string {
	switch {
	case p.Notice == "":
		return p.Text
	case p.Text == "":
		return p.Notice
	}
	return p.Notice + "\n\n" + p.Text
}

type Catalog interface {
	FetchCatalog(ctx context.Context, warehouseID string, kind catalog.ItemKind) ([]catalog.Entry, error)
}

type Committer interface {
	Build(ctx context.Context, s *dialog.Session) (records.Record, error)
	Finalize(ctx context.Context, s *dialog.Session) (commit.Result, error)
}

const (
	msgIdle      = "Оберіть дію з меню:"
	msgCancelled = "Дію скасовано."
	msgSaved     = "Дані успішно надіслано!"
	msgInternal  = "Сталася помилка. Спробуйте ще раз."
	msgEmpty     = "Немає доступних позицій на цьому складі."
)

var errEmptyCatalog = errors.New("flow: empty catalog")

type Engine struct {
	registry *Registry
	sessions *dialog.Manager
	catalog  Catalog
	commit   Committer
	log      *slog.Logger
}

func NewEngine(reg *Registry, sessions *dialog.Manager, cat Catalog, c Committer, log *slog.Logger) *Engine {
	return &Engine{registry: reg, sessions: sessions, catalog: cat, commit: c, log: log.With("component", "flow")}
}

// Handle обрабатывает одно событие пользователя под его блокировкой.
// Ошибки ввода и внешних систем превращаются в текст ответа.
func (e *Engine) Handle(ctx context.Context, ev Event) Prompt {
	var (
		out       Prompt
		committed bool
	)
	err := e.sessions.Update(ctx, ev.UserID, func(cur *dialog.Session) (*dialog.Session, error) {
		next, p, done := e.transition(ctx, cur, ev)
		out, committed = p, done
		return next, nil
	})
	switch {
	case err != nil && committed:
		// запись уже сделана; оставшуюся сессию повторное подтверждение закроет без новой отправки
		e.log.Error("session clear after commit failed", "user_id", ev.UserID, "err", err)
		return out
	case err != nil:
		e.log.Error("session update failed", "user_id", ev.UserID, "err", err)
		return e.idle(msgInternal)
	}
	return out
}

// Idle — главное меню.
func (e *Engine) Idle() Prompt { return e.idle("") }

func (e *Engine) idle(notice string) Prompt {
	return Prompt{Notice: notice, Text: msgIdle, Choices: e.registry.Menu()}
}

func isCancel(ev Event) bool {
	if ev.Kind == EventMedia {
		return false
	}
	t := strings.TrimSpace(ev.Text)
	return strings.EqualFold(t, CommandCancel) || strings.EqualFold(t, LabelCancel)
}

// transition вычисляет следующую сессию и ответ; committed — подтверждение зафиксировано.
func (e *Engine) transition(ctx context.Context, cur *dialog.Session, ev Event) (next *dialog.Session, p Prompt, committed bool) {
	if isCancel(ev) {
		if cur != nil {
			metrics.FlowsCancelled.WithLabelValues(string(cur.Kind)).Inc()
			e.log.Info("flow cancelled", "user_id", ev.UserID, "kind", cur.Kind, "step", cur.Step)
		}
		return nil, e.idle(msgCancelled), false
	}

	if ev.Kind == EventText {
		if def, ok := e.registry.Match(ev.Text); ok {
			next, p = e.start(ctx, cur, def, ev.UserID)
			return next, p, false
		}
	}

	if cur == nil {
		return nil, e.idle(""), false
	}
	def, ok := e.registry.Get(cur.Kind)
	if !ok {
		e.log.Warn("session of unknown flow dropped", "user_id", ev.UserID, "kind", cur.Kind)
		return nil, e.idle(""), false
	}
	if _, ok := def.Step(cur.Step); !ok {
		e.log.Warn("session at unknown step dropped", "user_id", ev.UserID, "kind", cur.Kind, "step", cur.Step)
		return nil, e.idle(msgInternal), false
	}

	if cur.Step == dialog.FieldConfirm {
		return e.confirm(ctx, def, cur, ev)
	}
	next, p = e.advance(ctx, def, cur, ev)
	return next, p, false
}

func (e *Engine) start(ctx context.Context, cur *dialog.Session, def *Definition, userID int64) (*dialog.Session, Prompt) {
	if cur != nil {
		e.log.Info("active flow discarded", "user_id", userID, "kind", cur.Kind, "step", cur.Step)
	}
	s := e.sessions.New(userID, def.Kind, def.First())
	p, err := e.render(ctx, def, s)
	if err != nil {
		return cur, e.failure(def, s, err)
	}
	metrics.FlowsStarted.WithLabelValues(string(def.Kind)).Inc()
	e.log.Info("flow started", "user_id", userID, "kind", def.Kind, "session_id", s.ID)
	return s, p
}

func (e *Engine) advance(ctx context.Context, def *Definition, cur *dialog.Session, ev Event) (*dialog.Session, Prompt) {
	st, _ := def.Step(cur.Step)
	value, err := st.Validate(Input{Text: ev.Text, Media: ev.Media}, cur)
	if err != nil {
		metrics.ValidationErrors.WithLabelValues(string(cur.Kind), cur.Step).Inc()
		p := e.rerender(def, cur)
		p.Notice = err.Error()
		return cur, p
	}

	next := cur.Clone()
	if err := def.Advance(next, value); err != nil {
		e.log.Error("advance failed", "user_id", cur.UserID, "kind", cur.Kind, "step", cur.Step, "err", err)
		return cur, e.rerender(def, cur)
	}
	p, err := e.render(ctx, def, next)
	if err != nil {
		// переход не записывается: пользователь остаётся на текущем шаге
		return cur, e.failure(def, cur, err)
	}
	return next, p
}

func (e *Engine) confirm(ctx context.Context, def *Definition, cur *dialog.Session, ev Event) (*dialog.Session, Prompt, bool) {
	st, _ := def.Step(dialog.FieldConfirm)
	choice, err := OneOf(st.Choices)(Input{Text: ev.Text}, cur)
	if err != nil {
		metrics.ValidationErrors.WithLabelValues(string(cur.Kind), cur.Step).Inc()
		p, rerr := e.render(ctx, def, cur)
		if rerr != nil {
			return cur, e.failure(def, cur, rerr), false
		}
		p.Notice = err.Error()
		return cur, p, false
	}
	if choice != "confirm" {
		metrics.FlowsCancelled.WithLabelValues(string(cur.Kind)).Inc()
		return nil, e.idle(msgCancelled), false
	}

	log := e.log.With("user_id", cur.UserID, "kind", cur.Kind, "session_id", cur.ID)
	res, err := e.commit.Finalize(ctx, cur)
	if err != nil {
		metrics.CommitFailures.WithLabelValues(string(cur.Kind), commit.Reason(err)).Inc()
		log.Error("commit failed", "err", err)

		kept := cur
		if res.ExternalRef != "" && res.ExternalRef != cur.ExternalRef {
			kept = cur.Clone()
			kept.ExternalRef = res.ExternalRef
		}
		p, rerr := e.render(ctx, def, kept)
		if rerr != nil {
			p = e.rerender(def, kept)
		}
		p.Notice = commitMessage(err)
		return kept, p, false
	}

	metrics.FlowsCommitted.WithLabelValues(string(cur.Kind)).Inc()
	notice := msgSaved
	if res.ExternalRef != "" {
		notice += "\nНомер документа: " + res.ExternalRef
	}
	return nil, e.idle(notice), true
}

// render строит подсказку шага s.Step. Шаг каталога обновляет s.Offer.
func (e *Engine) render(ctx context.Context, def *Definition, s *dialog.Session) (Prompt, error) {
	st, ok := def.Step(s.Step)
	if !ok {
		return Prompt{}, fmt.Errorf("flow %s: unknown step %q", def.Kind, s.Step)
	}
	switch {
	case st.Name == dialog.FieldConfirm:
		rec, err := e.commit.Build(ctx, s)
		if err != nil {
			return Prompt{}, err
		}
		return Prompt{Text: st.Text + "\n\n" + rec.Summary(), Choices: labels(st.Choices), Cancel: true}, nil
	case st.Catalog != nil:
		wh := s.Field(st.Catalog.WarehouseField)
		entries, err := e.catalog.FetchCatalog(ctx, wh, st.Catalog.Kind)
		if err != nil {
			return Prompt{}, err
		}
		if len(entries) == 0 {
			return Prompt{}, errEmptyCatalog
		}
		s.Offer = make(map[string]string, len(entries))
		for _, en := range entries {
			s.Offer[en.Code] = en.Name
		}
		return offerPrompt(st, s), nil
	}
	return Prompt{Text: st.Text, Choices: labels(st.Choices), Cancel: true}, nil
}

// rerender повторяет подсказку без обращения к внешним системам.
func (e *Engine) rerender(def *Definition, s *dialog.Session) Prompt {
	st, _ := def.Step(s.Step)
	if st.Catalog != nil && len(s.Offer) > 0 {
		return offerPrompt(st, s)
	}
	return Prompt{Text: st.Text, Choices: labels(st.Choices), Cancel: true}
}

func (e *Engine) failure(def *Definition, s *dialog.Session, err error) Prompt {
	e.log.Warn("prompt failed", "user_id", s.UserID, "kind", s.Kind, "step", s.Step, "err", err)
	p := e.rerender(def, s)
	switch {
	case errors.Is(err, errEmptyCatalog):
		p.Notice = msgEmpty
	case errors.Is(err, erp.ErrUnavailable), errors.Is(err, erp.ErrMalformed):
		p.Notice = "Не вдалося отримати список товарів. Спробуйте пізніше."
	case errors.Is(err, erp.ErrUnknownWarehouse):
		p.Notice = "Невідомий склад."
	case errors.Is(err, commit.ErrCounterpartyUnknown), errors.Is(err, commit.ErrInvalidRecord):
		p.Notice = commitMessage(err)
	default:
		p.Notice = msgInternal
	}
	return p
}

func commitMessage(err error) string {
	switch {
	case errors.Is(err, commit.ErrRejected):
		return "Помилка надсилання даних в обліковую систему. Спробуйте ще раз або скасуйте."
	case errors.Is(err, commit.ErrPersistence):
		return "Документ прийнято обліковою системою, але не збережено. Натисніть «" + LabelConfirm + "» ще раз."
	case errors.Is(err, commit.ErrCounterpartyUnknown):
		return "Вас не знайдено серед контрагентів. Надішліть /start, щоб зареєструватися."
	case errors.Is(err, commit.ErrAttachment):
		return "Не вдалося завантажити фото. Спробуйте ще раз."
	case errors.Is(err, commit.ErrInvalidRecord):
		return "Дані заповнено некоректно. Скасуйте та почніть спочатку."
	}
	return msgInternal
}

func offerPrompt(st Step, s *dialog.Session) Prompt {
	opts := make([]Option, 0, len(s.Offer))
	for code, name := range s.Offer {
		opts = append(opts, Option{Label: name, Value: code})
	}
	slices.SortFunc(opts, func(a, b Option) int {
		return cmp.Or(cmp.Compare(a.Label, b.Label), cmp.Compare(a.Value, b.Value))
	})
	return Prompt{Text: st.Text, Options: opts, Cancel: true}
}

func labels(cs []Choice) []string {
	if len(cs) == 0 {
		return nil
	}
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Label
	}
	return out
}
