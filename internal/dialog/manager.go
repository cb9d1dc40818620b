package dialog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store — хранилище сессий (Redis или Postgres).
// Load возвращает nil, nil если сессии нет или она истекла.
type Store interface {
	Load(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
}

// Manager сериализует доступ к сессии каждого пользователя.
// Разные пользователи друг друга не блокируют.
type Manager struct {
	store Store
	locks *Locker
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, locks: NewLocker(), now: time.Now}
}

// Get читает сессию пользователя.
func (m *Manager) Get(ctx context.Context, userID int64) (*Session, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.store.Load(ctx, userID)
}

// Start всегда начинает с чистого листа: прежняя сессия пользователя отбрасывается.
func (m *Manager) Start(ctx context.Context, userID int64, kind Kind, firstStep string) (*Session, error) {
	var out *Session
	err := m.Update(ctx, userID, func(_ *Session) (*Session, error) {
		out = m.New(userID, kind, firstStep)
		return out, nil
	})
	return out, err
}

// New создаёт сессию без записи в хранилище.
func (m *Manager) New(userID int64, kind Kind, firstStep string) *Session {
	now := m.now()
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Step:      firstStep,
		Fields:    map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Update атомарно (для данного userID) читает сессию, применяет fn и сохраняет результат.
// fn получает nil, если сессии нет. Вернул nil — сессия удаляется;
// вернул ошибку — ничего не пишется.
func (m *Manager) Update(ctx context.Context, userID int64, fn func(cur *Session) (*Session, error)) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	cur, err := m.store.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next == nil {
		if cur == nil {
			return nil
		}
		if err := m.store.Delete(ctx, userID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	}
	if next.UserID != userID {
		return fmt.Errorf("session belongs to user %d, not %d", next.UserID, userID)
	}
	next.UpdatedAt = m.now()
	if err := m.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear удаляет сессию пользователя.
func (m *Manager) Clear(ctx context.Context, userID int64) error {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.store.Delete(ctx, userID)
}
