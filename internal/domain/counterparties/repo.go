package counterparties

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound — контрагента с таким номером нет.
var ErrNotFound = errors.New("counterparties: not found")

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const columns = `id, code, name, warehouse, phone_number, telegram_id, created_at, updated_at`

func scan(row pgx.Row) (*Counterparty, error) {
	var c Counterparty
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Warehouse, &c.PhoneNumber, &c.TelegramID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByTelegramID возвращает nil, nil если пользователь ещё не привязан.
func (r *Repo) GetByTelegramID(ctx context.Context, tgID int64) (*Counterparty, error) {
	c, err := scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM counterparties WHERE telegram_id = $1`, tgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// BindTelegramByPhone привязывает Telegram-аккаунт к контрагенту с этим номером.
// Прежняя привязка этого аккаунта к другому контрагенту снимается.
func (r *Repo) BindTelegramByPhone(ctx context.Context, phone string, tgID int64) (*Counterparty, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, ErrNotFound
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE counterparties SET telegram_id = NULL, updated_at = now()
		WHERE telegram_id = $1 AND phone_number <> $2
	`, tgID, phone); err != nil {
		return nil, err
	}
	c, err := scan(tx.QueryRow(ctx, `
		UPDATE counterparties SET telegram_id = $2, updated_at = now()
		WHERE phone_number = $1
		RETURNING `+columns, phone, tgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, tx.Commit(ctx)
}
