package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo — Postgres-хранилище сессий (таблица dialog_sessions).
// Сессии старше idleTTL считаются отсутствующими; Sweep чистит их пачкой.
type Repo struct {
	pool    *pgxpool.Pool
	idleTTL time.Duration
}

func NewRepo(pool *pgxpool.Pool, idleTTL time.Duration) *Repo {
	return &Repo{pool: pool, idleTTL: idleTTL}
}

func (r *Repo) Load(ctx context.Context, userID int64) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT payload, updated_at FROM dialog_sessions WHERE user_id = $1
	`, userID)
	var (
		raw       []byte
		updatedAt time.Time
	)
	if err := row.Scan(&raw, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if time.Since(updatedAt) > r.idleTTL {
		_, _ = r.pool.Exec(ctx, `DELETE FROM dialog_sessions WHERE user_id = $1`, userID)
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		_, _ = r.pool.Exec(ctx, `DELETE FROM dialog_sessions WHERE user_id = $1`, userID)
		return nil, nil
	}
	return &s, nil
}

func (r *Repo) Save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO dialog_sessions (user_id, payload, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (user_id) DO UPDATE SET
		  payload=$2, updated_at=now()
	`, s.UserID, raw)
	return err
}

func (r *Repo) Delete(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM dialog_sessions WHERE user_id = $1`, userID)
	return err
}

// Sweep удаляет простаивающие сессии и возвращает их количество.
func (r *Repo) Sweep(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM dialog_sessions WHERE updated_at < now() - make_interval(secs => $1)
	`, r.idleTTL.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
