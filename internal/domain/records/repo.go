package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicate — запись этой сессии уже есть; Insert вернул id существующей.
	ErrDuplicate = errors.New("records: session already committed")
	// ErrNotFound — у сессии ещё нет записи.
	ErrNotFound = errors.New("records: not found")
)

// DB — то, что нужно репозиторию от пула. *pgxpool.Pool подходит.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repo struct {
	db  DB
	now func() time.Time
}

func NewRepo(db DB) *Repo { return &Repo{db: db, now: time.Now} }

var tables = map[Kind]string{
	KindMerchReport:  "merch_reports",
	KindOrder:        "orders",
	KindManufactured: "manufactured_products",
	KindRawUsage:     "used_raw",
	KindDefective:    "defective_products",
	KindPallet:       "pallets",
}

func tableOf(k Kind) (string, error) {
	t, ok := tables[k]
	if !ok {
		return "", fmt.Errorf("records: unknown kind %q", k)
	}
	return t, nil
}

// Insert добавляет запись. Повтор по session_id не создаёт вторую строку:
// возвращается id первой и ErrDuplicate.
func (r *Repo) Insert(ctx context.Context, rec Record) (int64, error) {
	table, err := tableOf(rec.Kind())
	if err != nil {
		return 0, err
	}
	m := rec.Common()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}

	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO `+table+` (session_id, user_id, counterparty_code, subwarehouse, total, external_ref, doc, created_at)
		VALUES ($1,$2,$3,$4,$5::text::numeric,$6,$7,$8)
		RETURNING id
	`, m.SessionID, m.UserID, m.Counterparty.Code, m.Subwarehouse, m.Total.String(), m.ExternalRef, doc, m.CreatedAt).Scan(&id)
	if err == nil {
		m.ID = id
		return id, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	if err := r.db.QueryRow(ctx, `SELECT id FROM `+table+` WHERE session_id = $1`, m.SessionID).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup duplicate in %s: %w", table, err)
	}
	m.ID = id
	return id, ErrDuplicate
}

// FindBySession ищет уже сохранённую запись сессии: id и ссылку на документ ERP.
func (r *Repo) FindBySession(ctx context.Context, kind Kind, sessionID string) (int64, string, error) {
	table, err := tableOf(kind)
	if err != nil {
		return 0, "", err
	}
	var (
		id  int64
		ref string
	)
	err = r.db.QueryRow(ctx, `SELECT id, external_ref FROM `+table+` WHERE session_id = $1`, sessionID).Scan(&id, &ref)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, "", ErrNotFound
	case err != nil:
		return 0, "", fmt.Errorf("find %s by session: %w", table, err)
	}
	return id, ref, nil
}

// List возвращает записи вида kind с created_at в [from, to), по возрастанию.
func (r *Repo) List(ctx context.Context, kind Kind, from, to time.Time) ([]Record, error) {
	table, err := tableOf(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, total::text, doc, created_at
		FROM `+table+`
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id        int64
			total     string
			doc       []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &total, &doc, &createdAt); err != nil {
			return nil, err
		}
		rec, err := New(kind)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(doc, rec); err != nil {
			return nil, fmt.Errorf("decode %s #%d: %w", table, id, err)
		}
		m := rec.Common()
		m.ID = id
		m.CreatedAt = createdAt
		if d, err := decimal.NewFromString(total); err == nil {
			m.Total = d
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
