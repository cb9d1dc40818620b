package records

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMerchReportTotal(t *testing.T) {
	r := &MerchReport{Items: []MerchItem{
		{Name: "A", Qty: dec("2"), Price: dec("10.50")},
		{Name: "B", Qty: dec("1"), Price: dec("5.25")},
	}}
	r.Recalc()
	assert.Equal(t, "26.25", Money(r.Total))

	r.Items[1].PromoQty = dec("3")
	r.Items[1].PromoPrice = dec("0.1")
	r.Recalc()
	assert.True(t, r.Total.Equal(dec("26.55")), r.Total.String())
}

func TestOrderRecalc(t *testing.T) {
	r := &Order{Warehouse: "Етрус", Items: []OrderLine{
		{Code: "X1", Name: "Сир", Qty: dec("3"), Price: dec("12")},
		{Code: "X2", Name: "Масло", Qty: dec("0.1"), Price: dec("0.2")},
	}}
	r.Recalc()
	assert.True(t, r.Items[0].LineTotal.Equal(dec("36")))
	assert.True(t, r.Total.Equal(dec("36.02")))
	assert.Contains(t, r.Summary(), "Разом: 36.02")
}

func TestLineTotals(t *testing.T) {
	d := &Defective{Lines: []DefectiveLine{{TotalPrice: dec("1.10")}, {TotalPrice: dec("2.20")}}}
	d.Recalc()
	assert.Equal(t, "3.30", Money(d.Total))

	p := &Pallet{Lines: []PalletLine{{Qty: dec("4"), TotalPrice: dec("100")}}}
	p.Recalc()
	assert.Equal(t, "100.00", Money(p.Total))
}

func TestDocRoundTripKeepsKind(t *testing.T) {
	for _, k := range Kinds {
		rec, err := New(k)
		require.NoError(t, err)
		assert.Equal(t, k, rec.Kind())
		assert.NotEmpty(t, k.Title())
	}
	_, err := New("unknown")
	require.Error(t, err)
}

type stubRow struct {
	id  int64
	ref string
	err error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.id
	if len(dest) > 1 {
		*(dest[1].(*string)) = r.ref
	}
	return nil
}

type stubDB struct {
	queries []string
	rows    []stubRow
}

func (s *stubDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	s.queries = append(s.queries, sql)
	r := s.rows[0]
	s.rows = s.rows[1:]
	return r
}

func (s *stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestInsert(t *testing.T) {
	db := &stubDB{rows: []stubRow{{id: 7}}}
	repo := NewRepo(db)
	rec := &Pallet{Meta: Meta{SessionID: "s-1", UserID: 1}}

	id, err := repo.Insert(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, int64(7), rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Contains(t, db.queries[0], "INSERT INTO pallets")
}

func TestInsertDuplicateReturnsExisting(t *testing.T) {
	db := &stubDB{rows: []stubRow{
		{err: &pgconn.PgError{Code: "23505"}},
		{id: 3},
	}}
	repo := NewRepo(db)

	id, err := repo.Insert(context.Background(), &Order{Meta: Meta{SessionID: "s-1", UserID: 1}})
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, int64(3), id)
	require.Len(t, db.queries, 2)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(db.queries[1]), "SELECT id FROM orders"))
}

func TestInsertFailure(t *testing.T) {
	db := &stubDB{rows: []stubRow{{err: errors.New("connection reset")}}}
	_, err := NewRepo(db).Insert(context.Background(), &Manufactured{Meta: Meta{SessionID: "s", UserID: 1}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
}

func TestFindBySession(t *testing.T) {
	db := &stubDB{rows: []stubRow{{id: 9, ref: "ЗК-7"}}}
	id, ref, err := NewRepo(db).FindBySession(context.Background(), KindOrder, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, "ЗК-7", ref)
	assert.Contains(t, db.queries[0], "FROM orders WHERE session_id")

	db = &stubDB{rows: []stubRow{{err: pgx.ErrNoRows}}}
	_, _, err = NewRepo(db).FindBySession(context.Background(), KindPallet, "s-2")
	require.ErrorIs(t, err, ErrNotFound)

	db = &stubDB{rows: []stubRow{{err: errors.New("connection reset")}}}
	_, _, err = NewRepo(db).FindBySession(context.Background(), KindPallet, "s-3")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestDocIsFlat(t *testing.T) {
	rec := &Manufactured{
		Meta:      Meta{SessionID: "s", UserID: 5, CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		Warehouse: "Етрус", Code: "X1", Name: "Сир", Qty: dec("5"),
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "s", m["session_id"])
	assert.Equal(t, "X1", m["code"])
	assert.Equal(t, "5", m["qty"])
}
