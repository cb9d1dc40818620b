package report

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/olimpia-bot/internal/domain/records"
)

type fakeSource map[records.Kind][]records.Record

func (f fakeSource) List(_ context.Context, kind records.Kind, _, _ time.Time) ([]records.Record, error) {
	return f[kind], nil
}

type failingSource struct{}

func (failingSource) List(context.Context, records.Kind, time.Time, time.Time) ([]records.Record, error) {
	return nil, errors.New("db down")
}

func TestBuild(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	meta := records.Meta{Counterparty: records.Counterparty{Name: "ТОВ Ромашка"}, CreatedAt: at}
	src := fakeSource{
		records.KindOrder: {&records.Order{
			Meta:      withRef(meta, "ЗК-1"),
			Warehouse: "Етрус",
			Comment:   "терміново",
			Items: []records.OrderLine{
				{Code: "X1", Name: "Сир", Qty: decimal.NewFromInt(3), Price: decimal.NewFromInt(12), LineTotal: decimal.NewFromInt(36)},
				{Code: "X2", Name: "Масло", Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(5), LineTotal: decimal.NewFromInt(5)},
			},
		}},
		records.KindPallet: {&records.Pallet{Meta: meta, Lines: []records.PalletLine{{Qty: decimal.NewFromInt(2), TotalPrice: decimal.NewFromInt(100)}}}},
	}

	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	exp, err := Build(context.Background(), src, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, exp.Total)
	assert.Equal(t, "olimpia_20250201_20250301.xlsx", exp.Name)

	f, err := excelize.OpenReader(bytes.NewReader(exp.Data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	require.Len(t, sheets, len(records.Kinds))
	assert.Equal(t, records.KindMerchReport.Title(), sheets[0])

	rows, err := f.GetRows(records.KindOrder.Title())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"01.03.2025 09:30", "ТОВ Ромашка", "Етрус", "ЗК-1", "X1", "Сир", "3", "12", "36", "терміново"}, rows[1])
	assert.Equal(t, "X2", rows[2][4])

	rows, err = f.GetRows(records.KindPallet.Title())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "100", rows[1][4])

	rows, err = f.GetRows(records.KindMerchReport.Title())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestBuildSourceError(t *testing.T) {
	_, err := Build(context.Background(), failingSource{}, time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
}

func withRef(m records.Meta, ref string) records.Meta {
	m.ExternalRef = ref
	return m
}
