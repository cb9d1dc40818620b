// Package report формирует выгрузку записей в Excel для администратора.
package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/olimpia-bot/internal/domain/records"
)

type Source interface {
	List(ctx context.Context, kind records.Kind, from, to time.Time) ([]records.Record, error)
}

// Export — готовый файл.
type Export struct {
	Name  string
	Data  []byte
	Total int
}

var headers = map[records.Kind][]any{
	records.KindMerchReport:  {"Дата", "Контрагент", "Магазин", "Субсклад", "Товар", "Кількість", "Ціна", "Акц. кількість", "Акц. ціна", "Сума", "Фото"},
	records.KindOrder:        {"Дата", "Контрагент", "Склад", "Документ", "Код", "Товар", "Кількість", "Ціна", "Сума", "Коментар"},
	records.KindManufactured: {"Дата", "Контрагент", "Склад", "Документ", "Код", "Продукція", "Кількість"},
	records.KindRawUsage:     {"Дата", "Контрагент", "Склад", "Код", "Сировина", "Використано", "Брак"},
	records.KindDefective:    {"Дата", "Контрагент", "Субсклад", "Продукція", "Дата повернення", "Кількість", "Сума"},
	records.KindPallet:       {"Дата", "Контрагент", "Субсклад", "Кількість", "Сума"},
}

// Build выгружает записи за [from, to): один лист на каждый вид записи.
func Build(ctx context.Context, src Source, from, to time.Time) (*Export, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	defaultSheet := f.GetSheetName(f.GetActiveSheetIndex())
	total := 0
	for i, kind := range records.Kinds {
		recs, err := src.List(ctx, kind, from, to)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		sheet := kind.Title()
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}

		header := headers[kind]
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return nil, err
		}
		row := 2
		for _, rec := range recs {
			for _, line := range rows(rec) {
				cell, err := excelize.CoordinatesToCellName(1, row)
				if err != nil {
					return nil, err
				}
				if err := f.SetSheetRow(sheet, cell, &line); err != nil {
					return nil, err
				}
				row++
			}
			total++
		}
	}
	f.SetActiveSheet(0)

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return &Export{
		Name:  fmt.Sprintf("olimpia_%s_%s.xlsx", from.Format("20060102"), to.Add(-time.Second).Format("20060102")),
		Data:  buf.Bytes(),
		Total: total,
	}, nil
}

func num(d decimal.Decimal) float64 { return d.InexactFloat64() }

// rows — строки листа для записи; многострочные записи раскладываются по позициям.
func rows(rec records.Record) [][]any {
	m := rec.Common()
	date := m.CreatedAt.Format("02.01.2006 15:04")
	cp := m.Counterparty.Name

	switch r := rec.(type) {
	case *records.MerchReport:
		out := make([][]any, 0, len(r.Items))
		for _, it := range r.Items {
			photo := ""
			if it.Photo != nil {
				photo = "так"
			}
			out = append(out, []any{date, cp, r.Shop, r.Subwarehouse, it.Name, num(it.Qty), num(it.Price),
				num(it.PromoQty), num(it.PromoPrice), num(it.Amount()), photo})
		}
		return out
	case *records.Order:
		out := make([][]any, 0, len(r.Items))
		for _, l := range r.Items {
			out = append(out, []any{date, cp, r.Warehouse, r.ExternalRef, l.Code, l.Name, num(l.Qty), num(l.Price), num(l.LineTotal), r.Comment})
		}
		return out
	case *records.Manufactured:
		return [][]any{{date, cp, r.Warehouse, r.ExternalRef, r.Code, r.Name, num(r.Qty)}}
	case *records.RawUsage:
		return [][]any{{date, cp, r.Warehouse, r.Code, r.Name, num(r.UsedQty), num(r.DefectQty)}}
	case *records.Defective:
		out := make([][]any, 0, len(r.Lines))
		for _, l := range r.Lines {
			out = append(out, []any{date, cp, r.Subwarehouse, l.Name, l.ReturnDate, num(l.Qty), num(l.TotalPrice)})
		}
		return out
	case *records.Pallet:
		out := make([][]any, 0, len(r.Lines))
		for _, l := range r.Lines {
			out = append(out, []any{date, cp, r.Subwarehouse, num(l.Qty), num(l.TotalPrice)})
		}
		return out
	}
	return nil
}
