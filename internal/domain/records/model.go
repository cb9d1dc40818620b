// Package records — финализированные записи сценариев. Записи неизменяемы
// и пишутся в БД один раз на сессию.
package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindMerchReport  Kind = "merch_report"
	KindOrder        Kind = "order"
	KindManufactured Kind = "manufactured"
	KindRawUsage     Kind = "raw_usage"
	KindDefective    Kind = "defective"
	KindPallet       Kind = "pallet"
)

// Kinds — порядок листов в выгрузке.
var Kinds = []Kind{KindMerchReport, KindOrder, KindManufactured, KindRawUsage, KindDefective, KindPallet}

// Title — человекочитаемое название вида записи.
func (k Kind) Title() string {
	switch k {
	case KindMerchReport:
		return "Звіт мерчандайзера"
	case KindOrder:
		return "Замовлення"
	case KindManufactured:
		return "Вироблена продукція"
	case KindRawUsage:
		return "Використана сировина"
	case KindDefective:
		return "Бракована продукція"
	case KindPallet:
		return "Піддони"
	}
	return string(k)
}

type Counterparty struct {
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Warehouse string `json:"warehouse"`
}

// Meta — общие поля всех записей.
type Meta struct {
	ID           int64           `json:"-"`
	SessionID    string          `json:"session_id" validate:"required"`
	UserID       int64           `json:"user_id" validate:"required"`
	Counterparty Counterparty    `json:"counterparty"`
	Subwarehouse string          `json:"subwarehouse"`
	Total        decimal.Decimal `json:"total" validate:"gte=0"`
	ExternalRef  string          `json:"external_ref,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (m *Meta) Common() *Meta { return m }

type Record interface {
	Kind() Kind
	Common() *Meta
	// Summary — текст для подтверждения и уведомлений.
	Summary() string
}

// Photo — вложение. До коммита известен только FileID, Data (base64) заполняется при записи.
type Photo struct {
	FileID string `json:"file_id"`
	Data   string `json:"data,omitempty"`
}

type MerchItem struct {
	Name       string          `json:"name" validate:"required"`
	Qty        decimal.Decimal `json:"qty" validate:"gte=0"`
	Price      decimal.Decimal `json:"price" validate:"gte=0"`
	PromoQty   decimal.Decimal `json:"promo_qty" validate:"gte=0"`
	PromoPrice decimal.Decimal `json:"promo_price" validate:"gte=0"`
	Photo      *Photo          `json:"photo,omitempty"`
}

// Amount = qty·price + promo_qty·promo_price.
func (i MerchItem) Amount() decimal.Decimal {
	return i.Qty.Mul(i.Price).Add(i.PromoQty.Mul(i.PromoPrice))
}

type MerchReport struct {
	Meta
	Shop  string      `json:"shop" validate:"required"`
	Items []MerchItem `json:"items" validate:"min=1,dive"`
}

func (*MerchReport) Kind() Kind { return KindMerchReport }

// Recalc пересчитывает итог по позициям.
func (r *MerchReport) Recalc() {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.Amount())
	}
	r.Total = total
}

func (r *MerchReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Магазин: %s\nСубсклад: %s\n", r.Shop, r.Subwarehouse)
	for i, it := range r.Items {
		fmt.Fprintf(&b, "%d. %s: %s × %s", i+1, it.Name, Display(it.Qty), Money(it.Price))
		if !it.PromoQty.IsZero() {
			fmt.Fprintf(&b, ", акція %s × %s", Display(it.PromoQty), Money(it.PromoPrice))
		}
		if it.Photo != nil {
			b.WriteString(" 📷")
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Разом: %s", Money(r.Total))
	return b.String()
}

type OrderLine struct {
	Code      string          `json:"code" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Qty       decimal.Decimal `json:"qty" validate:"gt=0"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
	LineTotal decimal.Decimal `json:"line_total" validate:"gte=0"`
}

type Order struct {
	Meta
	Warehouse string      `json:"warehouse" validate:"required"`
	Items     []OrderLine `json:"items" validate:"min=1,dive"`
	Comment   string      `json:"comment,omitempty"`
}

func (*Order) Kind() Kind { return KindOrder }

func (r *Order) Recalc() {
	total := decimal.Zero
	for i := range r.Items {
		r.Items[i].LineTotal = r.Items[i].Qty.Mul(r.Items[i].Price)
		total = total.Add(r.Items[i].LineTotal)
	}
	r.Total = total
}

func (r *Order) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Склад: %s\n", r.Warehouse)
	for i, l := range r.Items {
		fmt.Fprintf(&b, "%d. %s (%s): %s × %s = %s\n", i+1, l.Name, l.Code, Display(l.Qty), Money(l.Price), Money(l.LineTotal))
	}
	if r.Comment != "" {
		fmt.Fprintf(&b, "Коментар: %s\n", r.Comment)
	}
	fmt.Fprintf(&b, "Разом: %s", Money(r.Total))
	return b.String()
}

type Manufactured struct {
	Meta
	Warehouse string          `json:"warehouse" validate:"required"`
	Code      string          `json:"code" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Qty       decimal.Decimal `json:"qty" validate:"gt=0"`
}

func (*Manufactured) Kind() Kind { return KindManufactured }

func (r *Manufactured) Summary() string {
	return fmt.Sprintf("Склад: %s\nПродукція: %s (%s)\nКількість: %s", r.Warehouse, r.Name, r.Code, Display(r.Qty))
}

type RawUsage struct {
	Meta
	Warehouse string          `json:"warehouse" validate:"required"`
	Code      string          `json:"code" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	UsedQty   decimal.Decimal `json:"used_qty" validate:"gte=0"`
	DefectQty decimal.Decimal `json:"defect_qty" validate:"gte=0"`
}

func (*RawUsage) Kind() Kind { return KindRawUsage }

func (r *RawUsage) Summary() string {
	return fmt.Sprintf("Склад: %s\nСировина: %s (%s)\nВикористано: %s\nБрак: %s",
		r.Warehouse, r.Name, r.Code, Display(r.UsedQty), Display(r.DefectQty))
}

type DefectiveLine struct {
	Name       string          `json:"name" validate:"required"`
	ReturnDate string          `json:"return_date" validate:"required,datetime=2006-01-02"`
	Qty        decimal.Decimal `json:"qty" validate:"gte=0"`
	TotalPrice decimal.Decimal `json:"total_price" validate:"gte=0"`
}

type Defective struct {
	Meta
	Lines []DefectiveLine `json:"lines" validate:"min=1,dive"`
}

func (*Defective) Kind() Kind { return KindDefective }

func (r *Defective) Recalc() {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.TotalPrice)
	}
	r.Total = total
}

func (r *Defective) Summary() string {
	var b strings.Builder
	for i, l := range r.Lines {
		fmt.Fprintf(&b, "%d. %s, повернено %s: %s шт., %s\n", i+1, l.Name, l.ReturnDate, Display(l.Qty), Money(l.TotalPrice))
	}
	fmt.Fprintf(&b, "Субсклад: %s\nРазом: %s", r.Subwarehouse, Money(r.Total))
	return b.String()
}

type PalletLine struct {
	Qty        decimal.Decimal `json:"qty" validate:"gt=0"`
	TotalPrice decimal.Decimal `json:"total_price" validate:"gte=0"`
}

type Pallet struct {
	Meta
	Lines []PalletLine `json:"lines" validate:"min=1,dive"`
}

func (*Pallet) Kind() Kind { return KindPallet }

func (r *Pallet) Recalc() {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.TotalPrice)
	}
	r.Total = total
}

func (r *Pallet) Summary() string {
	var b strings.Builder
	for i, l := range r.Lines {
		fmt.Fprintf(&b, "%d. %s шт., %s\n", i+1, Display(l.Qty), Money(l.TotalPrice))
	}
	fmt.Fprintf(&b, "Субсклад: %s\nРазом: %s", r.Subwarehouse, Money(r.Total))
	return b.String()
}

// Money — сумма с двумя знаками, округление только для показа.
func Money(d decimal.Decimal) string { return d.StringFixed(2) }

// Display — количество без лишних нулей.
func Display(d decimal.Decimal) string { return d.String() }

// New возвращает пустую запись нужного вида (для чтения doc из БД).
func New(k Kind) (Record, error) {
	switch k {
	case KindMerchReport:
		return &MerchReport{}, nil
	case KindOrder:
		return &Order{}, nil
	case KindManufactured:
		return &Manufactured{}, nil
	case KindRawUsage:
		return &RawUsage{}, nil
	case KindDefective:
		return &Defective{}, nil
	case KindPallet:
		return &Pallet{}, nil
	}
	return nil, fmt.Errorf("records: unknown kind %q", k)
}
