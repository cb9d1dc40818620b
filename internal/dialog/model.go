package dialog

import (
	"maps"
	"time"
)

// Kind — тип сценария (flow), которым сейчас занят пользователь.
type Kind string

const (
	KindMerchReport  Kind = "merch_report"
	KindOrder        Kind = "order"
	KindManufactured Kind = "manufactured"
	KindRawUsage     Kind = "raw_usage"
	KindDefective    Kind = "defective"
	KindPallet       Kind = "pallet"
)

// Kinds — все сценарии в порядке главного меню.
var Kinds = []Kind{KindMerchReport, KindOrder, KindManufactured, KindRawUsage, KindDefective, KindPallet}

// Item — одна позиция повторяющегося блока (товар отчёта, строка заказа и т.п.).
// Ключ — имя шага, значение — нормализованный ввод.
type Item map[string]string

// Session — состояние незавершённого сценария одного пользователя.
type Session struct {
	ID     string `json:"id"`
	UserID int64  `json:"user_id"`
	Kind   Kind   `json:"kind"`
	Step   string `json:"step"`

	Fields map[string]string `json:"fields"`
	Draft  Item              `json:"draft,omitempty"`
	Items  []Item            `json:"items"`

	// Offer — меню каталога, показанное последним: code -> название
	Offer map[string]string `json:"offer,omitempty"`
	// ExternalRef — номер документа ERP, полученный при неудачной локальной записи
	ExternalRef string `json:"external_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone делает глубокую копию: переход считается на копии и записывается целиком.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Fields = maps.Clone(s.Fields)
	if c.Fields == nil {
		c.Fields = map[string]string{}
	}
	c.Draft = maps.Clone(s.Draft)
	c.Offer = maps.Clone(s.Offer)
	if s.Items != nil {
		c.Items = make([]Item, len(s.Items))
		for i, it := range s.Items {
			c.Items[i] = maps.Clone(it)
		}
	}
	return &c
}

// Field безопасно читает поле сессии.
func (s *Session) Field(name string) string {
	if s == nil || s.Fields == nil {
		return ""
	}
	return s.Fields[name]
}
