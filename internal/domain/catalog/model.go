package catalog

import "strings"

// ItemKind — вид позиции каталога ERP.
type ItemKind string

const (
	KindFinishedGood ItemKind = "finished_good" // готовая продукция (Type=2 в ERP)
	KindRawMaterial  ItemKind = "raw_material"  // сировина (Type=1 в ERP)
)

// Entry — позиция каталога склада. Снимок на момент запроса, не кешируется.
type Entry struct {
	Code      string
	Name      string
	Kind      ItemKind
	Warehouse string
}

// Warehouse — склад ERP (он же субсклад в отчётах).
type Warehouse struct {
	ID   string
	Name string
	Path string
}

type Warehouses []Warehouse

// ByID ищет склад по идентификатору.
func (ws Warehouses) ByID(id string) (Warehouse, bool) {
	for _, w := range ws {
		if w.ID == id {
			return w, true
		}
	}
	return Warehouse{}, false
}

// Resolve принимает id или название склада (без учёта регистра).
func (ws Warehouses) Resolve(s string) (Warehouse, bool) {
	s = strings.TrimSpace(s)
	for _, w := range ws {
		if strings.EqualFold(w.ID, s) || strings.EqualFold(w.Name, s) {
			return w, true
		}
	}
	return Warehouse{}, false
}

// Filter оставляет позиции нужного вида.
func Filter(entries []Entry, kind ItemKind) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
