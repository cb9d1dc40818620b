package erp

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/Spok95/olimpia-bot/internal/domain/catalog"
)

const actionCatalog = "getreportrest"

type xmlReport struct {
	Products []xmlProduct `xml:"Product"`
}

type xmlProduct struct {
	Code string `xml:"Code,attr"`
	Good string `xml:"Good,attr"`
	Type string `xml:"Type,attr"`
}

func kindOf(t string) (catalog.ItemKind, bool) {
	switch strings.TrimSpace(t) {
	case "1":
		return catalog.KindRawMaterial, true
	case "2":
		return catalog.KindFinishedGood, true
	}
	return "", false
}

// FetchCatalog запрашивает актуальные остатки склада и возвращает позиции нужного вида.
// Каждый вызов идёт в ERP: остатки меняются почти в реальном времени.
func (c *Client) FetchCatalog(ctx context.Context, warehouseID string, kind catalog.ItemKind) ([]catalog.Entry, error) {
	w, ok := c.warehouses.ByID(warehouseID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWarehouse, warehouseID)
	}
	data, err := c.doIdempotent(ctx, actionCatalog, c.endpoint(w, actionCatalog))
	if err != nil {
		return nil, err
	}
	entries, err := parseCatalog(data, w.ID)
	if err != nil {
		return nil, err
	}
	return catalog.Filter(entries, kind), nil
}

func parseCatalog(data []byte, warehouseID string) ([]catalog.Entry, error) {
	var rep xmlReport
	if err := xml.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out := make([]catalog.Entry, 0, len(rep.Products))
	seen := make(map[string]struct{}, len(rep.Products))
	for i, p := range rep.Products {
		code, name := strings.TrimSpace(p.Code), strings.TrimSpace(p.Good)
		if code == "" || name == "" {
			return nil, fmt.Errorf("%w: product #%d without code or name", ErrMalformed, i+1)
		}
		kind, ok := kindOf(p.Type)
		if !ok {
			// прочие типы (услуги, тара) в меню не попадают
			continue
		}
		// остатки приходят по сериям — одна позиция может повторяться
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, catalog.Entry{Code: code, Name: name, Kind: kind, Warehouse: warehouseID})
	}
	return out, nil
}
