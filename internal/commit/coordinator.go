// Package commit собирает итоговую запись из завершённой сессии и фиксирует её:
// для заказа и выпуска продукции сначала в ERP, потом локально.
package commit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Spok95/olimpia-bot/internal/dialog"
	"github.com/Spok95/olimpia-bot/internal/domain/catalog"
	"github.com/Spok95/olimpia-bot/internal/domain/counterparties"
	"github.com/Spok95/olimpia-bot/internal/domain/records"
	"github.com/Spok95/olimpia-bot/internal/infra/erp"
	"github.com/shopspring/decimal"
)

var (
	// ErrRejected — ERP не провела документ (или недоступна). Локальной записи нет.
	ErrRejected = errors.New("commit: rejected by external system")
	// ErrPersistence — локальная запись не удалась. Если ERP уже провела документ,
	// Result.ExternalRef заполнен.
	ErrPersistence = errors.New("commit: local persistence failed")
	// ErrCounterpartyUnknown — пользователь не привязан к контрагенту.
	ErrCounterpartyUnknown = errors.New("commit: counterparty unknown")
	// ErrAttachment — не удалось получить вложение.
	ErrAttachment = errors.New("commit: attachment unavailable")
	// ErrInvalidRecord — данные сессии не собираются в корректную запись.
	ErrInvalidRecord = errors.New("commit: invalid record")
)

type Submitter interface {
	SubmitOrder(ctx context.Context, warehouseID string, req erp.OrderRequest) (erp.Ack, error)
	SubmitProduction(ctx context.Context, warehouseID string, req erp.ProductionRequest) (erp.Ack, error)
}

type Store interface {
	Insert(ctx context.Context, rec records.Record) (int64, error)
	// FindBySession возвращает records.ErrNotFound, если сессия ещё не сохранена.
	FindBySession(ctx context.Context, kind records.Kind, sessionID string) (int64, string, error)
}

type Counterparties interface {
	GetByTelegramID(ctx context.Context, tgID int64) (*counterparties.Counterparty, error)
}

// BlobFetcher отдаёт содержимое вложения по его handle (file_id Telegram).
type BlobFetcher interface {
	Fetch(ctx context.Context, handle string) ([]byte, error)
}

type Result struct {
	RecordID    int64
	ExternalRef string
}

type Coordinator struct {
	submitter  Submitter
	store      Store
	cps        Counterparties
	blobs      BlobFetcher
	warehouses catalog.Warehouses
	log        *slog.Logger
	now        func() time.Time
}

func NewCoordinator(sub Submitter, store Store, cps Counterparties, blobs BlobFetcher, ws catalog.Warehouses, log *slog.Logger) *Coordinator {
	return &Coordinator{
		submitter:  sub,
		store:      store,
		cps:        cps,
		blobs:      blobs,
		warehouses: ws,
		log:        log.With("component", "commit"),
		now:        time.Now,
	}
}

// Build собирает запись из сессии и пересчитывает итоги. Сессию не меняет.
func (c *Coordinator) Build(ctx context.Context, s *dialog.Session) (records.Record, error) {
	cp, err := c.cps.GetByTelegramID(ctx, s.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup counterparty: %w", err)
	}
	if cp == nil {
		return nil, ErrCounterpartyUnknown
	}
	meta := records.Meta{
		SessionID:    s.ID,
		UserID:       s.UserID,
		Counterparty: records.Counterparty{Code: cp.Code, Name: cp.Name, Warehouse: cp.Warehouse},
		ExternalRef:  s.ExternalRef,
		CreatedAt:    c.now(),
	}

	p := parser{}
	var rec records.Record
	switch s.Kind {
	case dialog.KindMerchReport:
		meta.Subwarehouse = c.warehouseName(s.Field(dialog.FieldSubwarehouse))
		r := &records.MerchReport{Meta: meta, Shop: s.Field(dialog.FieldShop)}
		for _, it := range s.Items {
			mi := records.MerchItem{
				Name:       it[dialog.FieldProductName],
				Qty:        p.dec(it[dialog.FieldQuantity]),
				Price:      p.dec(it[dialog.FieldPrice]),
				PromoQty:   p.dec(it[dialog.FieldPromoQuantity]),
				PromoPrice: p.dec(it[dialog.FieldPromoPrice]),
			}
			if h := it[dialog.FieldPhoto]; h != "" {
				mi.Photo = &records.Photo{FileID: h}
			}
			r.Items = append(r.Items, mi)
		}
		r.Recalc()
		rec = r
	case dialog.KindOrder:
		meta.Subwarehouse = c.warehouseName(s.Field(dialog.FieldWarehouse))
		r := &records.Order{Meta: meta, Warehouse: meta.Subwarehouse, Comment: s.Field(dialog.FieldComment)}
		for _, it := range s.Items {
			r.Items = append(r.Items, records.OrderLine{
				Code:  it[dialog.FieldProduct],
				Name:  it[dialog.NameField(dialog.FieldProduct)],
				Qty:   p.dec(it[dialog.FieldQuantity]),
				Price: p.dec(it[dialog.FieldPrice]),
			})
		}
		r.Recalc()
		rec = r
	case dialog.KindManufactured:
		meta.Subwarehouse = c.warehouseName(s.Field(dialog.FieldWarehouse))
		rec = &records.Manufactured{
			Meta:      meta,
			Warehouse: meta.Subwarehouse,
			Code:      s.Field(dialog.FieldProduct),
			Name:      s.Field(dialog.NameField(dialog.FieldProduct)),
			Qty:       p.dec(s.Field(dialog.FieldQuantity)),
		}
	case dialog.KindRawUsage:
		meta.Subwarehouse = c.warehouseName(s.Field(dialog.FieldWarehouse))
		rec = &records.RawUsage{
			Meta:      meta,
			Warehouse: meta.Subwarehouse,
			Code:      s.Field(dialog.FieldMaterial),
			Name:      s.Field(dialog.FieldMaterialName),
			UsedQty:   p.dec(s.Field(dialog.FieldUsedQuantity)),
			DefectQty: p.dec(s.Field(dialog.FieldDefectQuantity)),
		}
	case dialog.KindDefective:
		meta.Subwarehouse = c.warehouseName(s.Field(dialog.FieldSubwarehouse))
		r := &records.Defective{Meta: meta}
		for _, it := range s.Items {
			r.Lines = append(r.Lines, records.DefectiveLine{
				Name:       it[dialog.FieldProductName],
				ReturnDate: it[dialog.FieldReturnDate],
				Qty:        p.dec(it[dialog.FieldQuantity]),
				TotalPrice: p.dec(it[dialog.FieldTotalPrice]),
			})
		}
		r.Recalc()
		rec = r
	case dialog.KindPallet:
		meta.Subwarehouse = c.warehouseName(s.Field(dialog.FieldSubwarehouse))
		r := &records.Pallet{Meta: meta}
		for _, it := range s.Items {
			r.Lines = append(r.Lines, records.PalletLine{
				Qty:        p.dec(it[dialog.FieldQuantity]),
				TotalPrice: p.dec(it[dialog.FieldTotalPrice]),
			})
		}
		r.Recalc()
		rec = r
	default:
		return nil, fmt.Errorf("%w: unknown flow %q", ErrInvalidRecord, s.Kind)
	}
	if p.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, p.err)
	}
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Finalize фиксирует сессию. При ошибке сессия пользователя остаётся на подтверждении;
// Result.ExternalRef возвращается и при ErrPersistence, чтобы повтор не отправлял документ снова.
func (c *Coordinator) Finalize(ctx context.Context, s *dialog.Session) (Result, error) {
	log := c.log.With("user_id", s.UserID, "kind", s.Kind, "session_id", s.ID)

	rec, err := c.Build(ctx, s)
	if err != nil {
		return Result{}, err
	}

	// сессия могла быть зафиксирована раньше, а очистить её не удалось
	id, ref, err := c.store.FindBySession(ctx, rec.Kind(), s.ID)
	switch {
	case err == nil:
		log.Info("session already committed", "record_id", id, "external_ref", ref)
		return Result{RecordID: id, ExternalRef: ref}, nil
	case !errors.Is(err, records.ErrNotFound):
		log.Error("lookup committed record failed", "err", err)
		return Result{ExternalRef: s.ExternalRef}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if mr, ok := rec.(*records.MerchReport); ok {
		if err := c.attachPhotos(ctx, mr); err != nil {
			return Result{}, err
		}
	}

	res := Result{ExternalRef: s.ExternalRef}
	if res.ExternalRef == "" {
		ref, err := c.submit(ctx, s, rec)
		if err != nil {
			log.Warn("external submission failed", "err", err)
			return Result{}, err
		}
		res.ExternalRef = ref
	} else {
		log.Info("external document already exists, skipping submission", "external_ref", res.ExternalRef)
	}
	rec.Common().ExternalRef = res.ExternalRef

	id, err = c.store.Insert(ctx, rec)
	switch {
	case errors.Is(err, records.ErrDuplicate):
		log.Info("record already stored", "record_id", id)
	case err != nil:
		log.Error("persist record failed", "err", err, "external_ref", res.ExternalRef)
		return res, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	res.RecordID = id
	log.Info("record committed", "record_id", id, "external_ref", res.ExternalRef)
	return res, nil
}

// submit проводит документ в ERP для заказа и выпуска продукции; для прочих — пустая ссылка.
func (c *Coordinator) submit(ctx context.Context, s *dialog.Session, rec records.Record) (string, error) {
	var (
		ack erp.Ack
		err error
	)
	switch r := rec.(type) {
	case *records.Order:
		ack, err = c.submitter.SubmitOrder(ctx, s.Field(dialog.FieldWarehouse), orderRequest(r, c.now()))
	case *records.Manufactured:
		ack, err = c.submitter.SubmitProduction(ctx, s.Field(dialog.FieldWarehouse), erp.ProductionRequest{
			Number:  r.SessionID,
			Buyer:   r.Counterparty.Code,
			Product: []erp.ProductionLine{{Code: r.Code, Amount: erpNumber(r.Qty, -1)}},
		})
	default:
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return ack.Document, nil
}

func orderRequest(r *records.Order, now time.Time) erp.OrderRequest {
	req := erp.OrderRequest{
		Number:       r.SessionID,
		Date:         now.Format("02.01.2006 15:04:05"),
		Buyer:        r.Counterparty.Code,
		Total:        erpNumber(r.Total, 2),
		Subwarehouse: r.Warehouse,
	}
	if r.Comment != "" {
		comment := r.Comment
		req.Comment = &comment
	}
	for _, l := range r.Items {
		req.Goods = append(req.Goods, erp.OrderLine{
			Code:   l.Code,
			Amount: erpNumber(l.Qty, -1),
			Price:  erpNumber(l.Price, 2),
			Summ:   erpNumber(l.LineTotal, 2),
		})
	}
	return req
}

func (c *Coordinator) attachPhotos(ctx context.Context, r *records.MerchReport) error {
	for i := range r.Items {
		ph := r.Items[i].Photo
		if ph == nil || ph.Data != "" {
			continue
		}
		if c.blobs == nil {
			return fmt.Errorf("%w: no blob fetcher configured", ErrAttachment)
		}
		data, err := c.blobs.Fetch(ctx, ph.FileID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAttachment, err)
		}
		ph.Data = base64.StdEncoding.EncodeToString(data)
	}
	return nil
}

func (c *Coordinator) warehouseName(id string) string {
	if w, ok := c.warehouses.ByID(id); ok {
		return w.Name
	}
	return id
}

// erpNumber форматирует число для 1С: десятичная запятая. places < 0 — без округления.
func erpNumber(d decimal.Decimal, places int32) string {
	s := d.String()
	if places >= 0 {
		s = d.StringFixed(places)
	}
	out := []byte(s)
	for i, ch := range out {
		if ch == '.' {
			out[i] = ','
		}
	}
	return string(out)
}

// parser запоминает первую ошибку разбора, чтобы не проверять каждое поле отдельно.
type parser struct{ err error }

func (p *parser) dec(s string) decimal.Decimal {
	if s == "" {
		if p.err == nil {
			p.err = errors.New("missing numeric value")
		}
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("parse %q: %w", s, err)
	}
	return d
}

// Reason — метка причины сбоя для метрик.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrCounterpartyUnknown):
		return "counterparty"
	case errors.Is(err, ErrAttachment):
		return "attachment"
	case errors.Is(err, ErrInvalidRecord):
		return "invalid"
	}
	return "internal"
}
