package commit

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Spok95/olimpia-bot/internal/dialog"
	"github.com/Spok95/olimpia-bot/internal/domain/catalog"
	"github.com/Spok95/olimpia-bot/internal/domain/counterparties"
	"github.com/Spok95/olimpia-bot/internal/domain/records"
	"github.com/Spok95/olimpia-bot/internal/infra/erp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	orders      []erp.OrderRequest
	productions []erp.ProductionRequest
	err         error
	doc         string
}

func (f *fakeSubmitter) SubmitOrder(_ context.Context, _ string, req erp.OrderRequest) (erp.Ack, error) {
	f.orders = append(f.orders, req)
	if f.err != nil {
		return erp.Ack{}, f.err
	}
	return erp.Ack{Document: f.doc}, nil
}

func (f *fakeSubmitter) SubmitProduction(_ context.Context, _ string, req erp.ProductionRequest) (erp.Ack, error) {
	f.productions = append(f.productions, req)
	if f.err != nil {
		return erp.Ack{}, f.err
	}
	return erp.Ack{Document: f.doc}, nil
}

type fakeStore struct {
	inserted []records.Record
	err      error
	findErr  error
}

func (f *fakeStore) FindBySession(_ context.Context, kind records.Kind, sessionID string) (int64, string, error) {
	if f.findErr != nil {
		return 0, "", f.findErr
	}
	for i, rec := range f.inserted {
		if m := rec.Common(); rec.Kind() == kind && m.SessionID == sessionID {
			return int64(i + 1), m.ExternalRef, nil
		}
	}
	return 0, "", records.ErrNotFound
}

func (f *fakeStore) Insert(_ context.Context, rec records.Record) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.inserted = append(f.inserted, rec)
	return int64(len(f.inserted)), nil
}

type fakeCounterparties map[int64]*counterparties.Counterparty

func (f fakeCounterparties) GetByTelegramID(_ context.Context, id int64) (*counterparties.Counterparty, error) {
	return f[id], nil
}

type fakeBlobs map[string][]byte

func (f fakeBlobs) Fetch(_ context.Context, handle string) ([]byte, error) {
	b, ok := f[handle]
	if !ok {
		return nil, errors.New("file not found")
	}
	return b, nil
}

var testWarehouses = catalog.Warehouses{{ID: "a", Name: "A", Path: "BaseWeb"}}

func newCoordinator(sub *fakeSubmitter, store *fakeStore, blobs BlobFetcher) *Coordinator {
	cps := fakeCounterparties{42: {Code: "K-001", Name: "ТОВ Ромашка", Warehouse: "A"}}
	c := NewCoordinator(sub, store, cps, blobs, testWarehouses, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	return c
}

func orderSession() *dialog.Session {
	return &dialog.Session{
		ID: "3f1c", UserID: 42, Kind: dialog.KindOrder, Step: dialog.FieldConfirm,
		Fields: map[string]string{dialog.FieldWarehouse: "a", dialog.FieldComment: "urgent"},
		Items: []dialog.Item{{
			dialog.FieldProduct: "X1", dialog.NameField(dialog.FieldProduct): "Сир",
			dialog.FieldQuantity: "3", dialog.FieldPrice: "12",
		}},
	}
}

func TestFinalizeOrder(t *testing.T) {
	sub := &fakeSubmitter{doc: "ЗК-0001"}
	store := &fakeStore{}
	c := newCoordinator(sub, store, nil)

	res, err := c.Finalize(context.Background(), orderSession())
	require.NoError(t, err)
	assert.Equal(t, "ЗК-0001", res.ExternalRef)
	assert.Equal(t, int64(1), res.RecordID)

	require.Len(t, sub.orders, 1)
	req := sub.orders[0]
	assert.Equal(t, "3f1c", req.Number)
	assert.Equal(t, "K-001", req.Buyer)
	assert.Equal(t, "36,00", req.Total)
	assert.Equal(t, "01.03.2025 10:00:00", req.Date)
	assert.Equal(t, erp.OrderLine{Code: "X1", Amount: "3", Price: "12,00", Summ: "36,00"}, req.Goods[0])
	require.NotNil(t, req.Comment)
	assert.Equal(t, "urgent", *req.Comment)

	require.Len(t, store.inserted, 1)
	o := store.inserted[0].(*records.Order)
	assert.Equal(t, "36.00", records.Money(o.Total))
	assert.Equal(t, "ЗК-0001", o.ExternalRef)
	assert.Equal(t, "A", o.Warehouse)
}

func TestFinalizeExternalFailureWritesNothing(t *testing.T) {
	sub := &fakeSubmitter{err: erp.ErrRejected}
	store := &fakeStore{}
	c := newCoordinator(sub, store, nil)

	res, err := c.Finalize(context.Background(), orderSession())
	require.ErrorIs(t, err, ErrRejected)
	assert.Empty(t, res.ExternalRef)
	assert.Empty(t, store.inserted)
	assert.Equal(t, "rejected", Reason(err))

	sub.err = erp.ErrUnavailable
	_, err = c.Finalize(context.Background(), orderSession())
	require.ErrorIs(t, err, ErrRejected)
	require.ErrorIs(t, err, erp.ErrUnavailable)
	assert.Empty(t, store.inserted)
}

func TestFinalizePersistenceFailureKeepsExternalRef(t *testing.T) {
	sub := &fakeSubmitter{doc: "ВП-77"}
	store := &fakeStore{err: errors.New("db down")}
	c := newCoordinator(sub, store, nil)

	s := &dialog.Session{
		ID: "s-9", UserID: 42, Kind: dialog.KindManufactured, Step: dialog.FieldConfirm,
		Fields: map[string]string{
			dialog.FieldWarehouse: "a", dialog.FieldProduct: "X1",
			dialog.NameField(dialog.FieldProduct): "Сир", dialog.FieldQuantity: "5",
		},
	}
	res, err := c.Finalize(context.Background(), s)
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "ВП-77", res.ExternalRef)
	require.Len(t, sub.productions, 1)
	assert.Equal(t, []erp.ProductionLine{{Code: "X1", Amount: "5"}}, sub.productions[0].Product)

	// повтор с сохранённой ссылкой не отправляет документ заново
	store.err = nil
	s.ExternalRef = res.ExternalRef
	res, err = c.Finalize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "ВП-77", res.ExternalRef)
	assert.Len(t, sub.productions, 1)
	assert.Equal(t, "ВП-77", store.inserted[0].Common().ExternalRef)
}

func TestFinalizeDuplicateIsSuccess(t *testing.T) {
	c := newCoordinator(&fakeSubmitter{}, &fakeStore{err: records.ErrDuplicate}, nil)
	s := &dialog.Session{
		ID: "s-1", UserID: 42, Kind: dialog.KindPallet, Step: dialog.FieldConfirm,
		Fields: map[string]string{dialog.FieldSubwarehouse: "a"},
		Items:  []dialog.Item{{dialog.FieldQuantity: "2", dialog.FieldTotalPrice: "100"}},
	}
	_, err := c.Finalize(context.Background(), s)
	require.NoError(t, err)
}

func TestFinalizeMerchAttachesPhotos(t *testing.T) {
	store := &fakeStore{}
	sub := &fakeSubmitter{}
	c := newCoordinator(sub, store, fakeBlobs{"file-1": []byte("jpeg")})

	s := &dialog.Session{
		ID: "s-2", UserID: 42, Kind: dialog.KindMerchReport, Step: dialog.FieldConfirm,
		Fields: map[string]string{dialog.FieldShop: "АТБ", dialog.FieldSubwarehouse: "a"},
		Items: []dialog.Item{
			{dialog.FieldProductName: "Сир", dialog.FieldQuantity: "2", dialog.FieldPrice: "10.5",
				dialog.FieldPromoQuantity: "0", dialog.FieldPromoPrice: "0", dialog.FieldPhoto: "file-1"},
			{dialog.FieldProductName: "Масло", dialog.FieldQuantity: "1", dialog.FieldPrice: "5.25",
				dialog.FieldPromoQuantity: "0", dialog.FieldPromoPrice: "0", dialog.FieldPhoto: ""},
		},
	}
	res, err := c.Finalize(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, res.ExternalRef)
	assert.Empty(t, sub.orders)

	mr := store.inserted[0].(*records.MerchReport)
	assert.Equal(t, "26.25", records.Money(mr.Total))
	assert.Equal(t, "A", mr.Subwarehouse)
	require.NotNil(t, mr.Items[0].Photo)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg")), mr.Items[0].Photo.Data)
	assert.Nil(t, mr.Items[1].Photo)

	s.Items[0][dialog.FieldPhoto] = "missing"
	_, err = c.Finalize(context.Background(), s)
	require.ErrorIs(t, err, ErrAttachment)
}

func TestBuildErrors(t *testing.T) {
	c := newCoordinator(&fakeSubmitter{}, &fakeStore{}, nil)
	ctx := context.Background()

	s := orderSession()
	s.UserID = 7
	_, err := c.Build(ctx, s)
	require.ErrorIs(t, err, ErrCounterpartyUnknown)

	s = orderSession()
	s.Items = nil
	_, err = c.Build(ctx, s)
	require.ErrorIs(t, err, ErrInvalidRecord)

	s = orderSession()
	s.Items[0][dialog.FieldQuantity] = "0"
	_, err = c.Build(ctx, s)
	require.ErrorIs(t, err, ErrInvalidRecord)

	s = orderSession()
	s.Items[0][dialog.FieldPrice] = "-1"
	_, err = c.Build(ctx, s)
	require.ErrorIs(t, err, ErrInvalidRecord)

	s = orderSession()
	s.Items[0][dialog.FieldPrice] = "abc"
	_, err = c.Build(ctx, s)
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestBuildDoesNotTouchSession(t *testing.T) {
	c := newCoordinator(&fakeSubmitter{}, &fakeStore{}, nil)
	s := orderSession()
	before := s.Clone()

	rec, err := c.Build(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, before, s)
	assert.Contains(t, rec.Summary(), "Разом: 36.00")
}

func TestFinalizeCommittedSessionIsNotResubmitted(t *testing.T) {
	sub := &fakeSubmitter{doc: "ЗК-0001"}
	store := &fakeStore{}
	c := newCoordinator(sub, store, nil)

	_, err := c.Finalize(context.Background(), orderSession())
	require.NoError(t, err)

	// та же сессия без ExternalRef: очистка после фиксации не прошла
	res, err := c.Finalize(context.Background(), orderSession())
	require.NoError(t, err)
	assert.Equal(t, Result{RecordID: 1, ExternalRef: "ЗК-0001"}, res)
	assert.Len(t, sub.orders, 1)
	assert.Len(t, store.inserted, 1)
}

func TestFinalizeLookupFailureDoesNotSubmit(t *testing.T) {
	sub := &fakeSubmitter{doc: "ЗК-0001"}
	store := &fakeStore{findErr: errors.New("db down")}
	c := newCoordinator(sub, store, nil)

	_, err := c.Finalize(context.Background(), orderSession())
	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, sub.orders)
	assert.Empty(t, store.inserted)
}
