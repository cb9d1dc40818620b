package erp

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
)

const (
	actionCreateOrder      = "CreateOrder"
	actionCreateProduction = "CreateProduction"
)

// OrderLine — строка заказа. Числа в формате 1С: "12,00".
type OrderLine struct {
	Code   string `json:"code"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
	Summ   string `json:"summ"`
}

type OrderRequest struct {
	Number       string      `json:"number"`
	Date         string      `json:"date"`
	Buyer        string      `json:"buyer"`
	Total        string      `json:"total"`
	Comment      *string     `json:"comment"`
	Goods        []OrderLine `json:"goods"`
	Subwarehouse string      `json:"subwarehouse"`
}

type ProductionLine struct {
	Code   string `json:"code"`
	Amount string `json:"amount"`
}

type ProductionRequest struct {
	Number  string           `json:"number"`
	Buyer   string           `json:"buyer"`
	Product []ProductionLine `json:"product"`
}

// Ack — подтверждение ERP: ссылка на созданный документ.
type Ack struct {
	Document string
}

type xmlAnswer struct {
	Answer     string `xml:"Answer"`
	Production string `xml:"production"`
	Order      string `xml:"order"`
	Error      string `xml:"error"`
}

// SubmitOrder проводит заказ на складе warehouseID.
func (c *Client) SubmitOrder(ctx context.Context, warehouseID string, req OrderRequest) (Ack, error) {
	return c.submit(ctx, warehouseID, actionCreateOrder, req, func(a xmlAnswer) string { return a.Order })
}

// SubmitProduction проводит выпуск продукции на складе warehouseID.
func (c *Client) SubmitProduction(ctx context.Context, warehouseID string, req ProductionRequest) (Ack, error) {
	return c.submit(ctx, warehouseID, actionCreateProduction, req, func(a xmlAnswer) string { return a.Production })
}

// submit не повторяет запрос: проведение документа не идемпотентно на стороне ERP.
func (c *Client) submit(ctx context.Context, warehouseID, action string, payload any, docOf func(xmlAnswer) string) (Ack, error) {
	w, ok := c.warehouses.ByID(warehouseID)
	if !ok {
		return Ack{}, fmt.Errorf("%w: %q", ErrUnknownWarehouse, warehouseID)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Ack{}, fmt.Errorf("encode %s: %w", action, err)
	}
	data, err := c.do(ctx, action, http.MethodPost, c.endpoint(w, action), body)
	if err != nil {
		return Ack{}, err
	}

	var ans xmlAnswer
	if err := xml.Unmarshal(data, &ans); err != nil {
		return Ack{}, fmt.Errorf("%w: %s: %v", ErrMalformed, action, err)
	}
	if !strings.EqualFold(strings.TrimSpace(ans.Answer), "ok") {
		reason := strings.TrimSpace(ans.Error)
		if reason == "" {
			reason = strings.TrimSpace(ans.Answer)
		}
		c.log.Warn("erp rejected document", "action", action, "reason", reason)
		return Ack{}, fmt.Errorf("%w: %s: %s", ErrRejected, action, reason)
	}
	doc := strings.TrimSpace(docOf(ans))
	if doc == "" {
		return Ack{}, fmt.Errorf("%w: %s: answer ok without document reference", ErrMalformed, action)
	}
	return Ack{Document: doc}, nil
}
