// Package erp — клиент учётной системы (1С): каталог складов и проведение документов.
package erp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Spok95/olimpia-bot/internal/domain/catalog"
	"github.com/Spok95/olimpia-bot/internal/infra/metrics"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrUnavailable — ERP недоступна или ответила не-2xx.
	ErrUnavailable = errors.New("erp: upstream unavailable")
	// ErrMalformed — ответ не разбирается в ожидаемую структуру.
	ErrMalformed = errors.New("erp: malformed response")
	// ErrRejected — ERP получила документ, но не провела его.
	ErrRejected = errors.New("erp: submission rejected")
	// ErrUnknownWarehouse — склада нет в конфигурации.
	ErrUnknownWarehouse = errors.New("erp: unknown warehouse")
)

const maxBody = 8 << 20

type Options struct {
	BaseURL            string
	Username           string
	Password           string
	InsecureSkipVerify bool
	Timeout            time.Duration
	Retries            uint64
	Warehouses         catalog.Warehouses
}

type Client struct {
	baseURL    string
	username   string
	password   string
	retries    uint64
	backoff    time.Duration
	warehouses catalog.Warehouses
	http       *http.Client
	log        *slog.Logger
}

func NewClient(opts Options, log *slog.Logger) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		// у ERP самоподписанный сертификат
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		username:   opts.Username,
		password:   opts.Password,
		retries:    opts.Retries,
		backoff:    200 * time.Millisecond,
		warehouses: opts.Warehouses,
		http:       &http.Client{Timeout: timeout, Transport: tr},
		log:        log.With("component", "erp"),
	}
}

// Warehouses — склады из конфигурации.
func (c *Client) Warehouses() catalog.Warehouses { return c.warehouses }

func (c *Client) endpoint(w catalog.Warehouse, action string) string {
	q := url.Values{"action": {action}}
	return fmt.Sprintf("%s/%s/hs/base?%s", c.baseURL, url.PathEscape(w.Path), q.Encode())
}

// do выполняет запрос и возвращает тело ответа 2xx.
func (c *Client) do(ctx context.Context, action, method, endpoint string, body []byte) ([]byte, error) {
	start := time.Now()
	defer func() { metrics.ERPDuration.WithLabelValues(action).Observe(time.Since(start).Seconds()) }()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ERPRequests.WithLabelValues(action, "transport_error").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		metrics.ERPRequests.WithLabelValues(action, "transport_error").Inc()
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrUnavailable, action, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ERPRequests.WithLabelValues(action, "bad_status").Inc()
		return nil, &StatusError{Action: action, Code: resp.StatusCode}
	}
	metrics.ERPRequests.WithLabelValues(action, "ok").Inc()
	return data, nil
}

// doIdempotent повторяет запрос при сетевых ошибках и 5xx.
func (c *Client) doIdempotent(ctx context.Context, action, endpoint string) ([]byte, error) {
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))

	var out []byte
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		data, err := c.do(ctx, action, http.MethodGet, endpoint, nil)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Code < 500 {
				return err
			}
			c.log.Debug("erp request failed, retrying", "action", action, "err", err)
			return retry.RetryableError(err)
		}
		out = data
		return nil
	})
	return out, err
}

// StatusError — ERP ответила не-2xx. errors.Is(err, ErrUnavailable) == true.
type StatusError struct {
	Action string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("erp: %s: unexpected status %d", e.Action, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrUnavailable }
