// Package razorpay is an HTTP client for the Razorpay orders API.
package razorpay

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/storefront/internal/domain/payment"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.razorpay.com"

// Config configures the client.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

var _ payment.Gateway = (*Client)(nil)

// Client creates gateway orders.
type Client struct {
	http    *http.Client
	baseURL string
	keyID   string
	secret  string
}

// New creates a Client. Outgoing requests are traced through otelhttp.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		keyID:   cfg.KeyID,
		secret:  cfg.KeySecret,
	}
}

// CreateOrder registers an order of req.Amount minor units at the gateway.
// Transport failures and 5xx answers map to payment.ErrGatewayUnavailable;
// 4xx answers map to payment.ErrGatewayRejected.
func (c *Client) CreateOrder(ctx context.Context, req payment.CreateOrderRequest) (*payment.GatewayOrder, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders",
		bytes.NewReader(encodeOrderRequest(req)))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrGatewayUnavailable, "create order: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(payment.ErrGatewayUnavailable, "read response: %v", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(payment.ErrGatewayUnavailable, "create order: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, errors.Wrapf(payment.ErrGatewayRejected, "create order: status %d: %s",
			resp.StatusCode, errorDescription(body))
	}

	order, err := decodeOrder(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return order, nil
}

func encodeOrderRequest(req payment.CreateOrderRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(req.Amount)
	e.FieldStart("currency")
	e.Str(req.Currency)
	e.FieldStart("receipt")
	e.Str(req.Receipt)
	if len(req.Notes) > 0 {
		keys := make([]string, 0, len(req.Notes))
		for k := range req.Notes {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		e.FieldStart("notes")
		e.ObjStart()
		for _, k := range keys {
			e.FieldStart(k)
			e.Str(req.Notes[k])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeOrder(body []byte) (*payment.GatewayOrder, error) {
	o := &payment.GatewayOrder{}
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			o.ID, err = d.Str()
		case "amount":
			o.Amount, err = d.Int64()
		case "currency":
			o.Currency, err = d.Str()
		case "receipt":
			if d.Next() == jx.Null {
				return d.Null()
			}
			o.Receipt, err = d.Str()
		case "status":
			o.Status, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if o.ID == "" {
		return nil, errors.New("order id missing")
	}
	return o, nil
}

// errorDescription extracts error.description from a gateway error body.
func errorDescription(body []byte) string {
	var desc string
	_ = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "error" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "description" || d.Next() != jx.String {
				return d.Skip()
			}
			var err error
			desc, err = d.Str()
			return err
		})
	})
	if desc == "" {
		return "unknown error"
	}
	return desc
}
