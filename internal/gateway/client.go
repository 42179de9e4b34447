// Package gateway implements the external payment processor client: intent
// creation over HTTP and local HMAC-SHA256 verification of completion
// signatures.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/veldmart/checkout/internal/domain/payment"
)

// Config holds processor connection settings.
type Config struct {
	// BaseURL is the processor API root, e.g. https://api.processor.test.
	BaseURL string
	// KeyID and Secret authenticate this merchant. Secret is also the HMAC
	// key for signature verification.
	KeyID  string
	Secret string
	// Timeout bounds every processor call. Zero means 10s.
	Timeout time.Duration
}

// Client talks to the payment processor.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ payment.Gateway = (*Client)(nil)

// NewClient builds a processor client with a bounded-timeout HTTP client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type intentRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type intentResponse struct {
	ID       string `json:"id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// CreateIntent opens a payment intent scoped to the order total. Transport
// errors and processor 5xx responses map to payment.ErrGatewayUnavailable so
// the caller can surface them as retryable.
func (c *Client) CreateIntent(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (*payment.Intent, error) {
	body, err := json.Marshal(intentRequest{
		Amount:   amount.StringFixed(2),
		Currency: currency,
		Receipt:  orderID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode intent request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/intents", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build intent request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(payment.ErrGatewayUnavailable, "processor status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, errors.Errorf("create intent: processor status %d", resp.StatusCode)
	}

	var ir intentResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ir); err != nil {
		return nil, errors.Wrap(err, "decode intent response")
	}
	if ir.ID == "" {
		return nil, errors.New("processor returned empty intent id")
	}

	return &payment.Intent{
		ID:       ir.ID,
		OrderID:  orderID,
		Amount:   amount,
		Currency: currency,
	}, nil
}

// VerifySignature recomputes HMAC-SHA256(orderID|paymentID) under the shared
// secret and compares it to the client-reported signature in constant time.
func (c *Client) VerifySignature(orderID, paymentID, signature string) error {
	mac := hmac.New(sha256.New, []byte(c.cfg.Secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return payment.ErrSignatureMismatch
	}
	if subtle.ConstantTimeCompare(expected, provided) != 1 {
		return payment.ErrSignatureMismatch
	}
	return nil
}

// Sign produces the completion signature for orderID and paymentID. Exists
// for seeding and tests; the real signature arrives from the processor.
func (c *Client) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.Secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
