// Package paypal talks to the PayPal REST API: Orders v2 and webhook
// signature verification. A client-credentials token is fetched for every
// call and never pooled.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fatflowers/smmpay/internal/platform/gateway"
	"github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/metrics"
	"github.com/fatflowers/smmpay/pkg/money"
	"github.com/fatflowers/smmpay/pkg/types"

	"go.uber.org/zap"
)

const (
	StatusCompleted = "COMPLETED"

	maxBodyBytes = 1 << 20
)

// Transmission headers PayPal signs webhook deliveries with.
const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderCertURL          = "Paypal-Cert-Url"
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
)

type Client struct {
	cfg  config.PayPalConfig
	http *http.Client
	log  *zap.SugaredLogger
}

var _ gateway.PayPal = (*Client)(nil)

func New(cfg *config.Config, log *zap.SugaredLogger) *Client {
	timeout := cfg.Payment.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return NewWithHTTPClient(cfg.Payment.PayPal, &http.Client{Timeout: timeout}, log)
}

func NewWithHTTPClient(cfg config.PayPalConfig, hc *http.Client, log *zap.SugaredLogger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: hc, log: log}
}

func (c *Client) Provider() types.PaymentProvider { return types.PaymentProviderPayPal }

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string  `json:"reference_id,omitempty"`
	CustomID    string  `json:"custom_id,omitempty"`
	Amount      *amount `json:"amount,omitempty"`
	Payments    *struct {
		Captures []struct {
			ID     string  `json:"id"`
			Status string  `json:"status"`
			Amount *amount `json:"amount"`
		} `json:"captures"`
	} `json:"payments,omitempty"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Links         []link         `json:"links"`
}

type createOrderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
	Payer              *payer             `json:"payer,omitempty"`
}

type applicationContext struct {
	ReturnURL  string `json:"return_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
	UserAction string `json:"user_action"`
}

type payer struct {
	EmailAddress string `json:"email_address,omitempty"`
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req *gateway.IntentRequest) (*gateway.Intent, error) {
	if !c.cfg.Enabled {
		return nil, gateway.ErrGatewayDisabled
	}
	if req.Amount <= 0 || !money.IsValid(req.Amount) {
		return nil, fmt.Errorf("invalid intent amount %d", req.Amount)
	}
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			// both ids carry the transaction id so capture and webhook can find it
			ReferenceID: req.CorrelationID,
			CustomID:    req.CorrelationID,
			Amount:      &amount{CurrencyCode: req.Currency, Value: money.ToMajor(req.Amount)},
		}},
		ApplicationContext: applicationContext{ReturnURL: req.ReturnURL, CancelURL: req.CancelURL, UserAction: "PAY_NOW"},
	}
	if req.Payer != nil && req.Payer.Email != "" {
		body.Payer = &payer{EmailAddress: req.Payer.Email}
	}

	var out order
	if _, err := c.call(ctx, "create_order", http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		return nil, err
	}
	intent := &gateway.Intent{ProviderTransactionID: out.ID}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			intent.RedirectURL = l.Href
			break
		}
	}
	return intent, nil
}

func (c *Client) VerifyPayment(ctx context.Context, providerOrderID string) (bool, error) {
	d, err := c.GetOrderDetails(ctx, providerOrderID)
	if err != nil {
		return false, err
	}
	return d.Status == StatusCompleted, nil
}

func (c *Client) GetOrderDetails(ctx context.Context, providerOrderID string) (*gateway.OrderDetails, error) {
	if !c.cfg.Enabled {
		return nil, gateway.ErrGatewayDisabled
	}
	var out order
	raw, err := c.call(ctx, "get_order", http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(providerOrderID), nil, &out)
	if err != nil {
		return nil, err
	}
	d := &gateway.OrderDetails{ID: out.ID, Status: out.Status, Raw: raw}
	if len(out.PurchaseUnits) > 0 {
		pu := out.PurchaseUnits[0]
		d.CorrelationID = pu.CustomID
		if d.CorrelationID == "" {
			d.CorrelationID = pu.ReferenceID
		}
		if pu.Amount != nil {
			v, err := money.FromMajor(pu.Amount.Value)
			if err != nil {
				return nil, fmt.Errorf("get_order: %w", err)
			}
			d.Amount = v
			d.Currency = pu.Amount.CurrencyCode
		}
	}
	return d, nil
}

func (c *Client) CaptureOrder(ctx context.Context, providerOrderID string) (*gateway.CaptureResult, error) {
	if !c.cfg.Enabled {
		return nil, gateway.ErrGatewayDisabled
	}
	var out order
	raw, err := c.call(ctx, "capture_order", http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(providerOrderID)+"/capture", struct{}{}, &out)
	if err != nil {
		return nil, err
	}
	status := out.Status
	// a completed order can still hold a PENDING capture
	if len(out.PurchaseUnits) > 0 && out.PurchaseUnits[0].Payments != nil && len(out.PurchaseUnits[0].Payments.Captures) > 0 {
		status = out.PurchaseUnits[0].Payments.Captures[0].Status
	}
	return &gateway.CaptureResult{OK: status == StatusCompleted, ProviderStatus: status, Raw: raw}, nil
}

type verifySignatureRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"-"`
}

// encodedBody is sent as is by call.
type encodedBody []byte

// encode appends the event bytes exactly as received; the signature
// covers them, and json.Marshal compacts and escapes a RawMessage.
func (r *verifySignatureRequest) encode() (encodedBody, error) {
	head, err := json.Marshal(*r)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, len(head)+len(r.WebhookEvent)+20))
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"webhook_event":`)
	buf.Write(r.WebhookEvent)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// VerifyWebhookSignature asks PayPal to validate a delivery. It fails
// closed: without a configured webhook id nothing verifies.
func (c *Client) VerifyWebhookSignature(ctx context.Context, header http.Header, rawBody []byte) (bool, error) {
	lg := logctx.FromCtx(ctx, c.log)
	if !c.cfg.Enabled {
		lg.Warnw("paypal_webhook_rejected_gateway_disabled")
		return false, nil
	}
	if c.cfg.WebhookID == "" {
		lg.Errorw("paypal_webhook_id_not_configured", "hint", "set payment.paypal.webhook_id, all webhooks are rejected until then")
		return false, nil
	}
	req := verifySignatureRequest{
		AuthAlgo:         header.Get(HeaderAuthAlgo),
		CertURL:          header.Get(HeaderCertURL),
		TransmissionID:   header.Get(HeaderTransmissionID),
		TransmissionSig:  header.Get(HeaderTransmissionSig),
		TransmissionTime: header.Get(HeaderTransmissionTime),
		WebhookID:        c.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(rawBody),
	}
	if req.AuthAlgo == "" || req.CertURL == "" || req.TransmissionID == "" || req.TransmissionSig == "" || req.TransmissionTime == "" {
		lg.Warnw("paypal_webhook_missing_transmission_headers")
		return false, nil
	}
	if !json.Valid(rawBody) {
		return false, nil
	}
	body, err := req.encode()
	if err != nil {
		return false, fmt.Errorf("verify_webhook: marshal request: %w", err)
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if _, err := c.call(ctx, "verify_webhook", http.MethodPost, "/v1/notifications/verify-webhook-signature", body, &out); err != nil {
		return false, err
	}
	return out.VerificationStatus == "SUCCESS", nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrGatewayAuthFailed, err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrGatewayAuthFailed, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", gateway.ErrGatewayAuthFailed, resp.StatusCode, body)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", fmt.Errorf("%w: malformed token response", gateway.ErrGatewayAuthFailed)
	}
	return tok.AccessToken, nil
}

// call performs one authenticated JSON request and returns the raw response body.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) (raw json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		metrics.GatewayLatency.WithLabelValues(string(types.PaymentProviderPayPal), op, strconv.FormatBool(err == nil)).
			Observe(metrics.MillisecondsSince(start))
		if err != nil {
			logctx.FromCtx(ctx, c.log).Errorw("paypal_call_failed", "op", op, "error", err.Error())
		}
	}()

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	switch v := in.(type) {
	case nil:
	case encodedBody:
		reader = bytes.NewReader(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", gateway.ErrGatewayRequest, op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", gateway.ErrGatewayRequest, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &gateway.RequestError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("%w: %s: decode response: %v", gateway.ErrGatewayRequest, op, err)
		}
	}
	return body, nil
}
