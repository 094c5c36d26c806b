// Package gateway defines the contract every payment provider adapter meets.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fatflowers/smmpay/pkg/types"
)

var (
	// ErrGatewayDisabled means the provider is switched off and not in sandbox mode.
	ErrGatewayDisabled = errors.New("payment gateway disabled")
	// ErrGatewayAuthFailed means the provider rejected our credentials.
	ErrGatewayAuthFailed = errors.New("payment gateway authentication failed")
	// ErrGatewayRequest wraps a non-2xx provider response or a transport failure.
	ErrGatewayRequest      = errors.New("payment gateway request failed")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
)

// RequestError keeps the provider's status and body for server-side logs.
// Its text must never reach API clients.
type RequestError struct {
	Op     string
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: provider status %d: %s", e.Op, e.Status, e.Body)
}

func (e *RequestError) Unwrap() error { return ErrGatewayRequest }

type Payer struct {
	Email string
	Name  string
}

type IntentRequest struct {
	// Amount in minor units.
	Amount        int64
	Currency      string
	CorrelationID string
	Payer         *Payer
	ReturnURL     string
	CancelURL     string
	// ExistingReference is the session id already recorded on the payment.
	// Redirect gateways resume that session instead of minting a new one.
	ExistingReference string
}

type Intent struct {
	RedirectURL           string
	ProviderTransactionID string
}

type Gateway interface {
	Provider() types.PaymentProvider
	CreatePaymentIntent(ctx context.Context, req *IntentRequest) (*Intent, error)
	// VerifyPayment is a side-effect free status check.
	VerifyPayment(ctx context.Context, providerTransactionID string) (bool, error)
}

type CaptureResult struct {
	OK             bool
	ProviderStatus string
	Raw            json.RawMessage
}

// OrderDetails is the subset of a provider order the settlement code trusts.
type OrderDetails struct {
	ID     string
	Status string
	// CorrelationID is custom_id, falling back to reference_id.
	CorrelationID string
	// Amount in minor units.
	Amount   int64
	Currency string
	Raw      json.RawMessage
}

// PayPal adds the capture and webhook operations only PayPal exposes.
type PayPal interface {
	Gateway
	CaptureOrder(ctx context.Context, providerOrderID string) (*CaptureResult, error)
	GetOrderDetails(ctx context.Context, providerOrderID string) (*OrderDetails, error)
	VerifyWebhookSignature(ctx context.Context, header http.Header, rawBody []byte) (bool, error)
}

// Registry resolves a gateway by provider name.
type Registry struct {
	gateways map[types.PaymentProvider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[types.PaymentProvider]Gateway, len(gateways))}
	for _, g := range gateways {
		if g != nil {
			r.gateways[g.Provider()] = g
		}
	}
	return r
}

func (r *Registry) Get(p types.PaymentProvider) (Gateway, error) {
	if g, ok := r.gateways[p]; ok {
		return g, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, p)
}
