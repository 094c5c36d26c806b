// Package payoneer is a redirect based gateway. Only the sandbox flow is
// implemented: it mints synthetic session ids and sends the buyer to an
// internal mock checkout page.
package payoneer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fatflowers/smmpay/internal/platform/gateway"
	"github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/tool"
	"github.com/fatflowers/smmpay/pkg/types"

	"go.uber.org/zap"
)

const (
	MockPrefix       = "PAYONEER-MOCK-"
	MockCheckoutPath = "/payments/payoneer/mock-checkout"
)

type Mock struct {
	enabled bool
	sandbox bool
	baseURL string
	log     *zap.SugaredLogger
	now     func() time.Time
}

var _ gateway.Gateway = (*Mock)(nil)

func New(cfg *config.Config, log *zap.SugaredLogger) *Mock {
	return &Mock{
		enabled: cfg.Payment.Payoneer.Enabled,
		sandbox: cfg.Payment.Payoneer.Sandbox,
		baseURL: strings.TrimRight(cfg.Payment.PublicBaseURL, "/"),
		log:     log,
		now:     time.Now,
	}
}

func (m *Mock) Provider() types.PaymentProvider { return types.PaymentProviderPayoneer }

func (m *Mock) CreatePaymentIntent(ctx context.Context, req *gateway.IntentRequest) (*gateway.Intent, error) {
	if !m.sandbox {
		// live Payoneer has no integration here; refuse instead of pretending
		if m.enabled {
			logctx.FromCtx(ctx, m.log).Errorw("payoneer_live_mode_unsupported", "transaction_id", req.CorrelationID)
		}
		return nil, gateway.ErrGatewayDisabled
	}
	if req.CorrelationID == "" {
		return nil, fmt.Errorf("payoneer: empty correlation id")
	}
	id := req.ExistingReference
	if !strings.HasPrefix(id, MockPrefix) {
		id = fmt.Sprintf("%s%d-%s", MockPrefix, m.now().UnixMilli(), tool.RandomToken(8))
	}
	q := url.Values{"txId": {req.CorrelationID}, "refId": {id}}
	return &gateway.Intent{
		RedirectURL:           m.baseURL + MockCheckoutPath + "?" + q.Encode(),
		ProviderTransactionID: id,
	}, nil
}

// VerifyPayment accepts any id this mock minted.
func (m *Mock) VerifyPayment(_ context.Context, providerTransactionID string) (bool, error) {
	if !m.sandbox {
		return false, gateway.ErrGatewayDisabled
	}
	return strings.HasPrefix(providerTransactionID, MockPrefix) && len(providerTransactionID) > len(MockPrefix), nil
}

// Sandbox reports whether the mock checkout page may be served.
func (m *Mock) Sandbox() bool { return m.sandbox }
