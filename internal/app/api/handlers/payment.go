package handlers

import (
	"context"
	"net/http"
	"net/url"

	mw "github.com/fatflowers/smmpay/internal/app/api/middleware"
	"github.com/fatflowers/smmpay/internal/app/service/settlement"
	"github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/response"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const payoneerCallbackPath = "/payments/payoneer/callback"

type SettlementService interface {
	CreateIntent(ctx context.Context, userID string, provider types.PaymentProvider, transactionID string) (*settlement.IntentResult, error)
	CapturePayPal(ctx context.Context, providerOrderID string) (*settlement.Result, error)
	VerifyPayoneer(ctx context.Context, userID, transactionID string) (*settlement.Result, error)
	HandlePayoneerCallback(ctx context.Context, transactionID, refID, status string) (bool, error)
}

type CreatePaymentRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
}

type CreatePaymentResponse struct {
	TransactionID string `json:"transactionId"`
	RedirectURL   string `json:"redirectUrl"`
	// OrderID is the provider order id, used by PayPal's client SDK.
	OrderID string `json:"orderId,omitempty"`
}

type CapturePayPalRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

type VerifyPayoneerRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
}

type PaymentStatusResponse struct {
	TransactionID string              `json:"transactionId,omitempty"`
	Status        types.PaymentStatus `json:"status"`
}

// @Summary      Create payment session
// @Description  Opens a gateway session for a pending checkout and returns where to send the buyer.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        provider path     string                true  "paypal or payoneer"
// @Param        request  body     CreatePaymentRequest  true  "Checkout transaction"
// @Success      200  {object}  handlers.RespCreatePayment
// @Failure      400  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /payments/{provider}/create [post]
func ApiCreatePayment(svc SettlementService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		provider := types.PaymentProvider(c.Param("provider"))
		res, err := svc.CreateIntent(c.Request.Context(), mw.GetUserID(c), provider, req.TransactionID)
		if err != nil {
			writeError(c, log, "payment_create_failed", err)
			return
		}
		out := &CreatePaymentResponse{TransactionID: res.TransactionID, RedirectURL: res.RedirectURL}
		if provider == types.PaymentProviderPayPal {
			out.OrderID = res.ProviderTransactionID
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Capture PayPal order
// @Description  Captures an approved PayPal order after checking the amount against the payment.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CapturePayPalRequest true "PayPal order"
// @Success      200  {object}  handlers.RespPaymentStatus
// @Failure      400  {object}  handlers.RespOK
// @Failure      500  {object}  handlers.RespOK
// @Router       /payments/paypal/capture [post]
func ApiCapturePayPal(svc SettlementService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CapturePayPalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.CapturePayPal(c.Request.Context(), req.OrderID)
		if err != nil {
			writeError(c, log, "paypal_capture_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&PaymentStatusResponse{TransactionID: res.Payment.TransactionID, Status: res.Status}))
	}
}

// @Summary      Verify Payoneer payment
// @Description  Polling fallback for redirect payments.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body VerifyPayoneerRequest true "Checkout transaction"
// @Success      200  {object}  handlers.RespPaymentStatus
// @Failure      404  {object}  handlers.RespOK
// @Router       /payments/payoneer/verify [post]
func ApiVerifyPayoneer(svc SettlementService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyPayoneerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.VerifyPayoneer(c.Request.Context(), mw.GetUserID(c), req.TransactionID)
		if err != nil {
			writeError(c, log, "payoneer_verify_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&PaymentStatusResponse{TransactionID: req.TransactionID, Status: res.Status}))
	}
}

// @Summary      Payoneer return URL
// @Description  Buyer redirect target. Settles the payment when verified and redirects to the storefront.
// @Tags         Payment
// @Param        txId    query  string  true  "Checkout transaction"
// @Param        refId   query  string  true  "Payoneer session"
// @Param        status  query  string  true  "success or failure"
// @Success      302
// @Router       /payments/payoneer/callback [get]
func ApiPayoneerCallback(svc SettlementService, cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		txID := c.Query("txId")
		ok, err := svc.HandlePayoneerCallback(c.Request.Context(), txID, c.Query("refId"), c.Query("status"))
		if err != nil {
			logctx.FromGin(c, log).Errorw("payoneer_callback_failed", "transaction_id", txID, "err", err)
		}
		target := cfg.Payment.FrontendFailureURL
		if ok {
			target = cfg.Payment.FrontendSuccessURL
		}
		c.Redirect(http.StatusFound, withQuery(target, "transactionId", txID))
	}
}

// @Summary      Payoneer sandbox checkout
// @Description  Stands in for the hosted Payoneer page in sandbox mode and approves immediately.
// @Tags         Payment
// @Param        txId   query  string  true  "Checkout transaction"
// @Param        refId  query  string  true  "Payoneer session"
// @Success      302
// @Failure      404  {object}  handlers.RespOK
// @Router       /payments/payoneer/mock-checkout [get]
func ApiPayoneerMockCheckout(sandbox bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sandbox {
			c.JSON(http.StatusNotFound, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
			return
		}
		q := url.Values{"txId": {c.Query("txId")}, "refId": {c.Query("refId")}, "status": {"success"}}
		c.Redirect(http.StatusFound, payoneerCallbackPath+"?"+q.Encode())
	}
}

func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil || value == "" {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// RegisterPaymentRoutes mounts the authenticated payment routes.
func RegisterPaymentRoutes(r gin.IRouter, svc SettlementService, log *zap.SugaredLogger) {
	r.POST("/paypal/capture", ApiCapturePayPal(svc, log))
	r.POST("/payoneer/verify", ApiVerifyPayoneer(svc, log))
	r.POST("/:provider/create", ApiCreatePayment(svc, log))
}

// RegisterPaymentRedirectRoutes mounts the browser redirect routes, which carry no token.
func RegisterPaymentRedirectRoutes(r gin.IRouter, svc SettlementService, cfg *config.Config, sandbox bool, log *zap.SugaredLogger) {
	r.GET("/payoneer/callback", ApiPayoneerCallback(svc, cfg, log))
	r.GET("/payoneer/mock-checkout", ApiPayoneerMockCheckout(sandbox))
}
