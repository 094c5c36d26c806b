package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/fatflowers/smmpay/internal/app/service/webhook"
	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type WebhookHandler interface {
	HandlePayPal(ctx context.Context, header http.Header, raw []byte) error
}

// @Summary      PayPal webhook
// @Description  Receives PayPal event notifications. The raw body is required for signature verification.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body object true "PayPal event"
// @Success      200  {object}  handlers.RespOK
// @Failure      400  {object}  handlers.RespOK
// @Failure      500  {object}  handlers.RespOK
// @Router       /webhooks/paypal [post]
func ApiPayPalWebhook(h WebhookHandler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := logctx.FromGin(c, log)
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			badRequest(c, "unreadable body")
			return
		}
		err = h.HandlePayPal(c.Request.Context(), c.Request.Header, raw)
		switch {
		case err == nil:
			lg.Infow("webhook_paypal_handled")
			c.JSON(http.StatusOK, response.OKT[any](nil))
		case errors.Is(err, webhook.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, response.ErrorMsg(response.APIResponseCodeBadRequest, "invalid signature"))
		default:
			lg.Errorw("webhook_paypal_handle_error", "error", err.Error())
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
		}
	}
}

func RegisterWebhookRoutes(r gin.IRouter, h WebhookHandler, log *zap.SugaredLogger) {
	r.POST("/paypal", ApiPayPalWebhook(h, log))
}
