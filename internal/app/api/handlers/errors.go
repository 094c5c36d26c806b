package handlers

import (
	"errors"

	"github.com/fatflowers/smmpay/internal/app/service/checkout"
	"github.com/fatflowers/smmpay/internal/app/service/order"
	"github.com/fatflowers/smmpay/internal/app/service/settlement"
	"github.com/fatflowers/smmpay/internal/platform/gateway"
	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var badRequestErrors = []error{
	checkout.ErrEmptyCart,
	checkout.ErrUnsupportedPaymentMethod,
	checkout.ErrServiceNotFound,
	checkout.ErrServiceUnavailable,
	checkout.ErrInvalidQuantity,
	checkout.ErrInvalidLink,
	checkout.ErrInvalidAmount,
	settlement.ErrPaymentAlreadyCompleted,
	settlement.ErrPaymentNotPending,
	settlement.ErrProviderMismatch,
	order.ErrInvalidStatus,
	gateway.ErrUnsupportedProvider,
}

// errorResponse maps a service error to a response code and the message
// safe to show the client. Gateway and internal detail never leaves here.
func errorResponse(err error) (response.APIResponseCode, string) {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return response.APIResponseCodeBadRequest, err.Error()
		}
	}
	switch {
	case errors.Is(err, settlement.ErrAmountMismatch):
		return response.APIResponseCodeAmountMismatch, ""
	case errors.Is(err, settlement.ErrPaymentNotFound), errors.Is(err, order.ErrOrderNotFound):
		return response.APIResponseCodeNotFound, ""
	case errors.Is(err, settlement.ErrCheckoutInProgress):
		return response.APIResponseCodeConflict, ""
	case errors.Is(err, order.ErrNotifyCooldown):
		return response.APIResponseCodeTooManyRequests, err.Error()
	case errors.Is(err, settlement.ErrPaymentRecordMissing),
		errors.Is(err, settlement.ErrCaptureFailed),
		errors.Is(err, gateway.ErrGatewayDisabled),
		errors.Is(err, gateway.ErrGatewayAuthFailed),
		errors.Is(err, gateway.ErrGatewayRequest):
		return response.APIResponseCodePaymentFailed, response.GenericPaymentFailure
	}
	return response.APIResponseCodeError, ""
}

func writeError(c *gin.Context, base *zap.SugaredLogger, event string, err error) {
	code, msg := errorResponse(err)
	status := code.HTTPStatus()
	lg := logctx.FromGin(c, base)
	if status >= 500 {
		lg.Errorw(event, "code", code, "err", err)
	} else {
		lg.Infow(event, "code", code, "err", err)
	}
	_ = c.Error(err)
	c.JSON(status, response.ErrorMsg(code, msg))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(response.APIResponseCodeBadRequest.HTTPStatus(), response.ErrorMsg(response.APIResponseCodeBadRequest, msg))
}
