package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	mw "github.com/fatflowers/smmpay/internal/app/api/middleware"
	"github.com/fatflowers/smmpay/internal/app/repository"
	"github.com/fatflowers/smmpay/internal/app/service/checkout"
	"github.com/fatflowers/smmpay/internal/app/service/order"
	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/response"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CheckoutService interface {
	Checkout(ctx context.Context, req *checkout.Request) (*checkout.Result, error)
}

type OrderService interface {
	UpdateStatus(ctx context.Context, orderID string, status types.OrderStatus) (*repository.OrderStatusResult, error)
	ReportDelay(ctx context.Context, userID, orderID string) (*models.Order, error)
	NextReportAt(o *models.Order) time.Time
	ListUserOrders(ctx context.Context, userID string) ([]*models.Order, error)
	ScanOrders(ctx context.Context, req *repository.ScanRequest) (*repository.ScanResult[*models.Order], error)
	ScanPayments(ctx context.Context, req *repository.ScanRequest) (*repository.ScanResult[*models.Payment], error)
}

type CheckoutRequest struct {
	Items         []checkout.Item     `json:"items"`
	PaymentMethod types.PaymentMethod `json:"paymentMethod"`
}

type CreateOrderRequest struct {
	checkout.Item
	PaymentMethod types.PaymentMethod `json:"paymentMethod"`
}

// CheckoutResponse carries the created orders in data and the shared
// transaction id beside the envelope fields.
type CheckoutResponse struct {
	response.APIResponse[[]*models.Order]
	TransactionID string `json:"transactionId"`
}

type ReportDelayResponse struct {
	Order        *models.Order `json:"order"`
	NextReportAt time.Time     `json:"nextReportAt"`
}

// @Summary      Checkout cart
// @Description  Prices every cart line from the catalog and creates one pending payment for the batch.
// @Tags         Orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CheckoutRequest true "Cart"
// @Success      200  {object}  handlers.RespCheckout
// @Failure      400  {object}  handlers.RespOK
// @Router       /orders/checkout [post]
func ApiCheckout(svc CheckoutService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		runCheckout(c, svc, log, &checkout.Request{UserID: mw.GetUserID(c), Items: req.Items, PaymentMethod: req.PaymentMethod})
	}
}

// @Summary      Create single order
// @Description  Single item shortcut for checkout.
// @Tags         Orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CreateOrderRequest true "Order"
// @Success      200  {object}  handlers.RespCheckout
// @Failure      400  {object}  handlers.RespOK
// @Router       /orders [post]
func ApiCreateOrder(svc CheckoutService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		runCheckout(c, svc, log, &checkout.Request{UserID: mw.GetUserID(c), Items: []checkout.Item{req.Item}, PaymentMethod: req.PaymentMethod})
	}
}

func runCheckout(c *gin.Context, svc CheckoutService, log *zap.SugaredLogger, req *checkout.Request) {
	res, err := svc.Checkout(c.Request.Context(), req)
	if err != nil {
		writeError(c, log, "checkout_failed", err)
		return
	}
	orders := res.Orders
	if orders == nil {
		orders = []*models.Order{}
	}
	c.JSON(http.StatusOK, &CheckoutResponse{APIResponse: *response.OKT(orders), TransactionID: res.TransactionID})
}

// @Summary      List my orders
// @Tags         Orders
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOrders
// @Router       /orders [get]
func ApiListMyOrders(svc OrderService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := svc.ListUserOrders(c.Request.Context(), mw.GetUserID(c))
		if err != nil {
			writeError(c, log, "list_orders_failed", err)
			return
		}
		if orders == nil {
			orders = []*models.Order{}
		}
		c.JSON(http.StatusOK, response.OKT(orders))
	}
}

// @Summary      Report delayed order
// @Description  Notifies operators that an order is late. Allowed once per cooldown window.
// @Tags         Orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  handlers.RespReportDelay
// @Failure      404  {object}  handlers.RespOK
// @Failure      429  {object}  handlers.RespOK
// @Router       /orders/{id}/report-delay [post]
func ApiReportDelay(svc OrderService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.ReportDelay(c.Request.Context(), mw.GetUserID(c), c.Param("id"))
		if errors.Is(err, order.ErrNotifyCooldown) && o != nil {
			wait := time.Until(svc.NextReportAt(o))
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
		if err != nil {
			writeError(c, log, "report_delay_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ReportDelayResponse{Order: o, NextReportAt: svc.NextReportAt(o)}))
	}
}

func RegisterOrderRoutes(r gin.IRouter, checkoutSvc CheckoutService, orderSvc OrderService, log *zap.SugaredLogger) {
	r.POST("/checkout", ApiCheckout(checkoutSvc, log))
	r.POST("", ApiCreateOrder(checkoutSvc, log))
	r.GET("", ApiListMyOrders(orderSvc, log))
	r.POST("/:id/report-delay", ApiReportDelay(orderSvc, log))
}
