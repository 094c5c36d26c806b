package handlers

import (
	"net/http"

	"github.com/fatflowers/smmpay/internal/app/repository"
	models "github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/response"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var sortablePaymentFields = map[string]bool{"created_at": true, "updated_at": true, "amount": true, "status": true}
var sortableOrderFields = map[string]bool{"created_at": true, "updated_at": true, "total_amount": true, "status": true}

type ListRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

func (r *ListRequest) scan(sortable map[string]bool) *repository.ScanRequest {
	req := &repository.ScanRequest{Filters: r.Filters, From: r.From, Size: r.Size, SortBy: "created_at", SortOrder: "desc"}
	if sortable[r.SortBy] {
		req.SortBy = r.SortBy
	}
	if r.SortOrder == "asc" {
		req.SortOrder = "asc"
	}
	return req
}

type ListOrdersResponse struct {
	Items []*models.Order `json:"items"`
	Total int64           `json:"total"`
}

type ListPaymentsResponse struct {
	Items []*models.Payment `json:"items"`
	Total int64             `json:"total"`
}

type UpdateOrderStatusRequest struct {
	Status types.OrderStatus `json:"status" binding:"required"`
}

type UpdateOrderStatusResponse struct {
	Order             *models.Order `json:"order"`
	CommissionChanged bool          `json:"commissionChanged"`
	Credited          int64         `json:"credited"`
}

// @Summary      List Orders (Admin)
// @Description  Retrieves a paginated and filterable list of orders.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ListRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListOrders
// @Router       /api/v1/admin/orders/list [post]
func ApiAdminListOrders(svc OrderService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.ScanOrders(c.Request.Context(), req.scan(sortableOrderFields))
		if err != nil {
			writeError(c, log, "admin_list_orders_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListOrdersResponse{Items: res.Items, Total: res.Total}))
	}
}

// @Summary      List Payments (Admin)
// @Description  Retrieves a paginated and filterable list of payments.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ListRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListPayments
// @Router       /api/v1/admin/payments/list [post]
func ApiAdminListPayments(svc OrderService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.ScanPayments(c.Request.Context(), req.scan(sortablePaymentFields))
		if err != nil {
			writeError(c, log, "admin_list_payments_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListPaymentsResponse{Items: res.Items, Total: res.Total}))
	}
}

// @Summary      Update Order Status (Admin)
// @Description  Sets the business status of an order. Completion approves a pending commission once the payment has settled.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string                    true  "Order ID"
// @Param        request  body  UpdateOrderStatusRequest  true  "New status"
// @Success      200  {object}  handlers.RespUpdateOrderStatus
// @Failure      400  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/admin/orders/{id}/status [post]
func ApiAdminUpdateOrderStatus(svc OrderService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateOrderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
		if err != nil {
			writeError(c, log, "admin_update_order_status_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&UpdateOrderStatusResponse{Order: res.Order, CommissionChanged: res.CommissionChanged, Credited: res.Credited}))
	}
}

func RegisterAdminRoutes(r gin.IRouter, svc OrderService, log *zap.SugaredLogger) {
	r.POST("/orders/list", ApiAdminListOrders(svc, log))
	r.POST("/payments/list", ApiAdminListPayments(svc, log))
	r.POST("/orders/:id/status", ApiAdminUpdateOrderStatus(svc, log))
}
