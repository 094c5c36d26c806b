package handlers

import (
	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/response"
)

// RespOK is a generic envelope for endpoints returning no specific data.
type RespOK struct {
	Success bool                     `json:"success"`
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespHealth struct {
	Success bool                     `json:"success"`
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    map[string]string        `json:"data"`
}

type RespCheckout struct {
	Success       bool                     `json:"success"`
	Code          response.APIResponseCode `json:"code"`
	Message       string                   `json:"message"`
	Data          []models.Order           `json:"data"`
	TransactionID string                   `json:"transactionId"`
}

type RespOrders struct {
	Success bool                     `json:"success"`
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Order           `json:"data"`
}

type RespReportDelay struct {
	Success bool                     `json:"success"`
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ReportDelayResponse      `json:"data"`
}

type RespCreatePayment struct {
	Success bool                     `json:"success"`
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    CreatePaymentResponse    `json:"data"`
}

type RespPaymentStatus struct {
	Success bool                     `json:"success"`
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PaymentStatusResponse    `json:"data"`
}

// RespListOrders wraps ListOrdersResponse in the standard envelope.
type RespListOrders struct {
	Success bool                     `json:"success"`
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListOrdersResponse       `json:"data"`
}

// RespListPayments wraps ListPaymentsResponse in the standard envelope.
type RespListPayments struct {
	Success bool                     `json:"success"`
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListPaymentsResponse     `json:"data"`
}

type RespUpdateOrderStatus struct {
	Success bool                      `json:"success"`
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    UpdateOrderStatusResponse `json:"data"`
}
