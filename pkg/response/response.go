package response

import "net/http"

type APIResponseCode int

const (
	APIResponseCodeOK              APIResponseCode = 0
	APIResponseCodeBadRequest      APIResponseCode = 40000
	APIResponseCodeAmountMismatch  APIResponseCode = 40001
	APIResponseCodeUnauthorized    APIResponseCode = 40100
	APIResponseCodeForbidden       APIResponseCode = 40300
	APIResponseCodeNotFound        APIResponseCode = 40400
	APIResponseCodeConflict        APIResponseCode = 40900
	APIResponseCodeTooManyRequests APIResponseCode = 42900
	APIResponseCodeError           APIResponseCode = 50000
	APIResponseCodePaymentFailed   APIResponseCode = 50001
)

// GenericPaymentFailure is the only text clients see for gateway failures.
const GenericPaymentFailure = "payment could not be completed, contact support"

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:              "ok",
	APIResponseCodeBadRequest:      "bad request",
	APIResponseCodeAmountMismatch:  "payment amount does not match order",
	APIResponseCodeUnauthorized:    "unauthorized",
	APIResponseCodeForbidden:       "forbidden",
	APIResponseCodeNotFound:        "not found",
	APIResponseCodeConflict:        "request already in progress",
	APIResponseCodeTooManyRequests: "too many requests",
	APIResponseCodeError:           "unexpected error",
	APIResponseCodePaymentFailed:   GenericPaymentFailure,
}

var codeToStatus = map[APIResponseCode]int{
	APIResponseCodeOK:              http.StatusOK,
	APIResponseCodeBadRequest:      http.StatusBadRequest,
	APIResponseCodeAmountMismatch:  http.StatusBadRequest,
	APIResponseCodeUnauthorized:    http.StatusUnauthorized,
	APIResponseCodeForbidden:       http.StatusForbidden,
	APIResponseCodeNotFound:        http.StatusNotFound,
	APIResponseCodeConflict:        http.StatusConflict,
	APIResponseCodeTooManyRequests: http.StatusTooManyRequests,
	APIResponseCodeError:           http.StatusInternalServerError,
	APIResponseCodePaymentFailed:   http.StatusInternalServerError,
}

// HTTPStatus maps a response code to the HTTP status it is sent with.
func (c APIResponseCode) HTTPStatus() int {
	if s, ok := codeToStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT / ErrorMsg helpers to construct instances.
type APIResponse[T any] struct {
	Success bool            `json:"success"`
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Success: true, Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with the code's default message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

// ErrorMsg returns an error response with a caller supplied message.
func ErrorMsg(code APIResponseCode, msg string) *APIResponse[any] {
	if msg == "" {
		msg = codeToMsg[code]
	}
	return &APIResponse[any]{Code: code, Message: msg}
}
