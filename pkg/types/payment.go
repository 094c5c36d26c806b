package types

type PaymentProvider string

const (
	PaymentProviderPayPal   PaymentProvider = "paypal"
	PaymentProviderPayoneer PaymentProvider = "payoneer"
)

// PaymentMethod is what the customer picked at checkout. Methods with a
// gateway share the provider's name.
type PaymentMethod string

const (
	PaymentMethodPayPal   PaymentMethod = "paypal"
	PaymentMethodPayoneer PaymentMethod = "payoneer"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodBank     PaymentMethod = "bank"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodPayPal, PaymentMethodPayoneer, PaymentMethodCard, PaymentMethodBank:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// IsSettled reports whether funds were received for the payment.
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusPaid || s == PaymentStatusCompleted
}

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPending, OrderStatusConfirmed,
		OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusApproved  CommissionStatus = "approved"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

// SettlementSource names the path that moved a payment to paid.
type SettlementSource string

const (
	SettlementSourceCapture  SettlementSource = "capture"
	SettlementSourceWebhook  SettlementSource = "webhook"
	SettlementSourceVerify   SettlementSource = "verify"
	SettlementSourceCallback SettlementSource = "callback"
)
