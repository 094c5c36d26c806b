package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fatflowers/smmpay/pkg/money"
)

const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventCaptureRefunded  = "PAYMENT.CAPTURE.REFUNDED"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is one of CaptureCompleted, CaptureDenied, CaptureRefunded or Unknown.
type Event interface {
	Meta() Envelope
}

type Envelope struct {
	ID   string
	Type string
	// TransactionID is the resource custom_id, empty when absent.
	TransactionID string
}

func (e Envelope) Meta() Envelope { return e }

type Amount struct {
	// Minor units. Valid is false when the provider value did not parse.
	Value    int64
	Currency string
	Valid    bool
}

type CaptureCompleted struct {
	Envelope
	CaptureID string
	Amount    Amount
}

type CaptureDenied struct {
	Envelope
	CaptureID string
}

type CaptureRefunded struct {
	Envelope
	RefundID string
	Amount   Amount
}

type Unknown struct {
	Envelope
}

type rawEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  *struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
		Amount   *struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
	} `json:"resource"`
}

// ParseEvent extracts the fields settlement relies on. Any event type we
// do not act on comes back as Unknown.
func ParseEvent(raw []byte) (Event, error) {
	var re rawEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if re.ID == "" || re.EventType == "" {
		return nil, fmt.Errorf("%w: missing id or event_type", ErrMalformedEvent)
	}
	env := Envelope{ID: re.ID, Type: re.EventType}

	switch re.EventType {
	case EventCaptureCompleted, EventCaptureDenied, EventCaptureRefunded:
	default:
		return Unknown{Envelope: env}, nil
	}
	if re.Resource == nil || re.Resource.ID == "" {
		return nil, fmt.Errorf("%w: %s without resource", ErrMalformedEvent, re.EventType)
	}
	env.TransactionID = strings.TrimSpace(re.Resource.CustomID)

	var amt Amount
	if a := re.Resource.Amount; a != nil {
		amt.Currency = a.CurrencyCode
		if v, err := money.FromMajor(a.Value); err == nil {
			amt.Value, amt.Valid = v, true
		}
	}

	switch re.EventType {
	case EventCaptureCompleted:
		return CaptureCompleted{Envelope: env, CaptureID: re.Resource.ID, Amount: amt}, nil
	case EventCaptureDenied:
		return CaptureDenied{Envelope: env, CaptureID: re.Resource.ID}, nil
	default:
		return CaptureRefunded{Envelope: env, RefundID: re.Resource.ID, Amount: amt}, nil
	}
}
