// Package events defines the realtime status events pushed by the merchant backend.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// EventType names a realtime event
type EventType string

const (
	PaymentCompleted EventType = "payment_completed"
	DepositCompleted EventType = "deposit_completed"
	PaymentFailed    EventType = "payment_failed"
)

// ErrUnknownEvent is returned by Decode for event names with no payload type
var ErrUnknownEvent = errors.New("unknown event")

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
	// EntityID is the order or deposit the event refers to
	EntityID() string
}

// PaymentCompletedData contains data for PaymentCompleted events
type PaymentCompletedData struct {
	OrderID  string          `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// EventType returns the event type for PaymentCompletedData
func (d *PaymentCompletedData) EventType() EventType {
	return PaymentCompleted
}

// EntityID returns the order id
func (d *PaymentCompletedData) EntityID() string {
	return d.OrderID
}

// DepositCompletedData contains data for DepositCompleted events
type DepositCompletedData struct {
	DepositID string          `json:"deposit_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// EventType returns the event type for DepositCompletedData
func (d *DepositCompletedData) EventType() EventType {
	return DepositCompleted
}

// EntityID returns the deposit id
func (d *DepositCompletedData) EntityID() string {
	return d.DepositID
}

// PaymentFailedData contains data for PaymentFailed events
type PaymentFailedData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

// EventType returns the event type for PaymentFailedData
func (d *PaymentFailedData) EventType() EventType {
	return PaymentFailed
}

// EntityID returns the order id
func (d *PaymentFailedData) EntityID() string {
	return d.OrderID
}

func newData(t EventType) (EventData, bool) {
	switch t {
	case PaymentCompleted:
		return &PaymentCompletedData{}, true
	case DepositCompleted:
		return &DepositCompletedData{}, true
	case PaymentFailed:
		return &PaymentFailedData{}, true
	default:
		return nil, false
	}
}

// Decode parses the payload of the named event.
// Unknown names and payloads without an entity id are rejected.
func Decode(name string, raw []byte) (EventData, error) {
	data, ok := newData(EventType(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", name, err)
	}
	if data.EntityID() == "" {
		return nil, fmt.Errorf("invalid %s payload: missing entity id", name)
	}
	return data, nil
}
