// Package domain holds the merchant-side entities the status core caches and watches.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the local, reconciled status of an order or deposit
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StatusFromRemote maps a backend status string onto a PaymentStatus.
// Unknown values are treated as still pending.
func StatusFromRemote(remote string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "completed", "complete", "paid", "success", "successful", "succeeded", "confirmed":
		return StatusCompleted
	case "failed", "failure", "expired", "cancelled", "canceled", "rejected", "declined":
		return StatusFailed
	default:
		return StatusPending
	}
}

// Order is a merchant payment request, paid by a customer
type Order struct {
	ID          string          `json:"id"`
	MerchantID  string          `json:"merchant_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty"`
}

// PaymentStatus returns the reconciled status of the order
func (o Order) PaymentStatus() PaymentStatus {
	return StatusFromRemote(o.Status)
}

// Deposit is a merchant top-up or settlement into the merchant wallet
type Deposit struct {
	ID         string          `json:"id"`
	MerchantID string          `json:"merchant_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	Network    string          `json:"network,omitempty"`
	TxHash     string          `json:"tx_hash,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at,omitempty"`
}

// PaymentStatus returns the reconciled status of the deposit
func (d Deposit) PaymentStatus() PaymentStatus {
	return StatusFromRemote(d.Status)
}

// MerchantProfile is the authenticated merchant's account
type MerchantProfile struct {
	MerchantID   string    `json:"merchant_id"`
	BusinessName string    `json:"business_name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"` // ACTIVE, INACTIVE, PIN_BLOCKED
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}
