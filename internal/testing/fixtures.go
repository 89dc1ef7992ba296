package testing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/merchantpos/paysync/internal/domain"
)

// FixtureTime is the reference instant used by fixtures
var FixtureTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// NewOrderFixtures returns a set of test orders covering every status family
func NewOrderFixtures() []domain.Order {
	return []domain.Order{
		{
			ID:         "ord_1",
			MerchantID: "m_1",
			Amount:     decimal.RequireFromString("12.50"),
			Currency:   "EUR",
			Status:     "pending",
			Reference:  "table 4",
			CreatedAt:  FixtureTime,
		},
		{
			ID:         "ord_2",
			MerchantID: "m_1",
			Amount:     decimal.RequireFromString("40"),
			Currency:   "GBP",
			Status:     "paid",
			CreatedAt:  FixtureTime.Add(-time.Hour),
		},
		{
			ID:         "ord_3",
			MerchantID: "m_1",
			Amount:     decimal.RequireFromString("7.99"),
			Currency:   "USD",
			Status:     "expired",
			CreatedAt:  FixtureTime.Add(-24 * time.Hour),
		},
	}
}

// NewDepositFixtures returns a set of test deposits
func NewDepositFixtures() []domain.Deposit {
	return []domain.Deposit{
		{
			ID:         "dep_1",
			MerchantID: "m_1",
			Amount:     decimal.RequireFromString("250"),
			Currency:   "USDT",
			Status:     "pending",
			Network:    "TRON",
			CreatedAt:  FixtureTime,
		},
		{
			ID:         "dep_2",
			MerchantID: "m_1",
			Amount:     decimal.RequireFromString("100"),
			Currency:   "USDT",
			Status:     "confirmed",
			Network:    "TRON",
			TxHash:     "0xabc",
			CreatedAt:  FixtureTime.Add(-time.Hour),
		},
	}
}

// NewProfileFixture returns an active merchant profile
func NewProfileFixture() domain.MerchantProfile {
	return domain.MerchantProfile{
		MerchantID:   "m_1",
		BusinessName: "Corner Cafe",
		Email:        "owner@cornercafe.test",
		Currency:     "EUR",
		Status:       "ACTIVE",
	}
}
