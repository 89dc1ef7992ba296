package clientdata

import "time"

// TTL constants for different data types.
// These are added to the clock's now when storing to calculate expires_at.
const (
	// Collection listings
	TTLOrders   = 5 * time.Minute // orders:<status>
	TTLDeposits = 3 * time.Minute // deposits:<status>

	// Single entities (status changes quickly while a payment is in flight)
	TTLOrder   = 30 * time.Second // order:<id>
	TTLDeposit = 2 * time.Minute  // deposit:<id>

	// Merchant profile
	TTLProfile = 10 * time.Minute

	// Exchange rate tables are retained for two days; freshness is decided by calendar day
	TTLExchangeRateTable = 48 * time.Hour
)
