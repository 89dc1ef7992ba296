// Package di provides dependency injection type definitions.
//
// The Container is the single source of truth for service instances and is
// handed to the HTTP server and the scheduler.
package di

import (
	"github.com/merchantpos/paysync/internal/clientdata"
	"github.com/merchantpos/paysync/internal/clients/exchangerate"
	"github.com/merchantpos/paysync/internal/clients/merchantapi"
	"github.com/merchantpos/paysync/internal/database"
	"github.com/merchantpos/paysync/internal/kvstore"
	"github.com/merchantpos/paysync/internal/merchantstatus"
	"github.com/merchantpos/paysync/internal/modules/currency"
	"github.com/merchantpos/paysync/internal/modules/deposits"
	"github.com/merchantpos/paysync/internal/modules/orders"
	"github.com/merchantpos/paysync/internal/modules/profile"
	"github.com/merchantpos/paysync/internal/realtime"
	"github.com/merchantpos/paysync/internal/scheduler"
	"github.com/merchantpos/paysync/internal/statussync"
)

// Container holds all application dependencies
type Container struct {
	// Storage
	DB         *database.DB // nil unless the sqlite backend is used
	Store      kvstore.Store
	ClientData *clientdata.Repository

	// Clients
	MerchantAPI  *merchantapi.Client
	ExchangeRate *exchangerate.Client

	// Services
	Orders   *orders.Service
	Deposits *deposits.Service
	Profile  *profile.Service
	Currency *currency.Service

	// Realtime
	Transport realtime.Transport
	Channel   *realtime.Channel

	// Status
	Enforcer *merchantstatus.Enforcer
	Registry *statussync.Registry

	Scheduler *scheduler.Scheduler

	// closers run in reverse order on Close
	closers []func() error
}
