package merchantstatus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Notifier displays a merchant-facing message
type Notifier interface {
	Notify(kind Kind, message string, severity Severity)
}

// Logouter ends the merchant session
type Logouter interface {
	Logout(ctx context.Context) error
}

// LogoutFunc adapts a function to Logouter
type LogoutFunc func(ctx context.Context) error

// Logout implements Logouter
func (f LogoutFunc) Logout(ctx context.Context) error { return f(ctx) }

// LogNotifier writes merchant-facing messages to the log
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a notifier backed by log
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "merchant_notifier").Logger()}
}

// Notify implements Notifier
func (n *LogNotifier) Notify(kind Kind, message string, severity Severity) {
	n.log.Warn().
		Str("kind", string(kind)).
		Str("severity", string(severity)).
		Msg(message)
}

// Enforcer applies the policy of merchant-status errors: show the message and,
// when required, log the merchant out after a short delay.
type Enforcer struct {
	notifier Notifier
	logouter Logouter
	delay    time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	pending *time.Timer
}

// NewEnforcer creates an enforcer. logouter may be nil, which disables forced logout.
func NewEnforcer(notifier Notifier, logouter Logouter, delay time.Duration, log zerolog.Logger) *Enforcer {
	return &Enforcer{
		notifier: notifier,
		logouter: logouter,
		delay:    delay,
		log:      log.With().Str("component", "merchant_status_enforcer").Logger(),
	}
}

// Handle applies the policy when err wraps an *Error and reports whether it did.
// Repeated logout-forcing errors while a logout is pending are coalesced.
func (e *Enforcer) Handle(ctx context.Context, err error) bool {
	var statusErr *Error
	if !errors.As(err, &statusErr) {
		return false
	}

	e.log.Warn().
		Str("kind", string(statusErr.Kind)).
		Bool("should_logout", statusErr.ShouldLogout).
		Msg("Merchant status error")

	if e.notifier != nil {
		e.notifier.Notify(statusErr.Kind, statusErr.Message, statusErr.Severity)
	}

	if !statusErr.ShouldLogout || e.logouter == nil {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		return true
	}

	logoutCtx := context.WithoutCancel(ctx)
	e.pending = time.AfterFunc(e.delay, func() {
		e.runLogout(logoutCtx, statusErr.Kind)
	})
	return true
}

func (e *Enforcer) runLogout(ctx context.Context, kind Kind) {
	defer func() {
		e.mu.Lock()
		e.pending = nil
		e.mu.Unlock()
	}()

	if err := e.logouter.Logout(ctx); err != nil {
		e.log.Error().Err(err).Str("kind", string(kind)).Msg("Forced logout failed")
		if e.notifier != nil {
			e.notifier.Notify(kind, "We could not sign you out automatically. Please sign out manually.", SeverityLow)
		}
		return
	}
	e.log.Info().Str("kind", string(kind)).Msg("Merchant logged out")
}

// Stop cancels a pending logout
func (e *Enforcer) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
}
