// Package merchantstatus classifies authorization failures caused by the merchant's
// account state into typed errors carrying a fixed display and logout policy.
package merchantstatus

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind identifies a merchant-status failure
type Kind string

const (
	KindPinBlocked Kind = "PIN_BLOCKED"
	KindInactive   Kind = "INACTIVE"
	KindGeneric403 Kind = "GENERIC_403"
)

// Severity ranks how disruptive the failure is to the merchant
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Policy is the fixed handling contract for a Kind
type Policy struct {
	Message      string   `json:"message"`
	ShouldLogout bool     `json:"should_logout"`
	Severity     Severity `json:"severity"`
}

var policies = map[Kind]Policy{
	KindPinBlocked: {
		Message:      "Your account has been blocked after too many incorrect PIN attempts. Please contact support to unblock it.",
		ShouldLogout: true,
		Severity:     SeverityHigh,
	},
	KindInactive: {
		Message:      "Your merchant account is inactive. Please contact support to reactivate it.",
		ShouldLogout: true,
		Severity:     SeverityMedium,
	},
	KindGeneric403: {
		Message:      "You do not have permission to perform this action.",
		ShouldLogout: false,
		Severity:     SeverityLow,
	},
}

// PolicyFor returns the policy for kind
func PolicyFor(kind Kind) Policy {
	return policies[kind]
}

// Error is a typed merchant-status failure. It is never retried.
type Error struct {
	Kind       Kind
	StatusCode int
	Policy
}

func (e *Error) Error() string {
	return fmt.Sprintf("merchant status %s: %s", e.Kind, e.Message)
}

// IsPolicyError reports whether the failure is caused by account state
// (blocked or inactive) rather than a plain permission denial
func (e *Error) IsPolicyError() bool {
	return e.Kind == KindPinBlocked || e.Kind == KindInactive
}

func newError(kind Kind, status int) *Error {
	return &Error{Kind: kind, StatusCode: status, Policy: policies[kind]}
}

// HTTPError is implemented by transport errors that expose the failed response.
type HTTPError interface {
	error
	HTTPStatus() int
	ResponseBody() []byte
}

// Classify maps a failed response onto a merchant-status error.
// Only 403 responses classify; the code is read from the structured body.
func Classify(httpStatus int, body []byte) (*Error, bool) {
	if httpStatus != http.StatusForbidden {
		return nil, false
	}
	switch Kind(responseCode(body)) {
	case KindPinBlocked:
		return newError(KindPinBlocked, httpStatus), true
	case KindInactive:
		return newError(KindInactive, httpStatus), true
	default:
		return newError(KindGeneric403, httpStatus), true
	}
}

// ClassifyStatus maps the authoritative status field of a successful profile
// response. Only blocked and inactive statuses classify.
func ClassifyStatus(status string) (*Error, bool) {
	switch Kind(strings.ToUpper(strings.TrimSpace(status))) {
	case KindPinBlocked:
		return newError(KindPinBlocked, http.StatusOK), true
	case KindInactive:
		return newError(KindInactive, http.StatusOK), true
	default:
		return nil, false
	}
}

// FromError finds the merchant-status failure behind err: either a wrapped
// *Error or a failed 403 response that classifies.
func FromError(err error) (*Error, bool) {
	var statusErr *Error
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return Classify(httpErr.HTTPStatus(), httpErr.ResponseBody())
	}
	return nil, false
}

// responseCode extracts the error code from {"code"}, {"error":{"code"}} or {"status"}.
// Fields of unexpected types are ignored.
func responseCode(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}

	var nested map[string]json.RawMessage
	_ = json.Unmarshal(fields["error"], &nested)

	for _, raw := range []json.RawMessage{fields["code"], nested["code"], fields["status"]} {
		var c string
		if len(raw) == 0 || json.Unmarshal(raw, &c) != nil {
			continue
		}
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			return c
		}
	}
	return ""
}
