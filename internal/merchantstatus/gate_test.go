package merchantstatus

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantOK     bool
		wantKind   Kind
		wantLogout bool
		wantSev    Severity
	}{
		{name: "pin blocked", status: 403, body: `{"code":"PIN_BLOCKED"}`, wantOK: true, wantKind: KindPinBlocked, wantLogout: true, wantSev: SeverityHigh},
		{name: "inactive", status: 403, body: `{"code":"INACTIVE","message":"x"}`, wantOK: true, wantKind: KindInactive, wantLogout: true, wantSev: SeverityMedium},
		{name: "unknown code", status: 403, body: `{"code":"UNKNOWN"}`, wantOK: true, wantKind: KindGeneric403, wantLogout: false, wantSev: SeverityLow},
		{name: "nested error code", status: 403, body: `{"error":{"code":"pin_blocked"}}`, wantOK: true, wantKind: KindPinBlocked, wantLogout: true, wantSev: SeverityHigh},
		{name: "status field", status: 403, body: `{"status":"INACTIVE"}`, wantOK: true, wantKind: KindInactive, wantLogout: true, wantSev: SeverityMedium},
		{name: "string error with code", status: 403, body: `{"error":"forbidden","code":"PIN_BLOCKED"}`, wantOK: true, wantKind: KindPinBlocked, wantLogout: true, wantSev: SeverityHigh},
		{name: "numeric status ignored", status: 403, body: `{"status":403}`, wantOK: true, wantKind: KindGeneric403, wantSev: SeverityLow},
		{name: "empty body", status: 403, body: ``, wantOK: true, wantKind: KindGeneric403, wantSev: SeverityLow},
		{name: "not json", status: 403, body: `<html>`, wantOK: true, wantKind: KindGeneric403, wantSev: SeverityLow},
		{name: "not found", status: 404, body: `{"code":"PIN_BLOCKED"}`, wantOK: false},
		{name: "unauthorized", status: 401, body: `{"code":"INACTIVE"}`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.status, []byte(tt.body))
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantLogout, got.ShouldLogout)
			assert.Equal(t, tt.wantSev, got.Severity)
			assert.NotEmpty(t, got.Message)
			assert.Equal(t, http.StatusForbidden, got.StatusCode)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	got, ok := ClassifyStatus("pin_blocked")
	require.True(t, ok)
	assert.Equal(t, KindPinBlocked, got.Kind)
	assert.True(t, got.IsPolicyError())

	got, ok = ClassifyStatus("INACTIVE")
	require.True(t, ok)
	assert.Equal(t, KindInactive, got.Kind)

	_, ok = ClassifyStatus("ACTIVE")
	assert.False(t, ok)
}

func TestError_UnwrapsThroughWrapping(t *testing.T) {
	base, _ := Classify(403, []byte(`{"code":"INACTIVE"}`))
	wrapped := fmt.Errorf("fetch profile: %w", base)

	var target *Error
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, KindInactive, target.Kind)
	assert.Contains(t, wrapped.Error(), "INACTIVE")
}

func TestGeneric403_IsNotPolicyError(t *testing.T) {
	got, _ := Classify(403, nil)
	assert.False(t, got.IsPolicyError())
	assert.Equal(t, PolicyFor(KindGeneric403), got.Policy)
}

type responseErr struct {
	status int
	body   []byte
}

func (e *responseErr) Error() string        { return "request failed" }
func (e *responseErr) HTTPStatus() int      { return e.status }
func (e *responseErr) ResponseBody() []byte { return e.body }

func TestFromError(t *testing.T) {
	got, ok := FromError(fmt.Errorf("poll: %w", &responseErr{status: 403, body: []byte(`{"code":"PIN_BLOCKED"}`)}))
	require.True(t, ok)
	assert.Equal(t, KindPinBlocked, got.Kind)

	typed, _ := ClassifyStatus("INACTIVE")
	got, ok = FromError(fmt.Errorf("profile: %w", typed))
	require.True(t, ok)
	assert.Same(t, typed, got)

	_, ok = FromError(&responseErr{status: 500})
	assert.False(t, ok)

	_, ok = FromError(errors.New("dial tcp: refused"))
	assert.False(t, ok)
}
