package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"dealer-inventory/internal/app"
	"dealer-inventory/internal/core"
	"dealer-inventory/internal/fortnox"
)

func TestCallbackErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"state invalid", core.ErrStateInvalid, "state_invalid"},
		{"state expired", fmt.Errorf("consume state: %w", core.ErrStateExpired), "state_expired"},
		{"code reused", core.ErrCodeReused, "code_reused"},
		{"company mismatch", &core.CompanyMismatchError{CompanyNumber: "5566778899", OrganizationNumber: "5560001111"}, "company_mismatch"},
		{"provider rejected grant", fmt.Errorf("exchange authorization code: %w", &fortnox.OAuthError{Code: "invalid_grant", Description: "code expired"}), "invalid_grant"},
		{"provider rejected client", fmt.Errorf("exchange authorization code: %w", &fortnox.OAuthError{Code: "invalid_client"}), "invalid_client"},
		{"anything else", errors.New("connection reset"), "connection_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := callbackErrorCode(tt.err); got != tt.want {
				t.Errorf("callbackErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

// stubAppService lets handler tests script the facade's behavior.
type stubAppService struct {
	app.ApplicationService
	completeErr error
}

func (s *stubAppService) CompleteFortnoxConnect(ctx context.Context, code, state string) (*app.IntegrationStatus, error) {
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	return &app.IntegrationStatus{Connected: true, CompanyName: "Bilhandlarn i Solna AB"}, nil
}

func TestFortnoxCallback_ProviderErrorInRedirect(t *testing.T) {
	svc := &stubAppService{completeErr: fmt.Errorf("exchange authorization code: %w",
		&fortnox.OAuthError{Code: "invalid_grant", Description: "code expired"})}
	handler := NewHandler(svc, "", "test-secret", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/integration/fortnox/callback?code=abc&state=xyz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if got, want := rec.Header().Get("Location"), "/settings/integration?fortnox_error=invalid_grant"; got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestFortnoxCallback_Success(t *testing.T) {
	handler := NewHandler(&stubAppService{}, "", "test-secret", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/integration/fortnox/callback?code=abc&state=xyz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if got, want := rec.Header().Get("Location"), "/settings/integration?fortnox=connected"; got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestFortnoxCallback_ProviderDenied(t *testing.T) {
	handler := NewHandler(&stubAppService{}, "", "test-secret", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/integration/fortnox/callback?error=access_denied", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got, want := rec.Header().Get("Location"), "/settings/integration?fortnox_error=access_denied"; got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}
