package notion

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusConflict, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			t.Parallel()

			err := fmt.Errorf("wrapped: %w", &APIError{Status: tt.status})
			if got := errors.Is(err, ErrTransient); got != tt.transient {
				t.Errorf("Is(ErrTransient) = %v, want %v", got, tt.transient)
			}
			if got := errors.Is(err, ErrPermanent); got == tt.transient {
				t.Errorf("Is(ErrPermanent) = %v, want %v", got, !tt.transient)
			}
		})
	}
}

func TestClassified_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := transient(fmt.Errorf("notion: op: %w", cause))
	if !errors.Is(err, ErrTransient) || !errors.Is(err, cause) {
		t.Errorf("transient wrapper lost information: %v", err)
	}
	if errors.Is(err, ErrPermanent) {
		t.Error("transient error must not be permanent")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.Defaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing token")
	}

	cfg.Token = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.BaseURL = "ftp://example.com"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-http base_url")
	}
}
