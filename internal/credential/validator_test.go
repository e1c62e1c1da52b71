package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/manash/imgstudio/internal/provider"
)

type fakeProber struct {
	err   error
	calls int
}

func (p *fakeProber) ValidateKey(ctx context.Context, key string) error {
	p.calls++
	return p.err
}

func TestValidateRejectsBadFormatWithoutProbe(t *testing.T) {
	prober := &fakeProber{}
	validator := NewValidator(prober)

	result := validator.Validate(context.Background(), "not-a-key")

	if result.Valid {
		t.Error("Valid = true for malformed key")
	}
	if result.Retryable {
		t.Error("Retryable = true for malformed key")
	}
	if !errors.Is(result.Err, ErrBadFormat) {
		t.Errorf("Err = %v, want ErrBadFormat", result.Err)
	}
	if prober.calls != 0 {
		t.Errorf("prober called %d times for malformed key, want 0", prober.calls)
	}
}

func TestValidateOutcomes(t *testing.T) {
	tests := []struct {
		name          string
		probeErr      error
		wantValid     bool
		wantRetryable bool
		wantErr       error
	}{
		{
			name:      "live key",
			probeErr:  nil,
			wantValid: true,
		},
		{
			name:     "rejected key",
			probeErr: provider.ErrInvalidCredential,
			wantErr:  provider.ErrInvalidCredential,
		},
		{
			name:          "rate limited probe",
			probeErr:      provider.ErrRateLimited,
			wantRetryable: true,
			wantErr:       provider.ErrRateLimited,
		},
		{
			name:          "transport failure",
			probeErr:      errors.New("connection refused"),
			wantRetryable: true,
			wantErr:       ErrValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := NewValidator(&fakeProber{err: tt.probeErr})
			result := validator.Validate(context.Background(), testKey)

			if result.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", result.Valid, tt.wantValid)
			}
			if result.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", result.Retryable, tt.wantRetryable)
			}
			if tt.wantErr != nil && !errors.Is(result.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", result.Err, tt.wantErr)
			}
		})
	}
}
