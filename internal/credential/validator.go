package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/manash/imgstudio/internal/provider"
)

var (
	ErrBadFormat        = errors.New("invalid credential format")
	ErrValidationFailed = errors.New("validation failed, try again")
)

// KeyProber performs the minimal authenticated provider call used to confirm
// a credential is live.
type KeyProber interface {
	ValidateKey(ctx context.Context, key string) error
}

// Result is the outcome of one validation attempt. Retryable marks failures
// that are not a judgment on the credential itself (rate limits, transport).
type Result struct {
	Valid     bool
	Retryable bool
	Err       error
}

// Validator checks a credential's format locally, then its liveness remotely.
type Validator struct {
	prober KeyProber
}

func NewValidator(prober KeyProber) *Validator {
	return &Validator{prober: prober}
}

// Validate rejects malformed credentials without touching the network, then
// probes the provider once. No retry is performed here; retry is a caller
// decision.
func (v *Validator) Validate(ctx context.Context, secret string) Result {
	if !IsFormatValid(secret) {
		return Result{
			Valid: false,
			Err:   fmt.Errorf("%w: keys start with %q and are longer than %d characters", ErrBadFormat, keyPrefix, minKeyLength),
		}
	}

	err := v.prober.ValidateKey(ctx, secret)
	switch {
	case err == nil:
		return Result{Valid: true}
	case errors.Is(err, provider.ErrInvalidCredential):
		return Result{Valid: false, Err: provider.ErrInvalidCredential}
	case errors.Is(err, provider.ErrRateLimited):
		return Result{Valid: false, Retryable: true, Err: provider.ErrRateLimited}
	default:
		return Result{Valid: false, Retryable: true, Err: fmt.Errorf("%w: %v", ErrValidationFailed, err)}
	}
}
