package provider

import (
	"context"
	"errors"

	"github.com/manash/imgstudio/pkg/models"
)

// Error taxonomy for provider failures. Everything the gateway returns wraps
// one of these so callers can branch with errors.Is.
var (
	ErrCredentialRequired = errors.New("credential required")
	ErrInvalidCredential  = errors.New("invalid credential")
	ErrInsufficientQuota  = errors.New("insufficient quota")
	ErrRateLimited        = errors.New("rate limited, retry later")
	ErrContentPolicy      = errors.New("content policy violation")
	ErrUnknownAPI         = errors.New("provider request failed")
)

// Image is one generated image as returned by the provider.
type Image struct {
	URL           string
	RevisedPrompt string
}

// Response holds the result of a single generation call. RevisedPrompt is the
// provider's rewrite of the first image's prompt, when present.
type Response struct {
	Images        []Image
	RevisedPrompt string
}

// Gateway is the boundary toward the image-generation provider.
//
// GenerateImage always requests a single image per call regardless of the
// params quantity; the caller drives multi-image requests as a loop.
//
// EnhancePrompt never leaves the caller without a usable prompt: on failure it
// returns the original prompt together with the error.
type Gateway interface {
	GenerateImage(ctx context.Context, params *models.GenerationParams) (*Response, error)
	EnhancePrompt(ctx context.Context, prompt string) (string, error)
	ValidateKey(ctx context.Context, key string) error
}

// Config configures a gateway instance.
type Config struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int
}
