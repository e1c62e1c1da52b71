package models

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrEmptyPrompt     = errors.New("prompt cannot be empty")
	ErrUnknownModel    = errors.New("unknown model")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidSize     = errors.New("invalid size for model")
	ErrInvalidQuality  = errors.New("invalid quality for model")
	ErrInvalidStyle    = errors.New("invalid style for model")
)

const (
	ModelDallE2 = "dall-e-2"
	ModelDallE3 = "dall-e-3"
)

// GenerationParams describes one generation request as composed by the user.
type GenerationParams struct {
	Prompt        string
	Model         string
	Size          string
	Quality       string
	Style         string
	Quantity      int
	EnhancePrompt bool
}

func NewParams(prompt string) *GenerationParams {
	return &GenerationParams{
		Prompt:   prompt,
		Model:    ModelDallE3,
		Quantity: 1,
	}
}

// ModelCapabilities describes what one model tier accepts. Quality and style
// only exist on dall-e-3; dall-e-2 ignores both.
type ModelCapabilities struct {
	Name            string
	SupportedSizes  []string
	QualityOptions  []string
	StyleOptions    []string
	MaxImages       int
	DefaultSize     string
	DefaultQuality  string
	DefaultStyle    string
	SupportsQuality bool
	SupportsStyle   bool
}

func (c *ModelCapabilities) Validate(p *GenerationParams) error {
	if p.Prompt == "" {
		return ErrEmptyPrompt
	}

	if p.Quantity < 1 {
		return ErrInvalidQuantity
	}

	if p.Size != "" && !slices.Contains(c.SupportedSizes, p.Size) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidSize, p.Size, c.SupportedSizes)
	}

	if p.Quality != "" && c.SupportsQuality && !slices.Contains(c.QualityOptions, p.Quality) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidQuality, p.Quality, c.QualityOptions)
	}

	if p.Style != "" && c.SupportsStyle && !slices.Contains(c.StyleOptions, p.Style) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidStyle, p.Style, c.StyleOptions)
	}

	return nil
}

func (c *ModelCapabilities) ApplyDefaults(p *GenerationParams) {
	if p.Model == "" {
		p.Model = c.Name
	}
	if p.Size == "" {
		p.Size = c.DefaultSize
	}
	if p.Quality == "" && c.SupportsQuality {
		p.Quality = c.DefaultQuality
	}
	if p.Style == "" && c.SupportsStyle {
		p.Style = c.DefaultStyle
	}
	if p.Quantity < 1 {
		p.Quantity = 1
	}
}

// ClampQuantity caps the requested quantity at the model maximum instead of
// rejecting the request, matching what the provider does server-side.
func (c *ModelCapabilities) ClampQuantity(p *GenerationParams) {
	if p.Quantity > c.MaxImages {
		p.Quantity = c.MaxImages
	}
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:           ModelDallE2,
		SupportedSizes: []string{"256x256", "512x512", "1024x1024"},
		MaxImages:      10,
		DefaultSize:    "1024x1024",
	})

	r.Register(&ModelCapabilities{
		Name:            ModelDallE3,
		SupportedSizes:  []string{"1024x1024", "1024x1792", "1792x1024"},
		QualityOptions:  []string{"standard", "hd"},
		StyleOptions:    []string{"vivid", "natural"},
		MaxImages:       1,
		DefaultSize:     "1024x1024",
		DefaultQuality:  "standard",
		DefaultStyle:    "vivid",
		SupportsQuality: true,
		SupportsStyle:   true,
	})

	return r
}
