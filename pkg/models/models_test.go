package models

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	registry := DefaultRegistry()
	dalle2, _ := registry.Get(ModelDallE2)
	dalle3, _ := registry.Get(ModelDallE3)

	tests := []struct {
		name    string
		caps    *ModelCapabilities
		params  *GenerationParams
		wantErr error
	}{
		{
			name:   "valid dall-e-3 request",
			caps:   dalle3,
			params: &GenerationParams{Prompt: "a cat", Model: ModelDallE3, Size: "1024x1024", Quality: "hd", Style: "vivid", Quantity: 1},
		},
		{
			name:   "valid dall-e-2 request",
			caps:   dalle2,
			params: &GenerationParams{Prompt: "a cat", Model: ModelDallE2, Size: "512x512", Quantity: 4},
		},
		{
			name:    "empty prompt",
			caps:    dalle3,
			params:  &GenerationParams{Prompt: "", Model: ModelDallE3, Quantity: 1},
			wantErr: ErrEmptyPrompt,
		},
		{
			name:    "zero quantity",
			caps:    dalle3,
			params:  &GenerationParams{Prompt: "a cat", Model: ModelDallE3, Quantity: 0},
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "size not supported by model",
			caps:    dalle3,
			params:  &GenerationParams{Prompt: "a cat", Model: ModelDallE3, Size: "512x512", Quantity: 1},
			wantErr: ErrInvalidSize,
		},
		{
			name:    "bad quality",
			caps:    dalle3,
			params:  &GenerationParams{Prompt: "a cat", Model: ModelDallE3, Size: "1024x1024", Quality: "ultra", Quantity: 1},
			wantErr: ErrInvalidQuality,
		},
		{
			name:    "bad style",
			caps:    dalle3,
			params:  &GenerationParams{Prompt: "a cat", Model: ModelDallE3, Size: "1024x1024", Style: "anime", Quantity: 1},
			wantErr: ErrInvalidStyle,
		},
		{
			name:   "quality ignored for dall-e-2",
			caps:   dalle2,
			params: &GenerationParams{Prompt: "a cat", Model: ModelDallE2, Size: "256x256", Quality: "hd", Quantity: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.caps.Validate(tt.params)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	registry := DefaultRegistry()
	dalle3, _ := registry.Get(ModelDallE3)

	p := &GenerationParams{Prompt: "a cat", Model: ModelDallE3}
	dalle3.ApplyDefaults(p)

	if p.Size != "1024x1024" {
		t.Errorf("Size = %q, want 1024x1024", p.Size)
	}
	if p.Quality != "standard" {
		t.Errorf("Quality = %q, want standard", p.Quality)
	}
	if p.Style != "vivid" {
		t.Errorf("Style = %q, want vivid", p.Style)
	}
	if p.Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", p.Quantity)
	}
}

func TestApplyDefaultsDallE2SkipsQualityStyle(t *testing.T) {
	registry := DefaultRegistry()
	dalle2, _ := registry.Get(ModelDallE2)

	p := &GenerationParams{Prompt: "a cat", Model: ModelDallE2}
	dalle2.ApplyDefaults(p)

	if p.Quality != "" {
		t.Errorf("Quality = %q, want empty", p.Quality)
	}
	if p.Style != "" {
		t.Errorf("Style = %q, want empty", p.Style)
	}
}

func TestClampQuantity(t *testing.T) {
	registry := DefaultRegistry()
	dalle2, _ := registry.Get(ModelDallE2)
	dalle3, _ := registry.Get(ModelDallE3)

	tests := []struct {
		name     string
		caps     *ModelCapabilities
		quantity int
		want     int
	}{
		{"dall-e-3 clamps to 1", dalle3, 5, 1},
		{"dall-e-3 keeps 1", dalle3, 1, 1},
		{"dall-e-2 clamps to 10", dalle2, 25, 10},
		{"dall-e-2 keeps 4", dalle2, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &GenerationParams{Prompt: "x", Quantity: tt.quantity}
			tt.caps.ClampQuantity(p)
			if p.Quantity != tt.want {
				t.Errorf("Quantity = %d, want %d", p.Quantity, tt.want)
			}
		})
	}
}

func TestRegistryList(t *testing.T) {
	registry := DefaultRegistry()
	names := registry.List()

	if len(names) != 2 {
		t.Fatalf("List() returned %d models, want 2", len(names))
	}
	if names[0] != ModelDallE2 || names[1] != ModelDallE3 {
		t.Errorf("List() = %v, want sorted [dall-e-2 dall-e-3]", names)
	}

	if _, ok := registry.Get("dall-e-9"); ok {
		t.Error("Get() found unregistered model")
	}
}
