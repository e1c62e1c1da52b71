package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/manash/imgstudio/pkg/models"
)

// OpenAI image generation pricing (USD per image).
// Source: https://openai.com/api/pricing/
//
// dall-e-2 is priced by size alone; dall-e-3 by size and quality. These tables
// must track the provider's published pricing: the same numbers are shown as
// the pre-request estimate and recorded as the charge in history.

var dallE2BySize = map[string]decimal.Decimal{
	"256x256":   decimal.NewFromFloat(0.016),
	"512x512":   decimal.NewFromFloat(0.018),
	"1024x1024": decimal.NewFromFloat(0.020),
}

var dallE3BySizeQuality = map[string]map[string]decimal.Decimal{
	"1024x1024": {
		"standard": decimal.NewFromFloat(0.040),
		"hd":       decimal.NewFromFloat(0.080),
	},
	"1024x1792": {
		"standard": decimal.NewFromFloat(0.080),
		"hd":       decimal.NewFromFloat(0.120),
	},
	"1792x1024": {
		"standard": decimal.NewFromFloat(0.080),
		"hd":       decimal.NewFromFloat(0.120),
	},
}

// Documented fallbacks for lookups that miss: the 1024x1024 price of each
// tier. Unit prices are never zero so a missing entry cannot produce a $0.00
// billing display.
var (
	fallbackDallE2 = decimal.NewFromFloat(0.020)
	fallbackDallE3 = decimal.NewFromFloat(0.040)
)

// UnitPrice returns the USD price of a single image. It is deterministic and
// always positive.
func UnitPrice(model, size, quality string) decimal.Decimal {
	switch model {
	case models.ModelDallE2:
		if price, ok := dallE2BySize[size]; ok {
			return price
		}
		return fallbackDallE2
	case models.ModelDallE3:
		if quality == "" {
			quality = "standard"
		}
		if byQuality, ok := dallE3BySizeQuality[size]; ok {
			if price, ok := byQuality[quality]; ok {
				return price
			}
		}
		return fallbackDallE3
	default:
		return fallbackDallE3
	}
}
