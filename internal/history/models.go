package history

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record describes one successfully generated image. Everything except the
// favorite flag is immutable once written.
type Record struct {
	ID             string          `json:"id"`
	ImageURL       string          `json:"image_url"`
	Prompt         string          `json:"prompt"`
	OriginalPrompt string          `json:"original_prompt"`
	RevisedPrompt  string          `json:"revised_prompt,omitempty"`
	Model          string          `json:"model"`
	Size           string          `json:"size"`
	Quality        string          `json:"quality,omitempty"`
	Style          string          `json:"style,omitempty"`
	Cost           decimal.Decimal `json:"cost"`
	Favorite       bool            `json:"favorite"`
	CreatedAt      time.Time       `json:"created_at"`
}
