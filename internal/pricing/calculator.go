package pricing

import (
	"github.com/shopspring/decimal"
)

const CurrencyUSD = "USD"

// Estimate is a derived value, recomputed on demand and never persisted on
// its own.
type Estimate struct {
	PerImage decimal.Decimal
	Total    decimal.Decimal
	Currency string
}

// EstimateCost prices a request of quantity images. Quantities below one are
// treated as one.
func EstimateCost(model, size, quality string, quantity int) *Estimate {
	if quantity < 1 {
		quantity = 1
	}

	perImage := UnitPrice(model, size, quality)
	return &Estimate{
		PerImage: perImage,
		Total:    perImage.Mul(decimal.NewFromInt(int64(quantity))),
		Currency: CurrencyUSD,
	}
}
