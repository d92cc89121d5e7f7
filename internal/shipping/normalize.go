package shipping

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ProviderQuote is one entry of the Melhor Envio calculate response. Prices
// arrive as strings ("23.50") or numbers depending on the service.
type ProviderQuote struct {
	ID            int                 `json:"id"`
	Name          string              `json:"name"`
	Price         decimal.NullDecimal `json:"price"`
	CustomPrice   decimal.NullDecimal `json:"custom_price"`
	Discount      decimal.NullDecimal `json:"discount"`
	Currency      string              `json:"currency"`
	DeliveryTime  int                 `json:"delivery_time"`
	DeliveryRange DeliveryRange       `json:"delivery_range"`
	Company       Company             `json:"company"`
	Error         string              `json:"error,omitempty"`
}

// Normalize drops entries the provider flagged with an error and maps the
// rest to Quote with non-negative amounts.
func Normalize(entries []ProviderQuote) []Quote {
	out := make([]Quote, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Error) != "" {
			continue
		}
		cur := e.Currency
		if cur == "" {
			cur = "R$"
		}
		out = append(out, Quote{
			ID:            e.ID,
			Name:          e.Name,
			Company:       e.Company,
			Price:         amount(e.Price),
			CustomPrice:   amount(e.CustomPrice),
			Discount:      amount(e.Discount),
			DeliveryTime:  e.DeliveryTime,
			DeliveryRange: e.DeliveryRange,
			Currency:      cur,
		})
	}
	return out
}

func amount(d decimal.NullDecimal) float64 {
	if !d.Valid || d.Decimal.IsNegative() {
		return 0
	}
	return d.Decimal.Round(2).InexactFloat64()
}
