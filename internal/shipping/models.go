// Package shipping aggregates carrier rate quotes for a store's checkout.
package shipping

import (
	"errors"
	"regexp"
)

// Package dimension defaults (cm / kg) applied when a product omits them.
const (
	DefaultWidth  = 11.0
	DefaultHeight = 2.0
	DefaultLength = 16.0
	DefaultWeight = 0.3
)

var (
	ErrProvider           = errors.New("shipping provider error")
	ErrSettingsNotFound   = errors.New("shipping settings not found")
	errMissingStore       = errors.New("store_user_id is required")
	errMissingPostalCodes = errors.New("from_postal_code and to_postal_code are required")
)

type QuoteRequest struct {
	StoreUserID    string    `json:"store_user_id"`
	FromPostalCode string    `json:"from_postal_code"`
	ToPostalCode   string    `json:"to_postal_code"`
	Products       []Package `json:"products"`
}

type Package struct {
	ID             string  `json:"id"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	Length         float64 `json:"length"`
	Weight         float64 `json:"weight"`
	InsuranceValue float64 `json:"insurance_value"`
	Quantity       int     `json:"quantity"`
}

// withDefaults fills zero dimensions and quantity.
func (p Package) withDefaults() Package {
	if p.Width <= 0 {
		p.Width = DefaultWidth
	}
	if p.Height <= 0 {
		p.Height = DefaultHeight
	}
	if p.Length <= 0 {
		p.Length = DefaultLength
	}
	if p.Weight <= 0 {
		p.Weight = DefaultWeight
	}
	if p.InsuranceValue < 0 {
		p.InsuranceValue = 0
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	return p
}

// Settings are a store's carrier credentials.
type Settings struct {
	StoreUserID string
	Provider    string
	APIToken    string
	Sandbox     bool
	Active      bool
}

type Company struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

type DeliveryRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type Quote struct {
	ID            int           `json:"id"`
	Name          string        `json:"name"`
	Company       Company       `json:"company"`
	Price         float64       `json:"price"`
	CustomPrice   float64       `json:"custom_price"`
	Discount      float64       `json:"discount"`
	DeliveryTime  int           `json:"delivery_time"`
	DeliveryRange DeliveryRange `json:"delivery_range"`
	Currency      string        `json:"currency"`
	Error         *string       `json:"error"`
}

type QuoteResponse struct {
	Error  string  `json:"error,omitempty"`
	Quotes []Quote `json:"quotes"`
}

var nonDigit = regexp.MustCompile(`[^\d]`)

// PostalCode strips everything but digits ("01310-100" -> "01310100").
func PostalCode(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}
