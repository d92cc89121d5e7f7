package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

type Provider interface {
	Calculate(ctx context.Context, s Settings, req QuoteRequest) ([]ProviderQuote, error)
}

const calculatePath = "/api/v2/me/shipment/calculate"

type MelhorEnvioClient struct {
	http       *resty.Client
	prodURL    string
	sandboxURL string
	serviceIDs string
	userAgent  string
}

func NewMelhorEnvioClient(prodURL, sandboxURL string, serviceIDs []string, timeout time.Duration, userAgent string) *MelhorEnvioClient {
	return &MelhorEnvioClient{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetHeader("Content-Type", "application/json"),
		prodURL:    strings.TrimRight(prodURL, "/"),
		sandboxURL: strings.TrimRight(sandboxURL, "/"),
		serviceIDs: strings.Join(serviceIDs, ","),
		userAgent:  userAgent,
	}
}

type postalCode struct {
	PostalCode string `json:"postal_code"`
}

type calculateBody struct {
	From     postalCode `json:"from"`
	To       postalCode `json:"to"`
	Products []Package  `json:"products"`
	Options  struct {
		Receipt bool `json:"receipt"`
		OwnHand bool `json:"own_hand"`
	} `json:"options"`
	Services string `json:"services"`
}

// Calculate expects req to be normalized already (digits-only postal codes,
// package defaults applied). Every failure wraps ErrProvider.
func (c *MelhorEnvioClient) Calculate(ctx context.Context, s Settings, req QuoteRequest) ([]ProviderQuote, error) {
	base := c.prodURL
	if s.Sandbox {
		base = c.sandboxURL
	}
	payload := calculateBody{
		From:     postalCode{req.FromPostalCode},
		To:       postalCode{req.ToPostalCode},
		Products: req.Products,
		Services: c.serviceIDs,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(s.APIToken).
		SetHeader("User-Agent", c.userAgent).
		SetBody(payload).
		Post(base + calculatePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: http %d: %s", ErrProvider, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return decodeQuotes(resp.Body())
}

// decodeQuotes accepts the usual array and the single object returned when
// only one service is requested.
func decodeQuotes(b []byte) ([]ProviderQuote, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var one ProviderQuote
		if err := json.Unmarshal(b, &one); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrProvider, err)
		}
		return []ProviderQuote{one}, nil
	}
	var many []ProviderQuote
	if err := json.Unmarshal(b, &many); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrProvider, err)
	}
	return many, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
