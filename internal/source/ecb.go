package source

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stratus-analytics/pulse/pkg/types"
)

const ecbDailyURL = "https://www.ecb.europa.eu/stats/eurofxref/eurofxref-daily.xml"

// RatePayload is the normalized FX rate value cached for fx categories.
type RatePayload struct {
	Pair string          `json:"pair"`
	Rate decimal.Decimal `json:"rate"`
	AsOf string          `json:"asOf"`
}

type ecbEnvelope struct {
	Day ecbDay `xml:"Cube>Cube"`
}

type ecbDay struct {
	Time  string    `xml:"time,attr"`
	Rates []ecbRate `xml:"Cube"`
}

type ecbRate struct {
	Currency string `xml:"currency,attr"`
	Rate     string `xml:"rate,attr"`
}

// ecbSource fetches the ECB daily reference rates feed. The feed is
// EUR-based; non-EUR pairs are derived as cross rates.
type ecbSource struct {
	name   string
	url    string
	base   string
	quote  string
	client *http.Client
}

func newECB(category string, cfg types.ProviderConfig) (Source, error) {
	base, quote, err := pairParams(cfg.Params)
	if err != nil {
		return nil, err
	}
	url := cfg.URL
	if url == "" {
		url = ecbDailyURL
	}
	return &ecbSource{
		name:   cfg.Name,
		url:    url,
		base:   base,
		quote:  quote,
		client: newHTTPClient(cfg.Timeout),
	}, nil
}

func (s *ecbSource) Name() string { return s.name }

func (s *ecbSource) Fetch(ctx context.Context) ([]byte, error) {
	body, err := fetchBody(ctx, s.client, s.url, "")
	if err != nil {
		return nil, err
	}

	var envelope ecbEnvelope
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("decoding ECB feed: %w", err)}
	}
	if len(envelope.Day.Rates) == 0 {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("ECB feed contains no rates")}
	}

	rates := map[string]decimal.Decimal{"EUR": decimal.NewFromInt(1)}
	for _, r := range envelope.Day.Rates {
		d, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("rate for %s: %w", r.Currency, err)}
		}
		rates[r.Currency] = d
	}

	baseRate, ok := rates[s.base]
	if !ok || baseRate.IsZero() {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("currency %s not in ECB feed", s.base)}
	}
	quoteRate, ok := rates[s.quote]
	if !ok {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("currency %s not in ECB feed", s.quote)}
	}

	payload := RatePayload{
		Pair: s.base + "_" + s.quote,
		Rate: quoteRate.DivRound(baseRate, 8),
		AsOf: envelope.Day.Time,
	}
	return json.Marshal(payload)
}

func pairParams(params map[string]string) (base, quote string, err error) {
	base = strings.ToUpper(params["base"])
	quote = strings.ToUpper(params["quote"])
	if base == "" || quote == "" {
		return "", "", fmt.Errorf("params base and quote are required")
	}
	return base, quote, nil
}
