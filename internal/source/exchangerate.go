package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stratus-analytics/pulse/pkg/types"
)

// exchangeRateSource fetches FX rates from an exchangerate-api style JSON
// endpoint: GET {url}/{base} returns {"base":..., "date":..., "rates":{...}}.
type exchangeRateSource struct {
	name   string
	url    string
	apiKey string
	base   string
	quote  string
	client *http.Client
}

type exchangeRateResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

func newExchangeRateAPI(category string, cfg types.ProviderConfig) (Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	base, quote, err := pairParams(cfg.Params)
	if err != nil {
		return nil, err
	}
	return &exchangeRateSource{
		name:   cfg.Name,
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		base:   base,
		quote:  quote,
		client: newHTTPClient(cfg.Timeout),
	}, nil
}

func (s *exchangeRateSource) Name() string { return s.name }

func (s *exchangeRateSource) Fetch(ctx context.Context) ([]byte, error) {
	body, err := fetchBody(ctx, s.client, s.url+"/"+s.base, s.apiKey)
	if err != nil {
		return nil, err
	}

	var resp exchangeRateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("decoding rates response: %w", err)}
	}

	rate, ok := resp.Rates[s.quote]
	if !ok {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("currency %s not in response", s.quote)}
	}

	payload := RatePayload{
		Pair: s.base + "_" + s.quote,
		Rate: decimal.NewFromFloat(rate).Round(8),
		AsOf: resp.Date,
	}
	return json.Marshal(payload)
}
