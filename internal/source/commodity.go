package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stratus-analytics/pulse/pkg/types"
)

// CommodityPayload is the normalized commodity price value.
type CommodityPayload struct {
	Symbol   string          `json:"symbol"`
	PriceUSD decimal.Decimal `json:"priceUsd"`
	AsOf     string          `json:"asOf"`
}

// commoditySource fetches a commodity quote from a commodities-api style
// endpoint: GET {url}?base=USD&symbols={symbol} returns
// {"data":{"date":...,"rates":{SYMBOL: units-per-USD}}}.
// Rates are quoted as units per USD, so the price is the inverse.
type commoditySource struct {
	name   string
	url    string
	apiKey string
	symbol string
	client *http.Client
}

type commodityResponse struct {
	Data struct {
		Date  string             `json:"date"`
		Rates map[string]float64 `json:"rates"`
	} `json:"data"`
}

func newCommoditiesAPI(category string, cfg types.ProviderConfig) (Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	symbol := strings.ToUpper(cfg.Params["symbol"])
	if symbol == "" {
		return nil, fmt.Errorf("param symbol is required")
	}
	return &commoditySource{
		name:   cfg.Name,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		symbol: symbol,
		client: newHTTPClient(cfg.Timeout),
	}, nil
}

func (s *commoditySource) Name() string { return s.name }

func (s *commoditySource) Fetch(ctx context.Context) ([]byte, error) {
	query := url.Values{}
	query.Set("base", "USD")
	query.Set("symbols", s.symbol)

	body, err := fetchBody(ctx, s.client, s.url+"?"+query.Encode(), s.apiKey)
	if err != nil {
		return nil, err
	}

	var resp commodityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("decoding commodity response: %w", err)}
	}

	rate, ok := resp.Data.Rates[s.symbol]
	if !ok || rate == 0 {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("symbol %s not in response", s.symbol)}
	}

	payload := CommodityPayload{
		Symbol:   s.symbol,
		PriceUSD: decimal.NewFromInt(1).DivRound(decimal.NewFromFloat(rate), 6),
		AsOf:     resp.Data.Date,
	}
	return json.Marshal(payload)
}
