package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/stratus-analytics/pulse/pkg/types"
)

// WeatherPayload is the normalized current-weather value.
type WeatherPayload struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperatureC"`
	WindSpeed   float64 `json:"windSpeedKmh"`
	WeatherCode int     `json:"weatherCode"`
	AsOf        string  `json:"asOf"`
}

// openMeteoSource fetches current conditions from an Open-Meteo style
// endpoint: GET {url}?latitude=..&longitude=..&current_weather=true.
type openMeteoSource struct {
	name     string
	url      string
	location string
	lat      string
	lon      string
	client   *http.Client
}

type openMeteoResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
}

func newOpenMeteo(category string, cfg types.ProviderConfig) (Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	lat, lon := cfg.Params["latitude"], cfg.Params["longitude"]
	if lat == "" || lon == "" {
		return nil, fmt.Errorf("params latitude and longitude are required")
	}
	location := cfg.Params["location"]
	if location == "" {
		location = category
	}
	return &openMeteoSource{
		name:     cfg.Name,
		url:      cfg.URL,
		location: location,
		lat:      lat,
		lon:      lon,
		client:   newHTTPClient(cfg.Timeout),
	}, nil
}

func (s *openMeteoSource) Name() string { return s.name }

func (s *openMeteoSource) Fetch(ctx context.Context) ([]byte, error) {
	query := url.Values{}
	query.Set("latitude", s.lat)
	query.Set("longitude", s.lon)
	query.Set("current_weather", "true")

	body, err := fetchBody(ctx, s.client, s.url+"?"+query.Encode(), "")
	if err != nil {
		return nil, err
	}

	var resp openMeteoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("decoding weather response: %w", err)}
	}
	if resp.CurrentWeather.Time == "" {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("response missing current_weather")}
	}

	payload := WeatherPayload{
		Location:    s.location,
		Temperature: resp.CurrentWeather.Temperature,
		WindSpeed:   resp.CurrentWeather.WindSpeed,
		WeatherCode: resp.CurrentWeather.WeatherCode,
		AsOf:        resp.CurrentWeather.Time,
	}
	return json.Marshal(payload)
}
