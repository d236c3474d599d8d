package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/stratus-analytics/pulse/pkg/types"
)

// maxHeadlines caps how many articles are kept per fetch.
const maxHeadlines = 10

// Headline is one normalized news item.
type Headline struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// NewsPayload is the normalized news value for a topic.
type NewsPayload struct {
	Topic     string     `json:"topic"`
	Headlines []Headline `json:"headlines"`
}

// newsDataSource fetches headlines from a newsdata/newsapi style endpoint:
// GET {url}?q={topic} returns {"articles":[{title, url, publishedAt, source:{name}}]}.
type newsDataSource struct {
	name   string
	url    string
	apiKey string
	topic  string
	client *http.Client
}

type newsResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func newNewsData(category string, cfg types.ProviderConfig) (Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	topic := cfg.Params["topic"]
	if topic == "" {
		return nil, fmt.Errorf("param topic is required")
	}
	return &newsDataSource{
		name:   cfg.Name,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		topic:  topic,
		client: newHTTPClient(cfg.Timeout),
	}, nil
}

func (s *newsDataSource) Name() string { return s.name }

func (s *newsDataSource) Fetch(ctx context.Context) ([]byte, error) {
	query := url.Values{}
	query.Set("q", s.topic)

	body, err := fetchBody(ctx, s.client, s.url+"?"+query.Encode(), s.apiKey)
	if err != nil {
		return nil, err
	}

	var resp newsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("decoding news response: %w", err)}
	}
	if len(resp.Articles) == 0 {
		return nil, &FetchError{Reason: types.FetchParseError, Err: fmt.Errorf("response contains no articles")}
	}

	payload := NewsPayload{Topic: s.topic}
	for i, a := range resp.Articles {
		if i >= maxHeadlines {
			break
		}
		payload.Headlines = append(payload.Headlines, Headline{
			Title:       a.Title,
			Source:      a.Source.Name,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
		})
	}
	return json.Marshal(payload)
}
