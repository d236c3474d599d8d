// Package source implements provider adapters for upstream data sources.
// Each adapter wraps one upstream provider for one data category behind a
// uniform fetch capability; adapters are stateless and safe to share across
// concurrent invocations.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/stratus-analytics/pulse/pkg/types"
)

// defaultTimeout is the per-request timeout an adapter enforces on itself.
// The orchestrator's per-step deadline is a separate backstop.
const defaultTimeout = 10 * time.Second

// Source is one upstream data source for one category.
type Source interface {
	// Name identifies the provider, e.g. "ecb".
	Name() string
	// Fetch retrieves and normalizes the provider's payload. Failures are
	// *FetchError values carrying a machine-readable reason.
	Fetch(ctx context.Context) ([]byte, error)
}

// FetchError is a classified provider fetch failure.
type FetchError struct {
	Reason types.FetchReason
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Classify extracts the failure reason from a fetch error. Unclassified
// errors read as http_error.
func Classify(err error) types.FetchReason {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return types.FetchTimeout
	}
	return types.FetchHTTPError
}

func parseTimeout(s string) time.Duration {
	if s == "" {
		return defaultTimeout
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}

func newHTTPClient(timeout string) *http.Client {
	return &http.Client{Timeout: parseTimeout(timeout)}
}

// fetchBody performs a GET and returns the response body, classifying
// transport and status failures.
func fetchBody(ctx context.Context, client *http.Client, url, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Reason: types.FetchHTTPError, Err: err}
	}
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded || os.IsTimeout(err) {
			return nil, &FetchError{Reason: types.FetchTimeout, Err: err}
		}
		return nil, &FetchError{Reason: types.FetchHTTPError, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &FetchError{Reason: types.FetchRateLimited, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &FetchError{Reason: types.FetchHTTPError, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Reason: types.FetchHTTPError, Err: fmt.Errorf("reading response: %w", err)}
	}
	return body, nil
}
