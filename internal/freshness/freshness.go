// Package freshness derives staleness judgments for cached category values.
// It never mutates anything: freshness is computed at read time from the
// value's fetch timestamp and the category's staleness threshold.
package freshness

import (
	"context"
	"time"

	"github.com/stratus-analytics/pulse/internal/metrics"
	"github.com/stratus-analytics/pulse/internal/store"
	"github.com/stratus-analytics/pulse/pkg/types"
)

const defaultStalenessThreshold = 6 * time.Hour

// Monitor reports per-category freshness.
type Monitor struct {
	cfg   *types.ProjectConfig
	store store.Store
	now   func() time.Time
}

// New creates a Monitor over the configured categories.
func New(cfg *types.ProjectConfig, st store.Store) *Monitor {
	return &Monitor{cfg: cfg, store: st, now: time.Now}
}

// Report classifies every configured category as fresh, stale, or missing.
// A missing value is not a stale one: missing means never fetched, stale
// means fetched long enough ago to distrust.
func (m *Monitor) Report(ctx context.Context) (map[string]types.FreshnessEntry, error) {
	now := m.now()
	report := make(map[string]types.FreshnessEntry, len(m.cfg.Categories))
	for i := range m.cfg.Categories {
		cat := &m.cfg.Categories[i]
		entry, err := m.classify(ctx, cat, now)
		if err != nil {
			return nil, err
		}
		report[cat.Name] = entry
	}
	return report, nil
}

// Check classifies a single category.
func (m *Monitor) Check(ctx context.Context, category string) (types.FreshnessEntry, error) {
	cat := m.cfg.Category(category)
	if cat == nil {
		return types.FreshnessEntry{
			Category: category,
			Status:   types.FreshnessMissing,
		}, nil
	}
	return m.classify(ctx, cat, m.now())
}

func (m *Monitor) classify(ctx context.Context, cat *types.CategoryConfig, now time.Time) (types.FreshnessEntry, error) {
	value, err := m.store.GetValue(ctx, cat.Name)
	if err != nil {
		return types.FreshnessEntry{}, err
	}
	if value == nil {
		return types.FreshnessEntry{
			Category: cat.Name,
			Status:   types.FreshnessMissing,
		}, nil
	}

	age := now.Sub(value.FetchedAt)
	entry := types.FreshnessEntry{
		Category:   cat.Name,
		Status:     types.FreshnessFresh,
		AgeSeconds: int64(age.Seconds()),
		Source:     value.Source,
		FetchedAt:  &value.FetchedAt,
	}
	if age >= threshold(cat) {
		entry.Status = types.FreshnessStale
		entry.Stale = true
		metrics.StaleCategoriesSeen.Add(1)
	}
	return entry, nil
}

func threshold(cat *types.CategoryConfig) time.Duration {
	if cat.StalenessThreshold == "" {
		return defaultStalenessThreshold
	}
	d, err := time.ParseDuration(cat.StalenessThreshold)
	if err != nil || d <= 0 {
		return defaultStalenessThreshold
	}
	return d
}
