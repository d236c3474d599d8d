package types

// ProviderConfig identifies one data source adapter for a category.
// Lower priority values are tried first.
type ProviderConfig struct {
	Name     string            `yaml:"name" json:"name"`
	Priority int               `yaml:"priority" json:"priority"`
	URL      string            `yaml:"url,omitempty" json:"url,omitempty"`
	APIKey   string            `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	Timeout  string            `yaml:"timeout,omitempty" json:"timeout,omitempty"` // e.g. "10s"
	Params   map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// CategoryConfig defines one tracked data category and its fallback chain.
type CategoryConfig struct {
	Name               string           `yaml:"name" json:"name"`
	Providers          []ProviderConfig `yaml:"providers" json:"providers"`
	FailureThreshold   int              `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty"` // default 3
	Cooldown           string           `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`                 // default "5m"
	CacheTTL           string           `yaml:"cacheTtl,omitempty" json:"cacheTtl,omitempty"`                 // default "6h"
	StalenessThreshold string           `yaml:"stalenessThreshold,omitempty" json:"stalenessThreshold,omitempty"` // default "6h"
}

// PipelineConfig groups categories refreshed together on one cadence.
type PipelineConfig struct {
	Name           string   `yaml:"name" json:"name"`
	Categories     []string `yaml:"categories" json:"categories"`
	MaxConcurrency int      `yaml:"maxConcurrency,omitempty" json:"maxConcurrency,omitempty"` // default 4
	StepTimeout    string   `yaml:"stepTimeout,omitempty" json:"stepTimeout,omitempty"`       // default "30s"
	Interval       string   `yaml:"interval,omitempty" json:"interval,omitempty"`             // refresher cadence, e.g. "6h"
	// Lock serializes runs of this pipeline across processes with a
	// short-TTL distributed lock. Off by default; overlapping runs are
	// tolerated and only cost duplicate upstream calls.
	Lock bool `yaml:"lock,omitempty" json:"lock,omitempty"`
}

// BreakerConfig holds global circuit breaker tuning.
type BreakerConfig struct {
	BackoffFactor float64 `yaml:"backoffFactor,omitempty" json:"backoffFactor,omitempty"` // default 2.0
	MaxCooldown   string  `yaml:"maxCooldown,omitempty" json:"maxCooldown,omitempty"`     // default "1h"
}

// RedisConfig holds Redis/Valkey connection settings.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password,omitempty"`
	DB             int    `yaml:"db,omitempty"`
	KeyPrefix      string `yaml:"keyPrefix,omitempty"`
	RunIndexLimit  int    `yaml:"runIndexLimit,omitempty"`  // default 100
	EventStreamMax int64  `yaml:"eventStreamMax,omitempty"` // default 1000
	// PublishUpdates enables pub/sub notification of new cached values so
	// real-time consumers can subscribe instead of polling.
	PublishUpdates bool `yaml:"publishUpdates,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"apiKey,omitempty"`
	AdminAPIKey    string `yaml:"adminApiKey,omitempty"` // required for circuit resets; falls back to APIKey
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty"`
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type     AlertType `yaml:"type" json:"type"`
	URL      string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	TopicARN string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
}

// RefresherConfig configures the built-in background refresh loop.
// Deployments driven by an external scheduler leave it disabled and hit the
// refresh endpoint instead.
type RefresherConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DefaultInterval string `yaml:"defaultInterval,omitempty"` // default "6h"
}

// ProjectConfig represents the top-level pulse.yaml configuration.
type ProjectConfig struct {
	Redis      *RedisConfig     `yaml:"redis,omitempty"`
	Server     *ServerConfig    `yaml:"server,omitempty"`
	Breaker    *BreakerConfig   `yaml:"breaker,omitempty"`
	Categories []CategoryConfig `yaml:"categories"`
	Pipelines  []PipelineConfig `yaml:"pipelines"`
	Alerts     []AlertConfig    `yaml:"alerts,omitempty"`
	Refresher  *RefresherConfig `yaml:"refresher,omitempty"`
}

// Category returns the category config by name, or nil.
func (c *ProjectConfig) Category(name string) *CategoryConfig {
	for i := range c.Categories {
		if c.Categories[i].Name == name {
			return &c.Categories[i]
		}
	}
	return nil
}

// Pipeline returns the pipeline config by name, or nil.
func (c *ProjectConfig) Pipeline(name string) *PipelineConfig {
	for i := range c.Pipelines {
		if c.Pipelines[i].Name == name {
			return &c.Pipelines[i]
		}
	}
	return nil
}
