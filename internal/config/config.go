// Package config handles loading and validation of pulse.yaml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stratus-analytics/pulse/pkg/types"
)

// FileName is the project configuration file name.
const FileName = "pulse.yaml"

// Load reads and parses pulse.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.Redis == nil || cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if len(cfg.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	seenCategories := make(map[string]bool, len(cfg.Categories))
	for i := range cfg.Categories {
		cat := &cfg.Categories[i]
		if cat.Name == "" {
			return fmt.Errorf("categories[%d]: name is required", i)
		}
		if seenCategories[cat.Name] {
			return fmt.Errorf("duplicate category %q", cat.Name)
		}
		seenCategories[cat.Name] = true

		if len(cat.Providers) == 0 {
			return fmt.Errorf("category %q: at least one provider is required", cat.Name)
		}
		for j, p := range cat.Providers {
			if p.Name == "" {
				return fmt.Errorf("category %q: providers[%d]: name is required", cat.Name, j)
			}
			if err := checkDuration(p.Timeout); err != nil {
				return fmt.Errorf("category %q: provider %q: timeout: %w", cat.Name, p.Name, err)
			}
		}
		for field, value := range map[string]string{
			"cooldown":           cat.Cooldown,
			"cacheTtl":           cat.CacheTTL,
			"stalenessThreshold": cat.StalenessThreshold,
		} {
			if err := checkDuration(value); err != nil {
				return fmt.Errorf("category %q: %s: %w", cat.Name, field, err)
			}
		}
		if cat.FailureThreshold < 0 {
			return fmt.Errorf("category %q: failureThreshold must not be negative", cat.Name)
		}
	}

	if len(cfg.Pipelines) == 0 {
		return fmt.Errorf("at least one pipeline is required")
	}
	seenPipelines := make(map[string]bool, len(cfg.Pipelines))
	for i := range cfg.Pipelines {
		p := &cfg.Pipelines[i]
		if p.Name == "" {
			return fmt.Errorf("pipelines[%d]: name is required", i)
		}
		if seenPipelines[p.Name] {
			return fmt.Errorf("duplicate pipeline %q", p.Name)
		}
		seenPipelines[p.Name] = true

		if len(p.Categories) == 0 {
			return fmt.Errorf("pipeline %q: at least one category is required", p.Name)
		}
		for _, name := range p.Categories {
			if !seenCategories[name] {
				return fmt.Errorf("pipeline %q references unknown category %q", p.Name, name)
			}
		}
		if p.MaxConcurrency < 0 {
			return fmt.Errorf("pipeline %q: maxConcurrency must not be negative", p.Name)
		}
		for field, value := range map[string]string{
			"stepTimeout": p.StepTimeout,
			"interval":    p.Interval,
		} {
			if err := checkDuration(value); err != nil {
				return fmt.Errorf("pipeline %q: %s: %w", p.Name, field, err)
			}
		}
	}

	if cfg.Breaker != nil {
		if cfg.Breaker.BackoffFactor < 0 || (cfg.Breaker.BackoffFactor > 0 && cfg.Breaker.BackoffFactor < 1) {
			return fmt.Errorf("breaker.backoffFactor must be at least 1")
		}
		if err := checkDuration(cfg.Breaker.MaxCooldown); err != nil {
			return fmt.Errorf("breaker.maxCooldown: %w", err)
		}
	}
	if cfg.Refresher != nil {
		if err := checkDuration(cfg.Refresher.DefaultInterval); err != nil {
			return fmt.Errorf("refresher.defaultInterval: %w", err)
		}
	}
	for i, a := range cfg.Alerts {
		switch a.Type {
		case types.AlertConsole:
		case types.AlertWebhook:
			if a.URL == "" {
				return fmt.Errorf("alerts[%d]: webhook url is required", i)
			}
		case types.AlertFile:
			if a.Path == "" {
				return fmt.Errorf("alerts[%d]: file path is required", i)
			}
		case types.AlertSNS:
			if a.TopicARN == "" {
				return fmt.Errorf("alerts[%d]: sns topicArn is required", i)
			}
		default:
			return fmt.Errorf("alerts[%d]: unknown type %q", i, a.Type)
		}
	}

	return nil
}

// checkDuration accepts empty (defaulted elsewhere) or a positive duration.
func checkDuration(s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 {
		return fmt.Errorf("duration %q must be positive", s)
	}
	return nil
}
