package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
redis:
  addr: localhost:6379
  keyPrefix: "pulse:"

server:
  addr: ":8080"

breaker:
  backoffFactor: 2.0
  maxCooldown: 1h

categories:
  - name: fx:USD_EUR
    failureThreshold: 3
    cooldown: 5m
    cacheTtl: 6h
    stalenessThreshold: 6h
    providers:
      - name: ecb
        priority: 1
        params:
          base: USD
          quote: EUR
      - name: exchangerate_api
        priority: 2
        url: https://api.example.com/v4/latest
        timeout: 10s
        params:
          base: USD
          quote: EUR

pipelines:
  - name: market-data
    categories: [fx:USD_EUR]
    maxConcurrency: 4
    stepTimeout: 30s
    interval: 6h

alerts:
  - type: console
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "pulse:", cfg.Redis.KeyPrefix)
	require.Len(t, cfg.Categories, 1)
	assert.Equal(t, "fx:USD_EUR", cfg.Categories[0].Name)
	require.Len(t, cfg.Categories[0].Providers, 2)
	assert.Equal(t, 3, cfg.Categories[0].FailureThreshold)
	require.Len(t, cfg.Pipelines, 1)
	assert.Equal(t, []string{"fx:USD_EUR"}, cfg.Pipelines[0].Categories)
	assert.Equal(t, 2.0, cfg.Breaker.BackoffFactor)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "categories: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{
			name: "missing redis addr",
			mutate: `
categories:
  - name: a
    providers: [{name: ecb, priority: 1}]
pipelines:
  - name: p
    categories: [a]
`,
			wantErr: "redis.addr is required",
		},
		{
			name: "no categories",
			mutate: `
redis: {addr: localhost:6379}
pipelines:
  - name: p
    categories: [a]
`,
			wantErr: "at least one category",
		},
		{
			name: "category without providers",
			mutate: `
redis: {addr: localhost:6379}
categories:
  - name: a
pipelines:
  - name: p
    categories: [a]
`,
			wantErr: "at least one provider",
		},
		{
			name: "duplicate category",
			mutate: `
redis: {addr: localhost:6379}
categories:
  - name: a
    providers: [{name: ecb, priority: 1}]
  - name: a
    providers: [{name: ecb, priority: 1}]
pipelines:
  - name: p
    categories: [a]
`,
			wantErr: `duplicate category "a"`,
		},
		{
			name: "bad duration",
			mutate: `
redis: {addr: localhost:6379}
categories:
  - name: a
    cooldown: soon
    providers: [{name: ecb, priority: 1}]
pipelines:
  - name: p
    categories: [a]
`,
			wantErr: `invalid duration "soon"`,
		},
		{
			name: "pipeline with unknown category",
			mutate: `
redis: {addr: localhost:6379}
categories:
  - name: a
    providers: [{name: ecb, priority: 1}]
pipelines:
  - name: p
    categories: [b]
`,
			wantErr: `unknown category "b"`,
		},
		{
			name: "no pipelines",
			mutate: `
redis: {addr: localhost:6379}
categories:
  - name: a
    providers: [{name: ecb, priority: 1}]
`,
			wantErr: "at least one pipeline",
		},
		{
			name: "webhook without url",
			mutate: `
redis: {addr: localhost:6379}
categories:
  - name: a
    providers: [{name: ecb, priority: 1}]
pipelines:
  - name: p
    categories: [a]
alerts:
  - type: webhook
`,
			wantErr: "webhook url is required",
		},
		{
			name: "backoff factor below one",
			mutate: `
redis: {addr: localhost:6379}
breaker: {backoffFactor: 0.5}
categories:
  - name: a
    providers: [{name: ecb, priority: 1}]
pipelines:
  - name: p
    categories: [a]
`,
			wantErr: "backoffFactor must be at least 1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.mutate))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
