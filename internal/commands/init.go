package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stratus-analytics/pulse/internal/config"
)

const starterConfig = `redis:
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
        url: https://api.exchangerate-api.com/v4/latest
        params:
          base: USD
          quote: EUR

pipelines:
  - name: market-data
    categories: [fx:USD_EUR]
    maxConcurrency: 4
    stepTimeout: 30s
    interval: 6h

refresher:
  enabled: false
  defaultInterval: 6h

alerts:
  - type: console
`

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new Pulse project",
		Long:  "Creates a project directory with a starter pulse.yaml.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0])
		},
	}
}

func runInit(projectName string) error {
	if err := os.MkdirAll(projectName, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", projectName, err)
	}

	path := filepath.Join(projectName, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	color.Green("Created %s", path)
	fmt.Println("\nNext steps:")
	fmt.Printf("  cd %s\n", projectName)
	fmt.Println("  # start Redis or Valkey on localhost:6379")
	fmt.Println("  pulse refresh market-data")
	fmt.Println("  pulse serve")
	return nil
}
