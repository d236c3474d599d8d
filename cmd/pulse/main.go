package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratus-analytics/pulse/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "pulse",
		Short: "Resilient multi-source data refresh service",
		Long: `Pulse keeps a set of data categories (FX rates, commodity prices, weather,
news) populated from unreliable upstream providers. Each category has a
prioritized fallback chain of providers guarded by circuit breakers; refreshed
values land in a shared store where staleness is judged at read time, so a
dead provider degrades freshness instead of availability.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewRefreshCmd(),
		commands.NewStatusCmd(),
		commands.NewServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
