package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stratus-analytics/pulse/pkg/types"
)

const statusTimeout = 10 * time.Second

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show category freshness, circuit states, and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	if err := a.store.Start(ctx); err != nil {
		return fmt.Errorf("connecting to Redis: %w", err)
	}
	defer func() { _ = a.store.Stop(ctx) }()

	if err := showFreshness(ctx, a); err != nil {
		return err
	}
	if err := showCircuits(ctx, a); err != nil {
		return err
	}
	return showRecentRuns(ctx, a)
}

func showFreshness(ctx context.Context, a *app) error {
	report, err := a.freshness.Report(ctx)
	if err != nil {
		return fmt.Errorf("freshness report: %w", err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Println("Categories:")
	for i := range a.cfg.Categories {
		name := a.cfg.Categories[i].Name
		entry := report[name]

		var statusStr, detail string
		switch entry.Status {
		case types.FreshnessFresh:
			statusStr = color.GreenString("FRESH")
		case types.FreshnessStale:
			statusStr = color.YellowString("STALE")
		default:
			statusStr = color.RedString("MISSING")
		}
		if entry.FetchedAt != nil {
			detail = fmt.Sprintf("age=%s source=%s",
				(time.Duration(entry.AgeSeconds) * time.Second).String(), entry.Source)
		}
		fmt.Printf("  %-30s %-10s %s\n", name, statusStr, detail)
	}
	fmt.Println()
	return nil
}

func showCircuits(ctx context.Context, a *app) error {
	states, err := a.breaker.States(ctx)
	if err != nil {
		return fmt.Errorf("listing circuits: %w", err)
	}
	if len(states) == 0 {
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Println("Circuits:")
	now := time.Now()
	for _, st := range states {
		var stateStr string
		switch st.EffectiveState(now) {
		case types.CircuitClosed:
			stateStr = color.GreenString("CLOSED")
		case types.CircuitHalfOpen:
			stateStr = color.YellowString("HALF_OPEN")
		default:
			stateStr = color.RedString("OPEN")
		}
		fmt.Printf("  %-30s %-20s %-10s failures=%d\n",
			st.Category, st.Provider, stateStr, st.ConsecutiveFailures)
	}
	fmt.Println()
	return nil
}

func showRecentRuns(ctx context.Context, a *app) error {
	bold := color.New(color.Bold)
	for i := range a.cfg.Pipelines {
		name := a.cfg.Pipelines[i].Name
		runs, err := a.store.ListRunResults(ctx, name, 5)
		if err != nil {
			return fmt.Errorf("listing runs for %s: %w", name, err)
		}
		if len(runs) == 0 {
			continue
		}

		_, _ = bold.Printf("Recent runs: %s\n", name)
		for _, r := range runs {
			fmt.Printf("  %-40s %-12s %s\n",
				r.RunID, colorRunStatus(r.Status), r.FinishedAt.Format(time.RFC3339))
		}
		fmt.Println()
	}
	return nil
}
