package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stratus-analytics/pulse/internal/orchestrator"
	"github.com/stratus-analytics/pulse/pkg/types"
)

const refreshTimeout = 10 * time.Minute

// NewRefreshCmd creates the refresh command.
func NewRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <pipeline>",
		Short: "Run a refresh pipeline once and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(args[0])
		},
	}
}

func runRefresh(pipeline string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := a.store.Start(ctx); err != nil {
		return fmt.Errorf("connecting to Redis: %w", err)
	}
	defer func() { _ = a.store.Stop(ctx) }()

	result, err := a.orch.Run(ctx, pipeline)
	if err != nil {
		if errors.Is(err, orchestrator.ErrRunInProgress) {
			color.Yellow("Pipeline %s is already running elsewhere.", pipeline)
			return nil
		}
		return err
	}

	printRunResult(result)
	if result.Status == types.RunFailed {
		return fmt.Errorf("pipeline %s failed: no category refreshed", pipeline)
	}
	return nil
}

func printRunResult(result *types.PipelineRunResult) {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Run %s\n", result.RunID)
	fmt.Printf("  Status:   %s\n", colorRunStatus(result.Status))
	fmt.Printf("  Duration: %s\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	fmt.Println()

	for _, step := range result.Steps {
		fmt.Printf("  %-30s %s", step.Category, colorStepStatus(step.Status))
		if step.WinningSource != "" {
			fmt.Printf("  via %s", step.WinningSource)
		}
		fmt.Println()
		for _, attempt := range step.Attempts {
			switch {
			case attempt.Skipped:
				fmt.Printf("    %-28s %s\n", attempt.Provider, color.YellowString("skipped (circuit open)"))
			case attempt.Error != "":
				fmt.Printf("    %-28s %s %s\n", attempt.Provider, color.RedString("failed"), attempt.Reason)
			default:
				fmt.Printf("    %-28s %s (%dms)\n", attempt.Provider, color.GreenString("ok"), attempt.DurationMS)
			}
		}
	}
	fmt.Println()
}

func colorRunStatus(status types.RunStatus) string {
	switch status {
	case types.RunCompleted:
		return color.GreenString(string(status))
	case types.RunDegraded:
		return color.YellowString(string(status))
	default:
		return color.RedString(string(status))
	}
}

func colorStepStatus(status types.StepStatus) string {
	switch status {
	case types.StepSuccess:
		return color.GreenString(string(status))
	case types.StepSkippedCircuitOpen:
		return color.YellowString(string(status))
	default:
		return color.RedString(string(status))
	}
}
