package main

import (
	"github.com/spf13/cobra"

	"github.com/drmixer/emergence/internal/report"
)

const defaultReportOutputDir = "output/reports"

func reportFlags(cmd *cobra.Command, runID, conditionName *string, seasonNumber *int) {
	cmd.Flags().StringVar(runID, "run-id", "", "run_id to report on")
	cmd.Flags().StringVar(conditionName, "condition-name", "", "condition label to attach to the report")
	cmd.Flags().IntVar(seasonNumber, "season-number", 0, "season number to attach to the report")
}

func newExportRunReportCommand() *cobra.Command {
	var runID, conditionName string
	var seasonNumber int

	cmd := &cobra.Command{
		Use:   "export-run-report",
		Short: "generate the technical run report artifact pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return userError("--run-id is required")
			}

			ctx, cancel := commandContext()
			defer cancel()

			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := report.New(pool.Pool, defaultReportOutputDir)
			summary, err := svc.GenerateRunSummary(ctx, runID, conditionName, seasonNumber)
			if err != nil {
				return err
			}
			if _, _, err := svc.WriteArtifactPair(ctx, runID, "run_summary", "runs", summary, report.RenderRunSummaryMarkdown(summary)); err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	reportFlags(cmd, &runID, &conditionName, &seasonNumber)
	return cmd
}

func newGenerateNextRunPlanCommand() *cobra.Command {
	var runID, conditionName string

	cmd := &cobra.Command{
		Use:   "generate-next-run-plan",
		Short: "recommend the next run's class and transfer policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return userError("--run-id is required")
			}

			ctx, cancel := commandContext()
			defer cancel()

			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := report.New(pool.Pool, defaultReportOutputDir)
			plan, err := svc.GenerateNextRunPlan(ctx, runID, conditionName)
			if err != nil {
				return err
			}
			return printJSON(plan)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run_id to plan the follow-up run from")
	cmd.Flags().StringVar(&conditionName, "condition-name", "", "condition label to attach to the plan")
	return cmd
}

func newRebuildRunBundleCommand() *cobra.Command {
	var runID, conditionName string
	var seasonNumber int

	cmd := &cobra.Command{
		Use:   "rebuild-run-bundle",
		Short: "regenerate and re-persist the run summary and next-run-plan artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return userError("--run-id is required")
			}

			ctx, cancel := commandContext()
			defer cancel()

			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := report.New(pool.Pool, defaultReportOutputDir)
			bundle, err := svc.RebuildRunBundle(ctx, runID, conditionName, seasonNumber)
			if err != nil {
				return err
			}
			return printJSON(bundle)
		},
	}
	reportFlags(cmd, &runID, &conditionName, &seasonNumber)
	return cmd
}
