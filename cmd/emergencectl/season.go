package main

import (
	"github.com/spf13/cobra"

	"github.com/drmixer/emergence/internal/season"
)

func newExportSeasonSnapshotCommand() *cobra.Command {
	var runID, snapshotType string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "export-season-snapshot",
		Short: "export the survivors-v1 snapshot for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return userError("--run-id is required")
			}
			if snapshotType == "" {
				snapshotType = season.SnapshotSchemaSurvivorsV1
			}

			ctx, cancel := commandContext()
			defer cancel()

			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := season.New(pool.Pool)
			payload, err := svc.ExportSeasonSnapshot(ctx, runID, snapshotType, dryRun)
			if err != nil {
				return err
			}
			return printJSON(payload)
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run_id to export survivors from")
	cmd.Flags().StringVar(&snapshotType, "snapshot-type", season.SnapshotSchemaSurvivorsV1, "snapshot_type to write")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the snapshot without persisting it")
	return cmd
}

func newSeedNextSeasonCommand() *cobra.Command {
	var p season.SeedParams
	var adminToken string

	cmd := &cobra.Command{
		Use:   "seed-next-season",
		Short: "seed the next season's agents from a parent run's survivors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.SeasonID == "" {
				return userError("--season-id is required")
			}
			if p.ParentRunID == "" {
				return userError("--parent-run-id is required")
			}
			if p.TransferPolicyVersion == "" {
				return userError("--transfer-policy-version is required")
			}
			if p.Confirm {
				if err := requireAdminWrite(adminToken); err != nil {
					return err
				}
			}

			ctx, cancel := commandContext()
			defer cancel()

			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := season.New(pool.Pool)
			plan, err := svc.SeedNextSeason(ctx, p)
			if err != nil {
				return userError("%v", err)
			}
			return printJSON(plan)
		},
	}

	cmd.Flags().StringVar(&p.SeasonID, "season-id", "", "destination season identifier")
	cmd.Flags().StringVar(&p.ParentRunID, "parent-run-id", "", "source run_id for survivor transfer")
	cmd.Flags().StringVar(&p.TransferPolicyVersion, "transfer-policy-version", "", "transfer policy version")
	cmd.Flags().IntVar(&p.TargetAgentCount, "target-agent-count", season.DefaultTargetAgentCount, "target active agent count after seeding")
	cmd.Flags().BoolVar(&p.CarryPassedLaws, "carry-passed-laws", false, "keep existing active laws for next season")
	cmd.Flags().BoolVar(&p.DryRun, "dry-run", false, "print the deterministic plan without modifying the database")
	cmd.Flags().BoolVar(&p.Confirm, "confirm", false, "required for a non-dry-run seed")
	cmd.Flags().StringVar(&adminToken, "admin-token", "", "admin token required alongside --confirm (when ADMIN_ENABLED=true)")
	return cmd
}
