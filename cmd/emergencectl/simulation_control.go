package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/drmixer/emergence/internal/runtimeconfig"
)

type simulationStatus struct {
	SimulationActive bool   `json:"simulation_active"`
	SimulationPaused bool   `json:"simulation_paused"`
	CurrentRunID     string `json:"current_run_id"`
}

func newSimulationControlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulation-control {start|stop|status}",
		Short: "start, stop, or inspect the simulation's runtime config flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("run-id")
			adminToken, _ := cmd.Flags().GetString("admin-token")
			return runSimulationControl(args[0], runID, adminToken)
		},
	}
	cmd.Flags().String("run-id", "", "run_id to record as CURRENT_RUN_ID (start only; generated when omitted)")
	cmd.Flags().String("admin-token", "", "admin token for the stop subcommand (required when ADMIN_ENABLED=true)")
	return cmd
}

func runSimulationControl(subcommand, runID, adminToken string) error {
	switch subcommand {
	case "start", "stop", "status":
	default:
		return userError("unknown simulation-control subcommand %q (want start, stop, or status)", subcommand)
	}
	if subcommand == "stop" {
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

	rc := runtimeconfig.New(pool.Pool)

	switch subcommand {
	case "stop":
		if err := rc.UpdateSettings(ctx, []runtimeconfig.Update{
			{Key: "SIMULATION_ACTIVE", Value: "false"},
			{Key: "SIMULATION_PAUSED", Value: "true"},
		}, "ops:emergencectl", "cli", "operator stop via emergencectl simulation-control"); err != nil {
			return fmt.Errorf("stopping simulation: %w", err)
		}
	case "start":
		if runID == "" {
			runID = uuid.NewString()
		}
		if err := ensureRunRecord(ctx, pool.Pool, runID); err != nil {
			return fmt.Errorf("recording run %q: %w", runID, err)
		}
		if err := rc.UpdateSettings(ctx, []runtimeconfig.Update{
			{Key: "SIMULATION_ACTIVE", Value: "true"},
			{Key: "SIMULATION_PAUSED", Value: "false"},
			{Key: "CURRENT_RUN_ID", Value: runID},
		}, "ops:emergencectl", "cli", "operator start via emergencectl simulation-control"); err != nil {
			return fmt.Errorf("starting simulation: %w", err)
		}
	}

	status, err := readSimulationStatus(ctx, rc)
	if err != nil {
		return err
	}
	return printJSON(status)
}

// ensureRunRecord creates the simulation_runs row for runID if it does not
// exist yet, so the scheduler's metric roll-ups (FK-constrained to
// simulation_runs) can write against the run the moment it becomes
// CURRENT_RUN_ID. An existing row is left untouched — start is safe to
// re-issue against an in-flight run.
func ensureRunRecord(ctx context.Context, pool *pgxpool.Pool, runID string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO simulation_runs (run_id, run_mode, protocol_version, run_class, started_at)
		VALUES ($1, 'real', 'v1', 'standard_72h', now())
		ON CONFLICT (run_id) DO NOTHING
	`, runID)
	return err
}

func readSimulationStatus(ctx context.Context, rc *runtimeconfig.Service) (simulationStatus, error) {
	active, err := rc.GetBool(ctx, "SIMULATION_ACTIVE")
	if err != nil {
		return simulationStatus{}, fmt.Errorf("reading SIMULATION_ACTIVE: %w", err)
	}
	paused, err := rc.GetBool(ctx, "SIMULATION_PAUSED")
	if err != nil {
		return simulationStatus{}, fmt.Errorf("reading SIMULATION_PAUSED: %w", err)
	}
	runID, err := rc.GetEffectiveValue(ctx, "CURRENT_RUN_ID")
	if err != nil {
		return simulationStatus{}, fmt.Errorf("reading CURRENT_RUN_ID: %w", err)
	}
	return simulationStatus{SimulationActive: active, SimulationPaused: paused, CurrentRunID: runID}, nil
}

// printJSON prints v as indented JSON to stdout, the uniform output shape
// for every emergencectl subcommand.
func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	fmt.Println(string(raw))
	return nil
}
