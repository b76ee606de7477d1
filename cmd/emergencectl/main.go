// Command emergencectl is the operator CLI for the emergence engine
// (spec §6): simulation start/stop/status, season seeding, epoch
// tournament selection, and run report generation, grounded in the
// cobra usage shown by the retrieval pack's eve CLI
// (evalgo-org-eve/cli/root.go) but without that example's viper layer,
// since this tool's configuration surface is small enough for plain
// flags and environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/drmixer/emergence/internal/adminauth"
	"github.com/drmixer/emergence/internal/store"
)

// exit codes per spec §6: 0 success, 2 user/validation error, 1 any
// other failure (connection, internal).
const (
	exitOK        = 0
	exitUserError = 2
	exitOther     = 1
)

func main() {
	_ = godotenv.Load()

	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// cliError carries the exit code a subcommand wants on failure,
// distinguishing "you typed something wrong" from "something broke."
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func userError(format string, args ...any) error {
	return &cliError{code: exitUserError, err: fmt.Errorf(format, args...)}
}

func exitCodeFor(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitOther
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "emergencectl",
		Short: "operator control plane for the emergence simulation engine",
		Long: `emergencectl drives the operational surface of the emergence engine:
starting and stopping the simulation, exporting season snapshots,
seeding the next season from survivors, selecting epoch tournament
champions, and generating run/plan reports.

All subcommands connect directly to the configured database; there is
no network API for this tool to call.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newSimulationControlCommand(),
		newExportSeasonSnapshotCommand(),
		newSeedNextSeasonCommand(),
		newSelectEpochTournamentCandidatesCommand(),
		newExportRunReportCommand(),
		newGenerateNextRunPlanCommand(),
		newRebuildRunBundleCommand(),
	)
	return root
}

// openPool loads DB config from the environment and connects, used by
// every subcommand that needs the database.
func openPool(ctx context.Context) (*store.Pool, error) {
	cfg, err := store.LoadConfigFromEnv()
	if err != nil {
		return nil, userError("loading database config: %v", err)
	}
	pool, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return pool, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}

// adminConfigFromEnv loads the admin-auth gate (spec §6) the same way
// emergenced would, for the CLI's write-gated subcommands.
func adminConfigFromEnv() adminauth.Config {
	enabled, _ := strconv.ParseBool(os.Getenv("ADMIN_ENABLED"))
	writeEnabled, _ := strconv.ParseBool(os.Getenv("ADMIN_WRITE_ENABLED"))
	return adminauth.Config{
		Enabled:      enabled,
		Token:        os.Getenv("ADMIN_API_TOKEN"),
		Allowlist:    adminauth.ParseAllowlist(os.Getenv("ADMIN_IP_ALLOWLIST")),
		WriteEnabled: writeEnabled,
	}
}

// requireAdminWrite gates a destructive subcommand behind the admin
// token presented via --admin-token, mirroring how the HTTP admin
// surface this CLI has no equivalent of would authenticate a caller.
func requireAdminWrite(presentedToken string) error {
	cfg := adminConfigFromEnv()
	if err := adminauth.ValidateForEnvironment(cfg, os.Getenv("ENVIRONMENT")); err != nil {
		return userError("%v", err)
	}
	header := http.Header{}
	if presentedToken != "" {
		header.Set("Authorization", "Bearer "+presentedToken)
	}
	if _, err := adminauth.Authenticate(cfg, header, "cli-local"); err != nil {
		return userError("admin authentication failed: %v", err)
	}
	return adminauth.RequireWriteEnabled(cfg)
}
