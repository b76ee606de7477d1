// Command emergenced is the long-running simulation engine process (spec
// §4): it wires the runtime config, budget, guardrail, agent turn loop,
// and scheduler services together against one database pool, exposes
// Prometheus metrics over HTTP, and optionally exports OpenTelemetry
// traces. Wiring follows the teacher's cmd/tarsy/main.go shape (load
// config, construct services, start background loops, wait on a signal,
// shut down in reverse order) adapted to this project's slog-based
// logging rather than the teacher's log.Printf.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drmixer/emergence/internal/action"
	"github.com/drmixer/emergence/internal/agentcontext"
	"github.com/drmixer/emergence/internal/agentloop"
	"github.com/drmixer/emergence/internal/agentproc"
	"github.com/drmixer/emergence/internal/appconfig"
	"github.com/drmixer/emergence/internal/budget"
	"github.com/drmixer/emergence/internal/guardrail"
	"github.com/drmixer/emergence/internal/llmdispatch"
	"github.com/drmixer/emergence/internal/metrics"
	"github.com/drmixer/emergence/internal/runtimeconfig"
	"github.com/drmixer/emergence/internal/salience"
	"github.com/drmixer/emergence/internal/scheduler"
	"github.com/drmixer/emergence/internal/store"
	"github.com/drmixer/emergence/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("emergenced exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logLevel := new(slog.LevelVar)
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg, err := loadAppConfig()
	if err != nil {
		return fmt.Errorf("loading YAML config: %w", err)
	}
	if appCfg != nil {
		slog.Info("loaded YAML config override", "path", os.Getenv("EMERGENCE_CONFIG_PATH"))
	}

	dbCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("loading database config: %w", err)
	}

	pool, err := store.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()
	slog.Info("database pool ready")

	otlpEndpoint, serviceName := telemetrySettings(appCfg)
	shutdownTracing, err := telemetry.InitTraceProvider(ctx, otlpEndpoint, serviceName, versionString())
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Error("tracer shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	metricsServer := startMetricsServer(metricsAddr(appCfg), reg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}()

	runtimeCfg := runtimeconfig.New(pool.Pool)
	budgetSvc := budget.New(pool.Pool)
	guardrail.SetProviderFailureCounter(budgetSvc.CountFailures)
	salienceSvc := salience.New(pool.Pool)
	contextBuilder := agentcontext.New(pool.Pool, runtimeCfg, salienceSvc)
	actionEngine := action.New(pool.Pool)

	primary := llmdispatch.NewHTTPProviderClient(providerEndpoints(), providerAPIKeys())
	fallback := llmdispatch.NewRoutineProviderClient()
	dispatcher := llmdispatch.New(runtimeCfg, budgetSvc, primary, fallback)

	var runID *string
	if v := os.Getenv("CURRENT_RUN_ID"); v != "" {
		runID = &v
	}
	processor := agentproc.New(pool.Pool, runtimeCfg, contextBuilder, dispatcher, actionEngine, runID)

	guardrailSvc := guardrail.New(runtimeCfg, budgetSvc, pool, pool.Pool)
	guardrailSvc.Start(ctx, guardrailPollInterval(appCfg))
	defer guardrailSvc.Stop()

	schedulerSvc := scheduler.New(pool.Pool, runtimeCfg)
	if err := schedulerSvc.Start(ctx, schedulerCron(appCfg)); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer schedulerSvc.Stop()

	loop := agentloop.New(pool.Pool, processor, agentTurnInterval(), agentConcurrency())
	loop.Start(ctx)
	defer loop.Stop()

	slog.Info("emergenced running", "metrics_addr", metricsServer.Addr)
	<-ctx.Done()
	slog.Info("shutdown signal received, stopping services")
	return nil
}

func startMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func agentTurnInterval() time.Duration {
	d, err := time.ParseDuration(getEnvOrDefault("AGENT_TURN_INTERVAL", "10s"))
	if err != nil {
		return 10 * time.Second
	}
	return d
}

func agentConcurrency() int {
	return 8
}

func providerEndpoints() map[string]string {
	return map[string]string{
		"openai":    os.Getenv("OPENAI_API_BASE"),
		"anthropic": os.Getenv("ANTHROPIC_API_BASE"),
		"google":    os.Getenv("GOOGLE_API_BASE"),
	}
}

func providerAPIKeys() map[string]string {
	return map[string]string{
		"openai":    os.Getenv("OPENAI_API_KEY"),
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
		"google":    os.Getenv("GOOGLE_API_KEY"),
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func versionString() string {
	return getEnvOrDefault("EMERGENCE_VERSION", "dev")
}

// loadAppConfig loads the optional YAML config file named by
// EMERGENCE_CONFIG_PATH, following the teacher's pkg/config.Initialize
// shape of an optional declarative file layered on top of plain
// environment variables rather than replacing them outright. Returns
// nil, nil when no path is set, so callers fall back to their existing
// getEnvOrDefault reads.
func loadAppConfig() (*appconfig.Config, error) {
	path := os.Getenv("EMERGENCE_CONFIG_PATH")
	if path == "" {
		return nil, nil
	}
	cfg, err := appconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func telemetrySettings(cfg *appconfig.Config) (endpoint, serviceName string) {
	if cfg != nil && cfg.Telemetry.Enabled {
		name := cfg.Telemetry.ServiceName
		if name == "" {
			name = "emergence-engine"
		}
		return cfg.Telemetry.OTLPEndpoint, name
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "emergence-engine"
}

func metricsAddr(cfg *appconfig.Config) string {
	if cfg != nil && cfg.MetricsAddr != "" {
		return cfg.MetricsAddr
	}
	return getEnvOrDefault("METRICS_ADDR", ":9090")
}

func schedulerCron(cfg *appconfig.Config) string {
	if cfg != nil && cfg.Scheduler.CronExpression != "" {
		return cfg.Scheduler.CronExpression
	}
	return getEnvOrDefault("SCHEDULER_CRON", "0 0 * * *")
}

func guardrailPollInterval(cfg *appconfig.Config) time.Duration {
	if cfg != nil {
		if d, err := cfg.Guardrail.PollIntervalDuration(); err == nil && cfg.Guardrail.PollInterval != "" {
			return d
		}
	}
	return 15 * time.Second
}
