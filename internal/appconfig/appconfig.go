// Package appconfig loads the optional YAML configuration read by
// cmd/emergenced (cmd/emergencectl reads only environment variables),
// following the load-then-validate shape of the
// teacher's pkg/config.Initialize: read YAML, expand ${ENV} references,
// then run struct-tag validation so configuration errors surface before
// any service starts rather than as a later runtime panic.
package appconfig

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document (emergence.yaml).
type Config struct {
	Database   DatabaseConfig   `yaml:"database" validate:"required"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Guardrail  GuardrailConfig  `yaml:"guardrail"`
	Admin      AdminConfig      `yaml:"admin"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	MetricsAddr string          `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// DatabaseConfig describes the database connection. It is validated but
// not used to open store.Pool, whose settings come from
// store.LoadConfigFromEnv.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" validate:"required"`
	MaxConns        int32  `yaml:"max_conns" validate:"omitempty,min=1"`
	MinConns        int32  `yaml:"min_conns" validate:"omitempty,min=0"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" validate:"omitempty"`
}

// SchedulerConfig configures the cron-driven day-boundary ticks.
type SchedulerConfig struct {
	TickInterval   string `yaml:"tick_interval" validate:"omitempty"`
	CronExpression string `yaml:"cron_expression" validate:"omitempty"`
}

// GuardrailConfig configures the stop-condition service's thresholds.
type GuardrailConfig struct {
	HardBudgetUSD            float64 `yaml:"hard_budget_usd" validate:"omitempty,min=0"`
	ConsecutivePoolPressure   int    `yaml:"consecutive_pool_pressure" validate:"omitempty,min=1"`
	PollInterval              string `yaml:"poll_interval" validate:"omitempty"`
}

// AdminConfig configures the admin write-gate (internal/adminauth).
type AdminConfig struct {
	Enabled      bool     `yaml:"enabled"`
	TokenEnv     string   `yaml:"token_env" validate:"omitempty"`
	WriteEnabled bool     `yaml:"write_enabled"`
	IPAllowlist  []string `yaml:"ip_allowlist" validate:"omitempty,dive,required"`
}

// TelemetryConfig configures the OpenTelemetry tracer exporter.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"omitempty"`
	ServiceName    string `yaml:"service_name" validate:"omitempty"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with the environment's value,
// leaving unset variables as empty strings, matching the teacher's
// envexpand.go behavior of substitution-before-parse.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envRef.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads, expands, parses, and validates the YAML document at path.
func Load(path string) (*Config, error) {
	slog.Info("loading configuration", "path", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	expanded := expandEnv(raw)

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config file %q: %w", path, err)
	}

	return &cfg, nil
}

// ConnMaxLifetimeDuration parses ConnMaxLifetime, defaulting to 30 minutes
// when unset (store.LoadConfigFromEnv's own default is 1h).
func (d DatabaseConfig) ConnMaxLifetimeDuration() (time.Duration, error) {
	if d.ConnMaxLifetime == "" {
		return 30 * time.Minute, nil
	}
	return time.ParseDuration(d.ConnMaxLifetime)
}

// TickIntervalDuration parses TickInterval, defaulting to one minute.
func (s SchedulerConfig) TickIntervalDuration() (time.Duration, error) {
	if s.TickInterval == "" {
		return time.Minute, nil
	}
	return time.ParseDuration(s.TickInterval)
}

// PollIntervalDuration parses PollInterval, defaulting to 15 seconds.
func (g GuardrailConfig) PollIntervalDuration() (time.Duration, error) {
	if g.PollInterval == "" {
		return 15 * time.Second, nil
	}
	return time.ParseDuration(g.PollInterval)
}
