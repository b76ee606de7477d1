// Package runtimeconfig implements the process-wide runtime configuration
// service (spec §4.1): typed key/value overrides backed by Postgres, with a
// short-TTL in-memory cache and an append-only audit trail.
package runtimeconfig

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Static defaults used when no override row exists.
var staticDefaults = map[string]string{
	"SIMULATION_ACTIVE":                        "true",
	"SIMULATION_PAUSED":                        "false",
	"LLM_DAILY_BUDGET_USD_SOFT":                 "50",
	"LLM_DAILY_BUDGET_USD_HARD":                 "100",
	"STOP_CONDITION_ENFORCEMENT_ENABLED":        "true",
	"STOP_PROVIDER_FAILURE_WINDOW_MINUTES":      "15",
	"STOP_PROVIDER_FAILURE_THRESHOLD":           "10",
	"STOP_DB_POOL_UTILIZATION_THRESHOLD":        "0.8",
	"STOP_DB_POOL_CONSECUTIVE_CHECKS":           "2",
	"MAX_ACTIONS_PER_HOUR":                      "6",
	"PERCEPTION_LAG_SECONDS":                    "2",
	"STARVATION_DORMANT_CYCLES":                 "3",
	"STARVATION_DEATH_CYCLES":                   "7",
	"CURRENT_RUN_ID":                            "",
}

// allowedKeys is the fixed allowlist writes are validated against (spec
// §4.1). Extending it requires a code change, mirroring the teacher's
// pattern of validating config keys against a closed set
// (pkg/config/enums.go) rather than accepting arbitrary keys.
var allowedKeys = func() map[string]bool {
	m := make(map[string]bool, len(staticDefaults))
	for k := range staticDefaults {
		m[k] = true
	}
	return m
}()

const cacheTTL = 5 * time.Second

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Service is the runtime config service. It is safe for concurrent use.
type Service struct {
	pool *pgxpool.Pool

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New creates a runtime config service backed by pool.
func New(pool *pgxpool.Pool) *Service {
	return &Service{
		pool:  pool,
		cache: make(map[string]cacheEntry),
	}
}

// GetEffectiveValueCached returns the effective value for key: the override
// if present, else the static default. Reads may be stale by up to
// cacheTTL; callers needing a guaranteed-fresh read should use
// GetEffectiveValue instead.
func (s *Service) GetEffectiveValueCached(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	if entry, ok := s.cache[key]; ok && time.Now().Before(entry.expiresAt) {
		s.mu.RUnlock()
		return entry.value, nil
	}
	s.mu.RUnlock()

	value, err := s.GetEffectiveValue(ctx, key)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{value: value, expiresAt: time.Now().Add(cacheTTL)}
	s.mu.Unlock()

	return value, nil
}

// GetEffectiveValue performs a synchronous, uncached read.
func (s *Service) GetEffectiveValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM runtime_config_overrides WHERE key = $1`, key,
	).Scan(&value)
	if err == nil {
		return value, nil
	}
	if err != pgx.ErrNoRows {
		return "", fmt.Errorf("querying override for %q: %w", key, err)
	}

	def, ok := staticDefaults[key]
	if !ok {
		return "", fmt.Errorf("unknown runtime config key %q", key)
	}
	return def, nil
}

// Update is a single key/value pair to apply in UpdateSettings.
type Update struct {
	Key   string
	Value string
}

// UpdateSettings validates each key against the allowlist, writes the new
// override value, records an audit row per key, and invalidates the cache.
// The whole call commits as a single transaction: either every key is
// applied and audited, or none are.
func (s *Service) UpdateSettings(ctx context.Context, updates []Update, changedBy, environment, reason string) error {
	if len(updates) == 0 {
		return nil
	}
	for _, u := range updates {
		if !allowedKeys[u.Key] {
			return fmt.Errorf("key %q is not in the runtime config allowlist", u.Key)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, u := range updates {
		var oldValue *string
		err := tx.QueryRow(ctx,
			`SELECT value FROM runtime_config_overrides WHERE key = $1`, u.Key,
		).Scan(&oldValue)
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("reading old value for %q: %w", u.Key, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO runtime_config_overrides (key, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`, u.Key, u.Value); err != nil {
			return fmt.Errorf("writing override for %q: %w", u.Key, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO admin_config_changes (key, old_value, new_value, changed_by, environment, reason, changed_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`, u.Key, oldValue, u.Value, changedBy, environment, reason); err != nil {
			return fmt.Errorf("writing audit row for %q: %w", u.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing settings update: %w", err)
	}

	s.mu.Lock()
	for _, u := range updates {
		delete(s.cache, u.Key)
	}
	s.mu.Unlock()

	return nil
}

// GetBool is a convenience typed read.
func (s *Service) GetBool(ctx context.Context, key string) (bool, error) {
	v, err := s.GetEffectiveValueCached(ctx, key)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// GetFloat is a convenience typed read.
func (s *Service) GetFloat(ctx context.Context, key string) (float64, error) {
	v, err := s.GetEffectiveValueCached(ctx, key)
	if err != nil {
		return 0, err
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
		return 0, fmt.Errorf("key %q is not a float: %q", key, v)
	}
	return f, nil
}

// GetInt is a convenience typed read.
func (s *Service) GetInt(ctx context.Context, key string) (int, error) {
	v, err := s.GetEffectiveValueCached(ctx, key)
	if err != nil {
		return 0, err
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return 0, fmt.Errorf("key %q is not an int: %q", key, v)
	}
	return i, nil
}
