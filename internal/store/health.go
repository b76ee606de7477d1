package store

import (
	"context"
	"fmt"
)

// HealthStatus summarizes pool utilization for the guardrail service
// (spec §4.11 db_pool_pressure input) and operator health checks.
type HealthStatus struct {
	Healthy         bool    `json:"healthy"`
	TotalConns      int32   `json:"total_conns"`
	AcquiredConns   int32   `json:"acquired_conns"`
	MaxConns        int32   `json:"max_conns"`
	UtilizationFrac float64 `json:"utilization_frac"`
}

// Health pings the pool and computes current utilization.
func (p *Pool) Health(ctx context.Context) (HealthStatus, error) {
	if err := p.Pool.Ping(ctx); err != nil {
		return HealthStatus{}, fmt.Errorf("ping failed: %w", err)
	}
	stat := p.Pool.Stat()
	max := stat.MaxConns()
	acquired := stat.AcquiredConns()
	var util float64
	if max > 0 {
		util = float64(acquired) / float64(max)
	}
	return HealthStatus{
		Healthy:         true,
		TotalConns:      stat.TotalConns(),
		AcquiredConns:   acquired,
		MaxConns:        max,
		UtilizationFrac: util,
	}, nil
}
