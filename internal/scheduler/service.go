// Package scheduler runs the time-driven parts of the simulation that no
// single agent turn triggers (spec §4.7): the daily survival/starvation
// cycle and emergence-metrics snapshot, and the proposal/enforcement
// resolvers that close out votes once their window has elapsed. It layers
// a robfig/cron schedule for the day boundary over a short ticker for the
// resolvers, following the teacher's background-service idiom
// (pkg/cleanup/service.go).
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/drmixer/emergence/internal/runtimeconfig"
)

// resolverInterval is how often pending proposals and enforcements are
// checked against their voting_closes_at deadline. Deadlines are set in
// hours, so sub-minute precision is unnecessary.
const resolverInterval = 30 * time.Second

// Service owns the daily cron job and the resolver ticker loop.
type Service struct {
	pool   *pgxpool.Pool
	config *runtimeconfig.Service

	cron *cron.Cron

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler service.
func New(pool *pgxpool.Pool, cfg *runtimeconfig.Service) *Service {
	return &Service{pool: pool, config: cfg}
}

// Start launches the daily cron job and the resolver loop. schedule is a
// standard five-field cron expression evaluated in UTC; "0 0 * * *" runs
// the daily cycle at UTC midnight.
func (s *Service) Start(ctx context.Context, schedule string) error {
	if s.cancel != nil {
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.cron = cron.New(cron.WithLocation(time.UTC))
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunDailyCycle(ctx); err != nil {
			slog.Error("daily cycle failed", "error", err)
		}
	})
	if err != nil {
		s.cancel()
		return err
	}
	s.cron.Start()

	go s.runResolvers(ctx)

	slog.Info("scheduler service started", "daily_schedule", schedule)
	return nil
}

// Stop halts the cron job and the resolver loop.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.cancel()
	<-s.done
	slog.Info("scheduler service stopped")
}

func (s *Service) runResolvers(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(resolverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ResolveProposals(ctx); err != nil {
				slog.Error("proposal resolution failed", "error", err)
			}
			if err := s.ResolveEnforcements(ctx); err != nil {
				slog.Error("enforcement resolution failed", "error", err)
			}
		}
	}
}
