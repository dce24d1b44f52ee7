package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/pkg/config"
)

// BreachSweeper drives the periodic SLA breach sweep. It runs as a single
// goroutine per process; the sweep itself is a conditional database update,
// so overlapping sweeps from multiple replicas stay correct.
type BreachSweeper struct {
	sla     *SlaService
	cfg     config.SLAConfig
	metrics *MetricsService
	logger  *zap.Logger
}

// NewBreachSweeper wires the sweeper. metrics may be nil.
func NewBreachSweeper(sla *SlaService, cfg config.SLAConfig, metrics *MetricsService, logger *zap.Logger) *BreachSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreachSweeper{sla: sla, cfg: cfg, metrics: metrics, logger: logger}
}

// Start boots the sweep loop. It returns immediately; the loop stops when
// ctx is cancelled.
func (s *BreachSweeper) Start(ctx context.Context) {
	if !s.cfg.SweepEnabled || s.cfg.SweepInterval <= 0 {
		s.logger.Info("sla breach sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
	s.logger.Info("sla breach sweeper started",
		zap.Duration("interval", s.cfg.SweepInterval),
		zap.Int("batch_size", s.cfg.SweepBatchSize))
}

func (s *BreachSweeper) runOnce(ctx context.Context) {
	if _, err := s.sla.SweepBreaches(ctx); err != nil {
		s.logger.Warn("sla breach sweep failed", zap.Error(err))
		return
	}
	overdue, err := s.sla.OverdueCount(ctx)
	if err != nil {
		s.logger.Warn("failed to count overdue tickets", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.SetOverdueTickets(overdue)
	}
}
