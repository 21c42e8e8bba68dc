package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// OverdueSweeper flags tickets past their due date.
type OverdueSweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// OverdueScheduler runs the sweep on a cron schedule.
type OverdueScheduler struct {
	cron    *cron.Cron
	sweeper OverdueSweeper
	logger  *zap.Logger
	spec    string
	timeout time.Duration
	rootCtx context.Context
}

// NewOverdueScheduler validates spec (standard five-field cron syntax) and
// registers the sweep in loc.
func NewOverdueScheduler(spec string, loc *time.Location, sweeper OverdueSweeper, logger *zap.Logger) (*OverdueScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid overdue schedule %q: %w", spec, err)
	}
	s := &OverdueScheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		sweeper: sweeper,
		logger:  logger.Named("overdue"),
		spec:    spec,
		timeout: 2 * time.Minute,
		rootCtx: context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(s.rootCtx) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// a running sweep to finish.
func (s *OverdueScheduler) Run(ctx context.Context) error {
	s.rootCtx = ctx
	s.cron.Start()
	s.logger.Info("overdue sweep scheduled", zap.String("spec", s.spec))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// RunOnce performs a single sweep.
func (s *OverdueScheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	started := time.Now()
	flagged, err := s.sweeper.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error("overdue sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("overdue sweep complete", zap.Int("flagged", flagged), zap.Duration("took", time.Since(started)))
}
