package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/ErlanBelekov/identity-service/internal/metrics"
	"github.com/robfig/cron/v3"
)

const sweepTimeout = 30 * time.Second

type otpClearer interface {
	ClearExpiredOTPs(ctx context.Context, issuedBefore time.Time) (int, error)
}

// OTPSweeper periodically clears one-time codes older than domain.OTPValidity.
// Expired codes are already rejected on use; sweeping only drops them.
type OTPSweeper struct {
	repo     otpClearer
	logger   *slog.Logger
	schedule cron.Schedule
	spec     string
	now      func() time.Time
}

// NewOTPSweeper parses spec as a standard cron expression or descriptor
// such as "@every 5m".
func NewOTPSweeper(repo otpClearer, logger *slog.Logger, spec string) (*OTPSweeper, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", spec, err)
	}
	return &OTPSweeper{
		repo:     repo,
		logger:   logger.With("component", "otp_sweeper"),
		schedule: sched,
		spec:     spec,
		now:      time.Now,
	}, nil
}

func (s *OTPSweeper) Start(ctx context.Context) {
	s.logger.Info("sweeper started", "schedule", s.spec)

	for {
		now := s.now()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("sweeper shut down")
			return
		case <-timer.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep expired otps", "error", err)
			}
		}
	}
}

// Sweep runs one cycle and returns how many codes were cleared.
func (s *OTPSweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.SweepCycleDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	cleared, err := s.repo.ClearExpiredOTPs(ctx, s.now().Add(-domain.OTPValidity))
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		metrics.OTPSweptTotal.Add(float64(cleared))
		s.logger.Info("cleared expired otps", "count", cleared)
	}
	return cleared, nil
}
