package scheduler

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/paissive/monetize/internal/clock"
	"github.com/paissive/monetize/internal/config"
	subscriptiondomain "github.com/paissive/monetize/internal/subscription/domain"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
)

// Scheduler drives the periodic billing jobs: rolling over expired
// quota windows and renewing subscriptions whose period has ended.
type Scheduler struct {
	log      *zap.Logger
	clock    clock.Clock
	interval time.Duration

	usage         usagedomain.Service
	subscriptions subscriptiondomain.Service

	stop chan struct{}
	done chan struct{}
}

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Config        config.Config
	Usage         usagedomain.Service
	Subscriptions subscriptiondomain.Service
}

func New(p Params) *Scheduler {
	interval := p.Config.SchedulerInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler"),
		clock:         p.Clock,
		interval:      interval,
		usage:         p.Usage,
		subscriptions: p.Subscriptions,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the ticker loop in its own goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the loop to exit and waits for the in-flight tick.
func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-s.stop:
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			s.Tick(ctx)
			cancel()
		}
	}
}

// Tick runs one pass of every job. Failures are logged rather than
// propagated so one broken job never starves the others.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	rolled, err := s.usage.RolloverExpired(ctx, now)
	if err != nil {
		s.log.Warn("quota rollover failed", zap.Error(err))
	} else if rolled > 0 {
		s.log.Info("quota windows rolled over", zap.Int("count", rolled))
	}

	renewed, err := s.subscriptions.RenewDue(ctx, now)
	if err != nil {
		s.log.Warn("subscription renewal sweep failed", zap.Error(err))
	} else if renewed > 0 {
		s.log.Info("subscriptions renewed", zap.Int("count", renewed))
	}
}
