package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Scheduler runs the commission settlement sweep and auto-starts due
// tournaments. A run that is still going when the next one is due is skipped.
type Scheduler struct {
	sched  gocron.Scheduler
	engine *Engine
	logger zerolog.Logger
}

func NewScheduler(engine *Engine, settleEvery, autoStartEvery time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	s := &Scheduler{sched: sched, engine: engine, logger: logger}
	if _, err := sched.NewJob(
		gocron.DurationJob(settleEvery),
		gocron.NewTask(s.settle),
		gocron.WithName("dhana_settlement"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(autoStartEvery),
		gocron.NewTask(s.autoStart),
		gocron.WithName("tournament_auto_start"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) settle() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	n, err := s.engine.MatureCommissions(ctx)
	if err != nil {
		s.logger.Error().Err(err).Int("matured", n).Msg("commission settlement failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("matured", n).Msg("commissions matured")
	}
}

func (s *Scheduler) autoStart() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := s.engine.StartDueTournaments(ctx)
	if err != nil {
		s.logger.Error().Err(err).Int("started", n).Msg("tournament auto start failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("started", n).Msg("tournaments started")
	}
}
