// Package scheduler drives the engines: hedge checks on per-configuration cron
// schedules and a continuous entry loop over every active configuration.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/logger"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
)

const (
	StatusRunning = "running"
	StatusPaused  = "paused"
)

// HedgeRunner runs one hedge tick for a monitor side
type HedgeRunner interface {
	Run(ctx context.Context, cfg core.MonitorConfig, side core.MonitorSide) (core.HedgeAction, error)
}

// EntryRunner runs one entry evaluation
type EntryRunner interface {
	Run(ctx context.Context, cfg core.MonitorConfig) (core.EntryAction, error)
}

// Settings tunes the scheduler
type Settings struct {
	Username          string
	Workers           int
	EntryConfigDelay  time.Duration
	EntryPassInterval time.Duration
	EntryDeadline     time.Duration
}

func (s *Settings) applyDefaults() {
	if s.Workers <= 0 {
		s.Workers = 8
	}
	if s.EntryConfigDelay <= 0 {
		s.EntryConfigDelay = time.Second
	}
	if s.EntryPassInterval <= 0 {
		s.EntryPassInterval = 5 * time.Minute
	}
	if s.EntryDeadline <= 0 {
		s.EntryDeadline = 2 * time.Minute
	}
}

// Scheduler owns the cron jobs, the worker pool and the entry loop. A failing or
// panicking cycle is logged and never stops the others.
type Scheduler struct {
	provider core.ConfigProvider
	hedge    HedgeRunner
	entry    EntryRunner
	log      logger.Logger
	settings Settings

	cron    *cron.Cron
	workers *semaphore.Weighted
	paused  atomic.Bool
	tasks   sync.WaitGroup
	loop    sync.WaitGroup
	cancel  context.CancelFunc
}

// New creates a scheduler. Either runner may be nil to disable that side.
func New(provider core.ConfigProvider, hedge HedgeRunner, entry EntryRunner, log logger.Logger,
	settings Settings) *Scheduler {

	settings.applyDefaults()

	return &Scheduler{
		provider: provider,
		hedge:    hedge,
		entry:    entry,
		log:      log,
		settings: settings,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		workers:  semaphore.NewWeighted(int64(settings.Workers)),
	}
}

// Status reports whether cycles are running or paused
func (s *Scheduler) Status() string {
	if s.paused.Load() {
		return StatusPaused
	}
	return StatusRunning
}

// Pause stops new cycles from starting. Cycles already running finish.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	s.log.Warn("cycles paused")
}

// Resume lets cycles start again
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.log.Info("cycles resumed")
}

// activeConfigs lists the active configurations of the user's profiles
func (s *Scheduler) activeConfigs(ctx context.Context) ([]core.MonitorConfig, error) {
	profiles, err := s.provider.ProfilesForUser(ctx, s.settings.Username)
	if err != nil {
		return nil, fmt.Errorf("profiles for %s: %w", s.settings.Username, err)
	}

	configs, err := s.provider.ListActiveConfigs(ctx, profiles)
	if err != nil {
		return nil, fmt.Errorf("active configs: %w", err)
	}

	return configs, nil
}

// ScheduleHedges registers one cron job per configured monitor side and returns
// how many were registered. An invalid expression skips only that side.
func (s *Scheduler) ScheduleHedges(ctx context.Context) (int, error) {
	if s.hedge == nil {
		return 0, nil
	}

	configs, err := s.activeConfigs(ctx)
	if err != nil {
		return 0, err
	}

	s.log.Infof("loaded %d model configurations for %s", len(configs), s.settings.Username)

	scheduled := 0
	for _, cfg := range configs {
		for _, side := range []core.MonitorSide{core.MonitorPrimary, core.MonitorSecondary} {
			expression := cfg.CronFor(side)
			if expression == "" {
				continue
			}

			profile, model, side := cfg.Profile, cfg.ModelName, side
			_, err := s.cron.AddFunc(expression, func() {
				s.submitHedge(ctx, profile, model, side)
			})
			if err != nil {
				s.log.WithError(err).Warnf("invalid %s schedule %q for %s", side, expression, cfg.Name())
				continue
			}

			s.log.Infof("scheduled %s hedge monitor for %s at %q", side, cfg.Name(), expression)
			scheduled++
		}
	}

	return scheduled, nil
}

// submitHedge runs a hedge tick on the worker pool with the latest configuration
func (s *Scheduler) submitHedge(ctx context.Context, profile, model string, side core.MonitorSide) {
	if s.paused.Load() {
		return
	}

	if err := s.workers.Acquire(ctx, 1); err != nil {
		return
	}

	s.tasks.Add(1)
	defer s.tasks.Done()
	defer s.workers.Release(1)

	s.RunHedge(ctx, profile, model, side)
}

// RunHedge reloads a configuration and runs one hedge tick for it
func (s *Scheduler) RunHedge(ctx context.Context, profile, model string, side core.MonitorSide) {
	log := s.log.WithFields(map[string]any{"model": profile + "/" + model, "side": side})
	defer s.recover(log)

	cfg, err := s.provider.ActiveConfig(ctx, profile, model)
	if errors.Is(err, core.ErrNotFound) {
		log.Debug("configuration no longer active")
		return
	}
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		return
	}

	if _, err := s.hedge.Run(ctx, cfg, side); err != nil {
		log.WithError(err).Warn("hedge cycle skipped")
	}
}

// RunEntryPass evaluates every active configuration once, pausing between them
func (s *Scheduler) RunEntryPass(ctx context.Context) error {
	if s.entry == nil {
		return nil
	}

	configs, err := s.listWithBackoff(ctx)
	if err != nil {
		return err
	}

	for i, cfg := range configs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.paused.Load() {
			return nil
		}

		s.runEntry(ctx, cfg)

		if i < len(configs)-1 {
			if err := sleep(ctx, s.settings.EntryConfigDelay); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Scheduler) runEntry(ctx context.Context, cfg core.MonitorConfig) {
	log := s.log.WithField("model", cfg.Name())
	defer s.recover(log)

	if !cfg.Primary.HasToken() {
		log.Warnf("skipping model %s: no access token", cfg.ModelName)
		return
	}

	entryCtx, cancel := context.WithTimeout(ctx, s.settings.EntryDeadline)
	defer cancel()

	if _, err := s.entry.Run(entryCtx, cfg); err != nil {
		log.WithError(err).Warn("entry cycle skipped")
	}
}

// listWithBackoff retries listing configurations until it succeeds or ctx is done
func (s *Scheduler) listWithBackoff(ctx context.Context) ([]core.MonitorConfig, error) {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}

	for {
		configs, err := s.activeConfigs(ctx)
		if err == nil {
			return configs, nil
		}

		wait := b.Duration()
		s.log.WithError(err).Warnf("failed to list configurations, retrying in %s", wait)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// RunEntryLoop runs entry passes until ctx is done
func (s *Scheduler) RunEntryLoop(ctx context.Context) {
	s.log.Info("📡 Trend monitor started")

	for {
		if err := s.RunEntryPass(ctx); err != nil && ctx.Err() != nil {
			return
		}

		s.log.Infof("⏳ Sleeping %s...", s.settings.EntryPassInterval)
		if err := sleep(ctx, s.settings.EntryPassInterval); err != nil {
			return
		}
	}
}

// Start schedules the hedge monitors and starts the cron and entry loops
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.ScheduleHedges(ctx); err != nil {
		s.cancel()
		return err
	}
	s.cron.Start()

	if s.entry != nil {
		s.loop.Add(1)
		go func() {
			defer s.loop.Done()
			s.RunEntryLoop(ctx)
		}()
	}

	return nil
}

// Stop cancels running cycles and waits for them to return
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.loop.Wait()
	s.tasks.Wait()
}

func (s *Scheduler) recover(log logger.Logger) {
	if r := recover(); r != nil {
		log.Errorf("cycle panicked: %v", r)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
