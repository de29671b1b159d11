package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"newsroom/internal/digest"
	"newsroom/internal/scrape"
)

// Scheduler triggers the recurring jobs: the daily full scrape and the
// weekly digest. On-demand runs keep going through the HTTP trigger surface.
type Scheduler struct {
	cron     *cron.Cron
	runner   *scrape.Runner
	digester *digest.Generator
	logger   *zap.Logger
	timeout  time.Duration
}

func New(runner *scrape.Runner, digester *digest.Generator, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		runner:   runner,
		digester: digester,
		logger:   logger,
		timeout:  time.Hour,
	}
}

// Start registers the two jobs and starts the cron loop.
func (s *Scheduler) Start(scrapeSpec, digestSpec string) error {
	if _, err := s.cron.AddFunc(scrapeSpec, s.runScrape); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(digestSpec, s.runDigest); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("scrape_schedule", scrapeSpec),
		zap.String("digest_schedule", digestSpec))
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runScrape() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Info("scheduled scrape starting")
	if _, err := s.runner.RunAll(ctx, nil); err != nil {
		s.logger.Error("scheduled scrape failed", zap.Error(err))
	}
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Info("scheduled digest starting")
	if _, err := s.digester.Generate(ctx); err != nil {
		s.logger.Error("scheduled digest failed", zap.Error(err))
	}
}
