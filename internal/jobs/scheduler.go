package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"funnelscope/internal/analytics"
	"funnelscope/internal/config"
	"funnelscope/internal/database"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	recomputeJob *RecomputeJob
	cleanupJob   *CleanupJob

	// Tickers for each job type
	recomputeTicker *time.Ticker
	cleanupTicker   *time.Ticker
}

func NewScheduler(dbManager *database.DBManager, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		isRunning: false,
		cfg:       cfg,
	}

	// Initialize job instances
	s.recomputeJob = NewRecomputeJob(dbManager, logger)
	s.cleanupJob = NewCleanupJob(dbManager, logger, cfg)

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	s.isRunning = true

	// Start report recomputation job
	s.startRecomputeJob()

	// Start cleanup job
	s.startCleanupJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) startRecomputeJob() {
	interval := time.Duration(s.cfg.RecomputeIntervalMinutes) * time.Minute
	s.logger.Info("Starting report recompute job", slog.Duration("interval", interval))
	s.recomputeTicker = time.NewTicker(interval)

	go func() {
		// Compute the first report immediately so the API never starts cold
		s.logger.Info("Running initial report recomputation...")
		s.executeJobSafely("recompute", s.recomputeJob.Run)

		for {
			select {
			case <-s.recomputeTicker.C:
				s.executeJobSafely("recompute", s.recomputeJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Report recompute job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startCleanupJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting cleanup job", slog.Duration("interval", interval))
	s.cleanupTicker = time.NewTicker(interval)

	go func() {
		// Run initial cleanup
		s.logger.Info("Running initial cleanup...")
		s.executeJobSafely("cleanup", s.cleanupJob.Run)

		for {
			select {
			case <-s.cleanupTicker.C:
				s.executeJobSafely("cleanup", s.cleanupJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Cleanup job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.recomputeTicker != nil {
		s.recomputeTicker.Stop()
	}
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// Recompute triggers a report rebuild outside the schedule, for callers
// that just ingested a batch and want fresh numbers.
func (s *Scheduler) Recompute() error {
	if !s.enabled {
		return nil
	}
	return s.recomputeJob.Run()
}

// LatestReport returns the most recently computed report, or false when no
// run has completed yet.
func (s *Scheduler) LatestReport() (*analytics.FullReport, bool) {
	return s.recomputeJob.Latest()
}
