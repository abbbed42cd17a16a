// Package jobs runs periodic background maintenance work.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lantern/internal/config"
	"lantern/internal/geo"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	geoLiteUpdater *GeoLiteUpdaterJob

	geoLiteTicker *time.Ticker
}

// NewScheduler wires the background jobs against the geo resolver they maintain.
func NewScheduler(cfg *config.Config, geoService *geo.Service, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		cfg:            cfg,
		geoLiteUpdater: NewGeoLiteUpdaterJob(cfg, geoService, logger),
	}
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
func (s *Scheduler) Start() {
	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true
	s.startGeoLiteUpdateJob()
}

func (s *Scheduler) startGeoLiteUpdateJob() {
	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.logger.Info("Starting GeoLite update job", slog.Duration("interval", interval))
	s.geoLiteTicker = time.NewTicker(interval)

	go func() {
		// Run initial execution
		s.executeJobSafely("geolite_updater", s.geoLiteUpdater.Run)

		for {
			select {
			case <-s.geoLiteTicker.C:
				s.executeJobSafely("geolite_updater", s.geoLiteUpdater.Run)
			case <-s.ctx.Done():
				s.logger.Info("GeoLite update job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")

	if s.geoLiteTicker != nil {
		s.geoLiteTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
