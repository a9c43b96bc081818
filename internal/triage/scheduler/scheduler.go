package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"triage-backend/internal/triage/usecase"
)

// PipelineScheduler runs the triage pipeline on a fixed interval.
type PipelineScheduler struct {
	pipeline *usecase.Pipeline
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewPipelineScheduler creates a new scheduler
func NewPipelineScheduler(pipeline *usecase.Pipeline, interval time.Duration, logger *zap.Logger) *PipelineScheduler {
	return &PipelineScheduler{
		pipeline: pipeline,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *PipelineScheduler) Start() {
	s.logger.Info("starting pipeline scheduler", zap.Duration("interval", s.interval))

	go func() {
		// Run immediately on start
		s.runOnce()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stopChan:
				s.logger.Info("pipeline scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *PipelineScheduler) Stop() {
	close(s.stopChan)
}

func (s *PipelineScheduler) runOnce() {
	report, err := s.pipeline.Run(context.Background())
	if err != nil {
		s.logger.Error("pipeline run failed", zap.Error(err))
		return
	}
	if len(report.Errors) > 0 {
		s.logger.Warn("pipeline run finished with item errors",
			zap.Int("errors", len(report.Errors)))
	}
}
