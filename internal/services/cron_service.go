package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stayhub/checkout-gateway/internal/config"
)

// SessionSweeper drops expired checkout sessions
type SessionSweeper interface {
	Cleanup() int
}

// LimiterSweeper drops idle rate limiter buckets
type LimiterSweeper interface {
	Cleanup(maxIdle time.Duration) int
}

// AuditPurger deletes audit entries past their retention window
type AuditPurger interface {
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

// CronService manages scheduled background jobs. Any target may be nil,
// in which case its job is not scheduled.
type CronService struct {
	cron     *cron.Cron
	sessions SessionSweeper
	limiter  LimiterSweeper
	audits   AuditPurger
	cfg      config.HousekeepingConfig
	logger   *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(
	cfg config.HousekeepingConfig,
	sessions SessionSweeper,
	limiter LimiterSweeper,
	audits AuditPurger,
	logger *logrus.Logger,
) *CronService {
	return &CronService{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		limiter:  limiter,
		audits:   audits,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start schedules the configured jobs and starts the scheduler
func (s *CronService) Start() error {
	if s.sessions != nil {
		if _, err := s.cron.AddFunc(s.cfg.SessionSweepSchedule, s.sweepSessionsJob); err != nil {
			return fmt.Errorf("failed to schedule session sweep job: %w", err)
		}
		s.logger.WithField("schedule", s.cfg.SessionSweepSchedule).Info("Scheduled: sweep expired checkout sessions")
	}

	if s.limiter != nil {
		if _, err := s.cron.AddFunc(s.cfg.LimiterSweepSchedule, s.sweepLimitersJob); err != nil {
			return fmt.Errorf("failed to schedule rate limiter sweep job: %w", err)
		}
		s.logger.WithField("schedule", s.cfg.LimiterSweepSchedule).Info("Scheduled: sweep idle rate limiters")
	}

	if s.audits != nil && s.cfg.AuditRetentionDays > 0 {
		if _, err := s.cron.AddFunc(s.cfg.AuditPurgeSchedule, s.purgeAuditsJob); err != nil {
			return fmt.Errorf("failed to schedule audit purge job: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"schedule":       s.cfg.AuditPurgeSchedule,
			"retention_days": s.cfg.AuditRetentionDays,
		}).Info("Scheduled: purge old checkout audits")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) sweepSessionsJob() {
	removed := s.sessions.Cleanup()
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("[CRON] Swept expired checkout sessions")
	}
}

func (s *CronService) sweepLimitersJob() {
	removed := s.limiter.Cleanup(s.cfg.LimiterMaxIdle)
	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("[CRON] Swept idle rate limiters")
	}
}

func (s *CronService) purgeAuditsJob() {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.audits.PurgeOlderThan(ctx, s.cfg.AuditRetentionDays)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to purge checkout audits")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"deleted":  deleted,
		"duration": time.Since(startTime).String(),
	}).Info("[CRON] Purged old checkout audits")
}

// RunAllNow runs every configured job immediately
func (s *CronService) RunAllNow() {
	if s.sessions != nil {
		s.sweepSessionsJob()
	}
	if s.limiter != nil {
		s.sweepLimitersJob()
	}
	if s.audits != nil && s.cfg.AuditRetentionDays > 0 {
		s.purgeAuditsJob()
	}
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
