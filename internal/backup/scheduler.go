package backup

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/dochub/internal/model"
)

// Runner is the orchestrator surface the scheduler is allowed to touch.
// The scheduler never calls pipeline internals, so automatic and manual
// triggers share identical semantics.
type Runner interface {
	Trigger(ctx context.Context, kind, initiator string) (string, error)
	Status(ctx context.Context, jobID string) (model.BackupJob, error)
	Busy() bool
	StoreReady() bool
}

// Scheduler periodically evaluates the gating conditions for an unattended
// backup: connectivity, store readiness, no active job, and enough time
// since the last successful automatic backup. All four must hold before it
// triggers; a failed gate makes the tick a no-op.
type Scheduler struct {
	logger   zerolog.Logger
	runner   Runner
	probeURL string
	interval time.Duration
	tick     time.Duration
	client   *http.Client
	now      func() time.Time

	lastSuccess  time.Time
	pendingJobID string
}

const probeTimeout = 5 * time.Second

func NewScheduler(logger zerolog.Logger, runner Runner, probeURL string, interval, tick time.Duration) *Scheduler {
	return &Scheduler{
		logger:   logger.With().Str("component", "auto-backup-scheduler").Logger(),
		runner:   runner,
		probeURL: probeURL,
		interval: interval,
		tick:     tick,
		client:   &http.Client{Timeout: probeTimeout},
		now:      time.Now,
	}
}

// Run evaluates the gates on a fixed tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Dur("tick", s.tick).Dur("interval", s.interval).Msg("auto backup scheduler started")
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("auto backup scheduler stopped")
			return
		case <-ticker.C:
			s.evaluate(ctx)
		}
	}
}

func (s *Scheduler) evaluate(ctx context.Context) {
	s.observePending(ctx)

	if !s.connectivityOK(ctx) {
		s.logger.Debug().Msg("no connectivity - skipping tick")
		return
	}
	if !s.runner.StoreReady() {
		s.logger.Debug().Msg("remote store not ready - skipping tick")
		return
	}
	if s.runner.Busy() {
		s.logger.Debug().Msg("backup already in progress - skipping tick")
		return
	}
	if !s.lastSuccess.IsZero() {
		elapsed := s.now().Sub(s.lastSuccess)
		if elapsed < s.interval {
			s.logger.Debug().Dur("remaining", s.interval-elapsed).Msg("too soon since last backup - skipping tick")
			return
		}
	}

	jobID, err := s.runner.Trigger(ctx, model.KindAuto, "System")
	if err != nil {
		// The orchestrator's own lifecycle handling is authoritative; a
		// rejection here is just a skipped tick.
		s.logger.Debug().Err(err).Msg("auto backup trigger rejected")
		return
	}
	s.pendingJobID = jobID
	s.logger.Info().Str("job_id", jobID).Msg("auto backup triggered")
}

// observePending checks the outcome of the last job this scheduler
// triggered. lastSuccess moves only when that job is observed Succeeded.
func (s *Scheduler) observePending(ctx context.Context) {
	if s.pendingJobID == "" {
		return
	}

	job, err := s.runner.Status(ctx, s.pendingJobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			s.pendingJobID = ""
		}
		return
	}

	switch job.State {
	case model.StateSucceeded:
		if job.FinishedAt != nil {
			s.lastSuccess = *job.FinishedAt
		} else {
			s.lastSuccess = s.now()
		}
		s.pendingJobID = ""
		s.logger.Info().Str("job_id", job.ID).Time("last_success", s.lastSuccess).Msg("auto backup succeeded")
	case model.StateFailed:
		s.pendingJobID = ""
	}
}

func (s *Scheduler) connectivityOK(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
