package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Poller runs a job on a fixed interval. A failed run is retried with the
// retry policy's backoff before the poller waits for the next tick.
type Poller struct {
	name        string
	interval    time.Duration
	retryPolicy RetryPolicy
	job         Job
	logger      *zerolog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewPoller builds a poller. Zero retry fields get defaults.
func NewPoller(name string, interval time.Duration, retry RetryPolicy, job Job, logger *zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Poller{
		name:        name,
		interval:    interval,
		retryPolicy: retry.withDefaults(interval),
		job:         job,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Start runs the job immediately and then on every tick until ctx is done.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info().Str("poller", p.name).Dur("interval", p.interval).Msg("poller started")
	defer p.logger.Info().Str("poller", p.name).Msg("poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		_ = p.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs the job, retrying failures. It returns the last error once
// the retries are exhausted.
func (p *Poller) RunOnce(ctx context.Context) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = p.job(ctx); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return err
		}
		if attempt >= p.retryPolicy.MaxRetries {
			p.logger.Error().Err(err).Str("poller", p.name).Int("attempts", attempt).Msg("poller run failed")
			return err
		}

		delay := p.retryPolicy.NextDelay(attempt)
		p.logger.Warn().Err(err).Str("poller", p.name).Int("attempt", attempt).Dur("retry_in", delay).Msg("poller run failed, retrying")
		if serr := p.sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
