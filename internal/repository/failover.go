package repository

import (
	"context"
	"sync/atomic"
	"time"

	"dontforget/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStore serves from primary and switches to fallback after the first
// primary error. Recovery is retried once per recoveryInterval on reads.
type FailoverStore struct {
	primary   domain.Store
	fallback  domain.Store
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverStore(primary, fallback domain.Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary store failed, falling back")
	r.isDown.Store(true)
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverStore) recoveryDue() bool {
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !r.isDown.Load() {
		val, err := r.primary.Get(ctx, key)
		if err == nil {
			return val, nil
		}
		r.markDown(err)
	}

	if r.isDown.Load() && r.recoveryDue() {
		val, err := r.primary.Get(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("Primary store recovered")
			return val, nil
		}
		r.lastCheck.Store(r.now().UnixNano())
	}

	return r.fallback.Get(ctx, key)
}

func (r *FailoverStore) Set(ctx context.Context, key string, value []byte) error {
	if !r.isDown.Load() {
		err := r.primary.Set(ctx, key, value)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Set(ctx, key, value)
}

func (r *FailoverStore) SetMany(ctx context.Context, values map[string][]byte) error {
	if !r.isDown.Load() {
		err := r.primary.SetMany(ctx, values)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetMany(ctx, values)
}

// Remove clears the keys on both sides, so a recovered primary cannot
// resurrect hand-off state. Primary errors are only logged while degraded.
func (r *FailoverStore) Remove(ctx context.Context, keys ...string) error {
	fallbackErr := r.fallback.Remove(ctx, keys...)
	if err := r.primary.Remove(ctx, keys...); err != nil {
		if r.isDown.Load() {
			r.logger.Warn().Err(err).Strs("keys", keys).Msg("Primary store remove failed while degraded")
		} else {
			r.markDown(err)
		}
	}
	return fallbackErr
}

// Degraded reports whether calls currently go to the fallback.
func (r *FailoverStore) Degraded() bool {
	return r.isDown.Load()
}
