package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"dontforget/internal/models"

	"github.com/rs/zerolog"
)

type watched struct {
	src        Source
	notifs     []models.Notification
	updated    time.Time
	lastAccess time.Time
}

// Watcher keeps the latest notifications of recently active owners. Its
// Refresh method is the job of the background poller.
type Watcher struct {
	center   *Center
	interval time.Duration
	idle     time.Duration
	now      func() time.Time
	logger   *zerolog.Logger

	mu     sync.Mutex
	owners map[string]*watched
}

func NewWatcher(center *Center, interval, idle time.Duration, logger *zerolog.Logger) *Watcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Watcher{
		center:   center,
		interval: interval,
		idle:     idle,
		now:      time.Now,
		logger:   logger,
		owners:   make(map[string]*watched),
	}
}

// Watch registers the owner for polling, or refreshes its source.
func (w *Watcher) Watch(owner string, src Source) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if entry, ok := w.owners[owner]; ok {
		entry.src = src
		entry.lastAccess = w.now()
		return
	}
	w.owners[owner] = &watched{src: src, lastAccess: w.now()}
}

// Latest returns the polled notifications when they are younger than one
// polling interval.
func (w *Watcher) Latest(owner string) ([]models.Notification, time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.owners[owner]
	if !ok || entry.updated.IsZero() || w.now().Sub(entry.updated) > w.interval {
		return nil, time.Time{}, false
	}
	return entry.notifs, entry.updated, true
}

func (w *Watcher) store(owner string, notifs []models.Notification, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if entry, ok := w.owners[owner]; ok {
		entry.notifs = notifs
		entry.updated = at
	}
}

// Get returns the owner's notifications, collecting them now when the
// polled copy is missing or stale.
func (w *Watcher) Get(ctx context.Context, owner string, src Source) ([]models.Notification, time.Time, error) {
	w.Watch(owner, src)
	if notifs, updated, ok := w.Latest(owner); ok {
		return notifs, updated, nil
	}
	notifs, err := w.center.Collect(ctx, src)
	if err != nil {
		return nil, time.Time{}, err
	}
	at := w.now()
	w.store(owner, notifs, at)
	return notifs, at, nil
}

// Refresh drops idle owners and re-collects every owner whose copy is
// older than half an interval. Owners refreshed by an earlier attempt are
// skipped on retry.
func (w *Watcher) Refresh(ctx context.Context) error {
	now := w.now()
	due := make(map[string]Source)

	w.mu.Lock()
	for owner, entry := range w.owners {
		if w.idle > 0 && now.Sub(entry.lastAccess) > w.idle {
			delete(w.owners, owner)
			continue
		}
		if entry.updated.IsZero() || now.Sub(entry.updated) >= w.interval/2 {
			due[owner] = entry.src
		}
	}
	w.mu.Unlock()

	var errs []error
	for owner, src := range due {
		notifs, err := w.center.Collect(ctx, src)
		if err != nil {
			w.logger.Warn().Err(err).Msg("Error fetching notification data")
			errs = append(errs, err)
			continue
		}
		w.store(owner, notifs, w.now())
	}
	return errors.Join(errs...)
}

// Len reports how many owners are being watched.
func (w *Watcher) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.owners)
}
