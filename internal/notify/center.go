package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"dontforget/internal/backend"
	"dontforget/internal/domain"
	"dontforget/internal/models"
	"dontforget/internal/repository"

	"github.com/rs/zerolog"
)

// Source is the owner data notifications are derived from.
type Source interface {
	Bookings(ctx context.Context) ([]models.Booking, error)
	Tasks(ctx context.Context) ([]models.Task, error)
	Settings(ctx context.Context) (*models.Settings, error)
}

// Bind fixes the owner's bearer token so the source can be polled outside
// a request.
func Bind(api domain.OwnerBackend, token string) Source {
	return &boundSource{api: api, token: token}
}

type boundSource struct {
	api   domain.OwnerBackend
	token string
}

func (s *boundSource) Bookings(ctx context.Context) ([]models.Booking, error) {
	return s.api.Bookings(backend.WithToken(ctx, s.token))
}

func (s *boundSource) Tasks(ctx context.Context) ([]models.Task, error) {
	return s.api.Tasks(backend.WithToken(ctx, s.token))
}

func (s *boundSource) Settings(ctx context.Context) (*models.Settings, error) {
	return s.api.Settings(backend.WithToken(ctx, s.token))
}

// Feed is what the owner's bell renders.
type Feed struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Center builds notification feeds and keeps each owner's seen set in the
// store.
type Center struct {
	store  domain.Store
	loc    *time.Location
	now    func() time.Time
	logger *zerolog.Logger
}

func NewCenter(store domain.Store, loc *time.Location, logger *zerolog.Logger) *Center {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Center{store: store, loc: loc, now: time.Now, logger: logger}
}

// Collect fetches bookings, tasks and settings in parallel. Any failed
// fetch fails the whole collection.
func (c *Center) Collect(ctx context.Context, src Source) ([]models.Notification, error) {
	var (
		wg       sync.WaitGroup
		bookings []models.Booking
		tasks    []models.Task
		settings *models.Settings
		errs     [3]error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		bookings, errs[0] = src.Bookings(ctx)
	}()
	go func() {
		defer wg.Done()
		tasks, errs[1] = src.Tasks(ctx)
	}()
	go func() {
		defer wg.Done()
		settings, errs[2] = src.Settings(ctx)
	}()
	wg.Wait()

	if err := errors.Join(errs[:]...); err != nil {
		return nil, fmt.Errorf("collect notifications: %w", err)
	}
	return Build(bookings, tasks, settings, c.now(), c.loc), nil
}

// Feed marks notifications the owner has already seen.
func (c *Center) Feed(ctx context.Context, owner string, notifs []models.Notification, updated time.Time) (*Feed, error) {
	seen, err := c.seen(ctx, owner)
	if err != nil {
		return nil, err
	}
	feed := &Feed{Notifications: make([]models.Notification, len(notifs)), UpdatedAt: updated}
	for i, n := range notifs {
		n.Seen = seen[n.ID]
		if !n.Seen {
			feed.Unread++
		}
		feed.Notifications[i] = n
	}
	return feed, nil
}

// MarkSeen adds ids to the owner's seen set.
func (c *Center) MarkSeen(ctx context.Context, owner string, ids []string) error {
	seen, err := c.seen(ctx, owner)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id != "" {
			seen[id] = true
		}
	}
	list := make([]string, 0, len(seen))
	for id := range seen {
		list = append(list, id)
	}
	sort.Strings(list)
	return repository.SetJSON(ctx, c.scope(owner), models.KeySeenNotifications, list)
}

func (c *Center) seen(ctx context.Context, owner string) (map[string]bool, error) {
	var list []string
	if _, err := repository.GetJSON(ctx, c.scope(owner), models.KeySeenNotifications, &list); err != nil {
		c.logger.Warn().Err(err).Msg("Error reading seen notifications")
		list = nil
	}
	seen := make(map[string]bool, len(list))
	for _, id := range list {
		seen[id] = true
	}
	return seen, nil
}

func (c *Center) scope(owner string) domain.Store {
	return repository.Scoped(c.store, "owner:"+owner)
}
