package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dontforget/internal/domain"
	"dontforget/internal/models"
	"dontforget/internal/repository"
)

var (
	ErrUnknownDraft = errors.New("unknown draft")
	ErrNotFound     = errors.New("draft not found")
)

var names = map[string]string{
	"task":      models.KeyTaskDraft,
	"follow-up": models.KeyFollowUpDraft,
}

// Key maps a draft name from the URL to its storage key.
func Key(name string) (string, error) {
	key, ok := names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDraft, name)
	}
	return key, nil
}

// Service autosaves owner form drafts. Every owner has one slot per draft
// name.
type Service struct {
	store domain.Store
	now   func() time.Time
}

func NewService(store domain.Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) scope(owner string) domain.Store {
	return repository.Scoped(s.store, "owner:"+owner)
}

func (s *Service) Save(ctx context.Context, owner, name string, draft models.TaskDraft) (*models.TaskDraft, error) {
	key, err := Key(name)
	if err != nil {
		return nil, err
	}
	if draft.FormData == nil {
		draft.FormData = map[string]any{}
	}
	if draft.KeyPointsList == nil {
		draft.KeyPointsList = []string{}
	}
	draft.SavedAt = s.now().UTC()
	if err := repository.SetJSON(ctx, s.scope(owner), key, draft); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	return &draft, nil
}

func (s *Service) Load(ctx context.Context, owner, name string) (*models.TaskDraft, error) {
	key, err := Key(name)
	if err != nil {
		return nil, err
	}
	var draft models.TaskDraft
	found, err := repository.GetJSON(ctx, s.scope(owner), key, &draft)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	migrateInvitees(draft.FormData)
	if draft.KeyPointsList == nil {
		draft.KeyPointsList = []string{}
	}
	return &draft, nil
}

func (s *Service) Discard(ctx context.Context, owner, name string) error {
	key, err := Key(name)
	if err != nil {
		return err
	}
	return s.scope(owner).Remove(ctx, key)
}

// migrateInvitees turns the old comma-separated invitee field into the
// invitees list.
func migrateInvitees(form map[string]any) {
	if form == nil {
		return
	}
	if old, ok := form["invitee"].(string); ok {
		if _, has := form["invitees"]; !has {
			list := []any{}
			for _, part := range strings.Split(old, ",") {
				if p := strings.TrimSpace(part); p != "" {
					list = append(list, p)
				}
			}
			form["invitees"] = list
			delete(form, "invitee")
		}
	}
	if _, ok := form["invitees"].([]any); !ok {
		form["invitees"] = []any{}
	}
}
