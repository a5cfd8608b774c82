package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"tasktracker/internal/cache"
	dom "tasktracker/internal/domain"
	"tasktracker/internal/policy"
	"tasktracker/internal/repo"

	"golang.org/x/sync/singleflight"
)

// MaxTitleLen matches the width of tasks.title.
const MaxTitleLen = 255

// TaskService runs task operations: load the target fresh, ask the policy,
// then mutate. Writes use the loaded version so a concurrent change
// turns into ErrConflict instead of a lost update.
type TaskService struct {
	repo   repo.TaskRepo
	cache  *cache.TaskCache
	policy *policy.Policy
	log    *slog.Logger
	sf     singleflight.Group
}

// NewTaskService creates a TaskService. If c is nil, caching is disabled.
func NewTaskService(r repo.TaskRepo, c *cache.TaskCache, p *policy.Policy, log *slog.Logger) *TaskService {
	return &TaskService{repo: r, cache: c, policy: p, log: log}
}

// Permissions reports what actor may do with t.
func (s *TaskService) Permissions(actor dom.Actor, t dom.Task) policy.Permissions {
	return s.policy.PermissionsFor(actor, t)
}

// List returns the tasks actor may see: everything for managers and
// admins, own tasks otherwise. status and query narrow the result.
func (s *TaskService) List(ctx context.Context, actor dom.Actor, status dom.Status, query string) ([]dom.Task, error) {
	f := dom.TaskFilter{
		OwnerID: s.policy.ListScope(actor),
		Status:  status,
		Query:   strings.TrimSpace(query),
	}
	if s.cache == nil {
		return s.repo.List(ctx, f)
	}
	// The generation is read before the store so that a write landing
	// during the load moves readers past whatever this call caches.
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "task cache read failed", "err", err)
		return s.repo.List(ctx, f)
	}
	v, err, _ := s.sf.Do(cache.ListKey(gen, f), func() (interface{}, error) {
		list, err := s.cache.GetList(ctx, gen, f)
		if err != nil {
			s.log.WarnContext(ctx, "task cache read failed", "err", err)
		} else if list != nil {
			return list, nil
		}
		list, err = s.repo.List(ctx, f)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetList(ctx, gen, f, list); err != nil {
			s.log.WarnContext(ctx, "task cache write failed", "err", err)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]dom.Task), nil
}

// Get returns one task if actor may see it.
func (s *TaskService) Get(ctx context.Context, actor dom.Actor, id int64) (dom.Task, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return dom.Task{}, err
	}
	if r := s.policy.CanRead(actor, t); !r.Allowed() {
		return dom.Task{}, forbidden("view this task", r)
	}
	return t, nil
}

// Create adds a draft task owned by actor.
func (s *TaskService) Create(ctx context.Context, actor dom.Actor, title, desc string) (dom.Task, error) {
	if r := s.policy.CanCreate(actor); !r.Allowed() {
		return dom.Task{}, forbidden("create tasks", r)
	}
	title, err := cleanTitle(title)
	if err != nil {
		return dom.Task{}, err
	}
	t, err := s.repo.Create(ctx, dom.Task{
		Title:       title,
		Description: strings.TrimSpace(desc),
		Status:      dom.StatusDraft,
		OwnerID:     actor.UserID,
	})
	if err != nil {
		if errors.Is(err, repo.ErrUnknownOwner) {
			return dom.Task{}, ErrUnknownActor
		}
		return dom.Task{}, fmt.Errorf("create task: %w", err)
	}
	s.invalidateCache(ctx)
	s.log.InfoContext(ctx, "task created", "task_id", t.ID, "owner", t.OwnerID)
	return t, nil
}

// Update merges patch into task id. Missing tasks yield ErrNotFound
// before the policy is consulted.
func (s *TaskService) Update(ctx context.Context, actor dom.Actor, id int64, patch dom.TaskPatch) (dom.Task, error) {
	existing, err := s.load(ctx, id)
	if err != nil {
		return dom.Task{}, err
	}
	if r := s.policy.CanUpdate(actor, existing); !r.Allowed() {
		return dom.Task{}, forbidden("update this task", r)
	}
	if patch.Title != nil {
		title, err := cleanTitle(*patch.Title)
		if err != nil {
			return dom.Task{}, err
		}
		patch.Title = &title
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		patch.Description = &desc
	}
	t, err := s.repo.Update(ctx, patch.Apply(existing))
	if err != nil {
		if errors.Is(err, repo.ErrStale) {
			return dom.Task{}, ErrConflict
		}
		return dom.Task{}, fmt.Errorf("update task %d: %w", id, err)
	}
	s.invalidateCache(ctx)
	return t, nil
}

// Delete removes task id. Missing tasks yield ErrNotFound before the
// policy is consulted.
func (s *TaskService) Delete(ctx context.Context, actor dom.Actor, id int64) error {
	existing, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if r := s.policy.CanDelete(actor, existing); !r.Allowed() {
		return forbidden("delete this task", r)
	}
	if err := s.repo.Delete(ctx, id, existing.Version); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return ErrConflict
		}
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	s.invalidateCache(ctx)
	s.log.InfoContext(ctx, "task deleted", "task_id", id, "by", actor.UserID, "role", actor.Role)
	return nil
}

func (s *TaskService) load(ctx context.Context, id int64) (dom.Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, fmt.Errorf("load task %d: %w", id, err)
	}
	return t, nil
}

func (s *TaskService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.log.WarnContext(ctx, "task cache invalidation failed", "err", err)
	}
}

func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return "", invalid(fmt.Sprintf("title must be at most %d characters", MaxTitleLen))
	}
	return title, nil
}
