package repo

import (
	"context"
	"errors"

	dom "tasktracker/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrStale is returned when a row changed or vanished after it was read.
	ErrStale = errors.New("stale version")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate key")
	// ErrUnknownOwner is returned when a task references a missing user.
	ErrUnknownOwner = errors.New("unknown owner")
)

// TaskRepo provides task persistence.
//
// Update and Delete compare the stored version with the version of the
// task the caller read; a mismatch yields ErrStale and changes nothing.
type TaskRepo interface {
	Create(ctx context.Context, t dom.Task) (dom.Task, error)
	GetByID(ctx context.Context, id int64) (dom.Task, error)
	List(ctx context.Context, f dom.TaskFilter) ([]dom.Task, error)
	Update(ctx context.Context, t dom.Task) (dom.Task, error)
	Delete(ctx context.Context, id, version int64) error
	DeleteByOwners(ctx context.Context, ownerIDs []string) (int64, error)
}

// UserRepo provides user persistence.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (dom.User, error)
	GetByID(ctx context.Context, id string) (dom.User, error)
	Create(ctx context.Context, u dom.User) (dom.User, error)
	SetRole(ctx context.Context, id string, role dom.Role) (dom.User, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
