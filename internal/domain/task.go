package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task. Any status may follow any other.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ParseStatus validates s against the known statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusInProgress, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Task is the domain entity. Не зависит от Gin, Postgres, Redis.
// OwnerID never changes after creation.
type Task struct {
	ID          int64
	Title       string
	Description string
	Status      Status
	OwnerID     string
	Version     int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskPatch carries a partial update. Nil fields keep their current value.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *Status
}

// Apply returns t with the non-nil fields of p merged in.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	return t
}

// TaskFilter narrows a task listing. Zero values mean "no restriction".
type TaskFilter struct {
	OwnerID string
	Status  Status
	Query   string
}
