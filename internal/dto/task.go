package dto

import (
	"time"

	dom "tasktracker/internal/domain"
)

type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=255"`
	Description string `json:"description" binding:"max=10000"`
}

// UpdateTaskRequest is a partial update: nil = не менять.
type UpdateTaskRequest struct {
	Title       *string     `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string     `json:"description" binding:"omitempty,max=10000"`
	Status      *dom.Status `json:"status" binding:"omitempty,oneof=draft in_progress completed"`
}

// Patch converts the request into a domain patch.
func (r UpdateTaskRequest) Patch() dom.TaskPatch {
	return dom.TaskPatch{Title: r.Title, Description: r.Description, Status: r.Status}
}

type ListTasksQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=draft in_progress completed"`
	Q      string `form:"q" binding:"max=255"`
}

type PermissionsResponse struct {
	CanUpdate bool `json:"can_update"`
	CanDelete bool `json:"can_delete"`
}

type TaskResponse struct {
	ID          int64               `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Status      dom.Status          `json:"status"`
	UserID      string              `json:"user_id"`
	Version     int64               `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Permissions PermissionsResponse `json:"permissions"`
}

type ListTasksResponse struct {
	Items []TaskResponse `json:"items"`
}
