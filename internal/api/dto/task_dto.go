package dto

import (
	"time"

	"github.com/spec-kit/task-service/internal/domain"
)

// CreateTaskRequest payload.
type CreateTaskRequest struct {
	Title       string            `json:"title" validate:"required,notblank,max=200"`
	Description string            `json:"description" validate:"required,notblank"`
	Status      domain.TaskStatus `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
}

// UpdateTaskRequest payload. Omitted fields are left unchanged.
type UpdateTaskRequest struct {
	Title       *string            `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string            `json:"description" validate:"omitempty,notblank"`
	Status      *domain.TaskStatus `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
}

// Patch converts the request into a domain patch.
func (r UpdateTaskRequest) Patch() domain.TaskPatch {
	return domain.TaskPatch{Title: r.Title, Description: r.Description, Status: r.Status}
}

// OwnerResponse is the owner summary embedded in a task.
type OwnerResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// TaskResponse represents a task.
type TaskResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      domain.TaskStatus `json:"status"`
	User        *OwnerResponse    `json:"user"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewTaskResponse projects a task.
func NewTaskResponse(t *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.Owner != nil {
		resp.User = &OwnerResponse{ID: t.Owner.ID, Username: t.Owner.Username, Email: t.Owner.Email}
	} else {
		resp.User = &OwnerResponse{ID: t.OwnerID}
	}
	return resp
}

// NewTaskListResponse projects a list of tasks.
func NewTaskListResponse(tasks []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, NewTaskResponse(&tasks[i]))
	}
	return out
}
