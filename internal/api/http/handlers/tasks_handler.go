package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/task-service/internal/api/dto"
	"github.com/spec-kit/task-service/internal/auth"
	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/service"
	apperrors "github.com/spec-kit/task-service/pkg/util/errorutil"
)

// TasksHandler exposes task CRUD for the authenticated user.
type TasksHandler struct {
	tasks *service.TaskService
}

// NewTasksHandler constructs handler.
func NewTasksHandler(taskService *service.TaskService) *TasksHandler {
	return &TasksHandler{tasks: taskService}
}

// Create handles POST /api/v1/task.
func (h *TasksHandler) Create(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	task, err := h.tasks.CreateTask(c.UserContext(), identity.ID, service.TaskCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, "Task created successfully", dto.NewTaskResponse(task))
}

// List handles GET /api/v1/task.
func (h *TasksHandler) List(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	tasks, err := h.tasks.ListTasks(c.UserContext(), identity.ID)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Tasks retrieved successfully", dto.NewTaskListResponse(tasks))
}

// Get handles GET /api/v1/task/:id.
func (h *TasksHandler) Get(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	task, err := h.tasks.GetTask(c.UserContext(), identity.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Task retrieved successfully", dto.NewTaskResponse(task))
}

// Update handles PUT /api/v1/task/:id.
func (h *TasksHandler) Update(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	task, err := h.tasks.UpdateTask(c.UserContext(), identity.ID, c.Params("id"), req.Patch())
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Task updated successfully", dto.NewTaskResponse(task))
}

// Delete handles DELETE /api/v1/task/:id.
func (h *TasksHandler) Delete(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	if err := h.tasks.DeleteTask(c.UserContext(), identity.ID, c.Params("id")); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Task deleted successfully", nil)
}

func callerIdentity(c *fiber.Ctx) (domain.Identity, error) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return identity, auth.ErrAuthRequired
	}
	return identity, nil
}
