package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/events"
	"github.com/spec-kit/task-service/internal/repository"
	apperrors "github.com/spec-kit/task-service/pkg/util/errorutil"
)

// ErrTaskNotFound covers unknown ids, malformed ids and tasks owned by
// another user alike.
var ErrTaskNotFound = apperrors.NewNotFound("Task")

// TaskService coordinates task workflows for the authenticated owner.
type TaskService struct {
	tasks      repository.TaskRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TaskDependencies bundles collaborators for the task service.
type TaskDependencies struct {
	TaskRepo   repository.TaskRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TaskCreateInput describes task creation payload.
type TaskCreateInput struct {
	Title       string
	Description string
	Status      domain.TaskStatus
}

// NewTaskService constructs the service.
func NewTaskService(deps TaskDependencies) *TaskService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{
		tasks:      deps.TaskRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("task_service"),
	}
}

// CreateTask stores a new task for ownerID. An empty status means pending.
func (s *TaskService) CreateTask(ctx context.Context, ownerID string, input TaskCreateInput) (*domain.Task, error) {
	task := &domain.Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      input.Status,
		OwnerID:     ownerID,
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	if !task.Status.Valid() {
		return nil, apperrors.NewBadRequest("invalid task status")
	}
	if err := requireText(task); err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	s.populateOwner(ctx, task)

	s.publishEvent(ctx, events.Event{
		Type:    events.EventTaskCreated,
		ActorID: ownerID,
		Payload: events.TaskPayload{TaskID: task.ID, Status: string(task.Status)},
	})
	return task, nil
}

// ListTasks returns the owner's tasks, newest first.
func (s *TaskService) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	return s.tasks.ListByOwner(ctx, ownerID)
}

// GetTask fetches a single task ensuring ownership.
func (s *TaskService) GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	if !validID(taskID) {
		return nil, ErrTaskNotFound
	}
	task, err := s.tasks.GetByID(ctx, ownerID, taskID)
	if err != nil {
		return nil, notFound(err)
	}
	return task, nil
}

// UpdateTask applies patch to the owner's task.
func (s *TaskService) UpdateTask(ctx context.Context, ownerID, taskID string, patch domain.TaskPatch) (*domain.Task, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperrors.NewBadRequest("invalid task status")
	}
	task, err := s.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	patch.Apply(task)
	task.Title = strings.TrimSpace(task.Title)
	task.Description = strings.TrimSpace(task.Description)
	if err := requireText(task); err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, notFound(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventTaskUpdated,
		ActorID: ownerID,
		Payload: events.TaskPayload{TaskID: task.ID, Status: string(task.Status)},
	})
	return task, nil
}

// DeleteTask removes the owner's task.
func (s *TaskService) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if !validID(taskID) {
		return ErrTaskNotFound
	}
	if err := s.tasks.Delete(ctx, ownerID, taskID); err != nil {
		return notFound(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:    events.EventTaskDeleted,
		ActorID: ownerID,
		Payload: events.TaskPayload{TaskID: taskID},
	})
	return nil
}

func (s *TaskService) populateOwner(ctx context.Context, task *domain.Task) {
	if s.users == nil {
		return
	}
	owner, err := s.users.GetByID(ctx, task.OwnerID)
	if err != nil {
		s.logger.Debug("owner lookup failed", zap.String("user_id", task.OwnerID), zap.Error(err))
		return
	}
	summary := owner.Summary()
	task.Owner = &summary
}

func (s *TaskService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTaskNotFound
	}
	return err
}

// requireText rejects a task whose trimmed title or description is empty.
func requireText(task *domain.Task) error {
	var fields []apperrors.FieldError
	if task.Title == "" {
		fields = append(fields, apperrors.FieldError{Path: "title", Message: "title must not be blank"})
	}
	if task.Description == "" {
		fields = append(fields, apperrors.FieldError{Path: "description", Message: "description must not be blank"})
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError("Validation error", fields)
	}
	return nil
}
