package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/task-service/internal/domain"
	apperrors "github.com/spec-kit/task-service/pkg/util/errorutil"
)

func TestValidate_RegisterRequest(t *testing.T) {
	require.NoError(t, Validate(RegisterRequest{Username: "alice", Email: "a@b.com", Password: "P@ssw0rd"}))

	err := Validate(RegisterRequest{Username: "al", Email: "nope", Password: "123"})
	de := apperrors.ToDomainError(err)
	require.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	require.Equal(t, "Validation error", de.Message)
	require.Equal(t, []apperrors.FieldError{
		{Path: "username", Message: "username must be at least 3 characters"},
		{Path: "email", Message: "email must be a valid email"},
		{Path: "password", Message: "password must be at least 6 characters"},
	}, de.Fields)
}

func TestValidate_RequiredFields(t *testing.T) {
	de := apperrors.ToDomainError(Validate(CreateTaskRequest{}))
	require.Len(t, de.Fields, 2)
	require.Equal(t, "title is required", de.Fields[0].Message)
	require.Equal(t, "description", de.Fields[1].Path)
}

func TestValidate_BlankTaskFields(t *testing.T) {
	de := apperrors.ToDomainError(Validate(CreateTaskRequest{Title: "   ", Description: "\t\n"}))
	require.Equal(t, []apperrors.FieldError{
		{Path: "title", Message: "title must not be blank"},
		{Path: "description", Message: "description must not be blank"},
	}, de.Fields)

	blank := " "
	de = apperrors.ToDomainError(Validate(UpdateTaskRequest{Title: &blank, Description: &blank}))
	require.Len(t, de.Fields, 2)
	require.Equal(t, "title must not be blank", de.Fields[0].Message)

	empty := ""
	de = apperrors.ToDomainError(Validate(UpdateTaskRequest{Title: &empty}))
	require.Len(t, de.Fields, 1)
	require.Equal(t, "title", de.Fields[0].Path)
}

func TestValidate_TaskStatus(t *testing.T) {
	require.NoError(t, Validate(CreateTaskRequest{Title: "t", Description: "d"}))
	require.NoError(t, Validate(CreateTaskRequest{Title: "t", Description: "d", Status: domain.TaskStatusCompleted}))

	de := apperrors.ToDomainError(Validate(CreateTaskRequest{Title: "t", Description: "d", Status: "done"}))
	require.Equal(t, []apperrors.FieldError{
		{Path: "status", Message: "status must be one of [pending, in-progress, completed]"},
	}, de.Fields)
}

func TestValidate_UpdateTaskRequest(t *testing.T) {
	require.NoError(t, Validate(UpdateTaskRequest{}))

	bad := domain.TaskStatus("archived")
	de := apperrors.ToDomainError(Validate(UpdateTaskRequest{Status: &bad}))
	require.Len(t, de.Fields, 1)
	require.Equal(t, "status", de.Fields[0].Path)

	title := "new"
	patch := UpdateTaskRequest{Title: &title}.Patch()
	require.Equal(t, &title, patch.Title)
	require.Nil(t, patch.Status)
}

func TestNewTaskResponse_Owner(t *testing.T) {
	task := &domain.Task{ID: "t1", OwnerID: "u1"}
	require.Equal(t, &OwnerResponse{ID: "u1"}, NewTaskResponse(task).User)

	task.Owner = &domain.UserSummary{ID: "u1", Username: "alice", Email: "a@b.com"}
	require.Equal(t, "alice", NewTaskResponse(task).User.Username)
}
