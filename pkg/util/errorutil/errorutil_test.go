package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	require.Nil(t, ToDomainError(nil))

	wrapped := fmt.Errorf("handler: %w", NewConflict("Email already in use"))
	de := ToDomainError(wrapped)
	require.Equal(t, http.StatusConflict, de.HTTPStatus)
	require.Equal(t, "CONFLICT", de.Code)

	de = ToDomainError(fiber.ErrTooManyRequests)
	require.Equal(t, http.StatusTooManyRequests, de.HTTPStatus)
	require.Equal(t, "RATE_LIMITED", de.Code)

	de = ToDomainError(fmt.Errorf("scan: %w", pgx.ErrNoRows))
	require.Equal(t, http.StatusNotFound, de.HTTPStatus)

	boom := errors.New("boom")
	de = ToDomainError(boom)
	require.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	require.Equal(t, "internal server error", de.Message)
	require.ErrorIs(t, de, boom)
}

func TestDomainError_Error(t *testing.T) {
	require.Equal(t, "Task not found", NewNotFound("Task").Error())
	require.Equal(t, "internal server error: boom", NewInternalError(errors.New("boom")).Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("Validation error", []FieldError{{Path: "email", Message: "email is required"}})
	de := ToDomainError(err)
	require.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	require.Len(t, de.Fields, 1)
}
