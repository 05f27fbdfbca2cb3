package auth

import (
	"net/http"

	apperrors "github.com/spec-kit/task-service/pkg/util/errorutil"
)

// Rejection reasons surfaced by the gate and the logout flow.
var (
	ErrAuthRequired          = apperrors.NewDomainError("AUTH_REQUIRED", "Authorization token required", http.StatusUnauthorized)
	ErrTokenInvalidOrExpired = apperrors.NewDomainError("TOKEN_INVALID_OR_EXPIRED", "Invalid or expired token", http.StatusUnauthorized)
	ErrTokenExpired          = apperrors.NewDomainError("TOKEN_EXPIRED", "Token expired", http.StatusUnauthorized)
	ErrTokenInvalid          = apperrors.NewDomainError("TOKEN_INVALID", "Invalid token", http.StatusUnauthorized)

	// ErrLogoutUnavailable means a verified token could not be revoked
	// because the token store is down.
	ErrLogoutUnavailable = apperrors.NewDomainError("LOGOUT_UNAVAILABLE", "Logout failed", http.StatusServiceUnavailable)
)
