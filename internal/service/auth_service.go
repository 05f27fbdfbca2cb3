package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/auth"
	"github.com/spec-kit/task-service/internal/config"
	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/events"
	"github.com/spec-kit/task-service/internal/repository"
	apperrors "github.com/spec-kit/task-service/pkg/util/errorutil"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = apperrors.NewDomainError("INVALID_CREDENTIALS", "Invalid email or password", http.StatusBadRequest)

// AuthService coordinates registration, login and logout flows.
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenManager
	store      *auth.TokenStore
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bcryptCost int
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo     repository.UserRepository
	TokenManager *auth.TokenManager
	TokenStore   *auth.TokenStore
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokens:     deps.TokenManager,
		store:      deps.TokenStore,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("auth_service"),
		bcryptCost: cfg.BcryptCost,
	}
}

// Register creates a new account. Username and email must both be unused.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)

	existing, err := s.users.FindByEmailOrUsername(ctx, email, username)
	switch {
	case err == nil:
		return nil, conflictFor(existing, email)
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// lost a race with a concurrent registration
			return nil, apperrors.NewConflict("Email or username already in use")
		}
		return nil, err
	}

	s.publishEvent(ctx, events.Event{Type: events.EventUserRegistered, ActorID: user.ID})
	return user, nil
}

// Login checks credentials and issues a session token. When the token
// cannot be cached the session is still returned with Cached false.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, domain.Session, error) {
	if email == "" || password == "" {
		return nil, domain.Session{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, domain.Session{}, err
	}

	ok, err := auth.PasswordMatches(user.PasswordHash, password)
	if err != nil {
		return nil, domain.Session{}, err
	}
	if !ok {
		return nil, domain.Session{}, ErrInvalidCredentials
	}

	session, err := s.tokens.Issue(domain.Identity{ID: user.ID, Email: user.Email})
	if err != nil {
		return nil, domain.Session{}, err
	}

	if err := s.store.Cache(ctx, session.Token, s.tokens.TTL()); err != nil {
		s.logger.Warn("login without token cache", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		session.Cached = true
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventUserLoggedIn,
		ActorID: user.ID,
		Payload: events.LoginPayload{Email: user.Email, ExpiresAt: session.ExpiresAt, Cached: session.Cached},
	})
	return user, session, nil
}

// Logout revokes the bearer token in header. An expired token is cleaned
// up and reported as expired; a token with a bad signature leaves the
// store untouched.
func (s *AuthService) Logout(ctx context.Context, header string) (domain.Identity, error) {
	token, ok := auth.BearerToken(header)
	if !ok {
		return domain.Identity{}, auth.ErrAuthRequired
	}

	v := s.tokens.Verify(token)
	switch v.Status {
	case auth.VerifyExpired:
		if err := s.store.Invalidate(ctx, token); err != nil {
			s.logger.Warn("cleanup of expired token failed", zap.Error(err))
		}
		return domain.Identity{}, auth.ErrTokenExpired
	case auth.VerifyInvalid:
		return domain.Identity{}, auth.ErrTokenInvalid
	}

	if err := s.store.Invalidate(ctx, token); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", auth.ErrLogoutUnavailable, err)
	}

	s.publishEvent(ctx, events.Event{Type: events.EventUserLoggedOut, ActorID: v.Identity.ID})
	return v.Identity, nil
}

func (s *AuthService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func conflictFor(existing *domain.User, email string) error {
	if existing.Email == email {
		return apperrors.NewConflict("Email already in use")
	}
	return apperrors.NewConflict("Username already in use")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
