package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/task-service/internal/api/http/handlers"
	"github.com/spec-kit/task-service/internal/auth"
	"github.com/spec-kit/task-service/internal/config"
	"github.com/spec-kit/task-service/internal/events"
	"github.com/spec-kit/task-service/internal/observability"
	"github.com/spec-kit/task-service/internal/service"
	"github.com/spec-kit/task-service/internal/testutil"
)

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Path    string `json:"path"`
		Message string `json:"message"`
	} `json:"errors"`

	// set by readiness failures
	Dependencies map[string]string `json:"dependencies"`
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type server struct {
	app   *fiber.App
	mr    *miniredis.Miniredis
	clock *testClock
}

type serverOptions struct {
	rateLimit int
	redisErr  error
}

func newServer(t *testing.T, opts serverOptions) *server {
	t.Helper()
	logger := zap.NewNop()
	cache, mr := testutil.NewRedis(t)
	metrics := observability.NewMetrics("task_service_test")
	clock := &testClock{t: time.Now().UTC()}

	tokens, err := auth.NewTokenManager("router-test-secret", time.Hour, auth.WithClock(clock.Now))
	require.NoError(t, err)
	store := auth.NewTokenStore(cache, logger, metrics)
	dispatcher := events.NewInMemoryDispatcher(nil)

	users := testutil.NewUserRepo()
	tasks := testutil.NewTaskRepo(users)

	authService := service.NewAuthService(config.AuthConfig{BcryptCost: bcrypt.MinCost}, service.AuthDependencies{
		UserRepo:     users,
		TokenManager: tokens,
		TokenStore:   store,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	taskService := service.NewTaskService(service.TaskDependencies{
		TaskRepo:   tasks,
		UserRepo:   users,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	app := NewApp("task-service-test")
	RegisterMiddlewares(app, MiddlewareConfig{
		Logger:  logger,
		Metrics: metrics,
		HTTP:    config.HTTPConfig{AllowedOrigins: []string{"http://localhost:3000"}, RateLimitMax: opts.rateLimit, RateLimitWindowSec: 60},
		Timeout: 5 * time.Second,
	})
	RegisterRoutes(app, RouteConfig{
		APIVersion: "v1",
		Health: handlers.NewHealthHandler("task-service", "test", map[string]handlers.Pinger{
			"postgres": stubPinger{},
			"redis":    stubPinger{err: opts.redisErr},
		}, logger),
		Auth:           handlers.NewAuthHandler(authService),
		Tasks:          handlers.NewTasksHandler(taskService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store, logger, metrics),
		Metrics:        metrics,
	})
	return &server{app: app, mr: mr, clock: clock}
}

func (s *server) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *server) registerAndLogin(t *testing.T, username, email string) string {
	t.Helper()
	status, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username, "email": email, "password": "P@ssw0rd",
	})
	require.Equal(t, http.StatusCreated, status)

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": "P@ssw0rd",
	})
	require.Equal(t, http.StatusOK, status)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestRegisterLoginAndUseToken(t *testing.T) {
	s := newServer(t, serverOptions{})

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice", "email": "a@b.com", "password": "P@ssw0rd",
	})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "success", env.Status)
	require.Equal(t, "User registered successfully", env.Message)

	status, env = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "a@b.com", "password": "P@ssw0rd",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Login successful", env.Message)

	var login struct {
		Token string `json:"token"`
		User  struct {
			Email    string `json:"email"`
			Username string `json:"username"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.Equal(t, "a@b.com", login.User.Email)
	require.Equal(t, "alice", login.User.Username)
	require.True(t, s.mr.Exists("token:"+login.Token))

	status, env = s.do(t, http.MethodGet, "/api/v1/task", login.Token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Tasks retrieved successfully", env.Message)
}

func TestMissingAuthorizationHeader(t *testing.T) {
	s := newServer(t, serverOptions{})

	status, env := s.do(t, http.MethodGet, "/api/v1/task", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "fail", env.Status)
	require.Equal(t, "Authorization token required", env.Message)
	require.NotNil(t, env.Errors)
}

func TestUncachedTokenIsRejected(t *testing.T) {
	s := newServer(t, serverOptions{})
	token := s.registerAndLogin(t, "alice", "a@b.com")
	s.mr.Del("token:" + token)

	status, env := s.do(t, http.MethodGet, "/api/v1/task", token, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid or expired token", env.Message)
}

func TestTaskLifecycle(t *testing.T) {
	s := newServer(t, serverOptions{})
	token := s.registerAndLogin(t, "alice", "a@b.com")

	status, env := s.do(t, http.MethodPost, "/api/v1/task", token, map[string]string{
		"title": "write tests", "description": "all of them",
	})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "Task created successfully", env.Message)

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		User   struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, "pending", created.Status)
	require.Equal(t, "alice", created.User.Username)

	status, env = s.do(t, http.MethodPut, "/api/v1/task/"+created.ID, token, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Task updated successfully", env.Message)
	require.Contains(t, string(env.Data), `"status":"completed"`)

	status, env = s.do(t, http.MethodGet, "/api/v1/task/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Task retrieved successfully", env.Message)

	status, env = s.do(t, http.MethodDelete, "/api/v1/task/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Task deleted successfully", env.Message)

	status, env = s.do(t, http.MethodGet, "/api/v1/task/"+created.ID, token, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "Task not found", env.Message)
}

func TestTaskValidation(t *testing.T) {
	s := newServer(t, serverOptions{})
	token := s.registerAndLogin(t, "alice", "a@b.com")

	status, env := s.do(t, http.MethodPost, "/api/v1/task", token, map[string]string{"title": "t", "description": "d", "status": "done"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Validation error", env.Message)
	require.Len(t, env.Errors, 1)
	require.Equal(t, "status", env.Errors[0].Path)

	status, env = s.do(t, http.MethodPost, "/api/v1/task", token, map[string]string{"title": "   ", "description": "d"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Len(t, env.Errors, 1)
	require.Equal(t, "title must not be blank", env.Errors[0].Message)

	status, env = s.do(t, http.MethodPost, "/api/v1/task", token, map[string]string{"title": "t", "description": "d"})
	require.Equal(t, http.StatusCreated, status)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	status, env = s.do(t, http.MethodPut, "/api/v1/task/"+created.ID, token, map[string]string{"description": " \n"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "description", env.Errors[0].Path)
}

func TestTasksAreScopedToOwner(t *testing.T) {
	s := newServer(t, serverOptions{})
	alice := s.registerAndLogin(t, "alice", "a@b.com")
	bob := s.registerAndLogin(t, "bob", "b@b.com")

	status, env := s.do(t, http.MethodPost, "/api/v1/task", alice, map[string]string{"title": "t", "description": "d"})
	require.Equal(t, http.StatusCreated, status)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	status, _ = s.do(t, http.MethodGet, "/api/v1/task/"+created.ID, bob, nil)
	require.Equal(t, http.StatusNotFound, status)

	status, env = s.do(t, http.MethodGet, "/api/v1/task", bob, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[]`, string(env.Data))
}

func TestRegisterValidationAndConflict(t *testing.T) {
	s := newServer(t, serverOptions{})

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "al", "email": "not-an-email", "password": "123",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Validation error", env.Message)
	require.Len(t, env.Errors, 3)

	s.registerAndLogin(t, "alice", "a@b.com")
	status, env = s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice2", "email": "a@b.com", "password": "P@ssw0rd",
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "Email already in use", env.Message)
}

func TestLoginWithBadCredentials(t *testing.T) {
	s := newServer(t, serverOptions{})
	s.registerAndLogin(t, "alice", "a@b.com")

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "a@b.com", "password": "wrong",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Invalid email or password", env.Message)
}

func TestDegradedLogin(t *testing.T) {
	s := newServer(t, serverOptions{})
	status, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice", "email": "a@b.com", "password": "P@ssw0rd",
	})
	require.Equal(t, http.StatusCreated, status)
	s.mr.Close()

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "a@b.com", "password": "P@ssw0rd",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Login successful (cache disabled)", env.Message)
}

func TestLogout(t *testing.T) {
	s := newServer(t, serverOptions{})
	token := s.registerAndLogin(t, "alice", "a@b.com")

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Logout successful", env.Message)
	require.True(t, s.mr.Exists("blacklist:"+token))

	status, env = s.do(t, http.MethodGet, "/api/v1/task", token, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid or expired token", env.Message)
}

func TestLogoutWithExpiredToken(t *testing.T) {
	s := newServer(t, serverOptions{})
	token := s.registerAndLogin(t, "alice", "a@b.com")
	s.clock.Advance(time.Hour + time.Second)

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Token expired", env.Message)
	require.False(t, s.mr.Exists("token:"+token))

	status, env = s.do(t, http.MethodPost, "/api/v1/auth/logout", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Authorization token required", env.Message)
}

func TestLogoutStoreDown(t *testing.T) {
	s := newServer(t, serverOptions{})
	token := s.registerAndLogin(t, "alice", "a@b.com")
	s.mr.Close()

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "error", env.Status)
	require.Equal(t, "Logout failed", env.Message)
}

func TestUnsupportedVersion(t *testing.T) {
	s := newServer(t, serverOptions{})

	status, env := s.do(t, http.MethodGet, "/api/v2/health", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "API version is not supported", env.Message)
}

func TestHealth(t *testing.T) {
	s := newServer(t, serverOptions{})

	status, env := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Health check passed", env.Message)

	status, _ = s.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	require.Equal(t, http.StatusOK, status)

	down := newServer(t, serverOptions{redisErr: errors.New("dial tcp 10.0.3.7:6379: connection refused")})
	status, env = down.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "DEPENDENCY_UNAVAILABLE", env.Code)
	require.Equal(t, map[string]string{"postgres": "ok", "redis": "unavailable"}, env.Dependencies)
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, serverOptions{rateLimit: 2})

	for i := 0; i < 2; i++ {
		status, _ := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, env := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "Too many requests, please try again later", env.Message)
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t, serverOptions{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/task", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	require.Equal(t, "600", resp.Header.Get("Access-Control-Max-Age"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, serverOptions{})
	s.do(t, http.MethodGet, "/api/v1/task", "", nil)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "auth_gate_decisions_total"), "metrics output lacks gate counter")
	require.Contains(t, string(body), `outcome="auth_required"`)
}

func TestMetricsSurviveManyDistinctPaths(t *testing.T) {
	s := newServer(t, serverOptions{})
	token := s.registerAndLogin(t, "alice", "a@b.com")

	for i := 0; i < 20; i++ {
		status, _ := s.do(t, http.MethodGet, "/api/v1/task/"+uuid.NewString(), token, nil)
		require.Equal(t, http.StatusNotFound, status)
		status, _ = s.do(t, http.MethodDelete, fmt.Sprintf("/nope/%d", i), "", nil)
		require.Equal(t, http.StatusNotFound, status)
	}

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Contains(t, string(body), `path="/api/v1/task/:id"`)
	require.NotContains(t, string(body), "/nope/")
}
