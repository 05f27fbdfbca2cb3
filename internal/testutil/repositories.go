package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/repository"
)

// UserRepo is an in-memory repository.UserRepository.
type UserRepo struct {
	mu    sync.RWMutex
	users map[string]domain.User
	// Err, when set, is returned by every call.
	Err error
}

var _ repository.UserRepository = (*UserRepo)(nil)

// NewUserRepo returns an empty repository.
func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]domain.User)}
}

func (r *UserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, u := range r.users {
		if u.Email == user.Email || u.Username == user.Username {
			return repository.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = *user
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id })
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Email == email })
}

func (r *UserRepo) FindByEmailOrUsername(_ context.Context, email, username string) (*domain.User, error) {
	if u, err := r.find(func(u domain.User) bool { return u.Email == email }); err == nil || r.Err != nil {
		return u, err
	}
	return r.find(func(u domain.User) bool { return u.Username == username })
}

func (r *UserRepo) find(match func(domain.User) bool) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, u := range r.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// TaskRepo is an in-memory repository.TaskRepository. It resolves owner
// summaries through Users when set.
type TaskRepo struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
	Users *UserRepo
	Err   error
}

var _ repository.TaskRepository = (*TaskRepo)(nil)

// NewTaskRepo returns an empty repository.
func NewTaskRepo(users *UserRepo) *TaskRepo {
	return &TaskRepo{tasks: make(map[string]domain.Task), Users: users}
}

func (r *TaskRepo) Create(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	now := time.Now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	stored := *task
	stored.Owner = nil
	r.tasks[task.ID] = stored
	return nil
}

func (r *TaskRepo) Update(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	existing, ok := r.tasks[task.ID]
	if !ok || existing.OwnerID != task.OwnerID {
		return pgx.ErrNoRows
	}
	task.UpdatedAt = time.Now().UTC()
	stored := *task
	stored.Owner = nil
	r.tasks[task.ID] = stored
	return nil
}

func (r *TaskRepo) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	existing, ok := r.tasks[id]
	if !ok || existing.OwnerID != ownerID {
		return pgx.ErrNoRows
	}
	delete(r.tasks, id)
	return nil
}

func (r *TaskRepo) GetByID(ctx context.Context, ownerID, id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	task, ok := r.tasks[id]
	if !ok || task.OwnerID != ownerID {
		return nil, pgx.ErrNoRows
	}
	r.populate(ctx, &task)
	return &task, nil
}

func (r *TaskRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]domain.Task, 0)
	for _, task := range r.tasks {
		if task.OwnerID == ownerID {
			r.populate(ctx, &task)
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *TaskRepo) populate(ctx context.Context, task *domain.Task) {
	if r.Users == nil {
		return
	}
	if owner, err := r.Users.GetByID(ctx, task.OwnerID); err == nil {
		summary := owner.Summary()
		task.Owner = &summary
	}
}
