package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tasktracker/internal/cache"
	dom "tasktracker/internal/domain"
	"tasktracker/internal/repo"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
)

// UserService handles accounts: registration, login and seeding.
type UserService struct {
	users repo.UserRepo
	tasks repo.TaskRepo
	lists *cache.TaskCache
	cost  int
}

// NewUserService returns a new UserService. tasks is only needed to
// remove accounts together with what they own.
func NewUserService(users repo.UserRepo, tasks repo.TaskRepo) *UserService {
	return &UserService{users: users, tasks: tasks, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.cost = cost
	return s
}

// WithTaskCache makes RemoveAccounts drop cached task listings, so a
// running API stops serving the deleted tasks.
func (s *UserService) WithTaskCache(c *cache.TaskCache) *UserService {
	s.lists = c
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredentials checks email and password; returns user if valid.
func (s *UserService) ValidateCredentials(ctx context.Context, email, password string) (dom.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return dom.User{}, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return dom.User{}, ErrInvalidCredentials
		}
		return dom.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return dom.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Register creates a new account with role user.
func (s *UserService) Register(ctx context.Context, name, email, password string) (dom.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return dom.User{}, invalid("name, email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return dom.User{}, err
	}
	u, err := s.users.Create(ctx, dom.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         dom.RoleUser,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return dom.User{}, ErrEmailTaken
		}
		return dom.User{}, err
	}
	return u, nil
}

// Get returns the account behind a session.
func (s *UserService) Get(ctx context.Context, id string) (dom.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return dom.User{}, ErrUnknownActor
	}
	return u, err
}

// EnsureAccount registers the account if needed and sets its role.
// The password of an existing account is left alone.
func (s *UserService) EnsureAccount(ctx context.Context, name, email, password string, role dom.Role) (u dom.User, created bool, err error) {
	u, err = s.Register(ctx, name, email, password)
	switch {
	case err == nil:
		created = true
	case errors.Is(err, ErrEmailTaken):
		if u, err = s.users.GetByEmail(ctx, normalizeEmail(email)); err != nil {
			return dom.User{}, false, fmt.Errorf("load %s: %w", email, err)
		}
	default:
		return dom.User{}, false, fmt.Errorf("register %s: %w", email, err)
	}
	if u.Role == role {
		return u, created, nil
	}
	u, err = s.users.SetRole(ctx, u.ID, role)
	if err != nil {
		return dom.User{}, false, fmt.Errorf("set role of %s: %w", email, err)
	}
	return u, created, nil
}

// RemoveAccounts deletes the accounts with the given emails and every
// task they own. Unknown emails are skipped. Returns the number of
// users and tasks removed.
func (s *UserService) RemoveAccounts(ctx context.Context, emails []string) (users, tasks int64, err error) {
	var ids []string
	for _, email := range emails {
		u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, 0, fmt.Errorf("load %s: %w", email, err)
		}
		ids = append(ids, u.ID)
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}
	if tasks, err = s.tasks.DeleteByOwners(ctx, ids); err != nil {
		return 0, 0, fmt.Errorf("delete tasks: %w", err)
	}
	if s.lists != nil && tasks > 0 {
		if err := s.lists.InvalidateAll(ctx); err != nil {
			return 0, tasks, fmt.Errorf("invalidate task lists: %w", err)
		}
	}
	if users, err = s.users.DeleteByIDs(ctx, ids); err != nil {
		return 0, tasks, fmt.Errorf("delete users: %w", err)
	}
	return users, tasks, nil
}
