package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/store"
)

// DefaultUsers are seeded when the user directory is empty.
var DefaultUsers = []model.User{
	{ID: "admin_01", Name: "Administrator", Email: "admin@arinsielts.com", Role: model.UserRoleAdmin},
	{ID: "student_arin", Name: "Arin", Email: "arin@arinsielts.com", Role: model.UserRoleStudent},
}

// UserRepository is the user directory.
type UserRepository struct {
	backends *Backends
}

func NewUserRepository(b *Backends) *UserRepository {
	return &UserRepository{backends: b}
}

// SaveUser writes the user remotely when configured and always locally.
func (r *UserRepository) SaveUser(ctx context.Context, u model.User) error {
	if u.ID == "" || strings.TrimSpace(u.Email) == "" {
		return model.Invalid("user needs an id and an email")
	}
	if u.Role != model.UserRoleAdmin && u.Role != model.UserRoleStudent {
		return model.Invalid("user %q has unknown role %q", u.ID, u.Role)
	}
	r.backends.tryRemote(ctx, "save user", func(s store.Backend) error {
		return s.PutUser(ctx, u)
	})
	return r.backends.runLocal("save user", func(s store.Backend) error {
		return s.PutUser(ctx, u)
	})
}

// ListUsers returns all users.
func (r *UserRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	return withFallback(ctx, r.backends, "list users", func(s store.Backend) ([]model.User, error) {
		return s.ListUsers(ctx)
	})
}

// GetUser returns the user with the given id.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	return r.find(ctx, func(u model.User) bool { return u.ID == id }, id)
}

// FindByEmail looks a user up by email, ignoring case.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	return r.find(ctx, func(u model.User) bool { return strings.EqualFold(u.Email, email) }, email)
}

// find searches the active directory, then the local one, which holds every
// user ever saved.
func (r *UserRepository) find(ctx context.Context, match func(model.User) bool, key string) (*model.User, error) {
	users, err := r.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if u := firstMatch(users, match); u != nil {
		return u, nil
	}
	if r.backends.Mode() == model.StorageRemote {
		var local []model.User
		err := r.backends.runLocal("list users", func(s store.Backend) error {
			var err error
			local, err = s.ListUsers(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		if u := firstMatch(local, match); u != nil {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", key, model.ErrNotFound)
}

func firstMatch(users []model.User, match func(model.User) bool) *model.User {
	for i := range users {
		if match(users[i]) {
			return &users[i]
		}
	}
	return nil
}

// SeedDefaults saves DefaultUsers when no user exists yet.
func (r *UserRepository) SeedDefaults(ctx context.Context) error {
	users, err := r.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	for _, u := range DefaultUsers {
		if err := r.SaveUser(ctx, u); err != nil {
			return err
		}
		slog.Info("seeded user", "id", u.ID, "role", u.Role)
	}
	return nil
}
