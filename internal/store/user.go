package store

import (
	"context"
	"log/slog"
	"slices"

	"github.com/pavelanni/ieltsprep/internal/model"
)

// PutUser inserts the user or replaces the one with the same id.
func (s *LocalStore) PutUser(ctx context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []model.User
	if err := s.load(ctx, collectionUsers, &users); err != nil {
		return err
	}
	if i := slices.IndexFunc(users, func(x model.User) bool { return x.ID == u.ID }); i >= 0 {
		users[i] = u
	} else {
		users = append(users, u)
	}
	if err := s.save(ctx, collectionUsers, users); err != nil {
		slog.Error("failed to save user", "id", u.ID, "error", err)
		return err
	}
	slog.Debug("saved user", "id", u.ID, "role", u.Role)
	return nil
}

// ListUsers returns all users in insertion order.
func (s *LocalStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.load(ctx, collectionUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}
