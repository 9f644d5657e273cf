package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"slices"
	"time"

	"github.com/pavelanni/ieltsprep/internal/model"
)

const authSessionTTL = 24 * time.Hour

// CreateAuthSession creates a new auth session token for a user.
func (s *LocalStore) CreateAuthSession(ctx context.Context, userID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions, err := s.liveSessions(ctx)
	if err != nil {
		return "", err
	}
	now := s.now()
	sessions = append(sessions, model.AuthSession{
		ID:        token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(authSessionTTL),
	})
	if err := s.save(ctx, collectionCurrentSession, sessions); err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession returns the auth session for the given token, or nil if not found/expired.
func (s *LocalStore) GetAuthSession(ctx context.Context, token string) (*model.AuthSession, error) {
	var sessions []model.AuthSession
	if err := s.load(ctx, collectionCurrentSession, &sessions); err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.ID != token {
			continue
		}
		if s.now().After(sess.ExpiresAt) {
			_ = s.DeleteAuthSession(ctx, token)
			return nil, nil
		}
		return &sess, nil
	}
	return nil, nil
}

// DeleteAuthSession removes a session token.
func (s *LocalStore) DeleteAuthSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions, err := s.liveSessions(ctx)
	if err != nil {
		return err
	}
	sessions = slices.DeleteFunc(sessions, func(a model.AuthSession) bool { return a.ID == token })
	return s.save(ctx, collectionCurrentSession, sessions)
}

// liveSessions loads the session collection without expired entries.
func (s *LocalStore) liveSessions(ctx context.Context) ([]model.AuthSession, error) {
	var sessions []model.AuthSession
	if err := s.load(ctx, collectionCurrentSession, &sessions); err != nil {
		return nil, err
	}
	now := s.now()
	return slices.DeleteFunc(sessions, func(a model.AuthSession) bool { return now.After(a.ExpiresAt) }), nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
