package store

import (
	"context"

	"github.com/pavelanni/ieltsprep/internal/model"
)

// GetDBConfig returns the saved remote configuration, or nil when none is set.
func (s *LocalStore) GetDBConfig(ctx context.Context) (*model.DBConfig, error) {
	var cfg *model.DBConfig
	if err := s.load(ctx, collectionDBConfig, &cfg); err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.Configured() {
		return nil, nil
	}
	return cfg, nil
}

// SaveDBConfig stores the remote configuration.
func (s *LocalStore) SaveDBConfig(ctx context.Context, cfg model.DBConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, collectionDBConfig, cfg)
}

// ClearDBConfig removes the remote configuration, switching to local mode.
func (s *LocalStore) ClearDBConfig(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(ctx, collectionDBConfig)
}
