// Package repository selects between the remote and local stores and exposes
// the content, result and user repositories on top of them.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/store"
)

// Connector builds a remote backend for a config.
type Connector func(ctx context.Context, cfg model.DBConfig) (store.Backend, error)

// ConnectRemote is the Connector for the hosted Postgres store.
func ConnectRemote(ctx context.Context, cfg model.DBConfig) (store.Backend, error) {
	return store.OpenRemote(ctx, cfg)
}

// ConfigStore persists the remote configuration.
type ConfigStore interface {
	GetDBConfig(ctx context.Context) (*model.DBConfig, error)
	SaveDBConfig(ctx context.Context, cfg model.DBConfig) error
	ClearDBConfig(ctx context.Context) error
}

// Backends holds the local store and the current remote handle. Every
// repository call goes remote first and falls back to local on failure.
type Backends struct {
	local   store.Backend
	configs ConfigStore
	connect Connector

	mu     sync.RWMutex
	cfg    *model.DBConfig
	remote store.Backend
}

// NewBackends loads the saved config and connects to the remote store if one
// is configured. A failed connection is logged and retried on the next call.
func NewBackends(ctx context.Context, local store.Backend, configs ConfigStore, connect Connector) (*Backends, error) {
	if connect == nil {
		connect = ConnectRemote
	}
	b := &Backends{local: local, configs: configs, connect: connect}
	cfg, err := configs.GetDBConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load db config: %w", err)
	}
	b.Reconfigure(ctx, cfg)
	return b, nil
}

// Mode reports remote when a config is present. It does not check health.
func (b *Backends) Mode() model.StorageMode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.cfg != nil {
		return model.StorageRemote
	}
	return model.StorageLocal
}

// Config returns a copy of the active config, or nil in local mode.
func (b *Backends) Config() *model.DBConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.cfg == nil {
		return nil
	}
	c := *b.cfg
	return &c
}

// SetConfig validates, persists and applies cfg. A nil cfg clears the remote
// configuration.
func (b *Backends) SetConfig(ctx context.Context, cfg *model.DBConfig) error {
	if cfg == nil {
		if err := b.configs.ClearDBConfig(ctx); err != nil {
			return fmt.Errorf("clear db config: %w: %w", model.ErrFatalStorage, err)
		}
		b.Reconfigure(ctx, nil)
		return nil
	}
	c, err := checkConfig(*cfg)
	if err != nil {
		return err
	}
	if err := b.configs.SaveDBConfig(ctx, c); err != nil {
		return fmt.Errorf("save db config: %w: %w", model.ErrFatalStorage, err)
	}
	b.Reconfigure(ctx, &c)
	return nil
}

// Apply validates cfg and uses it for this process only. The saved config is
// left untouched.
func (b *Backends) Apply(ctx context.Context, cfg model.DBConfig) error {
	c, err := checkConfig(cfg)
	if err != nil {
		return err
	}
	b.Reconfigure(ctx, &c)
	return nil
}

func checkConfig(cfg model.DBConfig) (model.DBConfig, error) {
	c := cfg.Normalized()
	if !c.Configured() {
		return c, model.Invalid("remote url and key are required")
	}
	if _, err := c.DSN(); err != nil {
		return c, err
	}
	return c, nil
}

// Reconfigure replaces the remote handle wholesale. The old handle is closed.
func (b *Backends) Reconfigure(ctx context.Context, cfg *model.DBConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remote != nil {
		if err := b.remote.Close(); err != nil {
			slog.Warn("close remote store", "error", err)
		}
		b.remote = nil
	}
	b.cfg = nil
	if cfg == nil || !cfg.Configured() {
		slog.Info("storage mode", "mode", model.StorageLocal)
		return
	}
	c := *cfg
	b.cfg = &c
	b.remote = b.dial(ctx)
	slog.Info("storage mode", "mode", model.StorageRemote, "url", c.URL, "connected", b.remote != nil)
}

// dial connects using the current config. Caller holds the write lock.
func (b *Backends) dial(ctx context.Context) store.Backend {
	remote, err := b.connect(ctx, *b.cfg)
	if err != nil {
		slog.Warn("remote store unavailable", "url", b.cfg.URL, "error", fmt.Errorf("%w: %w", model.ErrBackendUnavailable, err))
		return nil
	}
	return remote
}

// ensureRemote retries construction when a config is set but the last
// attempt failed.
func (b *Backends) ensureRemote(ctx context.Context) {
	b.mu.RLock()
	need := b.cfg != nil && b.remote == nil
	b.mu.RUnlock()
	if !need {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg != nil && b.remote == nil {
		b.remote = b.dial(ctx)
	}
}

// tryRemote runs fn against the remote store if one is configured. It
// reports whether fn ran and succeeded.
func (b *Backends) tryRemote(ctx context.Context, op string, fn func(store.Backend) error) bool {
	b.ensureRemote(ctx)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.remote == nil {
		return false
	}
	if err := fn(b.remote); err != nil {
		slog.Warn("remote storage failed, using local", "op", op, "error", fmt.Errorf("%w: %w", model.ErrBackendUnavailable, err))
		return false
	}
	return true
}

// runLocal runs fn against the local store. Its failure is fatal.
func (b *Backends) runLocal(op string, fn func(store.Backend) error) error {
	if err := fn(b.local); err != nil {
		slog.Error("local storage failed", "op", op, "error", err)
		return fmt.Errorf("%s: %w: %w", op, model.ErrFatalStorage, err)
	}
	return nil
}

// withFallback is the two-step attempt: remote, then local on failure.
func withFallback[T any](ctx context.Context, b *Backends, op string, fn func(store.Backend) (T, error)) (T, error) {
	var v T
	call := func(s store.Backend) error {
		var err error
		v, err = fn(s)
		return err
	}
	if b.tryRemote(ctx, op, call) {
		return v, nil
	}
	if err := b.runLocal(op, call); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Close releases the remote handle. The local store is owned by the caller.
func (b *Backends) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remote == nil {
		return nil
	}
	err := b.remote.Close()
	b.remote = nil
	return err
}
