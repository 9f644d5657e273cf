package repository

import (
	"context"
	"log/slog"

	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/scoring"
	"github.com/pavelanni/ieltsprep/internal/store"
)

// ResultRepository stores test results. Results are append-only.
type ResultRepository struct {
	backends *Backends
}

func NewResultRepository(b *Backends) *ResultRepository {
	return &ResultRepository{backends: b}
}

// SaveResult writes the result to the remote store when one is configured
// and always to the local store. Only a local failure is returned.
func (r *ResultRepository) SaveResult(ctx context.Context, result model.TestResult) error {
	if err := ValidateResult(result); err != nil {
		return err
	}
	if r.backends.tryRemote(ctx, "save result", func(s store.Backend) error {
		return s.InsertResult(ctx, result)
	}) {
		slog.Debug("result saved remotely", "id", result.ID, "module", result.Module)
	}
	return r.backends.runLocal("save result", func(s store.Backend) error {
		return s.InsertResult(ctx, result)
	})
}

// ListResultsForUser returns the user's results, newest first.
func (r *ResultRepository) ListResultsForUser(ctx context.Context, userID string) ([]model.TestResult, error) {
	if userID == "" {
		return nil, model.Invalid("user id is required")
	}
	return r.list(ctx, userID)
}

// ListAllResults returns every result, newest first.
func (r *ResultRepository) ListAllResults(ctx context.Context) ([]model.TestResult, error) {
	return r.list(ctx, "")
}

func (r *ResultRepository) list(ctx context.Context, userID string) ([]model.TestResult, error) {
	return withFallback(ctx, r.backends, "list results", func(s store.Backend) ([]model.TestResult, error) {
		return s.ListResults(ctx, userID)
	})
}

// ValidateResult checks a result before it is persisted.
func ValidateResult(r model.TestResult) error {
	switch {
	case r.ID == "":
		return model.Invalid("result has no id")
	case r.UserID == "":
		return model.Invalid("result %q has no user", r.ID)
	case !r.Module.Valid():
		return model.Invalid("result %q has unknown module %q", r.ID, r.Module)
	case !scoring.IsBand(r.Score):
		return model.Invalid("result %q score %v is not a band between 0 and 9", r.ID, r.Score)
	case r.Details == nil:
		return model.Invalid("result %q has no details", r.ID)
	case r.Details.Module() != r.Module:
		return model.Invalid("result %q has %s details for a %s result", r.ID, r.Details.Module(), r.Module)
	}
	return nil
}

// Summary returns the dashboard summary for a user.
func (r *ResultRepository) Summary(ctx context.Context, userID string) (scoring.Summary, error) {
	results, err := r.ListResultsForUser(ctx, userID)
	if err != nil {
		return scoring.Summary{}, err
	}
	return scoring.Summarize(results), nil
}
