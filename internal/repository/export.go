package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/scoring"
)

// Export builds the results export for every user, newest results first.
// Results of users missing from the directory are grouped under their id.
func Export(ctx context.Context, users *UserRepository, results *ResultRepository, mode model.StorageMode, now time.Time) (model.ResultsExport, error) {
	all, err := results.ListAllResults(ctx)
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("list results: %w", err)
	}
	directory, err := users.ListUsers(ctx)
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("list users: %w", err)
	}

	byUser := make(map[string][]model.TestResult)
	var order []string
	for _, u := range directory {
		order = append(order, u.ID)
		byUser[u.ID] = nil
	}
	for _, r := range all {
		if _, ok := byUser[r.UserID]; !ok {
			order = append(order, r.UserID)
		}
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	names := make(map[string]model.User, len(directory))
	for _, u := range directory {
		names[u.ID] = u
	}

	out := model.ResultsExport{ExportedAt: now, Storage: mode}
	for _, id := range order {
		rs := byUser[id]
		sum := scoring.Summarize(rs)
		u := names[id]
		out.Users = append(out.Users, model.UserResults{
			UserID:  id,
			Name:    u.Name,
			Email:   u.Email,
			Latest:  sum.Latest,
			Average: sum.Average,
			Results: rs,
		})
	}
	return out, nil
}
