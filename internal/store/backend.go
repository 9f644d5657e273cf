package store

import (
	"context"

	"github.com/pavelanni/ieltsprep/internal/model"
)

// Backend is the record-level contract both storage backends satisfy. Missing
// records are reported as a nil value with a nil error.
type Backend interface {
	// ListBanks returns all banks, newest first.
	ListBanks(ctx context.Context) ([]model.QuestionBank, error)
	GetBank(ctx context.Context, id string) (*model.QuestionBank, error)
	// PutBank inserts the bank or replaces the one with the same id.
	PutBank(ctx context.Context, bank model.QuestionBank) error
	DeleteBank(ctx context.Context, id string) error

	InsertResult(ctx context.Context, r model.TestResult) error
	// ListResults returns results newest first. An empty userID lists all.
	ListResults(ctx context.Context, userID string) ([]model.TestResult, error)

	PutUser(ctx context.Context, u model.User) error
	ListUsers(ctx context.Context) ([]model.User, error)

	Close() error
}

var (
	_ Backend = (*LocalStore)(nil)
	_ Backend = (*RemoteStore)(nil)
)
