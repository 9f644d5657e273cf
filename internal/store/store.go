package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/ieltsprep/internal/model"

	_ "modernc.org/sqlite"
)

// Collection names in the local store.
const (
	collectionBanks          = "question_banks"
	collectionResults        = "results"
	collectionUsers          = "users"
	collectionCurrentSession = "current_session"
	collectionDBConfig       = "db_config"
)

// LocalStore is the single-device backend. Each collection is one row holding
// a JSON document, read and written whole.
type LocalStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// OpenLocal opens (or creates) the SQLite file at dbPath.
func OpenLocal(dbPath string) (*LocalStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &LocalStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

func (s *LocalStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ListBanks returns all banks, newest first.
func (s *LocalStore) ListBanks(ctx context.Context) ([]model.QuestionBank, error) {
	var banks []model.QuestionBank
	if err := s.load(ctx, collectionBanks, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

// GetBank returns the bank with the given id, or nil if there is none.
func (s *LocalStore) GetBank(ctx context.Context, id string) (*model.QuestionBank, error) {
	banks, err := s.ListBanks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range banks {
		if banks[i].ID == id {
			return &banks[i], nil
		}
	}
	return nil, nil
}

// PutBank replaces the bank in place when its id exists and prepends it
// otherwise.
func (s *LocalStore) PutBank(ctx context.Context, bank model.QuestionBank) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var banks []model.QuestionBank
	if err := s.load(ctx, collectionBanks, &banks); err != nil {
		return err
	}
	i := slices.IndexFunc(banks, func(b model.QuestionBank) bool { return b.ID == bank.ID })
	if i >= 0 {
		banks[i] = bank
	} else {
		banks = append([]model.QuestionBank{bank}, banks...)
	}
	return s.save(ctx, collectionBanks, banks)
}

// DeleteBank removes the bank. Deleting a missing bank is not an error.
func (s *LocalStore) DeleteBank(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var banks []model.QuestionBank
	if err := s.load(ctx, collectionBanks, &banks); err != nil {
		return err
	}
	kept := slices.DeleteFunc(banks, func(b model.QuestionBank) bool { return b.ID == id })
	return s.save(ctx, collectionBanks, kept)
}

// InsertResult prepends the result. A result whose id is already stored is
// ignored so that write-through retries stay append-only.
func (s *LocalStore) InsertResult(ctx context.Context, r model.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []model.TestResult
	if err := s.load(ctx, collectionResults, &results); err != nil {
		return err
	}
	if slices.ContainsFunc(results, func(x model.TestResult) bool { return x.ID == r.ID }) {
		return nil
	}
	results = append([]model.TestResult{r}, results...)
	return s.save(ctx, collectionResults, results)
}

// ListResults returns results newest first by date. An empty userID lists all.
func (s *LocalStore) ListResults(ctx context.Context, userID string) ([]model.TestResult, error) {
	var all []model.TestResult
	if err := s.load(ctx, collectionResults, &all); err != nil {
		return nil, err
	}
	var out []model.TestResult
	for _, r := range all {
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(results []model.TestResult) {
	slices.SortStableFunc(results, func(a, b model.TestResult) int {
		return b.Date.Compare(a.Date)
	})
}
