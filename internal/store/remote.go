package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/pavelanni/ieltsprep/internal/model"
)

// Driver names the SQL dialect a RemoteStore talks to.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// RemoteStore is the hosted backend: one row per entity with the whole record
// in a JSON data column.
type RemoteStore struct {
	db     *sql.DB
	driver Driver
}

// OpenRemote connects to the Postgres database described by cfg. The config
// key is used as the database password.
func OpenRemote(ctx context.Context, cfg model.DBConfig) (*RemoteStore, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	pcfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse remote dsn: %w", err)
	}
	if pcfg.Password == "" {
		pcfg.Password = cfg.Key
	}
	db := stdlib.OpenDB(*pcfg)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping remote: %w", err)
	}
	s, err := NewRemoteStore(ctx, db, DriverPostgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewRemoteStore wraps an open database and ensures the schema exists.
func NewRemoteStore(ctx context.Context, db *sql.DB, driver Driver) (*RemoteStore, error) {
	s := &RemoteStore{db: db, driver: driver}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("remote schema: %w", err)
	}
	return s, nil
}

func (s *RemoteStore) Close() error {
	return s.db.Close()
}

func (s *RemoteStore) ensureSchema(ctx context.Context) error {
	data := "TEXT"
	if s.driver == DriverPostgres {
		data = "JSONB"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS banks (
			id TEXT PRIMARY KEY,
			data ` + data + ` NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			data ` + data + ` NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS results_user_id ON results (user_id)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			data ` + data + ` NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ListBanks returns all banks ordered by upload time, newest first.
func (s *RemoteStore) ListBanks(ctx context.Context) ([]model.QuestionBank, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM banks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var banks []model.QuestionBank
	for rows.Next() {
		var b model.QuestionBank
		if err := scanJSON(rows, &b); err != nil {
			return nil, err
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

// GetBank returns the bank with the given id, or nil if there is none.
func (s *RemoteStore) GetBank(ctx context.Context, id string) (*model.QuestionBank, error) {
	var b model.QuestionBank
	err := scanJSON(s.db.QueryRowContext(ctx, `SELECT data FROM banks WHERE id = $1`, id), &b)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// PutBank upserts the bank. created_at keeps the bank's upload time.
func (s *RemoteStore) PutBank(ctx context.Context, bank model.QuestionBank) error {
	data, err := json.Marshal(bank)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO banks (id, data, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		bank.ID, string(data), bank.UploadedAt.UnixMilli(),
	)
	return err
}

func (s *RemoteStore) DeleteBank(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM banks WHERE id = $1`, id)
	return err
}

// InsertResult appends a result. Re-inserting an existing id is a no-op.
func (s *RemoteStore) InsertResult(ctx context.Context, r model.TestResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, user_id, data, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.UserID, string(data), r.Date.UnixMilli(),
	)
	return err
}

// ListResults returns results ordered by date, newest first. An empty userID
// lists every user's results.
func (s *RemoteStore) ListResults(ctx context.Context, userID string) ([]model.TestResult, error) {
	query := `SELECT data FROM results ORDER BY created_at DESC`
	var args []any
	if userID != "" {
		query = `SELECT data FROM results WHERE user_id = $1 ORDER BY created_at DESC`
		args = append(args, userID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.TestResult
	for rows.Next() {
		var r model.TestResult
		if err := scanJSON(rows, &r); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *RemoteStore) PutUser(ctx context.Context, u model.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		u.ID, string(data),
	)
	return err
}

func (s *RemoteStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanJSON(rows, &u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanJSON reads a single data column and decodes it into dst.
func scanJSON(row scanner, dst any) error {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}
