package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite opens (and creates if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		reported_by TEXT NOT NULL,
		assigned_to TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		resolution TEXT NOT NULL DEFAULT '',
		video_url TEXT NOT NULL DEFAULT '',
		logs_json TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_at);

	CREATE TABLE IF NOT EXISTS solutions (
		id TEXT PRIMARY KEY,
		problem_description TEXT NOT NULL,
		solution_description TEXT NOT NULL,
		actions BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_solutions_created ON solutions(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const ticketColumns = `id, title, description, status, priority, reported_by,
	assigned_to, created_at, resolution, video_url, logs_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*remotedesk.Ticket, error) {
	var t remotedesk.Ticket
	var createdAt int64
	var logs string
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.ReportedBy,
		&t.AssignedTo, &createdAt, &t.Resolution, &t.VideoURL, &logs,
	)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	if err := sonic.UnmarshalString(logs, &t.Logs); err != nil {
		return nil, fmt.Errorf("decode logs of %s: %w", t.ID, err)
	}
	return &t, nil
}

// GetTickets returns every ticket, newest first.
func (s *SQLiteStore) GetTickets(ctx context.Context) ([]remotedesk.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: query tickets: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	tickets := []remotedesk.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan ticket: %v", shared.ErrStorage, err)
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate tickets: %v", shared.ErrStorage, err)
	}
	return tickets, nil
}

func (s *SQLiteStore) CreateTicket(ctx context.Context, t remotedesk.Ticket) (*remotedesk.Ticket, error) {
	t, err := prepareTicket(t, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.writeTicket(ctx, `INSERT INTO tickets (`+ticketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) UpdateTicket(ctx context.Context, t remotedesk.Ticket) error {
	if _, err := s.GetTicketByID(ctx, t.ID); err != nil {
		return err
	}
	t, err := prepareTicket(t, s.now().UTC())
	if err != nil {
		return err
	}
	return s.writeTicket(ctx, `INSERT OR REPLACE INTO tickets (`+ticketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, t)
}

func (s *SQLiteStore) writeTicket(ctx context.Context, query string, t remotedesk.Ticket) error {
	logs := t.Logs
	if logs == nil {
		logs = []string{}
	}
	logsJSON, err := sonic.MarshalString(logs)
	if err != nil {
		return fmt.Errorf("%w: encode logs: %v", shared.ErrStorage, err)
	}
	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.ReportedBy,
		t.AssignedTo, t.CreatedAt.UnixMilli(), t.Resolution, t.VideoURL, logsJSON,
	)
	if err != nil {
		return fmt.Errorf("%w: write ticket %s: %v", shared.ErrStorage, t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetTicketByID(ctx context.Context, id string) (*remotedesk.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ticket %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan ticket: %v", shared.ErrStorage, err)
	}
	return t, nil
}

func (s *SQLiteStore) CreateSolution(ctx context.Context, ns remotedesk.NewSolution) (*remotedesk.Solution, error) {
	sol, err := prepareSolution(ns, s.now().UTC())
	if err != nil {
		return nil, err
	}
	blob, err := encodeActions(sol.Actions)
	if err != nil {
		return nil, fmt.Errorf("%w: encode actions: %v", shared.ErrStorage, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO solutions (id, problem_description, solution_description, actions, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sol.ID, sol.ProblemDescription, sol.SolutionDescription, blob, sol.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert solution: %v", shared.ErrStorage, err)
	}
	return &sol, nil
}

func scanSolution(row rowScanner) (*remotedesk.Solution, error) {
	var sol remotedesk.Solution
	var blob []byte
	var createdAt int64
	if err := row.Scan(&sol.ID, &sol.ProblemDescription, &sol.SolutionDescription, &blob, &createdAt); err != nil {
		return nil, err
	}
	actions, err := decodeActions(blob)
	if err != nil {
		return nil, err
	}
	sol.Actions = actions
	sol.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &sol, nil
}

func (s *SQLiteStore) FindSolutions(ctx context.Context, query string) ([]remotedesk.Solution, error) {
	// SQLite's lower() folds ASCII only, so terms are matched in Go.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, problem_description, solution_description, actions, created_at FROM solutions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: query solutions: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	terms := queryTerms(query)
	solutions := []remotedesk.Solution{}
	for rows.Next() {
		sol, err := scanSolution(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan solution: %v", shared.ErrStorage, err)
		}
		if !matchesTerms(sol.ProblemDescription, terms) {
			continue
		}
		solutions = append(solutions, *sol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate solutions: %v", shared.ErrStorage, err)
	}
	return solutions, nil
}

func (s *SQLiteStore) GetSolution(ctx context.Context, id string) (*remotedesk.Solution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, problem_description, solution_description, actions, created_at FROM solutions WHERE id = ?`, id)
	sol, err := scanSolution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: solution %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan solution: %v", shared.ErrStorage, err)
	}
	return sol, nil
}
