// Package store persists repository records in SQLite.
//
// The store is the only shared mutable state of a run. Every write is a
// single-row statement keyed by repository id, so concurrent pipelines
// touching different repositories never conflict. Status changes go through
// [classify.CanTransition]; only [Store.ResetStatus] may move a record back.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/matzehuels/packscan/pkg/classify"
	"github.com/matzehuels/packscan/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS repositories (
    id                    INTEGER PRIMARY KEY,
    name                  TEXT NOT NULL,
    owner                 TEXT NOT NULL DEFAULT '',
    full_name             TEXT NOT NULL DEFAULT '',
    language              TEXT NOT NULL DEFAULT '',
    forks                 INTEGER NOT NULL DEFAULT 0,
    stars                 INTEGER NOT NULL DEFAULT 0,
    contributors          INTEGER NOT NULL DEFAULT 0,
    lines_of_code         INTEGER NOT NULL DEFAULT 0,
    created_at            TEXT NOT NULL DEFAULT '',
    updated_at            TEXT NOT NULL DEFAULT '',
    status                TEXT NOT NULL DEFAULT 'uncategorized',
    category              TEXT NOT NULL DEFAULT '',
    rule                  TEXT NOT NULL DEFAULT '',
    rule_linter           INTEGER,
    rule_dev_dependencies INTEGER,
    inserted_at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_repositories_status ON repositories(status);
CREATE INDEX IF NOT EXISTS idx_repositories_category ON repositories(category);

CREATE TABLE IF NOT EXISTS categorizations (
    id       INTEGER PRIMARY KEY,
    category TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    command     TEXT NOT NULL,
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL DEFAULT '',
    total       INTEGER NOT NULL DEFAULT 0,
    succeeded   INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0
);
`

// Store is a SQLite-backed repository store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, enables WAL mode and a busy
// timeout, and creates the schema if needed. Use ":memory:" for a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY between
	// pooled connections and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record is one persisted repository.
type Record struct {
	ID                  int64
	Name                string
	Owner               string
	FullName            string
	Language            string
	Forks               int
	Stars               int
	Contributors        int
	LinesOfCode         int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Status              classify.Status
	Category            classify.Category
	Rule                string // Classifier rule that assigned Category
	RuleLinter          *bool  // nil until analyzed
	RuleDevDependencies *int   // nil until analyzed
	InsertedAt          time.Time
}

// DirName returns the local copy directory name "{name}_{id}".
func (r Record) DirName() string {
	return fmt.Sprintf("%s_%d", r.Name, r.ID)
}

const recordColumns = `id, name, owner, full_name, language, forks, stars, contributors,
	lines_of_code, created_at, updated_at, status, category, rule, rule_linter,
	rule_dev_dependencies, inserted_at`

// Insert adds r, or refreshes the descriptive fields of an existing record
// with the same id. Status, category and rule fields of an existing record
// are never touched. A new record starts as r.Status, or uncategorized.
func (s *Store) Insert(ctx context.Context, r Record) error {
	if r.ID <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "store: record id must be positive, got %d", r.ID)
	}
	status := r.Status
	if status == "" {
		status = classify.StatusUncategorized
	}
	const q = `
		INSERT INTO repositories (id, name, owner, full_name, language, forks, stars,
			contributors, lines_of_code, created_at, updated_at, status, category, rule,
			rule_linter, rule_dev_dependencies, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			owner         = excluded.owner,
			full_name     = excluded.full_name,
			language      = excluded.language,
			forks         = excluded.forks,
			stars         = excluded.stars,
			contributors  = CASE WHEN excluded.contributors > 0 THEN excluded.contributors ELSE contributors END,
			lines_of_code = CASE WHEN excluded.lines_of_code > 0 THEN excluded.lines_of_code ELSE lines_of_code END,
			created_at    = excluded.created_at,
			updated_at    = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		r.ID, r.Name, r.Owner, r.FullName, r.Language, r.Forks, r.Stars,
		r.Contributors, r.LinesOfCode, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		string(status), string(r.Category), r.Rule,
		nullBool(r.RuleLinter), nullInt(r.RuleDevDependencies), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store: insert %d: %w", r.ID, err)
	}
	return nil
}

// Get returns the record with id, or a NOT_FOUND error.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM repositories WHERE id = ?", id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, errors.New(errors.ErrCodeNotFound, "store: repository %d not found", id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get %d: %w", id, err)
	}
	return r, nil
}

// Exists reports whether a record with id is stored.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM repositories WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("store: exists %d: %w", id, err)
	}
	return n > 0, nil
}

// Filter selects records in [Store.List]. Zero fields match everything.
type Filter struct {
	Status   classify.Status
	Category classify.Category
	Limit    int
}

// List returns the records matching f ordered by id.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	q := "SELECT " + recordColumns + " FROM repositories WHERE 1=1"
	var args []any
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		q += " AND category = ?"
		args = append(args, string(f.Category))
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// SetStats updates the contributor count and lines-of-code estimate.
func (s *Store) SetStats(ctx context.Context, id int64, contributors, linesOfCode int) error {
	return s.exec(ctx, fmt.Sprintf("set stats %d", id),
		"UPDATE repositories SET contributors = ?, lines_of_code = ? WHERE id = ?",
		contributors, linesOfCode, id)
}

// SetClassification stores the classifier's outcome for id. The status
// change must be allowed by [classify.CanTransition].
func (s *Store) SetClassification(ctx context.Context, id int64, res classify.Result) error {
	return s.transition(ctx, id, res.Status,
		"UPDATE repositories SET status = ?, category = ?, rule = ? WHERE id = ?",
		string(res.Status), string(res.Category), res.Rule, id)
}

// SetRules stores rule-check results and marks id analyzed.
func (s *Store) SetRules(ctx context.Context, id int64, hasLinter bool, misplacedDevDependencies int) error {
	return s.transition(ctx, id, classify.StatusAnalyzed,
		"UPDATE repositories SET status = ?, rule_linter = ?, rule_dev_dependencies = ? WHERE id = ?",
		string(classify.StatusAnalyzed), hasLinter, misplacedDevDependencies, id)
}

// ResetStatus returns id to uncategorized and clears its category and rule
// fields.
func (s *Store) ResetStatus(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE repositories
		SET status = ?, category = '', rule = '', rule_linter = NULL, rule_dev_dependencies = NULL
		WHERE id = ?`, string(classify.StatusUncategorized), id)
	if err != nil {
		return fmt.Errorf("store: reset status %d: %w", id, err)
	}
	return requireRow(res, id)
}

// Delete removes the record with id. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.exec(ctx, fmt.Sprintf("delete %d", id), "DELETE FROM repositories WHERE id = ?", id)
}

// Reset deletes every repository record and categorization. Run history is kept.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin reset: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, table := range []string{"repositories", "categorizations"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("store: reset %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit reset: %w", err)
	}
	return nil
}

// Counts returns the number of records per status and per category.
func (s *Store) Counts(ctx context.Context) (map[classify.Status]int, map[classify.Category]int, error) {
	statuses := make(map[classify.Status]int)
	categories := make(map[classify.Category]int)

	rows, err := s.db.QueryContext(ctx, "SELECT status, category, COUNT(*) FROM repositories GROUP BY status, category")
	if err != nil {
		return nil, nil, fmt.Errorf("store: counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, category string
		var n int
		if err := rows.Scan(&status, &category, &n); err != nil {
			return nil, nil, fmt.Errorf("store: scan counts: %w", err)
		}
		statuses[classify.Status(status)] += n
		if category != "" {
			categories[classify.Category(category)] += n
		}
	}
	return statuses, categories, rows.Err()
}

// transition runs update after checking that id may move to status.
func (s *Store) transition(ctx context.Context, id int64, to classify.Status, update string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transition %d: %w", id, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var from string
	err = tx.QueryRowContext(ctx, "SELECT status FROM repositories WHERE id = ?", id).Scan(&from)
	if err == sql.ErrNoRows {
		return errors.New(errors.ErrCodeNotFound, "store: repository %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("store: read status %d: %w", id, err)
	}
	if !classify.CanTransition(classify.Status(from), to) {
		return errors.New(errors.ErrCodeInvalidTransition, "store: repository %d cannot move from %s to %s", id, from, to)
	}

	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return fmt.Errorf("store: set status %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit status %d: %w", id, err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, what, q string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store: %s: %w", what, err)
	}
	return nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return errors.New(errors.ErrCodeNotFound, "store: repository %d not found", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r                              Record
		status, category               string
		createdAt, updatedAt, inserted string
		linter                         sql.NullBool
		devDeps                        sql.NullInt64
	)
	err := sc.Scan(&r.ID, &r.Name, &r.Owner, &r.FullName, &r.Language, &r.Forks, &r.Stars,
		&r.Contributors, &r.LinesOfCode, &createdAt, &updatedAt, &status, &category, &r.Rule,
		&linter, &devDeps, &inserted)
	if err != nil {
		return Record{}, err
	}
	r.Status = classify.Status(status)
	r.Category = classify.Category(category)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.InsertedAt = parseTime(inserted)
	if linter.Valid {
		r.RuleLinter = &linter.Bool
	}
	if devDeps.Valid {
		n := int(devDeps.Int64)
		r.RuleDevDependencies = &n
	}
	return r, nil
}

// timeLayout has fixed-width fractions so stored values sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
