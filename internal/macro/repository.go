package macro

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists the macro document.
//
// Load returns an error wrapping ErrCorrupt when stored data exists but
// cannot be decoded, and an empty Document when nothing has been stored.
type Repository interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
}

// RunRepository persists run history.
type RunRepository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, category Category, limit int) ([]Run, error)
}

// Run history limits.
const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// runTimeLayout has a fixed-width fraction so stored timestamps sort as text.
const runTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteRepository implements Repository and RunRepository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Load reads every macro ordered by category and position.
func (r *SQLiteRepository) Load(ctx context.Context) (Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category, name, active, steps, created_at, updated_at
		FROM macros
		ORDER BY category, position`)
	if err != nil {
		return nil, fmt.Errorf("querying macros: %w", err)
	}
	defer rows.Close()

	doc := make(Document)
	for rows.Next() {
		var (
			m                    Macro
			category, stepsJSON  string
			active               int
			createdAt, updatedAt string
		)
		if err := rows.Scan(&m.ID, &category, &m.Name, &active, &stepsJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning macro: %w", err)
		}
		if err := json.Unmarshal([]byte(stepsJSON), &m.Steps); err != nil {
			return nil, fmt.Errorf("%w: steps of %q: %v", ErrCorrupt, m.Name, err)
		}
		m.Active = active != 0
		if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
			m.CreatedAt = t
		}
		if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
			m.UpdatedAt = t
		}
		doc[Category(category)] = append(doc[Category(category)], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating macros: %w", err)
	}
	return doc, nil
}

// Save replaces every stored macro with doc in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, doc Document) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM macros"); err != nil {
		return fmt.Errorf("clearing macros: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO macros (id, category, position, name, active, steps, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, cat := range AllCategories() {
		for pos, m := range doc[cat] {
			stepsJSON, err := json.Marshal(m.Steps)
			if err != nil {
				return fmt.Errorf("marshalling steps: %w", err)
			}
			created, updated := m.CreatedAt, m.UpdatedAt
			if created.IsZero() {
				created = now
			}
			if updated.IsZero() {
				updated = now
			}
			if _, err := stmt.ExecContext(ctx,
				m.ID,
				string(cat),
				pos,
				m.Name,
				boolToInt(m.Active),
				string(stepsJSON),
				created.UTC().Format(time.RFC3339),
				updated.UTC().Format(time.RFC3339),
			); err != nil {
				if isUniqueConstraintError(err) {
					return fmt.Errorf("%w: %q in %s", ErrNameExists, m.Name, cat)
				}
				return fmt.Errorf("inserting macro: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CreateRun inserts a finished run.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}
	failuresJSON, err := marshalFailures(run.Failures)
	if err != nil {
		return fmt.Errorf("marshalling failures: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO macro_runs (
			id, category, macro_name, trigger_source, status,
			steps_total, steps_completed, steps_failed,
			results, failures, started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.Category),
		run.MacroName,
		run.Source,
		string(run.Status),
		run.StepsTotal,
		run.StepsCompleted,
		run.StepsFailed,
		string(resultsJSON),
		failuresJSON,
		run.StartedAt.UTC().Format(runTimeLayout),
		nullableTime(run.CompletedAt),
		run.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

const runColumns = `id, category, macro_name, trigger_source, status,
			steps_total, steps_completed, steps_failed,
			results, failures, started_at, completed_at, duration_ms`

// GetRun retrieves a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM macro_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. An empty category
// lists every category.
func (r *SQLiteRepository) ListRuns(ctx context.Context, category Category, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}

	query := `SELECT ` + runColumns + ` FROM macro_runs`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (*Run, error) {
	var (
		run                    Run
		category, status       string
		resultsJSON, startedAt string
		failuresJSON           sql.NullString
		completedAt            sql.NullString
		durationMS             sql.NullInt64
	)
	err := scanner.Scan(
		&run.ID,
		&category,
		&run.MacroName,
		&run.Source,
		&status,
		&run.StepsTotal,
		&run.StepsCompleted,
		&run.StepsFailed,
		&resultsJSON,
		&failuresJSON,
		&startedAt,
		&completedAt,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}

	run.Category = Category(category)
	run.Status = RunStatus(status)
	if t, parseErr := time.Parse(time.RFC3339Nano, startedAt); parseErr == nil {
		run.StartedAt = t
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339Nano, completedAt.String); parseErr == nil {
			run.CompletedAt = &t
		}
	}
	if durationMS.Valid {
		d := int(durationMS.Int64)
		run.DurationMS = &d
	}
	if resultsJSON != "" {
		if jsonErr := json.Unmarshal([]byte(resultsJSON), &run.Results); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling results: %w", jsonErr)
		}
	}
	if failuresJSON.Valid && failuresJSON.String != "" {
		if jsonErr := json.Unmarshal([]byte(failuresJSON.String), &run.Failures); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling failures: %w", jsonErr)
		}
	}
	return &run, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(runTimeLayout), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalFailures(failures []StepFailure) (sql.NullString, error) {
	if len(failures) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
