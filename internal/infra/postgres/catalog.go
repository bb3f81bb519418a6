package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/ports"
)

var _ ports.LanguageCatalog = (*Catalog)(nil)

const languagesSchema = `
CREATE TABLE IF NOT EXISTS languages (
	id SERIAL PRIMARY KEY,
	name VARCHAR(64) UNIQUE NOT NULL,
	image VARCHAR(255) NOT NULL,
	execute_command TEXT NOT NULL,
	compile_command TEXT,
	file_extension VARCHAR(16) NOT NULL,
	memory_limit BIGINT NOT NULL,
	cpu_limit DOUBLE PRECISION NOT NULL,
	timeout_ms BIGINT NOT NULL
);
`

const languageColumns = `name, image, execute_command, compile_command, file_extension, memory_limit, cpu_limit, timeout_ms`

// Catalog reads language specs from the languages table.
type Catalog struct {
	db *sql.DB
}

// NewCatalog wraps an open database.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// EnsureSchema creates the languages table and seeds it when it is empty.
func (c *Catalog) EnsureSchema(ctx context.Context, seed []execution.LanguageSpec) error {
	if _, err := c.db.ExecContext(ctx, languagesSchema); err != nil {
		return fmt.Errorf("create languages table: %w", err)
	}

	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM languages`).Scan(&count); err != nil {
		return fmt.Errorf("count languages: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	for _, spec := range seed {
		if err := spec.Validate(); err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO languages (`+languageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			spec.Name,
			spec.Image,
			spec.ExecuteCommand,
			nullString(spec.CompileCommand),
			spec.FileExtension,
			spec.MemoryLimitBytes,
			spec.CPULimit,
			spec.Timeout.Milliseconds(),
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("seed language %s: %w", spec.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

// ByName returns the language registered under name.
func (c *Catalog) ByName(ctx context.Context, name string) (execution.LanguageSpec, bool, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+languageColumns+` FROM languages WHERE name = $1`, name)
	spec, err := scanLanguage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return execution.LanguageSpec{}, false, nil
		}
		return execution.LanguageSpec{}, false, fmt.Errorf("query language %s: %w", name, err)
	}
	return spec, true, nil
}

// Exists reports whether name is registered.
func (c *Catalog) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM languages WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check language %s: %w", name, err)
	}
	return exists, nil
}

// List returns every registered language ordered by name.
func (c *Catalog) List(ctx context.Context) ([]execution.LanguageSpec, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+languageColumns+` FROM languages ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	defer rows.Close()

	var specs []execution.LanguageSpec
	for rows.Next() {
		spec, err := scanLanguage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan language: %w", err)
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate languages: %w", err)
	}
	return specs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLanguage(row rowScanner) (execution.LanguageSpec, error) {
	var (
		spec      execution.LanguageSpec
		compile   sql.NullString
		timeoutMs int64
	)
	err := row.Scan(
		&spec.Name,
		&spec.Image,
		&spec.ExecuteCommand,
		&compile,
		&spec.FileExtension,
		&spec.MemoryLimitBytes,
		&spec.CPULimit,
		&timeoutMs,
	)
	if err != nil {
		return execution.LanguageSpec{}, err
	}
	spec.CompileCommand = compile.String
	spec.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return spec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
