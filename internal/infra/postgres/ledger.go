package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/ports"
)

var _ ports.SubmissionLedger = (*Ledger)(nil)

const submissionsSchema = `
CREATE TABLE IF NOT EXISTS submissions (
	id BIGSERIAL PRIMARY KEY,
	task_id VARCHAR(64) NOT NULL,
	code TEXT NOT NULL,
	language VARCHAR(64) NOT NULL,
	stdin TEXT,
	cpu_time_limit DOUBLE PRECISION,
	cpu_extra_time DOUBLE PRECISION,
	command_line_arguments TEXT,
	compiler_options TEXT,
	status_id INTEGER NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_submissions_task_id ON submissions(task_id);
`

// Ledger appends an audit row for every processed submission.
type Ledger struct {
	db *sql.DB
}

// NewLedger wraps an open database.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// EnsureSchema creates the submissions table.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, submissionsSchema); err != nil {
		return fmt.Errorf("create submissions table: %w", err)
	}
	return nil
}

// Record inserts the submission.
func (l *Ledger) Record(ctx context.Context, s execution.Submission) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO submissions (task_id, code, language, stdin, cpu_time_limit, cpu_extra_time,
			command_line_arguments, compiler_options, status_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.TaskID,
		s.Code,
		s.Language,
		nullString(s.Stdin),
		nullFloat(s.CPUTimeLimit),
		nullFloat(s.CPUExtraTime),
		nullString(s.CommandLineArguments),
		nullString(s.CompilerOptions),
		int(s.StatusID),
		s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission %s: %w", s.TaskID, err)
	}
	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
