package ports

import (
	"context"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

// ResultCache stores outcomes by task id with a fixed expiry.
type ResultCache interface {
	Get(ctx context.Context, taskID string) (execution.Outcome, bool, error)
	Set(ctx context.Context, taskID string, outcome execution.Outcome) error
}

// SubmissionLedger records an audit entry for every processed task.
type SubmissionLedger interface {
	Record(ctx context.Context, submission execution.Submission) error
}
