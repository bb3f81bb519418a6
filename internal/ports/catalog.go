package ports

import (
	"context"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

// LanguageCatalog resolves language names into run specifications.
type LanguageCatalog interface {
	ByName(ctx context.Context, name string) (execution.LanguageSpec, bool, error)
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]execution.LanguageSpec, error)
}
