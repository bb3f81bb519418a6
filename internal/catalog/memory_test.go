package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

func TestNewMemoryRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := NewMemory()
	require.Error(t, err)

	python := Defaults()[0]
	_, err = NewMemory(python, python)
	require.ErrorContains(t, err, "duplicate")

	_, err = NewMemory(execution.LanguageSpec{Name: "bad", Image: "img", ExecuteCommand: "run"})
	require.Error(t, err)
}

func TestMemoryLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat, err := NewMemory(Defaults()...)
	require.NoError(t, err)

	spec, ok, err := cat.ByName(ctx, "java")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "eclipse-temurin:21", spec.Image)
	assert.Equal(t, "javac {fileName}", spec.CompileCommand)

	exists, err := cat.Exists(ctx, "cobol")
	require.NoError(t, err)
	assert.False(t, exists)

	list, err := cat.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"java", "javascript", "python"}, []string{list[0].Name, list[1].Name, list[2].Name})
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	for _, spec := range Defaults() {
		assert.NoError(t, spec.Validate(), spec.Name)
	}
}
