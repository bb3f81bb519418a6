// Package catalog provides an in-memory language catalog.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/ports"
)

var _ ports.LanguageCatalog = (*Memory)(nil)

// Memory is a read-only catalog keyed by language name.
type Memory struct {
	mu    sync.RWMutex
	specs map[string]execution.LanguageSpec
}

// NewMemory constructs a catalog from the supplied specs.
func NewMemory(specs ...execution.LanguageSpec) (*Memory, error) {
	m := &Memory{
		specs: make(map[string]execution.LanguageSpec, len(specs)),
	}

	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, exists := m.specs[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate language %q", spec.Name)
		}
		m.specs[spec.Name] = spec
	}

	if len(m.specs) == 0 {
		return nil, fmt.Errorf("at least one language must be registered")
	}

	return m, nil
}

// ByName returns the spec registered for name.
func (m *Memory) ByName(_ context.Context, name string) (execution.LanguageSpec, bool, error) {
	m.mu.RLock()
	spec, ok := m.specs[name]
	m.mu.RUnlock()
	return spec, ok, nil
}

// Exists reports whether name is registered.
func (m *Memory) Exists(ctx context.Context, name string) (bool, error) {
	_, ok, err := m.ByName(ctx, name)
	return ok, err
}

// List returns every spec sorted by name.
func (m *Memory) List(context.Context) ([]execution.LanguageSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	specs := make([]execution.LanguageSpec, 0, len(m.specs))
	for _, spec := range m.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

// Defaults returns the built-in language set.
func Defaults() []execution.LanguageSpec {
	return []execution.LanguageSpec{
		{
			Name:             "python",
			Image:            "python:3.12-slim",
			ExecuteCommand:   "python {fileName}",
			FileExtension:    ".py",
			MemoryLimitBytes: 128 * 1024 * 1024,
			CPULimit:         1,
			Timeout:          5 * time.Second,
		},
		{
			Name:             "java",
			Image:            "eclipse-temurin:21",
			ExecuteCommand:   "java {fileName}",
			CompileCommand:   "javac {fileName}",
			FileExtension:    ".java",
			MemoryLimitBytes: 256 * 1024 * 1024,
			CPULimit:         1,
			Timeout:          10 * time.Second,
		},
		{
			Name:             "javascript",
			Image:            "node:20-alpine3.19",
			ExecuteCommand:   "node {fileName}",
			FileExtension:    ".js",
			MemoryLimitBytes: 128 * 1024 * 1024,
			CPULimit:         1,
			Timeout:          5 * time.Second,
		},
	}
}
