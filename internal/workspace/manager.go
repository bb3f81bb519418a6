// Package workspace manages the temporary host files backing a single run.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

const (
	runDirPattern = "cortex-run-*"
	runDirPrefix  = "cortex-run-"
	codeDirName   = "code"
	stdinDirName  = "stdin"
	stdinFileName = "stdin.txt"
)

// Manager creates and removes run workspaces under a base directory.
type Manager struct {
	baseDir string
	log     *zap.Logger
}

// NewManager builds a Manager rooted at baseDir, defaulting to the OS temp dir.
func NewManager(baseDir string, log *zap.Logger) (*Manager, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace base dir: %w", err)
	}
	return &Manager{baseDir: baseDir, log: log.Named("workspace")}, nil
}

// Provision writes the decoded code and stdin of one run into a fresh directory.
func (m *Manager) Provision(spec execution.LanguageSpec, code []byte, stdin string) (execution.Workspace, error) {
	root, err := os.MkdirTemp(m.baseDir, runDirPattern)
	if err != nil {
		return execution.Workspace{}, fmt.Errorf("%w: create run dir: %w", execution.ErrFileOperation, err)
	}

	ws := execution.Workspace{
		Root:      root,
		CodeDir:   filepath.Join(root, codeDirName),
		CodeFile:  spec.CodeFileName(),
		StdinDir:  filepath.Join(root, stdinDirName),
		StdinFile: stdinFileName,
	}

	if err := m.writeFiles(ws, code, stdin); err != nil {
		m.Release(root)
		return execution.Workspace{}, fmt.Errorf("%w: %w", execution.ErrFileOperation, err)
	}

	m.log.Debug("workspace provisioned", zap.String("root", root), zap.String("code_file", ws.CodeFile))
	return ws, nil
}

func (m *Manager) writeFiles(ws execution.Workspace, code []byte, stdin string) error {
	// Containers may run as a non-root user, so the mounts must be world readable.
	for _, dir := range []string{ws.Root, ws.CodeDir, ws.StdinDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
		if err := os.Chmod(dir, 0o755); err != nil {
			return fmt.Errorf("chmod dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(ws.CodeDir, ws.CodeFile), code, 0o644); err != nil {
		return fmt.Errorf("write code file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(ws.StdinDir, ws.StdinFile), []byte(stdin), 0o644); err != nil {
		return fmt.Errorf("write stdin file: %w", err)
	}
	return nil
}

// Release removes the given paths. Failures are logged and never returned.
func (m *Manager) Release(paths ...string) {
	for _, p := range paths {
		clean := filepath.Clean(p)
		if p == "" || clean == "." || clean == string(filepath.Separator) {
			continue
		}
		if err := os.RemoveAll(clean); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.log.Warn("failed to remove workspace path", zap.String("path", clean), zap.Error(err))
		}
	}
}

// PurgeStale removes run directories left behind by a previous process that
// are older than maxAge. It returns the number of directories removed.
func (m *Manager) PurgeStale(now time.Time, maxAge time.Duration) int {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		m.log.Warn("failed to list workspace base dir", zap.String("dir", m.baseDir), zap.Error(err))
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), runDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		m.Release(filepath.Join(m.baseDir, entry.Name()))
		removed++
	}
	if removed > 0 {
		m.log.Info("purged stale workspaces", zap.Int("count", removed))
	}
	return removed
}
