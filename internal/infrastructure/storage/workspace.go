// internal/infrastructure/storage/workspace.go
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/garyjia/invoice-reimbursement/internal/application/port"
	"go.uber.org/zap"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// WorkspaceManager hands out private temporary directories, one per batch
type WorkspaceManager struct {
	root   string
	logger *zap.Logger
}

// NewWorkspaceManager creates a manager rooted at root. An empty root means the OS temp dir.
func NewWorkspaceManager(root string, logger *zap.Logger) *WorkspaceManager {
	return &WorkspaceManager{
		root:   root,
		logger: logger,
	}
}

// Acquire creates a fresh, uniquely named workspace directory.
// Callers must Release it on every exit path.
func (m *WorkspaceManager) Acquire() (port.Workspace, error) {
	if m.root != "" {
		if err := os.MkdirAll(m.root, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace root: %w", err)
		}
	}

	dir, err := os.MkdirTemp(m.root, "batch-*")
	if err != nil {
		m.logger.Error("Failed to create workspace", zap.String("root", m.root), zap.Error(err))
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	m.logger.Debug("Acquired workspace", zap.String("dir", dir))
	return &Workspace{dir: dir, logger: m.logger}, nil
}

// Workspace is a scoped directory holding one batch's uploads and extracted invoices
type Workspace struct {
	dir      string
	released bool
	logger   *zap.Logger
}

// Dir returns the workspace directory
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins elem under the workspace directory
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.dir}, elem...)...)
}

// Save streams r into a file named after filename inside the workspace and
// returns the full path. The name is sanitized so it cannot escape the workspace.
func (w *Workspace) Save(filename string, r io.Reader) (string, error) {
	fullPath := w.Path(SanitizeFileName(filename))
	if err := w.ValidatePath(fullPath); err != nil {
		return "", err
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		w.logger.Error("Failed to write file", zap.String("path", fullPath), zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	w.logger.Debug("File saved", zap.String("path", fullPath), zap.Int64("size", n))
	return fullPath, nil
}

// ValidatePath checks that fullPath lies inside the workspace
func (w *Workspace) ValidatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(w.dir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("path escapes workspace: %s", fullPath)
	}
	return nil
}

// Release removes the workspace and everything in it. It is idempotent.
func (w *Workspace) Release() error {
	if w.released {
		return nil
	}
	w.released = true

	if err := os.RemoveAll(w.dir); err != nil {
		w.logger.Error("Failed to release workspace", zap.String("dir", w.dir), zap.Error(err))
		return fmt.Errorf("failed to release workspace: %w", err)
	}

	w.logger.Debug("Released workspace", zap.String("dir", w.dir))
	return nil
}

// SanitizeFileName returns a filesystem-safe base name. Path separators,
// parent references and unusual characters are dropped.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")

	if name == "" || name == "_" {
		return "upload"
	}
	return name
}

// Verify interface compliance
var (
	_ port.WorkspaceProvider = (*WorkspaceManager)(nil)
	_ port.Workspace         = (*Workspace)(nil)
)
