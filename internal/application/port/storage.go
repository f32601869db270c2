package port

import "io"

// Workspace is private scratch storage for a single batch
type Workspace interface {
	Dir() string
	Path(elem ...string) string
	Save(filename string, r io.Reader) (string, error)
	Release() error
}

// WorkspaceProvider hands out fresh workspaces
type WorkspaceProvider interface {
	Acquire() (Workspace, error)
}
