package export

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir writes export files into a directory on the local filesystem
type Dir struct {
	basePath string
}

// NewDir creates a Dir, creating the directory if it doesn't exist
func NewDir(basePath string) (*Dir, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	return &Dir{
		basePath: basePath,
	}, nil
}

// Save writes data to filename inside the directory and returns the full path
func (d *Dir) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(d.basePath, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}
