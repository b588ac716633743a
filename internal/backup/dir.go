package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirUploader writes backups into a local directory.
type DirUploader struct {
	dir string
}

func NewDirUploader(dir string) *DirUploader {
	if dir == "" {
		dir = "./backups"
	}
	return &DirUploader{dir: dir}
}

// Upload writes body to a temporary file and renames it into place.
func (u *DirUploader) Upload(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(u.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}

	tmp, err := os.CreateTemp(u.dir, ".backup-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close backup: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(u.dir, filepath.Base(key)))
}
