// Package photos saves generated images to the user's photo library.
package photos

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/filex"
	"github.com/google/uuid"
)

var (
	ErrPermissionDenied = errors.New("permission to save to the photo library denied")
	ErrSaveFailed       = errors.New("failed to save image to the photo library")
)

// Library is the system image-capture collaborator.
type Library interface {
	// SaveImageToLibrary stores img and returns where it was saved.
	SaveImageToLibrary(ctx context.Context, img *models.Image) (string, error)
}

// DirLibrary treats a directory as the photo library.
type DirLibrary struct {
	dir string
}

func NewDirLibrary(dir string) *DirLibrary {
	return &DirLibrary{dir: dir}
}

func (l *DirLibrary) SaveImageToLibrary(ctx context.Context, img *models.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if img == nil || len(img.Data) == 0 {
		return "", fmt.Errorf("%w: %w", ErrSaveFailed, models.ErrInvalidImage)
	}

	dir, err := filex.EnsureDir(l.dir, 0o755)
	if err != nil {
		return "", classify(err)
	}

	path := filepath.Join(dir, fmt.Sprintf("artforge-%s.%s", uuid.NewString(), img.Ext()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", classify(err)
	}

	if _, err := f.Write(img.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", classify(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", classify(err)
	}
	return path, nil
}

func classify(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrSaveFailed, err)
}
