package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

// Disk writes JPEG files under a root directory, one sub-directory per crop.
type Disk struct {
	root string
}

func NewDisk(root string) (*Disk, error) {
	if root == "" {
		return nil, fmt.Errorf("archive directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &Disk{root: root}, nil
}

func (d *Disk) Archive(_ context.Context, cropID string, frame *models.Frame) error {
	data, err := Encode(frame)
	if err != nil {
		return err
	}

	target := filepath.Join(d.root, filepath.FromSlash(ObjectKey("", cropID, frame.CapturedAt)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create crop directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}
