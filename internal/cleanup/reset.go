package cleanup

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"ffmpeg-api/internal/logging"
)

// Reset deletes everything inside dir, leaving dir itself. A missing
// directory yields an empty report. Per-entry failures are logged and
// counted; only a failure to list dir is returned.
func Reset(dir string) (Report, error) {
	var report Report

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report, nil
		}
		return report, err
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		var size int64
		files := 0
		if e.IsDir() {
			files, size = treeSize(path)
		} else if info, err := e.Info(); err == nil {
			files, size = 1, info.Size()
		}

		if err := os.RemoveAll(path); err != nil {
			report.Errors++
			logging.Error("Failed to remove %s: %v", path, err)
			continue
		}
		report.FilesDeleted += files
		report.BytesFreed += size
	}

	logging.Info("Reset %s: %d file(s) deleted, %.2f MB freed", dir, report.FilesDeleted, report.SpaceFreedMB())
	return report, nil
}

func treeSize(root string) (files int, size int64) {
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files++
			size += info.Size()
		}
		return nil
	})
	return files, size
}
