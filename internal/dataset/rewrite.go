package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// transformFunc copies rows from r to w and reports whether the result should replace the source.
type transformFunc func(r *csv.Reader, w *csv.Writer) (replace bool, err error)

// rewrite streams the dataset at path through transform into a temporary file in the same
// directory. The temporary file replaces path by rename only when transform succeeds and asks
// for it; in every other case the original file is left untouched and the temporary is removed.
func rewrite(path string, transform transformFunc) (bool, error) {
	src, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer src.Close() //nolint:errcheck // read only

	info, err := src.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat dataset: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := csv.NewWriter(tmp)
	replace, err := transform(newReader(src), w)
	if err != nil {
		return false, err
	}
	if !replace {
		return false, nil
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to set temporary file mode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return false, fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return false, fmt.Errorf("failed to replace dataset: %w", err)
	}
	renamed = true
	return true, nil
}
