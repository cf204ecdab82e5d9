package dataset

import (
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// DedupStats reports the outcome of Deduplicate.
type DedupStats struct {
	Scanned  int
	Removed  int
	Retained int
}

type fingerprint [32]byte

// Deduplicate rewrites the dataset at path keeping only the first occurrence of every row.
// Rows are compared by their full content in column order; the header is always kept.
// Blank lines are not rows: they are dropped and not counted in the stats.
// A missing dataset is a no-op.
func Deduplicate(path string) (DedupStats, error) {
	var stats DedupStats
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return stats, nil
	}

	_, err := rewrite(path, func(r *csv.Reader, w *csv.Writer) (bool, error) {
		header, err := r.Read()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to read header: %w", err)
		}
		if err := w.Write(header); err != nil {
			return false, fmt.Errorf("failed to write header: %w", err)
		}

		seen := make(map[fingerprint]struct{})
		for {
			row, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return false, fmt.Errorf("failed to read row %d: %w", stats.Scanned+1, err)
			}
			stats.Scanned++

			fp := rowFingerprint(row)
			if _, dup := seen[fp]; dup {
				stats.Removed++
				continue
			}
			seen[fp] = struct{}{}
			if err := w.Write(row); err != nil {
				return false, fmt.Errorf("failed to write row: %w", err)
			}
		}
		return true, nil
	})
	if err != nil {
		return DedupStats{}, fmt.Errorf("failed to deduplicate %s: %w", path, err)
	}
	stats.Retained = stats.Scanned - stats.Removed
	return stats, nil
}

// rowFingerprint hashes the row values in order. Each value is length-prefixed so that
// ["ab","c"] and ["a","bc"] differ.
func rowFingerprint(row []string) fingerprint {
	var buf []byte
	for _, v := range row {
		buf = binary.AppendUvarint(buf, uint64(len(v)))
		buf = append(buf, v...)
	}
	return blake3.Sum256(buf)
}
